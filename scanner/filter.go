package scanner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Filter is a server-side predicate tree. Leaves usually hold a
// "comparator" object with a "type" and a "value"; FilterList nodes combine
// the entries of "filters". Values are given raw and encoded on the way out.
type Filter map[string]any

// ErrInvalidFilter is returned for filter trees that cannot be encoded.
var ErrInvalidFilter = errors.New("scanner: invalid filter")

// Comparator and filter type names understood by the gateway.
const (
	RegexStringComparator  = "RegexStringComparator"
	BinaryComparator       = "BinaryComparator"
	BinaryPrefixComparator = "BinaryPrefixComparator"
	SubstringComparator    = "SubstringComparator"

	TypeFilterList      = "FilterList"
	TypeRowFilter       = "RowFilter"
	TypeValueFilter     = "ValueFilter"
	TypeQualifierFilter = "QualifierFilter"
	TypeFamilyFilter    = "FamilyFilter"
	TypePageFilter      = "PageFilter"
)

// FilterList operators.
const (
	MustPassAll = "MUST_PASS_ALL"
	MustPassOne = "MUST_PASS_ONE"
)

// Compare operators.
const (
	Less           = "LESS"
	LessOrEqual    = "LESS_OR_EQUAL"
	Equal          = "EQUAL"
	NotEqual       = "NOT_EQUAL"
	GreaterOrEqual = "GREATER_OR_EQUAL"
	Greater        = "GREATER"
)

// plainValueTypes hold values parsed by the server itself (a regular
// expression, a page size), so they are sent as-is.
var plainValueTypes = map[string]bool{
	RegexStringComparator: true,
	TypePageFilter:        true,
}

// Compare builds a comparator node.
func Compare(typ string, value any) Filter {
	return Filter{"type": typ, "value": value}
}

// FilterList combines filters with MustPassAll or MustPassOne.
func FilterList(op string, filters ...Filter) Filter {
	list := make([]any, len(filters))
	for i, f := range filters {
		list[i] = f
	}
	return Filter{"type": TypeFilterList, "op": op, "filters": list}
}

// RowFilter matches row keys against cmp.
func RowFilter(op string, cmp Filter) Filter {
	return compareFilter(TypeRowFilter, op, cmp)
}

// ValueFilter matches cell values against cmp.
func ValueFilter(op string, cmp Filter) Filter {
	return compareFilter(TypeValueFilter, op, cmp)
}

// QualifierFilter matches column qualifiers against cmp.
func QualifierFilter(op string, cmp Filter) Filter {
	return compareFilter(TypeQualifierFilter, op, cmp)
}

// FamilyFilter matches column families against cmp.
func FamilyFilter(op string, cmp Filter) Filter {
	return compareFilter(TypeFamilyFilter, op, cmp)
}

// PageFilter limits the number of rows per region server.
func PageFilter(rows int) Filter {
	return Filter{"type": TypePageFilter, "value": strconv.Itoa(rows)}
}

func compareFilter(typ, op string, cmp Filter) Filter {
	return Filter{"type": typ, "op": op, "comparator": cmp}
}

// EncodeFilter returns a copy of f where every "value" is base64 encoded,
// except for values of nodes whose type is in the plain value set. f is not
// modified and may be reused across scans.
func EncodeFilter(f Filter) (Filter, error) {
	out, err := encodeNode(f)
	if err != nil {
		return nil, err
	}
	return Filter(out), nil
}

// EncodeFilterString encodes f and renders it as the JSON string carried
// in the "filter" field of a scanner request.
func EncodeFilterString(f Filter) (string, error) {
	enc, err := EncodeFilter(f)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return string(b), nil
}

func encodeNode(node map[string]any) (map[string]any, error) {
	typ, _ := node["type"].(string)
	out := make(map[string]any, len(node))
	for k, v := range node {
		if k == "value" && !plainValueTypes[typ] {
			s, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s value: %v", ErrInvalidFilter, typeLabel(typ), err)
			}
			out[k] = s
			continue
		}
		ev, err := encodeAny(v)
		if err != nil {
			return nil, err
		}
		out[k] = ev
	}
	return out, nil
}

func encodeAny(v any) (any, error) {
	switch t := v.(type) {
	case Filter:
		return encodeNode(t)
	case map[string]any:
		return encodeNode(t)
	case []Filter:
		list := make([]any, len(t))
		for i, f := range t {
			enc, err := encodeNode(f)
			if err != nil {
				return nil, err
			}
			list[i] = enc
		}
		return list, nil
	case []map[string]any:
		list := make([]any, len(t))
		for i, f := range t {
			enc, err := encodeNode(f)
			if err != nil {
				return nil, err
			}
			list[i] = enc
		}
		return list, nil
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			enc, err := encodeAny(e)
			if err != nil {
				return nil, err
			}
			list[i] = enc
		}
		return list, nil
	default:
		return v, nil
	}
}

func encodeValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return Encode([]byte(t)), nil
	case []byte:
		return Encode(t), nil
	case json.Number:
		return Encode([]byte(t.String())), nil
	case float64:
		return Encode([]byte(strconv.FormatFloat(t, 'f', -1, 64))), nil
	case float32:
		return Encode([]byte(strconv.FormatFloat(float64(t), 'f', -1, 32))), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Encode([]byte(fmt.Sprint(t))), nil
	case nil:
		return "", errors.New("missing")
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func typeLabel(typ string) string {
	if typ == "" {
		return "untyped"
	}
	return typ
}

const filterSchema = `{
  "definitions": {
    "comparator": {
      "type": "object",
      "required": ["type", "value"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "value": {"type": ["string", "number"]}
      }
    }
  },
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "op": {"type": "string"},
    "value": {"type": ["string", "number"]},
    "comparator": {"$ref": "#/definitions/comparator"},
    "filters": {"type": "array", "items": {"$ref": "#"}}
  }
}`

var filterSchemaLoader = gojsonschema.NewStringLoader(filterSchema)

// ParseFilter reads a filter tree from JSON and checks its shape: every
// node is an object with a "type", comparators carry a scalar "value", and
// "filters" holds nested nodes. Numbers are kept as json.Number.
func ParseFilter(data []byte) (Filter, error) {
	result, err := gojsonschema.Validate(filterSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(msgs, "; "))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return f, nil
}
