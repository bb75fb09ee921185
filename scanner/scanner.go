package scanner

import (
	"bytes"
	"database/sql"
	"encoding"
	"errors"
	"fmt"
	"strconv"
)

// RowKey is the pseudo column under which ScanTargets receives the row key.
const RowKey = "$key"

// ErrNoRows is returned by ScanRow when there are no records.
var ErrNoRows = errors.New("scanner: no rows in result")

// Scanner describes a type that knows how to turn the columns of one row
// into destinations for the cell values. See ScanTargets for the contract.
type Scanner interface {
	// ScanTargets returns a slice of pointers matching the provided columns.
	// Columns are "family:qualifier" names, preceded by RowKey.
	ScanTargets(columns []string) []any
}

// Ptr is a generic type constraint requiring a pointer to T that also
// implements Scanner. It lets ScanRow and friends create new values while
// the user provides the ScanTargets logic.
type Ptr[T any] interface {
	*T
	Scanner
}

// QueryOption configures scan behavior.
type QueryOption func(*queryConfig)

type queryConfig struct {
	expectedSize int
}

// WithExpectedSize pre-allocates slice capacity for the given number of rows.
func WithExpectedSize(size int) QueryOption {
	return func(c *queryConfig) {
		c.expectedSize = size
	}
}

// ExpectedSize returns the capacity hint carried by opts.
func ExpectedSize(opts ...QueryOption) int {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.expectedSize
}

// ScanRow decodes the first row found in records into a new struct value.
// It returns ErrNoRows when records is empty.
func ScanRow[T any, P Ptr[T]](records []Record) (*T, error) {
	if len(records) == 0 {
		return nil, ErrNoRows
	}
	end := rowEnd(records, 0)

	var result T
	if err := scanInto(P(&result), records[:end]); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScanRows groups consecutive records sharing a row key and decodes each
// group into a new struct value, in order. A row split across two pages
// yields two values; merge pages first when batch is smaller than a row.
func ScanRows[T any, P Ptr[T]](records []Record, opts ...QueryOption) ([]*T, error) {
	results := make([]*T, 0, ExpectedSize(opts...))
	for start := 0; start < len(records); {
		end := rowEnd(records, start)
		var result T
		if err := scanInto(P(&result), records[start:end]); err != nil {
			return nil, err
		}
		results = append(results, &result)
		start = end
	}
	return results, nil
}

// ScanMap creates a ScanTargets-compatible slice from a column-to-field map.
// Columns not present in mapping receive a throwaway placeholder pointer so
// the caller can ignore unexpected columns safely.
func ScanMap(columns []string, mapping map[string]any) []any {
	targets := make([]any, len(columns))
	for i, col := range columns {
		if target, ok := mapping[col]; ok {
			targets[i] = target
		} else {
			var placeholder any
			targets[i] = &placeholder
		}
	}
	return targets
}

func rowEnd(records []Record, start int) int {
	end := start + 1
	for end < len(records) && bytes.Equal(records[end].Key, records[start].Key) {
		end++
	}
	return end
}

// scanInto fills s from the cells of one row. When a column repeats (several
// versions) only the first, newest, cell is used.
func scanInto(s Scanner, row []Record) error {
	columns := []string{RowKey}
	values := [][]byte{row[0].Key}
	seen := make(map[string]bool, len(row))
	for _, r := range row {
		col := string(r.Column)
		if seen[col] {
			continue
		}
		seen[col] = true
		columns = append(columns, col)
		values = append(values, r.Value)
	}

	targets := s.ScanTargets(columns)
	if len(targets) != len(columns) {
		return fmt.Errorf("scanner: %d targets for %d columns", len(targets), len(columns))
	}
	for i, target := range targets {
		if err := assign(target, values[i]); err != nil {
			return fmt.Errorf("scanner: row %q column %q: %w", row[0].Key, columns[i], err)
		}
	}
	return nil
}

// assign converts a raw cell value into target. Numbers and booleans are
// parsed from their decimal text form.
func assign(target any, value []byte) error {
	switch t := target.(type) {
	case nil:
		return errors.New("nil target")
	case *[]byte:
		*t = bytes.Clone(value)
	case *string:
		*t = string(value)
	case *int:
		n, err := strconv.Atoi(string(value))
		if err != nil {
			return err
		}
		*t = n
	case *int64:
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return err
		}
		*t = n
	case *int32:
		n, err := strconv.ParseInt(string(value), 10, 32)
		if err != nil {
			return err
		}
		*t = int32(n)
	case *uint64:
		n, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			return err
		}
		*t = n
	case *float64:
		f, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return err
		}
		*t = f
	case *float32:
		f, err := strconv.ParseFloat(string(value), 32)
		if err != nil {
			return err
		}
		*t = float32(f)
	case *bool:
		b, err := strconv.ParseBool(string(value))
		if err != nil {
			return err
		}
		*t = b
	case *any:
		*t = bytes.Clone(value)
	case sql.Scanner:
		return t.Scan(bytes.Clone(value))
	case encoding.TextUnmarshaler:
		return t.UnmarshalText(value)
	default:
		return fmt.Errorf("unsupported target type %T", target)
	}
	return nil
}
