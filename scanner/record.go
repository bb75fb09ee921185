package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one cell returned by a scan.
type Record struct {
	Key       []byte `json:"key"`
	Column    []byte `json:"column"`
	Timestamp int64  `json:"timestamp"`
	Value     []byte `json:"$"`
}

// Family returns the part of Column before the first ':'.
func (r Record) Family() []byte {
	if i := bytes.IndexByte(r.Column, ':'); i >= 0 {
		return r.Column[:i]
	}
	return r.Column
}

// Qualifier returns the part of Column after the first ':', or nil.
func (r Record) Qualifier() []byte {
	if i := bytes.IndexByte(r.Column, ':'); i >= 0 {
		return r.Column[i+1:]
	}
	return nil
}

// cellSet mirrors a page returned by the gateway:
//
//	{"Row":[{"key":b64,"Cell":[{"column":b64,"timestamp":1,"$":b64}]}]}
type cellSet struct {
	Row []struct {
		Key  string `json:"key"`
		Cell []struct {
			Column    string `json:"column"`
			Timestamp int64  `json:"timestamp"`
			Value     string `json:"$"`
		} `json:"Cell"`
	} `json:"Row"`
}

// decodeCellSet flattens a page into records, keeping the server's row
// order and, within a row, its cell order.
func decodeCellSet(body []byte) ([]Record, error) {
	var set cellSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("scanner: decode page: %w", err)
	}

	n := 0
	for _, row := range set.Row {
		n += len(row.Cell)
	}
	records := make([]Record, 0, n)
	for i, row := range set.Row {
		key, err := Decode(row.Key)
		if err != nil {
			return nil, fmt.Errorf("scanner: decode key of row %d: %w", i, err)
		}
		for j, cell := range row.Cell {
			column, err := Decode(cell.Column)
			if err != nil {
				return nil, fmt.Errorf("scanner: decode column of cell %d in row %q: %w", j, key, err)
			}
			value, err := Decode(cell.Value)
			if err != nil {
				return nil, fmt.Errorf("scanner: decode value of cell %d in row %q: %w", j, key, err)
			}
			records = append(records, Record{
				Key:       key,
				Column:    column,
				Timestamp: cell.Timestamp,
				Value:     value,
			})
		}
	}
	return records, nil
}
