package scanner

import (
	"encoding/json"
	"fmt"
)

// Options describe the row range and projection of a scan. The zero value
// (or a nil *Options) scans the whole table without a filter.
type Options struct {
	// StartRow is the first row returned, inclusive.
	StartRow []byte
	// EndRow stops the scan and is not returned.
	EndRow []byte
	// Columns restricts the scan to "family" or "family:qualifier" entries.
	Columns [][]byte
	// Batch is the maximum number of cells per page.
	Batch       int
	StartTime   int64
	EndTime     int64
	MaxVersions int
	Filter      Filter
}

// Columns converts column names into the byte form used by Options.
func Columns(names ...string) [][]byte {
	cols := make([][]byte, len(names))
	for i, n := range names {
		cols[i] = []byte(n)
	}
	return cols
}

// scannerModel is the JSON body of a scanner creation request. Every
// byte-valued field is already base64 encoded.
type scannerModel struct {
	StartRow    string   `json:"startRow,omitempty"`
	EndRow      string   `json:"endRow,omitempty"`
	Column      []string `json:"column,omitempty"`
	Batch       int      `json:"batch,omitempty"`
	StartTime   int64    `json:"startTime,omitempty"`
	EndTime     int64    `json:"endTime,omitempty"`
	MaxVersions int      `json:"maxVersions,omitempty"`
	Filter      string   `json:"filter,omitempty"`
}

// model encodes o into its wire form. o is left untouched.
func (o *Options) model() (*scannerModel, error) {
	m := &scannerModel{}
	if o == nil {
		return m, nil
	}
	if o.Batch < 0 {
		return nil, fmt.Errorf("scanner: negative batch %d", o.Batch)
	}
	if len(o.StartRow) > 0 {
		m.StartRow = Encode(o.StartRow)
	}
	if len(o.EndRow) > 0 {
		m.EndRow = Encode(o.EndRow)
	}
	if len(o.Columns) > 0 {
		m.Column = make([]string, len(o.Columns))
		for i, col := range o.Columns {
			m.Column[i] = Encode(col)
		}
	}
	m.Batch = o.Batch
	m.StartTime = o.StartTime
	m.EndTime = o.EndTime
	m.MaxVersions = o.MaxVersions
	if o.Filter != nil {
		s, err := EncodeFilterString(o.Filter)
		if err != nil {
			return nil, err
		}
		m.Filter = s
	}
	return m, nil
}

// MarshalJSON renders the options as the gateway expects them.
func (o *Options) MarshalJSON() ([]byte, error) {
	m, err := o.model()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
