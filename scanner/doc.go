// Package scanner iterates large row ranges of an HBase-style REST gateway
// in bounded pages through server-side scanners.
//
// A Cursor wraps one server-side scanner. Creating it sends the row bounds,
// columns and filter tree of the scan; each Next call returns the next page
// of cells; Delete releases the server resources. Row keys, columns and
// values travel base64 encoded and are decoded before they reach the caller.
//
// # Basic Usage
//
// The cursor talks to the gateway through a Connection. Package rest
// provides one over net/http:
//
//	conn, err := rest.New("http://localhost:8080")
//	if err != nil {
//	    return err
//	}
//
//	c := scanner.New(conn, "users")
//	if _, err := c.Create(ctx, &scanner.Options{
//	    StartRow: []byte("a"),
//	    EndRow:   []byte("z"),
//	    Batch:    100,
//	}); err != nil {
//	    return err
//	}
//	defer c.Delete(ctx)
//
//	for {
//	    records, err := c.Next(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if records == nil {
//	        break // exhausted
//	    }
//	    for _, r := range records {
//	        fmt.Printf("%s %s=%s\n", r.Key, r.Column, r.Value)
//	    }
//	}
//
// Each runs the same loop and always deletes the scanner; Records exposes the
// cells as an iterator.
//
// # Filters
//
// Filters are plain trees of the gateway's filter model. Values are given
// raw; the cursor encodes them, except for RegexStringComparator and
// PageFilter values which the server parses itself. The tree passed in is
// never modified:
//
//	f := scanner.FilterList(scanner.MustPassAll,
//	    scanner.RowFilter(scanner.Equal,
//	        scanner.Compare(scanner.RegexStringComparator, "my_key_.+")),
//	    scanner.ValueFilter(scanner.Equal,
//	        scanner.Compare(scanner.BinaryComparator, "here you are")),
//	)
//
// ParseFilter reads the same tree from JSON.
//
// # Continuations
//
// Get runs a page request in the background and calls a Handler with the
// cursor, so a handler can keep the scan going with Continue and end it with
// Release. Only one request per cursor may be in flight; a second one fails
// with ErrScanInProgress.
//
// # Mapping Rows
//
// Implement Scanner to decode the cells of a row into a struct:
//
//	type User struct {
//	    ID   string
//	    Name string
//	    Age  int
//	}
//
//	func (u *User) ScanTargets(columns []string) []any {
//	    return scanner.ScanMap(columns, map[string]any{
//	        scanner.RowKey: &u.ID,
//	        "info:name":    &u.Name,
//	        "info:age":     &u.Age,
//	    })
//	}
//
//	users, err := scanner.ScanRows[User](records)
//
// # Parallel Scans
//
// ScanRanges splits a scan over disjoint row ranges, one cursor each, with
// bounded parallelism.
package scanner
