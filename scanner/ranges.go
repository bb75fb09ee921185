package scanner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Range is a half-open row key interval [Start, End). Empty bounds are open.
type Range struct {
	Start []byte
	End   []byte
}

// SplitRange cuts [start, end) at the given keys, which must be sorted and
// lie strictly inside the interval.
func SplitRange(start, end []byte, splits ...[]byte) []Range {
	ranges := make([]Range, 0, len(splits)+1)
	lo := start
	for _, s := range splits {
		ranges = append(ranges, Range{Start: lo, End: s})
		lo = s
	}
	return append(ranges, Range{Start: lo, End: end})
}

// ScanRanges scans every range of table with its own cursor, running at most
// parallel scans at once (0 means unlimited). base supplies everything but
// the row bounds and may be nil. fn may be called concurrently for
// different ranges; pages of one range arrive in order. The first error
// cancels the remaining scans.
func ScanRanges(ctx context.Context, conn Connection, table string, base *Options, ranges []Range, parallel int, fn func(Range, []Record) error, opts ...Option) error {
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for _, r := range ranges {
		g.Go(func() error {
			var o Options
			if base != nil {
				o = *base
			}
			o.StartRow, o.EndRow = r.Start, r.End

			c := New(conn, table, opts...)
			if _, err := c.Create(gctx, &o); err != nil {
				return fmt.Errorf("range [%q, %q): %w", r.Start, r.End, err)
			}
			return c.Each(gctx, func(records []Record) error {
				return fn(r, records)
			})
		})
	}
	return g.Wait()
}
