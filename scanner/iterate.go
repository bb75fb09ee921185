package scanner

import (
	"context"
	"errors"
	"iter"
)

// Each calls fn with every page until the scan is exhausted, fn returns an
// error, or ctx is done. The scanner is deleted in all cases.
func (c *Cursor) Each(ctx context.Context, fn func(records []Record) error) (err error) {
	defer func() {
		if derr := c.Delete(context.WithoutCancel(ctx)); derr != nil && !errors.Is(derr, ErrNotActive) {
			err = errors.Join(err, derr)
		}
	}()

	for {
		records, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if records == nil {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
	}
}

// Records iterates over single cells across pages. Iteration stops at the
// first error, which is yielded once. The scanner is not deleted.
func (c *Cursor) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			records, err := c.Next(ctx)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if records == nil {
				return
			}
			for _, r := range records {
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}
