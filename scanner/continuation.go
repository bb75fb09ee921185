package scanner

import "context"

// Get fetches the next page in the background and hands the outcome to fn.
// A nil fn reuses the handler registered by the previous call, so a handler
// can drive the scan by calling c.Continue and end it with c.Release:
//
//	c.Get(ctx, func(c *scanner.Cursor, records []scanner.Record, err error) {
//	    if err != nil || records == nil {
//	        c.Release(ctx, nil)
//	        return
//	    }
//	    consume(records)
//	    c.Continue(ctx)
//	})
//
// Errors that prevent the request from being sent (ErrNotActive,
// ErrScanInProgress, ErrNoContinuation) are returned directly and fn is not
// called. The in-flight slot is freed before fn runs.
func (c *Cursor) Get(ctx context.Context, fn Handler) error {
	c.mu.Lock()
	if fn != nil {
		c.pending = fn
	} else {
		fn = c.pending
	}
	c.mu.Unlock()
	if fn == nil {
		return ErrNoContinuation
	}

	id, err := c.acquire()
	if err != nil {
		return err
	}
	go func() {
		records, err := c.fetch(ctx, id)
		c.busy.Store(false)
		fn(c, records, err)
	}()
	return nil
}

// Continue is Get with the previously registered handler.
func (c *Cursor) Continue(ctx context.Context) error {
	return c.Get(ctx, nil)
}

// Release deletes the scanner in the background. fn, when set, gets
// (c, true, nil) or (c, false, err). With a nil fn a failure panics: a
// scanner that could not be released is never dropped silently.
func (c *Cursor) Release(ctx context.Context, fn ReleaseHandler) {
	go func() {
		err := c.Delete(ctx)
		if fn == nil {
			if err != nil {
				c.fault(err)
			}
			return
		}
		fn(c, err == nil, err)
	}()
}
