package scanner

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlimpid/hbrest/logger"
)

type stubConn struct {
	mu     sync.Mutex
	calls  []string
	bodies []any

	put func(key string, body any) (*Response, error)
	get func(key string) (*Response, error)
	del func(key string) (*Response, error)
}

func (s *stubConn) record(call string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if body != nil {
		s.bodies = append(s.bodies, body)
	}
}

func (s *stubConn) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubConn) Put(_ context.Context, key string, body any) (*Response, error) {
	s.record("PUT "+key, body)
	if s.put == nil {
		return created("abc123"), nil
	}
	return s.put(key, body)
}

func (s *stubConn) Get(_ context.Context, key string) (*Response, error) {
	s.record("GET "+key, nil)
	if s.get == nil {
		return noContent(), nil
	}
	return s.get(key)
}

func (s *stubConn) Delete(_ context.Context, key string) (*Response, error) {
	s.record("DELETE "+key, nil)
	if s.del == nil {
		return &Response{StatusCode: http.StatusOK}, nil
	}
	return s.del(key)
}

func created(id string) *Response {
	return &Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"Location": {"http://gateway:8080/users/scanner/" + id}},
	}
}

func noContent() *Response {
	return &Response{StatusCode: http.StatusNoContent}
}

// pages serves bodies in order, then reports exhaustion.
func pages(bodies ...[]byte) func(string) (*Response, error) {
	var mu sync.Mutex
	return func(string) (*Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(bodies) == 0 {
			return noContent(), nil
		}
		b := bodies[0]
		bodies = bodies[1:]
		return &Response{StatusCode: http.StatusOK, Body: b}, nil
	}
}

func newTestCursor(conn Connection) *Cursor {
	return New(conn, "users", WithLogger(logger.Discard()))
}

func createdCursor(t *testing.T, conn Connection) *Cursor {
	t.Helper()
	c := newTestCursor(conn)
	_, err := c.Create(context.Background(), nil)
	require.NoError(t, err)
	return c
}

func TestCursor_Create(t *testing.T) {
	conn := &stubConn{}
	c := newTestCursor(conn)
	assert.Equal(t, "", c.ID())
	assert.False(t, c.Active())

	id, err := c.Create(context.Background(), &Options{StartRow: []byte("a"), EndRow: []byte("z"), Batch: 100})
	require.NoError(t, err)

	assert.Equal(t, "abc123", id)
	assert.Regexp(t, `^\w+$`, id)
	assert.Equal(t, "abc123", c.ID())
	assert.True(t, c.Active())
	assert.Equal(t, []string{"PUT /users/scanner"}, conn.Calls())

	body, ok := conn.bodies[0].(*scannerModel)
	require.True(t, ok)
	assert.Equal(t, Encode([]byte("a")), body.StartRow)
	assert.Equal(t, Encode([]byte("z")), body.EndRow)
	assert.Equal(t, 100, body.Batch)
}

func TestCursor_CreateEscapesTable(t *testing.T) {
	conn := &stubConn{}
	c := New(conn, "ns:my table", WithLogger(logger.Discard()))
	_, err := c.Create(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PUT /ns:my%20table/scanner"}, conn.Calls())
}

func TestCursor_CreateMalformedLocation(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{name: "no header", resp: &Response{StatusCode: http.StatusCreated, Header: http.Header{}}},
		{name: "nil header", resp: &Response{StatusCode: http.StatusCreated}},
		{name: "wrong path", resp: &Response{StatusCode: http.StatusCreated, Header: http.Header{"Location": {"http://gw/users/other/1"}}}},
		{name: "trailing slash", resp: &Response{StatusCode: http.StatusCreated, Header: http.Header{"Location": {"http://gw/users/scanner/"}}}},
		{name: "non word id", resp: &Response{StatusCode: http.StatusCreated, Header: http.Header{"Location": {"http://gw/users/scanner/ab-cd"}}}},
		{name: "nil response", resp: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &stubConn{put: func(string, any) (*Response, error) { return tt.resp, nil }}
			c := newTestCursor(conn)

			id, err := c.Create(context.Background(), nil)
			assert.ErrorIs(t, err, ErrMalformedLocation)
			assert.Empty(t, id)
			assert.Empty(t, c.ID())

			_, err = c.Next(context.Background())
			assert.ErrorIs(t, err, ErrNotActive)
		})
	}
}

func TestCursor_CreateTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	conn := &stubConn{put: func(string, any) (*Response, error) { return nil, boom }}
	c := newTestCursor(conn)

	_, err := c.Create(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Active())

	// still uncreated, so a retry is allowed
	conn.put = nil
	id, err := c.Create(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestCursor_CreateTwice(t *testing.T) {
	c := createdCursor(t, &stubConn{})
	_, err := c.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyCreated)
}

func TestCursor_CreateInvalidOptions(t *testing.T) {
	conn := &stubConn{}
	c := newTestCursor(conn)
	_, err := c.Create(context.Background(), &Options{Filter: Filter{"type": "ValueFilter", "comparator": Filter{"type": BinaryComparator}}})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.Empty(t, conn.Calls())
}

func TestCursor_NextBeforeCreate(t *testing.T) {
	c := newTestCursor(&stubConn{})
	records, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Nil(t, records)
}

func TestCursor_NextPagesThenExhaustion(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1")), row("b", cell("cf:x", 1, "2"))),
		page(row("c", cell("cf:x", 1, "3"), cell("cf:y", 1, "4"))),
	)}
	c := createdCursor(t, conn)
	ctx := context.Background()

	first, err := c.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []byte("a"), first[0].Key)
	assert.Equal(t, []byte("b"), first[1].Key)

	second, err := c.Next(ctx)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, []byte("cf:x"), second[0].Column)
	assert.Equal(t, []byte("cf:y"), second[1].Column)

	done, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.False(t, c.Active())

	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, ErrNotActive)

	assert.Equal(t, []string{
		"PUT /users/scanner",
		"GET /users/scanner/abc123",
		"GET /users/scanner/abc123",
		"GET /users/scanner/abc123",
	}, conn.Calls())
}

func TestCursor_NextNoContentWinsOverError(t *testing.T) {
	conn := &stubConn{get: func(string) (*Response, error) {
		return noContent(), errors.New("unexpected status")
	}}
	c := createdCursor(t, conn)

	records, err := c.Next(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, records)
}

func TestCursor_NextEmptyPageIsExhaustion(t *testing.T) {
	conn := &stubConn{get: func(string) (*Response, error) {
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{"Row":[]}`)}, nil
	}}
	c := createdCursor(t, conn)

	records, err := c.Next(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, records)
	assert.False(t, c.Active())
}

func TestCursor_NextTransportError(t *testing.T) {
	boom := errors.New("reset by peer")
	conn := &stubConn{get: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	records, err := c.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, records)
	assert.True(t, c.Active())
}

func TestCursor_NextDecodeError(t *testing.T) {
	conn := &stubConn{get: func(string) (*Response, error) {
		return &Response{StatusCode: http.StatusOK, Body: []byte(`<html>`)}, nil
	}}
	c := createdCursor(t, conn)

	records, err := c.Next(context.Background())
	assert.Error(t, err)
	assert.Nil(t, records)
}

func TestCursor_InFlightGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	conn := &stubConn{get: func(string) (*Response, error) {
		close(started)
		<-release
		return noContent(), nil
	}}
	c := createdCursor(t, conn)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Next(ctx)
		done <- err
	}()
	<-started

	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, ErrScanInProgress)
	err = c.Get(ctx, func(*Cursor, []Record, error) {})
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(release)
	assert.NoError(t, <-done)
}

func TestCursor_Delete(t *testing.T) {
	conn := &stubConn{}
	c := createdCursor(t, conn)

	require.NoError(t, c.Delete(context.Background()))
	assert.False(t, c.Active())
	assert.Equal(t, "DELETE /users/scanner/abc123", conn.Calls()[1])

	assert.ErrorIs(t, c.Delete(context.Background()), ErrNotActive)
	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCursor_DeleteAfterExhaustion(t *testing.T) {
	conn := &stubConn{}
	c := createdCursor(t, conn)

	records, err := c.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, records)

	assert.NoError(t, c.Delete(context.Background()))
}

func TestCursor_DeleteBeforeCreate(t *testing.T) {
	conn := &stubConn{}
	c := newTestCursor(conn)
	assert.ErrorIs(t, c.Delete(context.Background()), ErrNotActive)
	assert.Empty(t, conn.Calls())
}

func TestCursor_DeleteError(t *testing.T) {
	boom := errors.New("gateway down")
	conn := &stubConn{del: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	assert.ErrorIs(t, c.Delete(context.Background()), boom)
	assert.True(t, c.Active())
}

func TestOpen(t *testing.T) {
	conn := &stubConn{get: pages(page(row("k", cell("cf:a", 7, "v"))))}
	c := Open(conn, "users", "resumed1", WithLogger(logger.Discard()))

	assert.Equal(t, "resumed1", c.ID())
	assert.Equal(t, "users", c.Table())
	assert.True(t, c.Active())

	records, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), records[0].Timestamp)
	assert.Equal(t, []string{"GET /users/scanner/resumed1"}, conn.Calls())

	_, err = c.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyCreated)
}

func TestCursor_GetContinueRelease(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1"))),
		page(row("b", cell("cf:x", 1, "2"))),
		page(row("c", cell("cf:x", 1, "3"))),
	)}
	c := createdCursor(t, conn)
	ctx := context.Background()

	var keys []string
	released := make(chan bool, 1)
	err := c.Get(ctx, func(c *Cursor, records []Record, err error) {
		assert.NoError(t, err)
		if records == nil {
			c.Release(ctx, func(_ *Cursor, ok bool, err error) {
				assert.NoError(t, err)
				released <- ok
			})
			return
		}
		for _, r := range records {
			keys = append(keys, string(r.Key))
		}
		assert.NoError(t, c.Continue(ctx))
	})
	require.NoError(t, err)

	select {
	case ok := <-released:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish")
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, "DELETE /users/scanner/abc123", conn.Calls()[len(conn.Calls())-1])
}

func TestCursor_GetErrorGoesToHandler(t *testing.T) {
	boom := errors.New("timeout")
	conn := &stubConn{get: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	got := make(chan error, 1)
	require.NoError(t, c.Get(context.Background(), func(_ *Cursor, records []Record, err error) {
		assert.Nil(t, records)
		got <- err
	}))
	assert.ErrorIs(t, <-got, boom)
}

func TestCursor_ContinueWithoutHandler(t *testing.T) {
	c := createdCursor(t, &stubConn{})
	assert.ErrorIs(t, c.Continue(context.Background()), ErrNoContinuation)
}

func TestCursor_GetBeforeCreate(t *testing.T) {
	c := newTestCursor(&stubConn{})
	err := c.Get(context.Background(), func(*Cursor, []Record, error) {
		t.Error("handler must not run")
	})
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCursor_ReleaseWithoutHandlerEscalates(t *testing.T) {
	boom := errors.New("gateway down")
	conn := &stubConn{del: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	faults := make(chan error, 1)
	c.fault = func(err error) { faults <- err }

	c.Release(context.Background(), nil)

	select {
	case err := <-faults:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("release error was dropped")
	}
}

func TestCursor_ReleaseWithoutHandlerSucceedsQuietly(t *testing.T) {
	deleted := make(chan struct{})
	conn := &stubConn{del: func(string) (*Response, error) {
		defer close(deleted)
		return &Response{StatusCode: http.StatusOK}, nil
	}}
	c := createdCursor(t, conn)
	c.fault = func(err error) { t.Errorf("unexpected fault: %v", err) }

	c.Release(context.Background(), nil)
	<-deleted
}

func TestCursor_DefaultFaultPanics(t *testing.T) {
	c := newTestCursor(&stubConn{})
	assert.Panics(t, func() { c.fault(errors.New("lost scanner")) })
}

func TestCursor_ReleaseHandlerGetsError(t *testing.T) {
	boom := errors.New("gateway down")
	conn := &stubConn{del: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	type result struct {
		ok  bool
		err error
	}
	got := make(chan result, 1)
	c.Release(context.Background(), func(_ *Cursor, ok bool, err error) {
		got <- result{ok, err}
	})
	r := <-got
	assert.False(t, r.ok)
	assert.ErrorIs(t, r.err, boom)
}

func TestCursor_Each(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1"))),
		page(row("b", cell("cf:x", 1, "2"))),
	)}
	c := createdCursor(t, conn)

	var n int
	err := c.Each(context.Background(), func(records []Record) error {
		n += len(records)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls := conn.Calls()
	assert.Equal(t, "DELETE /users/scanner/abc123", calls[len(calls)-1])
}

func TestCursor_EachStopsOnError(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1"))),
		page(row("b", cell("cf:x", 1, "2"))),
	)}
	c := createdCursor(t, conn)

	stop := errors.New("enough")
	err := c.Each(context.Background(), func([]Record) error { return stop })
	assert.ErrorIs(t, err, stop)

	calls := conn.Calls()
	assert.Equal(t, []string{
		"PUT /users/scanner",
		"GET /users/scanner/abc123",
		"DELETE /users/scanner/abc123",
	}, calls)
}

func TestCursor_EachJoinsDeleteError(t *testing.T) {
	boom := errors.New("gateway down")
	conn := &stubConn{del: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	err := c.Each(context.Background(), func([]Record) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestCursor_Records(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1"), cell("cf:y", 1, "2"))),
		page(row("b", cell("cf:x", 1, "3"))),
	)}
	c := createdCursor(t, conn)

	var values []string
	for r, err := range c.Records(context.Background()) {
		require.NoError(t, err)
		values = append(values, string(r.Value))
	}
	assert.Equal(t, []string{"1", "2", "3"}, values)
}

func TestCursor_RecordsYieldsError(t *testing.T) {
	boom := errors.New("timeout")
	conn := &stubConn{get: func(string) (*Response, error) { return nil, boom }}
	c := createdCursor(t, conn)

	var errs []error
	for _, err := range c.Records(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestCursor_RecordsBreakEarly(t *testing.T) {
	conn := &stubConn{get: pages(
		page(row("a", cell("cf:x", 1, "1"), cell("cf:y", 1, "2"))),
		page(row("b", cell("cf:x", 1, "3"))),
	)}
	c := createdCursor(t, conn)

	for range c.Records(context.Background()) {
		break
	}
	assert.Len(t, conn.Calls(), 2)
	assert.True(t, c.Active())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uncreated", stateUncreated.String())
	assert.Equal(t, "active", stateActive.String())
	assert.Equal(t, "exhausted", stateExhausted.String())
	assert.Equal(t, "deleted", stateDeleted.String())
	assert.Equal(t, "state(9)", state(9).String())
}

func TestNew_DefaultLoggerConcurrent(t *testing.T) {
	conn := &stubConn{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := New(conn, "users")
			assert.NotNil(t, c.log)
		}()
	}
	wg.Wait()
}

func TestNew_KeepsCallerStdLog(t *testing.T) {
	prev := log.Writer()
	defer log.SetOutput(prev)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	New(&stubConn{}, "users")

	log.Print("caller log line")
	assert.Contains(t, buf.String(), "caller log line")
}
