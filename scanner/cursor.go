package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slog"

	"github.com/nlimpid/hbrest/logger"
)

var (
	// ErrNotActive is returned when a cursor has no server-side state to
	// address: it was never created, was exhausted, or was deleted.
	ErrNotActive = errors.New("scanner: cursor not active")
	// ErrScanInProgress is returned when a request is issued while another
	// one on the same cursor has not completed.
	ErrScanInProgress = errors.New("scanner: scan already in progress")
	// ErrAlreadyCreated is returned by Create on a cursor that already has an id.
	ErrAlreadyCreated = errors.New("scanner: cursor already created")
	// ErrMalformedLocation means the gateway accepted a scanner but did not
	// say where it lives.
	ErrMalformedLocation = errors.New("scanner: malformed scanner location")
	// ErrNoContinuation is returned by Continue before any Get registered a handler.
	ErrNoContinuation = errors.New("scanner: no continuation registered")
)

var locationPattern = regexp.MustCompile(`scanner/(\w+)$`)

type state int32

const (
	stateUncreated state = iota
	stateActive
	stateExhausted
	stateDeleted
)

func (s state) String() string {
	switch s {
	case stateUncreated:
		return "uncreated"
	case stateActive:
		return "active"
	case stateExhausted:
		return "exhausted"
	case stateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives the outcome of Get. records is nil with a nil err once
// the scan is exhausted. The cursor is passed so the handler can call
// Continue or Release on it.
type Handler func(c *Cursor, records []Record, err error)

// ReleaseHandler receives the outcome of Release.
type ReleaseHandler func(c *Cursor, ok bool, err error)

// Option configures a Cursor.
type Option func(*Cursor)

// WithLogger sets the logger used for cursor lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cursor) {
		c.log = l
	}
}

// Cursor is a client-side handle on one server-side scanner of a table.
// Requests on a cursor are sequential: a second request while one is in
// flight fails with ErrScanInProgress instead of waiting.
type Cursor struct {
	conn  Connection
	table string
	log   *slog.Logger

	mu      sync.Mutex
	id      string
	state   state
	pending Handler

	busy atomic.Bool

	// fault receives Release errors nobody asked to see.
	fault func(error)
}

// New returns an uncreated cursor on table. Call Create before reading.
func New(conn Connection, table string, opts ...Option) *Cursor {
	c := &Cursor{
		conn:  conn,
		table: table,
		fault: func(err error) { panic(err) },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get()
	}
	c.log = c.log.With("table", table)
	return c
}

// Open attaches to a scanner that already exists on the server.
func Open(conn Connection, table, id string, opts ...Option) *Cursor {
	c := New(conn, table, opts...)
	c.id = id
	c.state = stateActive
	return c
}

// Table returns the name of the scanned table.
func (c *Cursor) Table() string {
	return c.table
}

// ID returns the server-assigned scanner id, or "" before Create.
func (c *Cursor) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Active reports whether Next may still return records.
func (c *Cursor) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateActive
}

func (c *Cursor) scannerKey() string {
	return "/" + url.PathEscape(c.table) + "/scanner"
}

func (c *Cursor) cursorKey(id string) string {
	return c.scannerKey() + "/" + id
}

// Create asks the server for a new scanner described by opts and returns
// its id. A nil opts scans the whole table. opts is not modified.
func (c *Cursor) Create(ctx context.Context, opts *Options) (string, error) {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != stateUncreated {
		return "", ErrAlreadyCreated
	}
	if !c.busy.CompareAndSwap(false, true) {
		return "", ErrScanInProgress
	}
	defer c.busy.Store(false)

	body, err := opts.model()
	if err != nil {
		return "", err
	}

	resp, err := c.conn.Put(ctx, c.scannerKey(), body)
	if err != nil {
		return "", fmt.Errorf("scanner: create on %s: %w", c.table, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: no response", ErrMalformedLocation)
	}
	location := resp.Header.Get("Location")
	m := locationPattern.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedLocation, location)
	}

	c.mu.Lock()
	c.id = m[1]
	c.state = stateActive
	c.mu.Unlock()

	c.log.Debug("scanner created", "id", m[1], "batch", body.Batch)
	return m[1], nil
}

// acquire claims the in-flight slot for a page request.
func (c *Cursor) acquire() (string, error) {
	c.mu.Lock()
	id, st := c.id, c.state
	c.mu.Unlock()
	if st != stateActive {
		return "", ErrNotActive
	}
	if !c.busy.CompareAndSwap(false, true) {
		return "", ErrScanInProgress
	}
	return id, nil
}

func (c *Cursor) fetch(ctx context.Context, id string) ([]Record, error) {
	resp, err := c.conn.Get(ctx, c.cursorKey(id))
	if resp != nil && resp.StatusCode == http.StatusNoContent {
		c.exhaust(id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanner: get %s/%s: %w", c.table, id, err)
	}
	records, err := decodeCellSet(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		c.exhaust(id)
		return nil, nil
	}
	c.log.Debug("scanner page", "id", id, "cells", len(records))
	return records, nil
}

func (c *Cursor) exhaust(id string) {
	c.mu.Lock()
	if c.state == stateActive {
		c.state = stateExhausted
	}
	c.mu.Unlock()
	c.log.Debug("scanner exhausted", "id", id)
}

// Next fetches the next page. It returns (nil, nil) exactly once, when the
// server reports the scan is exhausted; a successful page is never empty.
// After exhaustion the cursor should still be deleted.
func (c *Cursor) Next(ctx context.Context) ([]Record, error) {
	id, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer c.busy.Store(false)
	return c.fetch(ctx, id)
}

// Delete releases the server-side scanner. It is valid on an active or
// exhausted cursor; afterwards the cursor is inert.
func (c *Cursor) Delete(ctx context.Context) error {
	c.mu.Lock()
	id, st := c.id, c.state
	c.mu.Unlock()
	if st != stateActive && st != stateExhausted {
		return ErrNotActive
	}

	if _, err := c.conn.Delete(ctx, c.cursorKey(id)); err != nil {
		return fmt.Errorf("scanner: delete %s/%s: %w", c.table, id, err)
	}

	c.mu.Lock()
	c.state = stateDeleted
	c.mu.Unlock()
	c.log.Debug("scanner deleted", "id", id)
	return nil
}
