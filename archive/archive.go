// Package archive keeps scanned cells in a local DuckDB database so a scan
// can be inspected with SQL after the gateway scanner is gone.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/exp/slog"

	"github.com/nlimpid/hbrest/logger"
	"github.com/nlimpid/hbrest/scanner"
)

// ErrEmptyTable is returned when a table name is empty.
var ErrEmptyTable = errors.New("archive: empty table name")

// Archive is a DuckDB database holding one table per archived scan target.
// Each table has the columns row_key, col, ts and val.
type Archive struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for write summaries.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) {
		a.log = l
	}
}

// Open opens the DuckDB database at dsn. An empty dsn opens an in-memory
// database.
func Open(dsn string, opts ...Option) (*Archive, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	a := &Archive{db: db, log: logger.Get()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// DB returns the underlying database for ad hoc queries.
func (a *Archive) DB() *sql.DB {
	return a.db
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func quoteIdent(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyTable
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// Ensure creates table if it does not exist.
func (a *Archive) Ensure(ctx context.Context, table string) error {
	ident, err := quoteIdent(table)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ident+` (
		row_key BLOB NOT NULL,
		col     BLOB NOT NULL,
		ts      BIGINT NOT NULL,
		val     BLOB
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", ident, err)
	}
	return nil
}

// Write appends records to table in a single transaction, creating the
// table first when needed.
func (a *Archive) Write(ctx context.Context, table string, records []scanner.Record) error {
	if err := a.Ensure(ctx, table); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	ident, _ := quoteIdent(table)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+ident+` (row_key, col, ts, val) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Key, r.Column, r.Timestamp, r.Value); err != nil {
			return fmt.Errorf("insert %q/%q: %w", r.Key, r.Column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	a.log.Debug("archived cells", "table", table, "cells", len(records))
	return nil
}

// Count returns the number of cells stored in table.
func (a *Archive) Count(ctx context.Context, table string) (int64, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT count(*) FROM `+ident).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", ident, err)
	}
	return n, nil
}

type cellRow struct {
	scanner.Record
}

func (c *cellRow) ScanTargets(columns []string) []any {
	return scanner.ScanMap(columns, map[string]any{
		"row_key": &c.Key,
		"col":     &c.Column,
		"ts":      &c.Timestamp,
		"val":     &c.Value,
	})
}

// Cells returns the cells of table ordered by row key, column and newest
// timestamp first.
func (a *Archive) Cells(ctx context.Context, table string, opts ...scanner.QueryOption) ([]scanner.Record, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	rows, err := query[cellRow](ctx, a.db, 0,
		`SELECT row_key, col, ts, val FROM `+ident+` ORDER BY row_key, col, ts DESC`, nil, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]scanner.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out, nil
}

// Rows reads table back and maps each archived row into T, like
// scanner.ScanRows does for live pages.
func Rows[T any, P scanner.Ptr[T]](ctx context.Context, a *Archive, table string, opts ...scanner.QueryOption) ([]*T, error) {
	cells, err := a.Cells(ctx, table)
	if err != nil {
		return nil, err
	}
	return scanner.ScanRows[T, P](cells, opts...)
}

// Query runs q and maps every result row into T.
func Query[T any, P scanner.Ptr[T]](ctx context.Context, a *Archive, q string, args ...any) ([]*T, error) {
	return query[T, P](ctx, a.db, 0, q, args)
}

// QueryOne runs q and maps its first result row into T. It returns
// sql.ErrNoRows when the result is empty.
func QueryOne[T any, P scanner.Ptr[T]](ctx context.Context, a *Archive, q string, args ...any) (*T, error) {
	out, err := query[T, P](ctx, a.db, 1, q, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out[0], nil
}
