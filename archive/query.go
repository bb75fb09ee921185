package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nlimpid/hbrest/scanner"
)

// collect maps result rows into new values of T through ScanTargets,
// stopping after limit rows when limit is positive. The column list is
// resolved once per result set.
func collect[T any, P scanner.Ptr[T]](rows *sql.Rows, limit int, opts ...scanner.QueryOption) ([]*T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("archive: columns: %w", err)
	}

	out := make([]*T, 0, scanner.ExpectedSize(opts...))
	for (limit <= 0 || len(out) < limit) && rows.Next() {
		v := new(T)
		if err := rows.Scan(P(v).ScanTargets(columns)...); err != nil {
			return nil, fmt.Errorf("archive: scan row %d: %w", len(out), err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

func query[T any, P scanner.Ptr[T]](ctx context.Context, db *sql.DB, limit int, q string, args []any, opts ...scanner.QueryOption) ([]*T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()
	return collect[T, P](rows, limit, opts...)
}
