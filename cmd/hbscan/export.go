package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nlimpid/hbrest/archive"
	"github.com/nlimpid/hbrest/logger"
	"github.com/nlimpid/hbrest/scanner"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		f    scanFlags
		db   string
		into string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the cells of a row range into a DuckDB file",
		Long: `Scan a row range and append its cells to a DuckDB table with the
columns row_key, col, ts and val.

Examples:
  hbscan export --table users --db users.duckdb
  hbscan export --table users --db archive.duckdb --into users_2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			table, err := f.tableName(a)
			if err != nil {
				return err
			}
			if into == "" {
				into = table
			}

			arc, err := archive.Open(db, archive.WithLogger(logger.Get()))
			if err != nil {
				return err
			}
			defer arc.Close()
			if err := arc.Ensure(ctx, into); err != nil {
				return err
			}

			var cells int
			err = f.run(ctx, a, func(records []scanner.Record) error {
				cells += len(records)
				return arc.Write(ctx, into, records)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "exported %d cells from %s into %s:%s\n", cells, table, db, into)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&db, "db", "hbscan.duckdb", "DuckDB database file")
	cmd.Flags().StringVar(&into, "into", "", "Target table (default: the scanned table)")
	return cmd
}
