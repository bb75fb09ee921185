package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nlimpid/hbrest/logger"
	"github.com/nlimpid/hbrest/scanner"
)

// scanFlags are the scan settings shared by scan and export.
type scanFlags struct {
	table       string
	start       string
	end         string
	columns     []string
	batch       int
	startTime   int64
	endTime     int64
	maxVersions int
	filter      string
	filterFile  string
	splits      []string
}

func (f *scanFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.table, "table", "t", "", "Table to scan (default scan.table from config)")
	fl.StringVar(&f.start, "start", "", "First row key, inclusive")
	fl.StringVar(&f.end, "end", "", "Last row key, exclusive")
	fl.StringSliceVarP(&f.columns, "column", "c", nil, "Column family or family:qualifier, repeatable")
	fl.IntVarP(&f.batch, "batch", "b", 0, "Cells per page (default scan.batch from config)")
	fl.Int64Var(&f.startTime, "start-time", 0, "Lowest cell timestamp, inclusive")
	fl.Int64Var(&f.endTime, "end-time", 0, "Highest cell timestamp, exclusive")
	fl.IntVar(&f.maxVersions, "max-versions", 0, "Versions per cell (default scan.maxversions from config)")
	fl.StringVar(&f.filter, "filter", "", "Filter tree as inline JSON")
	fl.StringVar(&f.filterFile, "filter-file", "", "Read the filter tree from a JSON file")
	fl.StringSliceVar(&f.splits, "split", nil, "Split the scan at this row key, repeatable; ranges run in parallel")
}

func (f *scanFlags) tableName(a *app) (string, error) {
	if f.table != "" {
		return f.table, nil
	}
	if a.cfg.Scan.Table != "" {
		return a.cfg.Scan.Table, nil
	}
	return "", errors.New("no table given: use --table or scan.table")
}

func (f *scanFlags) options(a *app) (*scanner.Options, error) {
	if f.filter != "" && f.filterFile != "" {
		return nil, errors.New("--filter and --filter-file are mutually exclusive")
	}
	opts := &scanner.Options{
		Columns:     scanner.Columns(f.columns...),
		Batch:       f.batch,
		StartTime:   f.startTime,
		EndTime:     f.endTime,
		MaxVersions: f.maxVersions,
	}
	if f.start != "" {
		opts.StartRow = []byte(f.start)
	}
	if f.end != "" {
		opts.EndRow = []byte(f.end)
	}
	if opts.Batch == 0 {
		opts.Batch = a.cfg.Scan.Batch
	}
	if opts.MaxVersions == 0 {
		opts.MaxVersions = a.cfg.Scan.MaxVersions
	}

	raw := []byte(f.filter)
	if f.filterFile != "" {
		data, err := os.ReadFile(f.filterFile)
		if err != nil {
			return nil, fmt.Errorf("read filter: %w", err)
		}
		raw = data
	}
	if len(raw) > 0 {
		filter, err := scanner.ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		opts.Filter = filter
	}
	return opts, nil
}

// run scans table and hands every page to sink. With splits the ranges are
// scanned concurrently and sink calls are serialized.
func (f *scanFlags) run(ctx context.Context, a *app, sink func([]scanner.Record) error) error {
	table, err := f.tableName(a)
	if err != nil {
		return err
	}
	opts, err := f.options(a)
	if err != nil {
		return err
	}
	conn, err := a.client()
	if err != nil {
		return err
	}
	log := logger.With("table", table)

	if len(f.splits) == 0 {
		c := scanner.New(conn, table, scanner.WithLogger(log))
		if _, err := c.Create(ctx, opts); err != nil {
			return err
		}
		return c.Each(ctx, sink)
	}

	splits := make([][]byte, len(f.splits))
	for i, s := range f.splits {
		splits[i] = []byte(s)
	}
	ranges := scanner.SplitRange(opts.StartRow, opts.EndRow, splits...)
	log.Info("scanning ranges", "ranges", len(ranges), "parallel", a.cfg.Scan.Parallel)

	var mu sync.Mutex
	return scanner.ScanRanges(ctx, conn, table, opts, ranges, a.cfg.Scan.Parallel,
		func(_ scanner.Range, records []scanner.Record) error {
			mu.Lock()
			defer mu.Unlock()
			return sink(records)
		},
		scanner.WithLogger(log),
	)
}

// cellLine is one output line of scan.
type cellLine struct {
	Key       string `json:"key"`
	Column    string `json:"column"`
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

func (a *app) scanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the cells of a row range as JSON lines",
		Long: `Scan a row range and print one JSON object per cell:

  {"key":"a","column":"info:name","timestamp":1700000000000,"value":"alice"}

Examples:
  hbscan scan --table users --start a --end m --column info
  hbscan scan --table users --filter '{"type":"PageFilter","value":"10"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(a.out)
			var cells int
			err := f.run(cmd.Context(), a, func(records []scanner.Record) error {
				for _, r := range records {
					if err := enc.Encode(cellLine{
						Key:       string(r.Key),
						Column:    string(r.Column),
						Timestamp: r.Timestamp,
						Value:     string(r.Value),
					}); err != nil {
						return err
					}
				}
				cells += len(records)
				return nil
			})
			if err != nil {
				return err
			}
			logger.Debug("scan finished", "cells", cells)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
