//go:build enterprise
// +build enterprise

// Package metricssink optionally appends one row per completed driver
// run to a ClickHouse table, for longer-term throughput trending across
// runs than the in-process OTel counters in internal/metrics provide.
package metricssink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseConfig configures the optional run-summary sink.
type ClickHouseConfig struct {
	Enabled bool
	DSN     string
	Table   string
}

// RunSummary is one row of the summary the pipeline driver returns.
type RunSummary struct {
	TotalFiles      int
	NewFiles        int
	Processed       int
	Failed          int
	Skipped         int
	DurationSeconds float64
	FilesPerSecond  float64
}

// ClickHouseSink appends one row per completed run. A nil
// *ClickHouseSink (the disabled case) is a safe no-op.
type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseSink opens a connection when enabled. Returns nil, nil
// when disabled so callers can wire it through unconditionally.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("metricssink: parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("metricssink: open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metricssink: ping clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "ingest_run_summary"
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

// RecordRun appends one row describing a completed driver run.
func (s *ClickHouseSink) RecordRun(ctx context.Context, summary RunSummary) error {
	if s == nil || s.conn == nil {
		return nil
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (recorded_at, total_files, new_files, processed, failed, skipped, duration_seconds, files_per_second) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table,
	)
	return s.conn.Exec(ctx, query,
		time.Now().UTC(),
		summary.TotalFiles,
		summary.NewFiles,
		summary.Processed,
		summary.Failed,
		summary.Skipped,
		summary.DurationSeconds,
		summary.FilesPerSecond,
	)
}

// Close releases the underlying ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
