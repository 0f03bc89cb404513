// Package loader streams JSONL records into the database in batches.
//
// The loading policy is deliberately lenient per record and strict per run:
// a line that fails to parse or fails kind-level validation is logged and
// skipped, while any database error aborts the run. Records are inserted
// exactly once per run; the loader performs no deduplication, so re-running
// the same input adds the same rows again.
package loader

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"parleretl/internal/jsonl"
	"parleretl/internal/metrics"
	"parleretl/internal/records"
	"parleretl/internal/rowbatch"
	"parleretl/internal/storage"
)

// DefaultBatchSize is the number of rows accumulated per INSERT.
const DefaultBatchSize = 500

// Logger is the minimal logging interface the loader needs.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Stats summarizes one load run.
type Stats struct {
	Loaded  int64
	Skipped int64
	Batches int64
}

// Loader drives one JSONL stream into one table.
type Loader struct {
	Repo storage.Repository
	Kind records.Kind

	// Table overrides the kind's default destination table when non-empty.
	Table string

	// BatchSize defaults to DefaultBatchSize when <= 0.
	BatchSize int

	// Log defaults to the stdlib default logger when nil.
	Log Logger
}

// Run streams r to completion. Per-line failures are counted in
// Stats.Skipped; the returned error is non-nil only for whole-run failures
// (unreadable input, database errors).
func (l *Loader) Run(ctx context.Context, r io.Reader) (Stats, error) {
	logger := l.Log
	if logger == nil {
		logger = log.Default()
	}

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	table := l.Table
	if table == "" {
		table = l.Kind.Table()
	}
	columns := l.Kind.Columns()
	kindLabel := metrics.Labels{"kind": l.Kind.String()}

	var stats Stats
	start := time.Now()

	batch := rowbatch.New(batchSize, func(rows [][]any) error {
		n, err := l.Repo.InsertRows(ctx, table, columns, rows)
		if err != nil {
			return err
		}
		stats.Loaded += n
		stats.Batches++
		metrics.IncCounter("etl_records_total", float64(n), kindLabel)
		metrics.IncCounter("etl_batches_total", 1, nil)
		return nil
	})

	_, err := jsonl.DecodeLines(r,
		func(line int, raw []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			values, rerr := l.Kind.Row(raw)
			if rerr != nil {
				stats.Skipped++
				metrics.IncCounter("etl_records_skipped", 1, kindLabel)
				logger.Printf("skip line=%d kind=%s err=%v", line, l.Kind, rerr)
				return nil
			}

			row := rowbatch.GetRow(len(values))
			copy(row.V, values)
			row.Line = line
			return batch.Add(row)
		},
		func(line int, perr error) {
			stats.Skipped++
			metrics.IncCounter("etl_records_skipped", 1, kindLabel)
			logger.Printf("skip line=%d kind=%s err=%v", line, l.Kind, perr)
		},
	)
	if err != nil {
		metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "load", "status": "error"})
		return stats, fmt.Errorf("load %s: %w", l.Kind, err)
	}

	if err := batch.Flush(); err != nil {
		metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "load", "status": "error"})
		return stats, fmt.Errorf("load %s: %w", l.Kind, err)
	}

	dur := time.Since(start)
	metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "load", "status": "ok"})
	metrics.ObserveHistogram("etl_step_duration_seconds", dur.Seconds(), metrics.Labels{"step": "load", "status": "ok"})
	logger.Printf("stage=load kind=%s ok loaded=%d skipped=%d batches=%d duration=%s",
		l.Kind, stats.Loaded, stats.Skipped, stats.Batches, dur)

	return stats, nil
}
