// Command load bulk-inserts a JSONL file into the database.
//
// Records that fail validation are logged and skipped; any database error
// aborts the run. No deduplication is performed, so re-running the same input
// inserts the same rows again.
//
// Usage:
//
//	load -input posts.jsonl -type posts -storage postgres -host db -username etl -password ... -dbname parler
//	load -input users.jsonl -type users -table users_staging -storage sqlite -dbname ./parler.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"parleretl/internal/dbconn"
	"parleretl/internal/loader"
	"parleretl/internal/metrics/datadog"
	"parleretl/internal/records"
	"parleretl/internal/storage"
	_ "parleretl/internal/storage/all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, storage.New))
}

type repoOpener func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

// run is split out from main so the command is unit-testable without
// spawning an OS process. Exit codes: 0 success, 2 usage, 1 runtime.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, openRepo repoOpener) int {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)

	input := fs.String("input", "", "JSONL file to load (required)")
	kindName := fs.String("type", "", "record type: posts, users or metadata (required)")
	table := fs.String("table", "", "destination table (defaults to the type's table)")
	batchSize := fs.Int("batch-size", loader.DefaultBatchSize, "rows per INSERT")
	metricsBackend := fs.String("metrics-backend", "none", "metrics backend: datadog or none")
	metricsTags := fs.String("metrics-tags", "", "extra metric tags, comma-separated key:value pairs")

	var db dbconn.Params
	db.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" {
		fmt.Fprintf(stderr, "-input is required\n")
		fs.Usage()
		return 2
	}

	kind, err := records.ParseKind(*kindName)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	cfg, err := db.Config()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if *metricsBackend == "datadog" {
		closeMetrics, err := datadog.Enable(ctx, "load", *metricsTags)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		defer closeMetrics()
	}

	in, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(stderr, "open input: %v\n", err)
		return 1
	}
	defer in.Close()

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "connect %s: %v\n", cfg.Kind, err)
		return 1
	}
	defer repo.Close()

	l := &loader.Loader{
		Repo:      repo,
		Kind:      kind,
		Table:     *table,
		BatchSize: *batchSize,
		Log:       log.New(stderr, "", log.LstdFlags),
	}

	stats, err := l.Run(ctx, in)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "loaded=%d skipped=%d batches=%d\n", stats.Loaded, stats.Skipped, stats.Batches)
	return 0
}
