// Command export reads a CSV of (username, metadata_id) requests, writes
// per-user post reports and a combined bios report, and copies requested
// videos from the requester-pays archive bucket into a destination bucket.
//
// Missing users, posts, metadata rows and source objects are logged and
// skipped; the run fails only on database, filesystem or upload errors.
//
// Usage:
//
//	export -input requests.csv -output ./out -storage postgres -host db -username etl -password ... -dbname parler \
//	    -source-bucket ddosecrets-parler -bucket my-archive -aws_key AKIA... -aws_secret ...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"parleretl/internal/dbconn"
	"parleretl/internal/exporter"
	"parleretl/internal/metrics/datadog"
	"parleretl/internal/storage"
	_ "parleretl/internal/storage/all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, storage.New, newS3Store))
}

type repoOpener func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

type storeOpener func(region, key, secret string) (exporter.ObjectStore, error)

func newS3Store(region, key, secret string) (exporter.ObjectStore, error) {
	return exporter.NewS3Store(region, key, secret)
}

// run is split out from main so the command is unit-testable without
// spawning an OS process. Exit codes: 0 success, 2 usage, 1 runtime.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, openRepo repoOpener, openStore storeOpener) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)

	input := fs.String("input", "", "CSV of username,metadata_id requests (required)")
	output := fs.String("output", "", "directory for the CSV reports (required)")
	sourceBucket := fs.String("source-bucket", "ddosecrets-parler", "requester-pays bucket holding the archived videos")
	destBucket := fs.String("bucket", "", "destination bucket for video copies (empty skips the media leg)")
	awsKey := fs.String("aws_key", "", "AWS access key id (empty uses the ambient credential chain)")
	awsSecret := fs.String("aws_secret", "", "AWS secret access key")
	region := fs.String("region", "us-east-1", "AWS region")
	metricsBackend := fs.String("metrics-backend", "none", "metrics backend: datadog or none")
	metricsTags := fs.String("metrics-tags", "", "extra metric tags, comma-separated key:value pairs")

	var db dbconn.Params
	db.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" || *output == "" {
		fmt.Fprintf(stderr, "both -input and -output are required\n")
		fs.Usage()
		return 2
	}

	cfg, err := db.Config()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if *metricsBackend == "datadog" {
		closeMetrics, err := datadog.Enable(ctx, "export", *metricsTags)
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

	var store exporter.ObjectStore
	if *destBucket != "" {
		store, err = openStore(*region, *awsKey, *awsSecret)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}

	e := &exporter.Exporter{
		Repo:         repo,
		Store:        store,
		SourceBucket: *sourceBucket,
		DestBucket:   *destBucket,
		OutputDir:    *output,
		Log:          log.New(stderr, "", log.LstdFlags),
	}

	stats, err := e.Run(ctx, in)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "users=%d posts=%d videos=%d missing=%d\n",
		stats.Users, stats.Posts, stats.VideosCopied, stats.Missing)
	return 0
}
