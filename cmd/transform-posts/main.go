// Command transform-posts turns a zip archive of scraped post HTML pages
// into JSONL, one post record per line. Pages that fail to parse are logged
// and skipped; the command only fails when the archive itself is unreadable
// or the output cannot be written.
//
// Usage:
//
//	transform-posts -input posts.zip -output posts.jsonl
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"parleretl/internal/archive"
	"parleretl/internal/jsonl"
	"parleretl/internal/metrics"
	"parleretl/internal/metrics/datadog"
	"parleretl/internal/posthtml"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run is split out from main so the command is unit-testable without
// spawning an OS process. Exit codes: 0 success, 2 usage, 1 runtime.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transform-posts", flag.ContinueOnError)
	fs.SetOutput(stderr)

	input := fs.String("input", "", "zip archive of post HTML pages (required)")
	output := fs.String("output", "", "destination JSONL file (required)")
	metricsBackend := fs.String("metrics-backend", "none", "metrics backend: datadog or none")
	metricsTags := fs.String("metrics-tags", "", "extra metric tags, comma-separated key:value pairs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" || *output == "" {
		fmt.Fprintf(stderr, "both -input and -output are required\n")
		fs.Usage()
		return 2
	}

	if *metricsBackend == "datadog" {
		closeMetrics, err := datadog.Enable(ctx, "transform-posts", *metricsTags)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		defer closeMetrics()
	}

	logger := log.New(stderr, "", log.LstdFlags)

	out, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(stderr, "create output: %v\n", err)
		return 1
	}
	defer out.Close()

	w := jsonl.NewWriter(out)
	start := time.Now()
	skipped := 0

	processed, err := archive.WalkZip(*input,
		func(name string, data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			post, perr := posthtml.Extract(name, data)
			if perr != nil {
				skipped++
				metrics.IncCounter("etl_records_skipped", 1, metrics.Labels{"kind": "posts"})
				logger.Printf("skip entry=%s err=%v", name, perr)
				return nil
			}
			metrics.IncCounter("etl_records_total", 1, metrics.Labels{"kind": "posts"})
			return w.Write(post)
		},
		func(name string, werr error) {
			skipped++
			metrics.IncCounter("etl_records_skipped", 1, metrics.Labels{"kind": "posts"})
			logger.Printf("skip entry=%s err=%v", name, werr)
		})
	if err != nil {
		metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "transform-posts", "status": "error"})
		fmt.Fprintf(stderr, "transform posts: %v\n", err)
		return 1
	}
	if err := out.Sync(); err != nil {
		fmt.Fprintf(stderr, "flush output: %v\n", err)
		return 1
	}

	dur := time.Since(start)
	metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "transform-posts", "status": "ok"})
	metrics.ObserveHistogram("etl_step_duration_seconds", dur.Seconds(), metrics.Labels{"step": "transform-posts", "status": "ok"})
	fmt.Fprintf(stdout, "stage=transform-posts ok processed=%d skipped=%d duration=%s\n", processed, skipped, dur)
	return 0
}
