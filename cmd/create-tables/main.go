// Command create-tables initializes the destination schema: the posts, users
// and metadata tables, created if they do not exist.
//
// Usage:
//
//	create-tables -storage postgres -host db -username etl -password ... -dbname parler
//	create-tables -storage sqlite -dbname ./parler.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"parleretl/internal/dbconn"
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
	fs := flag.NewFlagSet("create-tables", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var db dbconn.Params
	db.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := db.Config()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "connect %s: %v\n", cfg.Kind, err)
		return 1
	}
	defer repo.Close()

	if err := repo.EnsureTables(ctx, records.AllSpecs()); err != nil {
		fmt.Fprintf(stderr, "create tables: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "tables ready: posts, users, metadata (%s)\n", cfg.Kind)
	return 0
}
