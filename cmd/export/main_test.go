package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parleretl/internal/exporter"
	"parleretl/internal/storage"
)

type fakeRepo struct {
	users    map[string]*storage.UserProfile
	posts    map[string][]storage.PostExport
	metadata map[string]*storage.MediaPointer
}

func (f *fakeRepo) Close()                                                  {}
func (f *fakeRepo) EnsureTables(context.Context, []storage.TableSpec) error { return nil }
func (f *fakeRepo) InsertRows(context.Context, string, []string, [][]any) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) UserByUsername(ctx context.Context, username string) (*storage.UserProfile, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeRepo) PostsByUsername(ctx context.Context, username string) ([]storage.PostExport, error) {
	if p, ok := f.posts[username]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeRepo) MetadataByID(ctx context.Context, id string) (*storage.MediaPointer, error) {
	if m, ok := f.metadata[id]; ok {
		return m, nil
	}
	return nil, storage.ErrNotFound
}

type fakeStore struct {
	objects map[string][]byte
	uploads map[string][]byte
}

func (f *fakeStore) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, exporter.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeStore) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[bucket+"/"+key] = data
	return nil
}

func writeRequests(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write requests: %v", err)
	}
	return path
}

func TestRunExports(t *testing.T) {
	repo := &fakeRepo{
		users: map[string]*storage.UserProfile{
			"alice": {ID: "u1", Username: "alice"},
		},
		posts: map[string][]storage.PostExport{
			"alice": {{ID: "p1", Username: "alice", Body: "hello", Impressions: 5}},
		},
		metadata: map[string]*storage.MediaPointer{
			"vid1": {ID: "vid1"},
		},
	}
	store := &fakeStore{
		objects: map[string][]byte{"src/vid1": []byte("bytes")},
		uploads: map[string][]byte{},
	}

	in := writeRequests(t, "username,metadata_id\nalice,vid1\n")
	out := t.TempDir()

	var stdout, stderr strings.Builder
	code := run(context.Background(),
		[]string{
			"-input", in, "-output", out,
			"-source-bucket", "src", "-bucket", "dst",
			"-storage", "sqlite", "-dbname", "x",
		},
		&stdout, &stderr,
		func(ctx context.Context, cfg storage.Config) (storage.Repository, error) { return repo, nil },
		func(region, key, secret string) (exporter.ObjectStore, error) { return store, nil })
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}

	if _, err := os.Stat(filepath.Join(out, "posts", "alice.csv")); err != nil {
		t.Fatalf("posts report: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "bios.csv")); err != nil {
		t.Fatalf("bios report: %v", err)
	}
	if _, ok := store.uploads["dst/videos/alice/vid1.mp4"]; !ok {
		t.Fatalf("video not copied; uploads: %v", store.uploads)
	}
	if !strings.Contains(stdout.String(), "users=1 posts=1 videos=1 missing=0") {
		t.Fatalf("summary: %s", stdout.String())
	}
}

// Without -bucket the store is never opened and no media is copied.
func TestRunReportsOnly(t *testing.T) {
	repo := &fakeRepo{
		users: map[string]*storage.UserProfile{"alice": {ID: "u1", Username: "alice"}},
	}
	in := writeRequests(t, "username,metadata_id\nalice,\n")

	var stdout, stderr strings.Builder
	code := run(context.Background(),
		[]string{"-input", in, "-output", t.TempDir(), "-storage", "sqlite", "-dbname", "x"},
		&stdout, &stderr,
		func(ctx context.Context, cfg storage.Config) (storage.Repository, error) { return repo, nil },
		func(region, key, secret string) (exporter.ObjectStore, error) {
			t.Fatalf("store opened without -bucket")
			return nil, nil
		})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		// missing -output
		{"-input", "x.csv"},
		// missing -dbname
		{"-input", "x.csv", "-output", "out"},
		{"-bogus"},
	}
	for _, args := range cases {
		var stdout, stderr strings.Builder
		code := run(context.Background(), args, &stdout, &stderr,
			func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
				return &fakeRepo{}, nil
			},
			func(region, key, secret string) (exporter.ObjectStore, error) { return nil, nil })
		if code != 2 {
			t.Errorf("args %v: exit code %d, want 2", args, code)
		}
	}
}

func TestRunConnectFailure(t *testing.T) {
	in := writeRequests(t, "username,metadata_id\n")
	var stdout, stderr strings.Builder
	code := run(context.Background(),
		[]string{"-input", in, "-output", t.TempDir(), "-storage", "sqlite", "-dbname", "x"},
		&stdout, &stderr,
		func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return nil, fmt.Errorf("no such host")
		},
		func(region, key, secret string) (exporter.ObjectStore, error) { return nil, nil })
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
}
