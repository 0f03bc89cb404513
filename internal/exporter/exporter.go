// Package exporter turns a CSV of (username, metadata_id) request pairs into
// per-user CSV reports and media copies in object storage.
//
// Lookup misses — a username with no user row, a metadata id with no row, a
// media object missing from the source bucket — are skipped with one notice
// each and never fail the run. Connection-level failures do.
package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"parleretl/internal/metrics"
	"parleretl/internal/storage"
)

// ErrObjectNotFound is returned by ObjectStore.Fetch when the source object
// does not exist.
var ErrObjectNotFound = errors.New("exporter: object not found")

// ObjectStore is the minimal object-storage surface the exporter needs.
type ObjectStore interface {
	// Fetch opens the object for reading. Returns ErrObjectNotFound when the
	// key does not exist in the bucket.
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Upload stores body under key, creating or replacing the object.
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
}

// Logger is the minimal logging interface the exporter needs.
type Logger interface {
	Printf(format string, v ...any)
}

// Stats summarizes one export run.
type Stats struct {
	Users        int
	Posts        int
	VideosCopied int
	Missing      int
}

var postsHeader = []string{"username", "body", "created_at", "impressions", "media"}
var biosHeader = []string{"username", "banned", "bio", "followers", "following", "joined", "verified"}

// Exporter drives one export run.
type Exporter struct {
	Repo storage.Repository

	// Store may be nil, in which case the media leg is skipped entirely.
	Store        ObjectStore
	SourceBucket string
	DestBucket   string

	// OutputDir receives posts/<username>.csv files and bios.csv.
	OutputDir string

	Log Logger
}

// Run reads the request CSV from r and processes every unique username and
// (username, metadata id) pair.
func (e *Exporter) Run(ctx context.Context, r io.Reader) (Stats, error) {
	logger := e.Log
	if logger == nil {
		logger = log.Default()
	}

	var stats Stats
	start := time.Now()

	users, videos, err := parseRequests(r)
	if err != nil {
		return stats, err
	}

	if err := os.MkdirAll(filepath.Join(e.OutputDir, "posts"), 0o755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	var bios [][]string
	for _, username := range users {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		profile, err := e.Repo.UserByUsername(ctx, username)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			stats.Missing++
			logger.Printf("notice: user %q not found", username)
		case err != nil:
			return stats, fmt.Errorf("look up user %s: %w", username, err)
		default:
			bios = append(bios, bioRow(profile))
		}

		n, err := e.exportPosts(ctx, username)
		if err != nil {
			return stats, err
		}
		stats.Posts += n
		stats.Users++
	}

	if err := writeCSV(filepath.Join(e.OutputDir, "bios.csv"), biosHeader, bios); err != nil {
		return stats, err
	}

	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		copied, err := e.exportVideo(ctx, v.username, v.metadataID, logger)
		if err != nil {
			return stats, err
		}
		if copied {
			stats.VideosCopied++
		} else {
			stats.Missing++
		}
	}

	dur := time.Since(start)
	metrics.IncCounter("etl_step_total", 1, metrics.Labels{"step": "export", "status": "ok"})
	metrics.ObserveHistogram("etl_step_duration_seconds", dur.Seconds(), metrics.Labels{"step": "export", "status": "ok"})
	logger.Printf("stage=export ok users=%d posts=%d videos=%d missing=%d duration=%s",
		stats.Users, stats.Posts, stats.VideosCopied, stats.Missing, dur)

	return stats, nil
}

func (e *Exporter) exportPosts(ctx context.Context, username string) (int, error) {
	posts, err := e.Repo.PostsByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		posts = nil
	} else if err != nil {
		return 0, fmt.Errorf("look up posts for %s: %w", username, err)
	}

	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, []string{
			p.Username,
			p.Body,
			p.CreatedAt,
			strconv.FormatInt(p.Impressions, 10),
			p.Media,
		})
	}

	path := filepath.Join(e.OutputDir, "posts", username+".csv")
	if err := writeCSV(path, postsHeader, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// exportVideo copies one media object from the requester-pays source bucket
// to the destination bucket under a deterministic key. Returns false (not an
// error) when the metadata row or the source object is missing.
func (e *Exporter) exportVideo(ctx context.Context, username, metadataID string, logger Logger) (bool, error) {
	if e.Store == nil {
		logger.Printf("notice: no object store configured, skipping video %s", metadataID)
		return false, nil
	}

	_, err := e.Repo.MetadataByID(ctx, metadataID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Printf("notice: metadata %q not found", metadataID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up metadata %s: %w", metadataID, err)
	}

	body, err := e.Store.Fetch(ctx, e.SourceBucket, metadataID)
	if errors.Is(err, ErrObjectNotFound) {
		logger.Printf("notice: object %s/%s not found", e.SourceBucket, metadataID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch %s/%s: %w", e.SourceBucket, metadataID, err)
	}
	defer body.Close()

	key := VideoKey(username, metadataID)
	if err := e.Store.Upload(ctx, e.DestBucket, key, body); err != nil {
		return false, fmt.Errorf("upload %s/%s: %w", e.DestBucket, key, err)
	}
	return true, nil
}

// VideoKey is the destination object key for one exported media file.
func VideoKey(username, metadataID string) string {
	return fmt.Sprintf("videos/%s/%s.mp4", username, metadataID)
}

type videoRequest struct {
	username   string
	metadataID string
}

// parseRequests reads the header-mapped request CSV. Expected columns:
// username, metadata_id. Rows with an empty username are skipped; rows with
// an empty metadata_id export reports only.
func parseRequests(r io.Reader) (users []string, videos []videoRequest, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read request CSV header: %w", err)
	}

	userIdx, metaIdx := -1, -1
	for i, name := range header {
		switch name {
		case "username":
			userIdx = i
		case "metadata_id":
			metaIdx = i
		}
	}
	if userIdx < 0 {
		return nil, nil, fmt.Errorf("request CSV has no username column")
	}

	seenUsers := map[string]bool{}
	seenVideos := map[videoRequest]bool{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read request CSV: %w", err)
		}

		username := rec[userIdx]
		if username == "" {
			continue
		}
		if !seenUsers[username] {
			seenUsers[username] = true
			users = append(users, username)
		}

		if metaIdx >= 0 && metaIdx < len(rec) && rec[metaIdx] != "" {
			v := videoRequest{username: username, metadataID: rec[metaIdx]}
			if !seenVideos[v] {
				seenVideos[v] = true
				videos = append(videos, v)
			}
		}
	}

	sort.Strings(users)
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].username != videos[j].username {
			return videos[i].username < videos[j].username
		}
		return videos[i].metadataID < videos[j].metadataID
	})
	return users, videos, nil
}

func bioRow(u *storage.UserProfile) []string {
	joined := ""
	if u.Joined != nil {
		joined = u.Joined.UTC().Format(time.RFC3339)
	}
	return []string{
		u.Username,
		strconv.FormatBool(u.Banned),
		u.Bio,
		strconv.FormatInt(u.Followers, 10),
		strconv.FormatInt(u.Following, 10),
		joined,
		strconv.FormatBool(u.Verified),
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
