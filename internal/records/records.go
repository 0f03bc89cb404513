// Package records defines the three record shapes the pipeline moves through
// JSONL and into the database: posts, users, and video metadata.
//
// The record kind is a small tagged enumeration. Everything that varies per
// kind — destination table, column list, JSONL-line-to-positional-row
// mapping — hangs off Kind, so the loader keeps a single batching loop
// instead of one copy per record type.
package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parleretl/internal/storage"
)

// Kind selects one of the pipeline's record types.
type Kind int

const (
	Posts Kind = iota
	Users
	Metadata
)

// ParseKind maps the CLI -type value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "posts":
		return Posts, nil
	case "users":
		return Users, nil
	case "metadata":
		return Metadata, nil
	default:
		return 0, fmt.Errorf("unknown record type %q (want posts, users or metadata)", s)
	}
}

func (k Kind) String() string {
	switch k {
	case Posts:
		return "posts"
	case Users:
		return "users"
	case Metadata:
		return "metadata"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Table returns the default destination table name for the kind.
func (k Kind) Table() string { return k.String() }

// IframeEmbed is one embedded iframe in a post's media block.
type IframeEmbed struct {
	SourceURL   string `json:"source_url,omitempty"`
	MetaTitle   string `json:"meta_title,omitempty"`
	MetaExcerpt string `json:"meta_excerpt,omitempty"`
	MetaLink    string `json:"meta_link,omitempty"`
}

// Post is the JSONL wire shape emitted by transform-posts and consumed by the
// loader. Echo fields are flat on the wire; the loader folds them into a
// single JSON column.
type Post struct {
	ID                  string `json:"id"`
	AuthorUsername      string `json:"author_username"`
	AuthorName          string `json:"author_name,omitempty"`
	AuthorProfileImgURL string `json:"author_profile_img_url,omitempty"`
	Title               string `json:"title,omitempty"`

	// CreatedAt is the source display timestamp verbatim (often relative,
	// e.g. "2 days ago"). ApproxCreatedAt is set only when the source value
	// parses as an absolute time.
	CreatedAt       string     `json:"created_at,omitempty"`
	ApproxCreatedAt *time.Time `json:"approx_created_at,omitempty"`

	IsEcho                  bool   `json:"is_echo"`
	EchoAuthorUsername      string `json:"echo_author_username,omitempty"`
	EchoAuthorName          string `json:"echo_author_name,omitempty"`
	EchoAuthorProfileImgURL string `json:"echo_author_profile_img_url,omitempty"`
	EchoCreatedAt           string `json:"echo_created_at,omitempty"`

	Body            string `json:"body,omitempty"`
	ImpressionCount int64  `json:"impression_count"`
	CommentCount    int64  `json:"comment_count"`
	EchoCount       int64  `json:"echo_count"`
	UpvoteCount     int64  `json:"upvote_count"`

	VideoURLs   []string      `json:"video_urls,omitempty"`
	ImageURLs   []string      `json:"image_urls,omitempty"`
	IframeMedia []IframeEmbed `json:"iframe_media,omitempty"`
}

// echoBlock is the nested shape stored in the posts.echo JSON column.
type echoBlock struct {
	AuthorUsername      string `json:"author_username,omitempty"`
	AuthorName          string `json:"author_name,omitempty"`
	AuthorProfileImgURL string `json:"author_profile_img_url,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
}

// mediaBlock is the nested shape stored in the posts.media JSON column.
type mediaBlock struct {
	VideoURLs   []string      `json:"video_urls,omitempty"`
	ImageURLs   []string      `json:"image_urls,omitempty"`
	IframeMedia []IframeEmbed `json:"iframe_media,omitempty"`
}

// User is the JSONL wire shape for profile records.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Name      string     `json:"name,omitempty"`
	Banned    bool       `json:"banned"`
	Bio       string     `json:"bio,omitempty"`
	Followers int64      `json:"followers"`
	Following int64      `json:"following"`
	Joined    *time.Time `json:"joined,omitempty"`
	Verified  bool       `json:"verified"`
}

// Columns returns the destination column list, in insert order, for the kind.
func (k Kind) Columns() []string {
	cols := make([]string, 0, len(k.spec().Columns))
	for _, c := range k.spec().Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// Spec returns the destination table spec for the kind, renamed to table.
// An empty table keeps the default name.
func (k Kind) Spec(table string) storage.TableSpec {
	s := k.spec()
	if table != "" {
		s.Name = table
	}
	return s
}

// AllSpecs returns the table specs for every record kind, in pipeline order.
func AllSpecs() []storage.TableSpec {
	return []storage.TableSpec{
		Posts.Spec(""),
		Users.Spec(""),
		Metadata.Spec(""),
	}
}

func (k Kind) spec() storage.TableSpec {
	switch k {
	case Posts:
		return storage.TableSpec{
			Name: "posts",
			Columns: []storage.ColumnSpec{
				{Name: "id", Type: storage.TypeText, PrimaryKey: true},
				{Name: "author_username", Type: storage.TypeText},
				{Name: "author_name", Type: storage.TypeText, Nullable: true},
				{Name: "author_profile_img_url", Type: storage.TypeText, Nullable: true},
				{Name: "title", Type: storage.TypeText, Nullable: true},
				{Name: "created_at", Type: storage.TypeText, Nullable: true},
				{Name: "approx_created_at", Type: storage.TypeTimestamp, Nullable: true},
				{Name: "body", Type: storage.TypeText, Nullable: true},
				{Name: "impression_count", Type: storage.TypeBigint},
				{Name: "comment_count", Type: storage.TypeBigint},
				{Name: "echo_count", Type: storage.TypeBigint},
				{Name: "upvote_count", Type: storage.TypeBigint},
				{Name: "is_echo", Type: storage.TypeBool},
				{Name: "echo", Type: storage.TypeJSON, Nullable: true},
				{Name: "media", Type: storage.TypeJSON, Nullable: true},
			},
		}
	case Users:
		return storage.TableSpec{
			Name: "users",
			Columns: []storage.ColumnSpec{
				{Name: "id", Type: storage.TypeText, PrimaryKey: true},
				{Name: "username", Type: storage.TypeText},
				{Name: "name", Type: storage.TypeText, Nullable: true},
				{Name: "banned", Type: storage.TypeBool},
				{Name: "bio", Type: storage.TypeText, Nullable: true},
				{Name: "followers", Type: storage.TypeBigint},
				{Name: "following", Type: storage.TypeBigint},
				{Name: "joined", Type: storage.TypeTimestamp, Nullable: true},
				{Name: "verified", Type: storage.TypeBool},
			},
		}
	case Metadata:
		return storage.TableSpec{
			Name: "metadata",
			Columns: []storage.ColumnSpec{
				{Name: "id", Type: storage.TypeText, PrimaryKey: true},
				{Name: "created_at", Type: storage.TypeTimestamp, Nullable: true},
				{Name: "lat", Type: storage.TypeDouble, Nullable: true},
				{Name: "lon", Type: storage.TypeDouble, Nullable: true},
				{Name: "raw", Type: storage.TypeJSON},
			},
		}
	default:
		panic(fmt.Sprintf("records: unknown kind %d", int(k)))
	}
}

// Row maps one JSONL line to a positional row aligned with Columns().
//
// Errors are per-record: the loader logs and skips, it does not abort.
func (k Kind) Row(line []byte) ([]any, error) {
	switch k {
	case Posts:
		return postRow(line)
	case Users:
		return userRow(line)
	case Metadata:
		return metadataRow(line)
	default:
		return nil, fmt.Errorf("records: unknown kind %d", int(k))
	}
}

func postRow(line []byte) ([]any, error) {
	var p Post
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, fmt.Errorf("decode post: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("post missing id")
	}
	if p.AuthorUsername == "" {
		return nil, fmt.Errorf("post %s missing author_username", p.ID)
	}

	var echo any
	if p.IsEcho {
		b, err := json.Marshal(echoBlock{
			AuthorUsername:      p.EchoAuthorUsername,
			AuthorName:          p.EchoAuthorName,
			AuthorProfileImgURL: p.EchoAuthorProfileImgURL,
			CreatedAt:           p.EchoCreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("post %s: encode echo: %w", p.ID, err)
		}
		echo = string(b)
	}

	var media any
	if len(p.VideoURLs) > 0 || len(p.ImageURLs) > 0 || len(p.IframeMedia) > 0 {
		b, err := json.Marshal(mediaBlock{
			VideoURLs:   p.VideoURLs,
			ImageURLs:   p.ImageURLs,
			IframeMedia: p.IframeMedia,
		})
		if err != nil {
			return nil, fmt.Errorf("post %s: encode media: %w", p.ID, err)
		}
		media = string(b)
	}

	return []any{
		p.ID,
		p.AuthorUsername,
		nullableString(p.AuthorName),
		nullableString(p.AuthorProfileImgURL),
		nullableString(p.Title),
		nullableString(p.CreatedAt),
		nullableTime(p.ApproxCreatedAt),
		nullableString(p.Body),
		p.ImpressionCount,
		p.CommentCount,
		p.EchoCount,
		p.UpvoteCount,
		p.IsEcho,
		echo,
		media,
	}, nil
}

func userRow(line []byte) ([]any, error) {
	var u User
	if err := json.Unmarshal(line, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("user missing id")
	}
	if u.Username == "" {
		return nil, fmt.Errorf("user %s missing username", u.ID)
	}
	return []any{
		u.ID,
		u.Username,
		nullableString(u.Name),
		u.Banned,
		nullableString(u.Bio),
		u.Followers,
		u.Following,
		nullableTime(u.Joined),
		u.Verified,
	}, nil
}

// exifCreateLayout is the capture timestamp layout used by the metadata
// archive, e.g. "2021:01:08 21:01:04".
const exifCreateLayout = "2006:01:02 15:04:05"

func metadataRow(line []byte) ([]any, error) {
	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	id, _ := m["video_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("metadata missing video_id")
	}

	var created any
	if s, ok := m["CreateDate"].(string); ok && s != "" {
		t, err := time.Parse(exifCreateLayout, s)
		if err == nil {
			created = t.UTC()
		}
		// Unparseable capture dates load as NULL; the raw column keeps the
		// original string.
	}

	lat, err := dmsField(m, "GPSLatitude")
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", id, err)
	}
	lon, err := dmsField(m, "GPSLongitude")
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", id, err)
	}

	return []any{id, created, lat, lon, string(line)}, nil
}

func dmsField(m map[string]any, key string) (any, error) {
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dd, err := ParseDMS(s)
	if err != nil {
		return nil, err
	}
	return dd, nil
}

// ParseDMS converts a degrees-minutes-seconds coordinate string such as
//
//	44 deg 57' 24.12" N
//
// into a signed decimal degree value (W and S are negative).
func ParseDMS(s string) (float64, error) {
	clean := strings.NewReplacer(" deg ", " ", "'", "", `"`, "").Replace(s)
	parts := strings.Fields(clean)
	if len(parts) != 4 {
		return 0, fmt.Errorf("malformed DMS coordinate %q", s)
	}

	var deg, min, sec float64
	if _, err := fmt.Sscanf(parts[0], "%f", &deg); err != nil {
		return 0, fmt.Errorf("malformed DMS degrees in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%f", &min); err != nil {
		return 0, fmt.Errorf("malformed DMS minutes in %q", s)
	}
	if _, err := fmt.Sscanf(parts[2], "%f", &sec); err != nil {
		return 0, fmt.Errorf("malformed DMS seconds in %q", s)
	}

	dd := deg + min/60 + sec/3600
	switch parts[3] {
	case "N", "E":
		return dd, nil
	case "S", "W":
		return -dd, nil
	default:
		return 0, fmt.Errorf("malformed DMS direction %q in %q", parts[3], s)
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
