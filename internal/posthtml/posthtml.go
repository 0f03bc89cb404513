// Package posthtml extracts a structured post record from one archived post
// HTML page.
//
// The page layout is fixed (an archive snapshot, not a live site), so the
// selectors are hard-wired rather than configuration-driven. Extraction is
// resilient: optional fields that are absent simply stay empty, and only a
// missing impression count fails the page.
package posthtml

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"parleretl/internal/records"
)

// approxTimeLayouts are tried in order against the post's display timestamp.
// Most archived timestamps are relative ("2 days ago") and parse as nothing;
// absolute ones fill approx_created_at.
var approxTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"January 2, 2006 3:04 PM",
	time.RFC3339,
}

// Extract parses one post page. name is the entry path inside the archive;
// its base name is the post ID.
func Extract(name string, data []byte) (*records.Post, error) {
	html := decodeToUTF8(data)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &records.Post{ID: path.Base(name)}

	// The <title> carries "@username - name - title".
	titleParts := strings.SplitN(text(doc.Find("title")), "-", 3)
	if len(titleParts) > 0 {
		p.AuthorUsername = strings.Trim(titleParts[0], "@ ")
	}
	if len(titleParts) > 1 {
		p.AuthorName = strings.TrimSpace(titleParts[1])
	}
	if len(titleParts) > 2 {
		p.Title = strings.TrimSpace(titleParts[2])
	}
	if p.AuthorUsername == "" {
		return nil, fmt.Errorf("no author username in title")
	}

	container := doc.Find("div.card--post-container")

	// The echoed-by banner carries a better display name when present.
	if echoedBy := text(container.Find("div.eb--statement > span.reblock")); echoedBy != "" {
		p.AuthorName = strings.TrimSpace(strings.TrimPrefix(echoedBy, "Echoed By"))
	}

	p.AuthorProfileImgURL = attr(container.Find("div.eb--profile-pic > img"), "src")
	p.CreatedAt = text(container.Find("span.card-meta--row > span.post--timestamp"))
	p.ApproxCreatedAt = parseApproxTime(p.CreatedAt)

	var paragraphs []string
	container.Find("div.card--body > p").Each(func(_ int, sel *goquery.Selection) {
		paragraphs = append(paragraphs, strings.TrimSpace(sel.Text()))
	})
	p.Body = norm.NFC.String(strings.Join(paragraphs, "\n"))

	echo := container.Find("span.echo--parent")
	if echo.Length() > 0 {
		p.IsEcho = true
		p.EchoAuthorName = text(echo.Find("span.author--name"))
		p.EchoAuthorUsername = strings.Trim(text(echo.Find("span.author--username")), "@")
		p.EchoAuthorProfileImgURL = attr(echo.Find("div.ch--avatar--wrapper > img"), "src")
		p.EchoCreatedAt = text(echo.Find("span.post--timestamp"))
	}

	impressions := text(container.Find("span.impressions--count"))
	p.ImpressionCount, err = strconv.ParseInt(impressions, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("impression count %q: %w", impressions, err)
	}

	counts := footerCounts(container)
	p.CommentCount = countOrDefault(counts, "post_comments")
	p.EchoCount = countOrDefault(counts, "post_echoes")
	p.UpvoteCount = countOrDefault(counts, "post_upvotes")

	p.VideoURLs = uniqueAttrs(doc.Find("div.mc-video--meta--wrapper > span.mc-video--link > a"), "href")
	p.ImageURLs = uniqueAttrs(doc.Find("div.media-container--wrapper > div.mc-image--container img"), "src")

	doc.Find("div.mc-iframe-embed--container").Each(func(_ int, sel *goquery.Selection) {
		p.IframeMedia = append(p.IframeMedia, records.IframeEmbed{
			SourceURL:   attr(sel.Find("iframe"), "src"),
			MetaTitle:   text(sel.Find("span.mc-iframe-embed--title")),
			MetaExcerpt: text(sel.Find("span.mc-iframe-embed--excerpt")),
			MetaLink:    attr(sel.Find("span.mc-iframe-embed--link > a"), "href"),
		})
	})

	return p, nil
}

// footerCounts collects the footer action counters keyed by the icon's alt
// text, lowercased with spaces replaced by underscores (e.g. "Post Comments"
// -> "post_comments"). Counters with unparseable values are dropped.
func footerCounts(container *goquery.Selection) map[string]int64 {
	counts := map[string]int64{}
	container.Find("div.card--footer div.pa--item--wrapper").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Find("img").First().Attr("alt")
		if !ok || name == "" {
			return
		}
		name = strings.ReplaceAll(strings.ToLower(name), " ", "_")

		n, err := strconv.ParseInt(text(sel.Find("span.pa--item--count")), 10, 64)
		if err != nil {
			return
		}
		counts[name] = n
	})
	return counts
}

// countOrDefault returns -1 for counters the page does not carry, which keeps
// "zero" distinguishable from "absent" downstream.
func countOrDefault(counts map[string]int64, key string) int64 {
	if n, ok := counts[key]; ok {
		return n
	}
	return -1
}

func parseApproxTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range approxTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// decodeToUTF8 returns the page as valid UTF-8. Pages that are already valid
// pass through untouched; anything else is treated as Windows-1252, which
// covers the stray high-byte pages in the archive.
func decodeToUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}

// uniqueAttrs collects the named attribute from every match, deduplicated,
// sorted for deterministic output.
func uniqueAttrs(sel *goquery.Selection, name string) []string {
	seen := map[string]bool{}
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok {
			v = strings.TrimSpace(v)
			if v != "" {
				seen[v] = true
			}
		}
	})
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
