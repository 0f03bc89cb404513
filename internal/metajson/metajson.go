// Package metajson converts one archived video-metadata file into a
// JSONL-ready record.
//
// Each archive entry is named meta-<video id>.json and holds a JSON array
// whose first element is the metadata object. The record keeps every source
// field and adds the video ID from the filename under "video_id".
package metajson

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Record unwraps one metadata entry and injects its video ID.
func Record(name string, data []byte) (map[string]any, error) {
	id := videoID(name)
	if id == "" {
		return nil, fmt.Errorf("no video id in entry name %q", name)
	}

	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty metadata array")
	}

	rec := arr[0]
	rec["video_id"] = id
	return rec, nil
}

// videoID strips the meta- prefix and .json suffix from the entry's base
// name. Entries that do not follow the convention yield "".
func videoID(name string) string {
	base := path.Base(name)
	if !strings.HasSuffix(base, ".json") || !strings.HasPrefix(base, "meta-") {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSuffix(base, ".json"), "meta-")
}
