// Package ingest turns extractor entries into catalog rows: it maps the
// many synonymous keys onto the media schema, upserts, spills tag text
// into captions and keeps playlists refreshed with back-off.
package ingest

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/franz/media-librarian/internal/store"
)

// synonyms maps a catalog key to the entry keys that may carry it, in
// order of preference
var synonyms = []struct {
	key     string
	sources []string
}{
	{"path", []string{"filepath", "_filename", "local_path", "path"}},
	{"webpath", []string{"webpage_url", "url", "original_url", "post_url", "image_permalink"}},
	{"size", []string{"filesize", "filesize_approx", "size"}},
	{"duration", []string{"duration", "length"}},
	{"title", []string{"title", "fulltitle", "alt_title", "name"}},
	{"description", []string{"description", "caption", "selftext", "content"}},
	{"uploader", []string{"uploader", "channel", "author", "creator", "uploader_id", "user"}},
	{"artist", []string{"artist", "album_artist"}},
	{"album", []string{"album"}},
	{"genre", []string{"genre"}},
	{"mood", []string{"mood"}},
	{"extractor_key", []string{"extractor_key", "ie_key", "extractor", "category"}},
	{"extractor_id", []string{"id", "display_id", "post_id"}},
	{"width", []string{"width"}},
	{"height", []string{"height"}},
	{"fps", []string{"fps"}},
	{"language", []string{"language"}},
	{"year", []string{"year", "release_year"}},
}

var dateSources = []string{"upload_date", "release_date", "date", "timestamp", "release_timestamp", "created_utc", "published", "modified_date"}

var tagSources = []string{"tags", "categories", "keywords", "hashtags", "flair", "link_flair_text"}

// dropped are bulky or transport-only keys that have no place in extra
var dropped = map[string]bool{
	"formats": true, "requested_formats": true, "thumbnails": true, "thumbnail": true,
	"http_headers": true, "subtitles": true, "automatic_captions": true, "fragments": true,
	"_type": true, "_version": true, "requested_downloads": true, "heatmap": true,
	"format": true, "format_id": true, "protocol": true, "url_transparent": true,
	"playlist": true, "playlist_index": true, "playlist_count": true, "n_entries": true,
	"__last_playlist_index": true, "epoch": true, "_has_drm": true,
}

var junkTags = map[string]bool{"": true, "unknown": true, "none": true, "und": true, "null": true, "n/a": true}

// Consolidate maps an extractor entry onto catalog keys. Keys it does not
// know are passed through so the store can keep them in extra.
func Consolidate(entry map[string]any) store.Row {
	row := make(store.Row)
	used := make(map[string]bool)

	for _, syn := range synonyms {
		for _, src := range syn.sources {
			v, ok := entry[src]
			if !ok || isEmpty(v) {
				continue
			}
			row[syn.key] = v
			break
		}
		for _, src := range syn.sources {
			used[src] = true
		}
	}

	for _, src := range dateSources {
		used[src] = true
		if _, ok := row["time_uploaded"]; ok {
			continue
		}
		if t, ok := ParseDate(entry[src]); ok {
			row["time_uploaded"] = t.Unix()
		}
	}

	var tagValues []any
	for _, src := range tagSources {
		used[src] = true
		if v, ok := entry[src]; ok {
			tagValues = append(tagValues, v)
		}
	}
	if tags := JoinTags(tagValues...); tags != "" {
		row["tags"] = tags
	}

	if d, ok := row["duration"]; ok {
		row["duration"] = int64(cast.ToFloat64(d))
	}
	if s, ok := row["size"]; ok {
		row["size"] = cast.ToInt64(s)
	}

	if row.String("path") == "" && row.String("webpath") != "" {
		row["path"] = row["webpath"]
	}
	if row.String("path") == row.String("webpath") {
		delete(row, "webpath")
	}

	for k, v := range entry {
		if used[k] || dropped[k] || strings.HasPrefix(k, "_") || isEmpty(v) {
			continue
		}
		if _, ok := row[k]; ok {
			continue
		}
		row[k] = v
	}
	return row
}

// JoinTags flattens strings and lists of strings into one ";" separated
// value, dropping duplicates and placeholders like "unknown"
func JoinTags(values ...any) string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if junkTags[key] || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			for _, part := range strings.Split(t, ";") {
				add(part)
			}
		case []string:
			for _, s := range t {
				add(s)
			}
		case []any:
			for _, s := range t {
				add(cast.ToString(s))
			}
		default:
			add(cast.ToString(t))
		}
	}
	return strings.Join(out, ";")
}

var compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)

// ParseDate reads the date formats extractors emit: unix seconds or
// milliseconds, YYYYMMDD, and anything spf13/cast understands
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case int, int64, float64, float32, int32:
		n := cast.ToFloat64(t)
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e11 {
			n /= 1000
		}
		return time.Unix(int64(n), 0).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if compactDate.MatchString(s) {
			parsed, err := time.Parse("20060102", s)
			return parsed, err == nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseDate(n)
		}
		if parsed, err := cast.ToTimeE(s); err == nil && !parsed.IsZero() {
			return parsed, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// sortedKeys is for deterministic logging
func sortedKeys(r store.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
