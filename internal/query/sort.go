package query

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/franz/media-librarian/internal/mcda"
)

// SortPlan is the ORDER BY of a query plus the select-list extras its
// window expressions need. MCDA, when set, ranks the fetched rows in Go.
type SortPlan struct {
	SelectExtra []string
	OrderBy     string
	UserOrderBy string // only the --sort keys, "" without any
	MCDA        *mcda.Spec
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dateSugar maps month_/date_ prefixes to strftime formats
var dateSugar = map[string]string{
	"month": "%Y%m",
	"date":  "%Y%m%d",
	"year":  "%Y",
}

var dateColumns = map[string]string{
	"created":    "time_created",
	"modified":   "time_modified",
	"downloaded": "time_downloaded",
	"uploaded":   "time_uploaded",
}

// PlanSort builds the ORDER BY for spec. history reports whether the
// history aggregate columns are available.
func PlanSort(spec Spec, cat Catalog, f *Filters, history bool) (SortPlan, error) {
	var plan SortPlan
	var keys, userKeys []string

	keys = append(keys, preamble(spec, cat, f)...)
	if spec.Random {
		keys = append(keys, "random()")
	}
	if spec.PartialSet && history {
		keys = append(keys, partialKeys(spec.Partial)...)
	}

	for _, entry := range spec.Sort {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if lower := strings.ToLower(entry); lower == "mcda" || strings.HasPrefix(lower, "mcda ") {
			m, err := mcda.ParseSpec(entry[len("mcda"):])
			if err != nil {
				return plan, badPredicate("sort", entry, err)
			}
			plan.MCDA = &m
			continue
		}
		for _, tok := range splitSortEntry(entry) {
			extra, key, err := rewriteSortToken(tok)
			if err != nil {
				return plan, err
			}
			if extra != "" {
				plan.SelectExtra = append(plan.SelectExtra, extra)
			}
			keys = append(keys, key)
			userKeys = append(userKeys, key)
		}
	}
	plan.UserOrderBy = strings.Join(userKeys, ", ")

	keys = append(keys, tail(cat, history)...)
	plan.OrderBy = strings.Join(keys, ", ")
	return plan, nil
}

// splitSortEntry splits on commas and glues a lone asc/desc back onto
// the key before it
func splitSortEntry(entry string) []string {
	var out []string
	for _, part := range strings.Split(entry, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch strings.ToLower(part) {
		case "asc", "desc":
			if len(out) > 0 {
				out[len(out)-1] += " " + strings.ToUpper(part)
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

func rewriteSortToken(tok string) (extra, key string, err error) {
	fields := strings.Fields(tok)
	head := strings.ToLower(fields[0])
	dir := ""
	if len(fields) > 1 {
		dir = " " + strings.Join(fields[1:], " ")
	}

	switch {
	case head == "random" || head == "random()":
		return "", "random()", nil
	case head == "priority":
		return "", "ntile(1000) OVER (ORDER BY size) DESC, duration", nil
	case strings.HasPrefix(head, "same-"):
		col := fields[0][len("same-"):]
		if !identifier.MatchString(col) {
			return "", "", &BadPredicateError{Option: "sort", Value: tok, Reason: "not a column name"}
		}
		if dir == "" {
			dir = " DESC"
		}
		alias := "same_" + col + "_count"
		extra = fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE COUNT(*) OVER (PARTITION BY %s) END AS %s", col, col, alias)
		return extra, alias + strings.ToUpper(dir), nil
	}

	if prefix, suffix, ok := strings.Cut(head, "_"); ok {
		if format, ok := dateSugar[prefix]; ok {
			if col, ok := dateColumns[suffix]; ok {
				return "", fmt.Sprintf("cast(strftime('%s', datetime(%s, 'unixepoch')) AS INT)%s", format, col, dir), nil
			}
		}
	}
	return "", tok, nil
}

func preamble(spec Spec, cat Catalog, f *Filters) []string {
	var keys []string
	if f != nil && f.FTSParam != "" {
		keys = append(keys, "rank")
	}
	if spec.Action == ActionWatch && cat.Has("video_count") {
		keys = append(keys, "video_count > 0 DESC")
	}
	if cat.Has("audio_count") {
		keys = append(keys, "audio_count > 0 DESC")
	}
	if cat.Has("path") {
		keys = append(keys, "m.path LIKE 'http%'")
	}
	if spec.Portrait && cat.Has("width") && cat.Has("height") {
		keys = append(keys, "width < height DESC")
	}
	if spec.Action == ActionWatch && !spec.Subtitles && !spec.NoSubtitles && cat.Has("subtitle_count") {
		keys = append(keys, subtitlePreference(spec))
	}
	return keys
}

// subtitlePreference draws once per query; the seed makes it reproducible
func subtitlePreference(spec Spec) string {
	mix := spec.SubtitleMix
	if mix == 0 {
		mix = DefaultSubtitleMix
	}
	rng := rand.New(rand.NewSource(spec.Seed))
	if rng.Float64() < mix {
		return "subtitle_count = 0 DESC"
	}
	return "subtitle_count > 0 DESC"
}

// partialKeys orders already-played media by the --partial letters
func partialKeys(partial string) []string {
	var keys []string
	for _, r := range partial {
		switch r {
		case 'o':
			keys = append(keys, "time_first_played")
		case 'n':
			keys = append(keys, "time_last_played DESC")
		case 'p':
			keys = append(keys, "playhead * 1.0 / NULLIF(duration, 0) DESC")
		case 't':
			keys = append(keys, "time_last_played")
		}
	}
	if len(keys) == 0 && !strings.ContainsRune(partial, 's') {
		keys = append(keys, "time_first_played")
	}
	return keys
}

func tail(cat Catalog, history bool) []string {
	var keys []string
	if cat.Has("duration") {
		keys = append(keys, "duration DESC")
	}
	if cat.Has("size") {
		keys = append(keys, "size DESC")
	}
	if history {
		keys = append(keys, "play_count")
	}
	if cat.Has("title") {
		keys = append(keys, "title IS NOT NULL DESC")
	}
	if cat.Has("path") {
		keys = append(keys, "m.path")
	}
	return append(keys, "random()")
}
