package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/franz/media-librarian/internal/units"
)

// Filters is the compiled predicate set. Every fragment starts with "AND "
// so it can be appended to "WHERE 1=1".
type Filters struct {
	SQL          []string // row level, applied before the history join
	AggregateSQL []string // applied after the history join
	Bindings     map[string]any

	FTSParam string // named parameter holding the FTS expression, "" when LIKE search is used
	FTSExpr  string
	Paths    []string // binding names of positional path prefixes
}

func (f *Filters) bind(name string, value any) string {
	f.Bindings[name] = value
	return ":" + name
}

func (f *Filters) add(fragment string) {
	f.SQL = append(f.SQL, "AND "+fragment)
}

func (f *Filters) addAggregate(fragment string) {
	f.AggregateSQL = append(f.AggregateSQL, "AND "+fragment)
}

// RowSQL joins the row level fragments
func (f *Filters) RowSQL() string {
	return strings.Join(f.SQL, " ")
}

// AggregateFilterSQL joins the aggregate fragments
func (f *Filters) AggregateFilterSQL() string {
	return strings.Join(f.AggregateSQL, " ")
}

// aggregateColumns only exist after the history join
var aggregateColumns = regexp.MustCompile(`\b(time_first_played|time_last_played|play_count|playhead|done)\b`)

var mentionsTimeDeleted = regexp.MustCompile(`\btime_deleted\b`)

// UsesAggregate reports whether expr needs the history join
func UsesAggregate(expr string) bool {
	return aggregateColumns.MatchString(expr)
}

// Compile turns the options of spec into filter fragments and bindings
func Compile(spec Spec, cat Catalog) (*Filters, error) {
	f := &Filters{Bindings: make(map[string]any)}

	if err := compileSearch(f, spec, cat); err != nil {
		return nil, err
	}

	for _, w := range spec.Where {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if err := checkWhere(w); err != nil {
			return nil, badPredicate("where", w, err)
		}
		if UsesAggregate(w) {
			f.addAggregate("(" + w + ")")
		} else {
			f.add("(" + w + ")")
		}
	}

	for i, p := range spec.Skip {
		f.add("path != " + f.bind(fmt.Sprintf("skip%d", i), p))
	}

	if len(spec.Ext) > 0 {
		var ors []string
		for i, ext := range spec.Ext {
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
			if ext == "" {
				continue
			}
			ors = append(ors, "path LIKE "+f.bind(fmt.Sprintf("ext%d", i), "%."+ext))
		}
		if len(ors) > 0 {
			f.add("(" + strings.Join(ors, " OR ") + ")")
		}
	}

	for _, s := range spec.Sizes {
		frag, err := rangeSQL("size", s, func(v string) (float64, error) {
			n, err := units.ParseSize(v)
			return float64(n), err
		})
		if err != nil {
			return nil, badPredicate("size", s, err)
		}
		f.add(frag)
	}

	for _, s := range spec.Bitrates {
		frag, err := rangeSQL("(size * 8.0 / NULLIF(duration, 0))", s, units.ParseBitrate)
		if err != nil {
			return nil, badPredicate("bitrate", s, err)
		}
		f.add(frag)
	}

	for _, s := range spec.Durations {
		frag, err := rangeSQL("duration", s, func(v string) (float64, error) {
			return units.ParseDuration(v, "minutes")
		})
		if err != nil {
			return nil, badPredicate("duration", s, err)
		}
		f.add(frag)
	}

	for _, s := range spec.DurationFromSize {
		frag, err := rangeSQL("size", s, func(v string) (float64, error) {
			n, err := units.ParseSize(v)
			return float64(n), err
		})
		if err != nil {
			return nil, badPredicate("duration-from-size", s, err)
		}
		f.add(fmt.Sprintf("size IS NOT NULL AND duration IN (SELECT DISTINCT duration FROM %s WHERE 1=1 %s)", cat.Table, "AND "+frag))
	}

	windows := []struct {
		option    string
		column    string
		value     string
		within    bool
		aggregate bool
	}{
		{"created-within", "time_created", spec.CreatedWithin, true, false},
		{"created-before", "time_created", spec.CreatedBefore, false, false},
		{"changed-within", "time_modified", spec.ChangedWithin, true, false},
		{"changed-before", "time_modified", spec.ChangedBefore, false, false},
		{"deleted-within", "time_deleted", spec.DeletedWithin, true, false},
		{"deleted-before", "time_deleted", spec.DeletedBefore, false, false},
		{"downloaded-within", "time_downloaded", spec.DownloadedWithin, true, false},
		{"downloaded-before", "time_downloaded", spec.DownloadedBefore, false, false},
		{"played-within", "time_last_played", spec.PlayedWithin, true, true},
		{"played-before", "time_last_played", spec.PlayedBefore, false, true},
	}
	for _, w := range windows {
		if w.value == "" {
			continue
		}
		secs, err := units.ParseDuration(w.value, "days")
		if err != nil {
			return nil, badPredicate(w.option, w.value, err)
		}
		cutoff := fmt.Sprintf("CAST(strftime('%%s', 'now', '-%d seconds') AS INT)", int64(secs))
		var frag string
		if w.within {
			frag = fmt.Sprintf("%s >= %s", w.column, cutoff)
		} else {
			frag = fmt.Sprintf("%s > 0 AND %s < %s", w.column, w.column, cutoff)
		}
		if w.aggregate {
			f.addAggregate(frag)
		} else {
			f.add(frag)
		}
	}

	if spec.Portrait {
		f.add("width < height")
	}
	if spec.NoVideo {
		f.add("COALESCE(video_count, 0) = 0")
	}
	if spec.NoAudio {
		f.add("COALESCE(audio_count, 0) = 0")
	}
	if spec.NoSubtitles {
		f.add("COALESCE(subtitle_count, 0) = 0")
	}
	if spec.Subtitles {
		f.add("subtitle_count > 0")
	}
	if spec.OnlineOnly {
		f.add("path LIKE 'http%' AND COALESCE(time_downloaded, 0) = 0")
	}
	if spec.LocalOnly {
		f.add("path NOT LIKE 'http%'")
	}

	if spec.PartialSet {
		if strings.ContainsRune(spec.Partial, 's') {
			f.addAggregate("COALESCE(time_first_played, 0) = 0")
		} else {
			f.addAggregate("time_first_played > 0")
			if strings.ContainsRune(spec.Partial, 'f') {
				f.addAggregate("done = 1")
			}
		}
	}

	if spec.KeepDir != "" {
		f.add("path NOT LIKE " + f.bind("keep_dir", strings.TrimSuffix(spec.KeepDir, "/")+"/%"))
	}

	for i, p := range spec.Paths {
		if !strings.Contains(p, "%") {
			p += "%"
		}
		name := fmt.Sprintf("path%d", i)
		f.Bindings[name] = p
		f.Paths = append(f.Paths, name)
	}

	if cat.Has("time_deleted") && !spec.Deleted && !wantsDeleted(spec) {
		f.add("COALESCE(time_deleted, 0) = 0")
	}

	return f, nil
}

func wantsDeleted(spec Spec) bool {
	if spec.DeletedWithin != "" || spec.DeletedBefore != "" {
		return true
	}
	for _, w := range spec.Where {
		if mentionsTimeDeleted.MatchString(w) {
			return true
		}
	}
	return false
}

func compileSearch(f *Filters, spec Spec, cat Catalog) error {
	include := nonEmpty(spec.Include)
	exclude := nonEmpty(spec.Exclude)

	if len(include) > 0 && !spec.NoFTS && cat.FTSTable != "" {
		ftsInclude, ftsExclude := include, exclude
		var likeInclude, likeExclude []string
		if cat.Tokenizer == "trigram" {
			ftsInclude, likeInclude = splitShortTerms(include)
			ftsExclude, likeExclude = splitShortTerms(exclude)
		}
		// a flexible search cannot OR across the FTS match and LIKE groups
		if len(ftsInclude) > 0 && !(spec.Flex && len(likeInclude) > 0) {
			f.FTSExpr = FTSExpression(ftsInclude, ftsExclude, spec.Flex)
			f.FTSParam = ftsParamName()
			f.Bindings[f.FTSParam] = f.FTSExpr
			return compileLike(f, spec, cat, likeInclude, likeExclude)
		}
	}
	return compileLike(f, spec, cat, include, exclude)
}

// splitShortTerms separates plain terms under three runes, which a trigram
// index never matches
func splitShortTerms(terms []string) (long, short []string) {
	for _, t := range terms {
		if utf8.RuneCountInString(t) < 3 && FTSTerm(t) != t {
			short = append(short, t)
		} else {
			long = append(long, t)
		}
	}
	return long, short
}

func compileLike(f *Filters, spec Spec, cat Catalog, include, exclude []string) error {
	cols := cat.SearchColumns()
	if len(cols) == 0 {
		if len(include)+len(exclude) > 0 {
			return &BadPredicateError{Option: "include", Value: strings.Join(include, " "), Reason: "table has no searchable columns"}
		}
		return nil
	}

	wrap := func(s string) string {
		if spec.Exact {
			return s
		}
		return "%" + s + "%"
	}

	var groups []string
	for i, term := range include {
		param := f.bind(fmt.Sprintf("include%d", i), wrap(term))
		ors := make([]string, len(cols))
		for j, col := range cols {
			ors[j] = col + " LIKE " + param
		}
		groups = append(groups, "("+strings.Join(ors, " OR ")+")")
	}
	if len(groups) > 0 {
		if spec.Flex {
			f.add("(" + strings.Join(groups, " OR ") + ")")
		} else {
			for _, g := range groups {
				f.add(g)
			}
		}
	}

	for i, term := range exclude {
		param := f.bind(fmt.Sprintf("exclude%d", i), wrap(term))
		ands := make([]string, len(cols))
		for j, col := range cols {
			ands[j] = "COALESCE(" + col + ", '') NOT LIKE " + param
		}
		f.add("(" + strings.Join(ands, " AND ") + ")")
	}
	return nil
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// rangeSQL compiles an fd-style numeric rule: "6" is 6 ±10%, "6%20" is
// 6 ±20%, "+6"/"-6" are inclusive bounds and ">6"/"<6" strict ones.
func rangeSQL(col, rule string, parse func(string) (float64, error)) (string, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return "", fmt.Errorf("empty rule")
	}

	bound := func(op, v string) (string, error) {
		n, err := parse(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, op, formatNumber(n)), nil
	}

	switch rule[0] {
	case '>':
		return bound(">", rule[1:])
	case '<':
		return bound("<", rule[1:])
	case '+':
		return bound(">=", rule[1:])
	case '-':
		return bound("<=", rule[1:])
	}

	value, pct := rule, 10.0
	if i := strings.IndexByte(rule, '%'); i >= 0 {
		p, err := strconv.ParseFloat(strings.TrimSpace(rule[i+1:]), 64)
		if err != nil || p < 0 {
			return "", fmt.Errorf("invalid percentage in %q", rule)
		}
		value, pct = rule[:i], p
	}
	n, err := parse(value)
	if err != nil {
		return "", err
	}
	lo := n * (100 - pct) / 100
	hi := n * (100 + pct) / 100
	return fmt.Sprintf("%s >= %s AND %s <= %s", col, formatNumber(lo), col, formatNumber(hi)), nil
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// checkWhere rejects expressions that would break out of their fragment
func checkWhere(expr string) error {
	depth := 0
	var quote rune
	for _, r := range expr {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		case ';':
			return fmt.Errorf("multiple statements")
		}
	}
	if quote != 0 {
		return fmt.Errorf("unterminated quote")
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses")
	}
	return nil
}
