// Package dedupe finds duplicate media, either by joining the catalog on
// metadata or by hashing files, and retires the losing copies.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"

	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Duplicate is one copy to retire and the copy that stays
type Duplicate struct {
	KeepPath      string
	DuplicatePath string
	DuplicateSize int64
	Method        string
}

// Trasher removes a file; fileops.Ops satisfies it
type Trasher interface {
	Trash(ctx context.Context, path string) error
}

// Similarity gate targets
const (
	SimilarityDirname  = "dirname"
	SimilarityBasename = "basename"
)

// Deduper finds and retires duplicates
type Deduper struct {
	store         *store.Store
	fs            afero.Fs
	workers       int
	gap           float64
	logger        *report.EventLogger
	minSimilarity float64
	similarityOn  string
	now           func() time.Time
}

// Config holds deduper configuration
type Config struct {
	Store         *store.Store
	Fs            afero.Fs
	Workers       int     // hash pool size; 0 sizes it from the catalog location
	Gap           float64 // sample gap, DefaultGap when 0
	Logger        *report.EventLogger
	MinSimilarity float64 // 0 disables the similarity gate
	SimilarityOn  string  // SimilarityDirname or SimilarityBasename
	Now           func() time.Time
}

// New creates a new Deduper
func New(cfg *Config) *Deduper {
	d := &Deduper{
		store:         cfg.Store,
		fs:            cfg.Fs,
		workers:       cfg.Workers,
		gap:           cfg.Gap,
		logger:        cfg.Logger,
		minSimilarity: cfg.MinSimilarity,
		similarityOn:  cfg.SimilarityOn,
		now:           cfg.Now,
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.workers <= 0 {
		d.workers = util.HashWorkers(filepath.Dir(cfg.Store.Path()), 0)
	}
	if d.gap <= 0 {
		d.gap = DefaultGap
	}
	if d.similarityOn == "" {
		d.similarityOn = SimilarityBasename
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Apply trashes and soft-deletes every duplicate. URLs are only
// soft-deleted. It keeps going after a failure and returns how many
// duplicates were retired.
func (d *Deduper) Apply(ctx context.Context, dups []Duplicate, trash Trasher) (int, error) {
	var errs []error
	retired := 0
	for _, dup := range dups {
		if err := ctx.Err(); err != nil {
			return retired, err
		}
		if !util.IsURL(dup.DuplicatePath) {
			if err := trash.Trash(ctx, dup.DuplicatePath); err != nil {
				d.logger.LogError(report.EventDuplicate, dup.DuplicatePath, err)
				errs = append(errs, err)
				continue
			}
		}
		if _, err := d.store.MarkDeleted(ctx, d.now(), dup.DuplicatePath); err != nil {
			errs = append(errs, err)
			continue
		}
		d.logger.LogDuplicate(dup.KeepPath, dup.DuplicatePath, dup.DuplicateSize, dup.Method)
		retired++
	}
	return retired, errors.Join(errs...)
}

// gate drops duplicates whose paths are less similar than the threshold
func (d *Deduper) gate(dups []Duplicate) []Duplicate {
	if d.minSimilarity <= 0 {
		return dups
	}
	part := filepath.Base
	if d.similarityOn == SimilarityDirname {
		part = filepath.Dir
	}
	kept := dups[:0]
	for _, dup := range dups {
		if ratio := Similarity(part(dup.KeepPath), part(dup.DuplicatePath)); ratio >= d.minSimilarity {
			kept = append(kept, dup)
		} else {
			util.DebugLog("Similarity %.2f below gate: %s", ratio, dup.DuplicatePath)
		}
	}
	return kept
}

// Similarity is the SequenceMatcher ratio of two strings, by character
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Better reports whether a should be kept over b. Stream counts come
// first, then the position under the user's --sort, then the fixed
// preferences.
func Better(a, b store.Row) bool {
	streams := []string{"video_count", "audio_count", "subtitle_count"}
	for _, col := range streams {
		if x, y := a.Int64(col) > 0, b.Int64(col) > 0; x != y {
			return x
		}
	}
	if x, y := a.Int64(userRankColumn), b.Int64(userRankColumn); x > 0 && y > 0 && x != y {
		return x < y
	}
	if x, y := a.String("uploader") != "", b.String("uploader") != ""; x != y {
		return x
	}

	pa, pb := a.String("path"), b.String("path")
	if x, y := strings.Count(pa, "/"), strings.Count(pb, "/"); x != y {
		return x > y
	}
	if x, y := strings.Count(pa, "."), strings.Count(pb, "."); x != y {
		return x < y
	}
	if len(pa) != len(pb) {
		return len(pa) < len(pb)
	}

	for _, col := range []string{"size", "time_modified", "time_created", "duration"} {
		if x, y := a.Int64(col), b.Int64(col); x != y {
			return x > y
		}
	}
	return pa > pb
}

// pickKeeper orders a group best first and reports the rest against it
func pickKeeper(group []store.Row, method string) []Duplicate {
	sort.SliceStable(group, func(i, j int) bool { return Better(group[i], group[j]) })
	keep := group[0].String("path")
	dups := make([]Duplicate, 0, len(group)-1)
	for _, r := range group[1:] {
		dups = append(dups, Duplicate{
			KeepPath:      keep,
			DuplicatePath: r.String("path"),
			DuplicateSize: r.Int64("size"),
			Method:        method,
		})
	}
	return dups
}

// userRankColumn holds a row's dense rank under the --sort keys of the
// scope; rows the keys cannot tell apart share a rank
const userRankColumn = "user_sort_rank"

// rankByUserSort stamps rows with their rank under the scope's --sort keys
func (d *Deduper) rankByUserSort(ctx context.Context, scope *query.Query, rows []store.Row) error {
	if scope == nil || scope.Sort.UserOrderBy == "" || len(rows) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("SELECT m.id AS id, DENSE_RANK() OVER (ORDER BY %s) AS %s FROM (%s) m",
		scope.Sort.UserOrderBy, userRankColumn, scope.Unordered())
	ranked, err := d.store.Query(ctx, stmt, query.ArgsFor(stmt, scope.Bindings)...)
	if err != nil {
		return fmt.Errorf("rank by sort: %w", err)
	}
	ranks := make(map[int64]int64, len(ranked))
	for _, r := range ranked {
		ranks[r.Int64("id")] = r.Int64(userRankColumn)
	}
	for _, r := range rows {
		if rank, ok := ranks[r.Int64("id")]; ok {
			r[userRankColumn] = rank
		}
	}
	return nil
}

// scopeSQL restricts alias to the ids of scope
func scopeSQL(alias string, scope *query.Query) string {
	if scope == nil {
		return ""
	}
	return fmt.Sprintf("AND %s.id IN (%s)", alias, scope.IDSubquery())
}

func scopeArgs(stmt string, scope *query.Query) []any {
	if scope == nil {
		return nil
	}
	return query.ArgsFor(stmt, scope.Bindings)
}
