// Package playback turns a compiled query into a play queue and owns the
// post-SQL expansions: ordinal walk, related media, bigdirs and clustering.
package playback

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/media-librarian/internal/mcda"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// ExistenceCheckLimit caps how many rows the existence filter will stat
const ExistenceCheckLimit = 1000

// Selector builds queues from the catalog
type Selector struct {
	store *store.Store
	fs    afero.Fs
	now   func() time.Time
}

// Config holds selector configuration
type Config struct {
	Store *store.Store
	Fs    afero.Fs // defaults to the OS filesystem
	Now   func() time.Time
}

// New creates a new Selector
func New(cfg *Config) *Selector {
	s := &Selector{store: cfg.Store, fs: cfg.Fs, now: cfg.Now}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Result is a fetched queue and the query that produced it
type Result struct {
	Query *query.Query
	Rows  []store.Row
}

// Paths lists the path of every row
func (r *Result) Paths() []string {
	out := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.String("path")
	}
	return out
}

// Queue runs spec and returns util.ErrNoMedia when nothing matched
func (s *Selector) Queue(ctx context.Context, spec query.Spec) (*Result, error) {
	cat, err := query.LoadCatalog(ctx, s.store, spec.Table)
	if err != nil {
		return nil, err
	}
	q, err := query.Build(spec, cat)
	if err != nil {
		return nil, err
	}
	rows, err := q.Run(ctx, s.store)
	if err != nil {
		return nil, err
	}

	if q.Sort.MCDA != nil {
		rows = RankMCDA(rows, *q.Sort.MCDA)
	}

	if spec.HasPrint('f') && len(rows) <= ExistenceCheckLimit && cat.Table == "media" {
		rows, err = s.dropMissing(ctx, rows)
		if err != nil {
			return nil, err
		}
	}

	if len(rows) == 0 {
		return &Result{Query: q}, fmt.Errorf("%s: %w", spec.Action, util.ErrNoMedia)
	}
	return &Result{Query: q, Rows: rows}, nil
}

// RankMCDA reorders rows by the MCDA score of their criteria columns
func RankMCDA(rows []store.Row, spec mcda.Spec) []store.Row {
	if len(rows) < 2 {
		return rows
	}
	matrix := make([][]float64, len(rows))
	for i, r := range rows {
		matrix[i] = make([]float64, len(spec.Criteria))
		for j, c := range spec.Criteria {
			matrix[i][j] = r.Float64(c.Column)
		}
	}
	order := mcda.Order(mcda.Scores(matrix, spec))
	ranked := make([]store.Row, len(rows))
	for i, idx := range order {
		ranked[i] = rows[idx]
	}
	return ranked
}

// dropMissing soft-deletes local rows whose file is gone
func (s *Selector) dropMissing(ctx context.Context, rows []store.Row) ([]store.Row, error) {
	kept := rows[:0:0]
	var missing []string
	for _, r := range rows {
		path := r.String("path")
		if util.IsURL(path) {
			kept = append(kept, r)
			continue
		}
		if _, err := s.fs.Stat(path); err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, path)
				continue
			}
			util.WarnLog("Cannot stat %s: %v", path, err)
		}
		kept = append(kept, r)
	}

	if len(missing) > 0 {
		n, err := s.store.MarkDeleted(ctx, s.now(), missing...)
		if err != nil {
			return nil, err
		}
		util.InfoLog("Marked %d missing files as deleted", n)
	}
	return kept, nil
}
