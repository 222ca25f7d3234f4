package playback

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/franz/media-librarian/internal/normalize"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Ordinal walk bounds
const (
	ordinalMinRows     = 2
	ordinalMaxRows     = 99
	ordinalMinBasename = 3
	ordinalFetchLimit  = 1000
)

// Ordinal levels: each one relaxes what the siblings must satisfy
const (
	OrdinalWithinQueue = 1 // siblings must be in the queue's result set
	OrdinalFiltered    = 2 // siblings must pass the row filters
	OrdinalAnywhere    = 3 // any live media
)

// NextInOrder replaces seed with the first least-played sibling that
// shares the longest useful path prefix with it. It returns seed when
// the prefix erodes before a sweet spot is found.
func (s *Selector) NextInOrder(ctx context.Context, seed store.Row, q *query.Query, level int) (store.Row, error) {
	seedPath := seed.String("path")
	candidate := seedPath

	for i := 0; i < len(seedPath); i++ {
		strip := normalize.LastChars(candidate)
		if strip == "" || strip == candidate {
			break
		}
		candidate = candidate[:len(candidate)-len(strip)]

		rows, err := s.siblings(ctx, candidate, q, level)
		if err != nil {
			return nil, err
		}
		if len(rows) < ordinalMinRows {
			continue
		}

		paths := make([]string, len(rows))
		for j, r := range rows {
			paths[j] = r.String("path")
		}
		prefix := normalize.CommonPrefix(paths)
		if len([]rune(path.Base(prefix))) < ordinalMinBasename || strings.HasSuffix(prefix, "/") {
			util.DebugLog("Ordinal walk for %s eroded to %q", seedPath, prefix)
			return seed, nil
		}
		if len(rows) > ordinalMaxRows {
			return seed, nil
		}
		return rows[0], nil
	}
	return seed, nil
}

func (s *Selector) siblings(ctx context.Context, candidate string, q *query.Query, level int) ([]store.Row, error) {
	source := "media"
	scope := ""
	if q != nil {
		switch level {
		case OrdinalWithinQueue:
			scope = "AND m.id IN (" + q.IDSubquery() + ")"
		case OrdinalFiltered:
			source = "(SELECT * FROM media WHERE 1=1 " + q.Filters.RowSQL() + ")"
		}
	}

	stmt := fmt.Sprintf(`SELECT m.*, COUNT(h.id) AS play_count
FROM %s m
LEFT JOIN history h ON h.media_id = m.id
WHERE m.path LIKE :ordinal_candidate
	AND COALESCE(m.time_deleted, 0) = 0
	%s
GROUP BY m.id
ORDER BY play_count, m.path
LIMIT %d`, source, scope, ordinalFetchLimit)

	bindings := map[string]any{"ordinal_candidate": candidate + "%"}
	if q != nil {
		for k, v := range q.Bindings {
			bindings[k] = v
		}
	}
	return s.store.Query(ctx, stmt, query.ArgsFor(stmt, bindings)...)
}
