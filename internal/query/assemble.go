package query

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/franz/media-librarian/internal/store"
)

// Default queue lengths per action
const (
	DefaultPlaybackLimit = 120
	DefaultViewLimit     = 480
	DefaultDownloadLimit = 7200
)

// Query is one assembled statement with its named arguments
type Query struct {
	SQL      string
	Args     []any
	Bindings map[string]any
	Filters  *Filters
	Sort     SortPlan
	Limit    int // -1 when unlimited
	History  bool
	Catalog  Catalog

	unordered string // SQL without ORDER BY and LIMIT
	bounded   bool   // the user passed --limit or --offset
}

// Run executes the query
func (q *Query) Run(ctx context.Context, st *store.Store) ([]store.Row, error) {
	return st.Query(ctx, q.SQL, q.Args...)
}

// IDSubquery selects the ids of every row the query matches, ignoring
// order and limit. It takes the same Args.
func (q *Query) IDSubquery() string {
	return "SELECT id FROM (" + q.unordered + ")"
}

// Unordered is the query without ORDER BY and LIMIT
func (q *Query) Unordered() string {
	return q.unordered
}

// Scoped is Unordered unless the user bounded the query with --limit or
// --offset, which only select rows in sort order. Then it is SQL.
func (q *Query) Scoped() string {
	if q.bounded {
		return q.SQL
	}
	return q.unordered
}

// Build compiles spec against cat into one statement
func Build(spec Spec, cat Catalog) (*Query, error) {
	f, err := Compile(spec, cat)
	if err != nil {
		return nil, err
	}
	history := needsHistory(spec, cat, f)
	plan, err := PlanSort(spec, cat, f, history)
	if err != nil {
		return nil, err
	}
	limit, err := resolveLimit(spec)
	if err != nil {
		return nil, err
	}

	base := baseTable(cat, f)
	var unordered string
	if history {
		unordered = fmt.Sprintf(`SELECT m.*%s FROM (
	SELECT m.*,
		COUNT(h.id) AS play_count,
		MIN(h.time_played) AS time_first_played,
		MAX(h.time_played) AS time_last_played,
		(SELECT h2.playhead FROM history h2 WHERE h2.media_id = m.id ORDER BY h2.time_played DESC, h2.id DESC LIMIT 1) AS playhead,
		COALESCE(MAX(h.done), 0) AS done
	FROM (SELECT * FROM %s m WHERE 1=1 %s) m
	LEFT JOIN history h ON h.media_id = m.id
	GROUP BY m.id, m.path
) m
WHERE 1=1 %s`, selectExtra(plan), base, f.RowSQL(), f.AggregateFilterSQL())
	} else {
		unordered = fmt.Sprintf("SELECT m.*%s FROM %s m\nWHERE 1=1 %s", selectExtra(plan), base, f.RowSQL())
	}

	stmt := unordered + "\nORDER BY " + plan.OrderBy
	switch {
	case limit >= 0:
		stmt += fmt.Sprintf("\nLIMIT %d", limit)
		if spec.Offset > 0 {
			stmt += fmt.Sprintf(" OFFSET %d", spec.Offset)
		}
	case spec.Offset > 0:
		stmt += fmt.Sprintf("\nLIMIT -1 OFFSET %d", spec.Offset)
	}

	return &Query{
		SQL:       stmt,
		Args:      NamedArgs(f.Bindings),
		Bindings:  f.Bindings,
		Filters:   f,
		Sort:      plan,
		Limit:     limit,
		History:   history,
		Catalog:   cat,
		unordered: unordered,
		bounded:   strings.TrimSpace(spec.Limit) != "" || spec.Offset > 0,
	}, nil
}

// NamedArgs turns bindings into sql.Named arguments in a stable order
func NamedArgs(bindings map[string]any) []any {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, bindings[name]))
	}
	return args
}

var placeholderName = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// ArgsFor binds only the names stmt actually references
func ArgsFor(stmt string, bindings map[string]any) []any {
	used := make(map[string]any)
	for _, m := range placeholderName.FindAllStringSubmatch(stmt, -1) {
		if v, ok := bindings[m[1]]; ok {
			used[m[1]] = v
		}
	}
	return NamedArgs(used)
}

func selectExtra(plan SortPlan) string {
	if len(plan.SelectExtra) == 0 {
		return ""
	}
	return ", " + strings.Join(plan.SelectExtra, ", ")
}

func needsHistory(spec Spec, cat Catalog, f *Filters) bool {
	if cat.Table != "media" {
		return false
	}
	if spec.Action.IsPlayback() || spec.Action == ActionHistory || spec.Action == ActionBigDirs || spec.PartialSet {
		return true
	}
	if len(f.AggregateSQL) > 0 {
		return true
	}
	return UsesAggregate(strings.Join(spec.Sort, " "))
}

// baseTable is the FTS match, a path-prefix subquery or the plain table
func baseTable(cat Catalog, f *Filters) string {
	var pathSQL string
	if len(f.Paths) > 0 {
		ors := make([]string, len(f.Paths))
		for i, name := range f.Paths {
			ors[i] = "path LIKE :" + name
		}
		pathSQL = "(" + strings.Join(ors, " OR ") + ")"
	}

	if f.FTSParam != "" {
		sub := fmt.Sprintf("(SELECT m0.*, fts.rank AS rank FROM %s m0 JOIN %s fts ON m0.id = fts.rowid WHERE %s MATCH :%s",
			cat.Table, cat.FTSTable, cat.FTSTable, f.FTSParam)
		if pathSQL != "" {
			sub += " AND " + strings.ReplaceAll(pathSQL, "path LIKE", "m0.path LIKE")
		}
		return sub + ")"
	}
	if pathSQL != "" {
		return fmt.Sprintf("(SELECT * FROM %s WHERE %s)", cat.Table, pathSQL)
	}
	return cat.Table
}

// resolveLimit returns -1 for no limit
func resolveLimit(spec Spec) (int, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Limit)) {
	case "all", "inf":
		return -1, nil
	case "":
		if spec.Print != "" {
			return -1, nil
		}
		switch spec.Action {
		case ActionWatch, ActionListen, ActionRead:
			return DefaultPlaybackLimit, nil
		case ActionView:
			return DefaultViewLimit, nil
		case ActionDownload:
			return DefaultDownloadLimit, nil
		}
		return -1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(spec.Limit))
	if err != nil || n < 0 {
		return 0, &BadPredicateError{Option: "limit", Value: spec.Limit, Reason: "expected a count, all or inf"}
	}
	return n, nil
}
