package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Profile selects the metadata that makes two rows duplicates
type Profile string

const (
	ProfileAudio       Profile = "audio"
	ProfileTitle       Profile = "title"
	ProfileExtractorID Profile = "extractor_id"
	ProfileDuration    Profile = "duration"
)

// DurationTolerance is how far apart, in seconds, duplicate durations may be
const DurationTolerance = 4

var profileJoins = map[Profile]string{
	ProfileAudio: "m1.title = m2.title AND m1.artist = m2.artist AND m1.album = m2.album " +
		"AND COALESCE(m1.title, '') != ''",
	ProfileTitle:       "m1.title = m2.title AND COALESCE(m1.title, '') != ''",
	ProfileExtractorID: "m1.extractor_id = m2.extractor_id AND COALESCE(m1.extractor_id, '') != ''",
	ProfileDuration:    "m1.duration > 0",
}

// ParseProfile validates a profile name
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profileJoins[p]; !ok {
		return "", fmt.Errorf("unknown dedupe profile %q: %w", s, util.ErrBadPredicate)
	}
	return p, nil
}

// FindMeta self-joins the catalog on profile. Rows linked through any
// chain of matches form one group; the best row of each group is kept.
func (d *Deduper) FindMeta(ctx context.Context, profile Profile, scope *query.Query) ([]Duplicate, error) {
	join, ok := profileJoins[profile]
	if !ok {
		return nil, fmt.Errorf("unknown dedupe profile %q: %w", profile, util.ErrBadPredicate)
	}

	stmt := fmt.Sprintf(`SELECT m1.id AS a, m2.id AS b
FROM media m1
JOIN media m2 ON m1.id < m2.id
	AND %s
	AND ABS(COALESCE(m1.duration, 0) - COALESCE(m2.duration, 0)) <= %d
WHERE COALESCE(m1.time_deleted, 0) = 0
	AND COALESCE(m2.time_deleted, 0) = 0
	%s %s`, join, DurationTolerance, scopeSQL("m1", scope), scopeSQL("m2", scope))
	pairs, err := d.store.Query(ctx, stmt, scopeArgs(stmt, scope)...)
	if err != nil {
		return nil, err
	}

	uf := newUnionFind()
	for _, p := range pairs {
		uf.union(p.Int64("a"), p.Int64("b"))
	}
	if len(uf.parent) == 0 {
		return nil, nil
	}

	rows, err := d.loadRows(ctx, uf.members())
	if err != nil {
		return nil, err
	}
	if err := d.rankByUserSort(ctx, scope, rows); err != nil {
		return nil, err
	}
	groups := make(map[int64][]store.Row)
	for _, r := range rows {
		root := uf.find(r.Int64("id"))
		groups[root] = append(groups[root], r)
	}

	roots := make([]int64, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	var dups []Duplicate
	for _, root := range roots {
		if group := groups[root]; len(group) > 1 {
			dups = append(dups, pickKeeper(group, string(profile))...)
		}
	}
	return d.gate(dups), nil
}

func (d *Deduper) loadRows(ctx context.Context, ids []int64) ([]store.Row, error) {
	const batch = 500
	var out []store.Row
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
		rows, err := d.store.Query(ctx, "SELECT * FROM media WHERE id IN ("+marks+")", args...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64)}
}

func (u *unionFind) find(x int64) int64 {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

func (u *unionFind) members() []int64 {
	ids := make([]int64, 0, len(u.parent))
	for id := range u.parent {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
