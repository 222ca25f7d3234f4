package query

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st *store.Store, rows ...store.Row) {
	t.Helper()
	for _, r := range rows {
		_, err := st.UpsertMedia(context.Background(), r)
		require.NoError(t, err)
	}
}

func run(t *testing.T, st *store.Store, spec Spec) []string {
	t.Helper()
	ctx := context.Background()
	cat, err := LoadCatalog(ctx, st, spec.Table)
	require.NoError(t, err)
	q, err := Build(spec, cat)
	require.NoError(t, err)
	rows, err := q.Run(ctx, st)
	require.NoError(t, err, q.SQL)
	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.String("path"))
	}
	return paths
}

var placeholder = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

func TestPlaceholdersMatchArgs(t *testing.T) {
	cat := Catalog{Table: "media", FTSTable: "media_fts", Columns: map[string]string{}}
	for _, c := range store.MediaColumns {
		cat.Columns[c] = "TEXT"
	}

	specs := []Spec{
		{Action: ActionWatch},
		{Action: ActionWatch, Include: []string{"cat", "dog"}, Exclude: []string{"bird"}},
		{Action: ActionListen, Include: []string{"cat"}, NoFTS: true, Exclude: []string{"x"}, Flex: true},
		{Action: ActionSearch, Paths: []string{"/a", "/b"}, Ext: []string{"mkv", ".mp4"}, KeepDir: "/keep"},
		{Action: ActionWatch, Include: []string{"cat"}, Paths: []string{"/a"}, Sizes: []string{"6MB"}, PlayedWithin: "3 days"},
		{Action: ActionView, Where: []string{"play_count = 0", "width > 100"}, Sort: []string{"same-album desc,path"}},
		{Action: ActionWatch, PartialSet: true, Partial: "fo", DurationFromSize: []string{"+10MB"}},
		{Action: ActionWatch, Include: []string{"cat"}, Flex: true, Skip: []string{"/v/o'brien.mkv"}},
	}
	for i, spec := range specs {
		q, err := Build(spec, cat)
		require.NoError(t, err, "spec %d", i)

		names := map[string]bool{}
		for _, m := range placeholder.FindAllStringSubmatch(q.SQL, -1) {
			names[m[1]] = true
		}
		assert.Len(t, q.Args, len(names), "spec %d: %s", i, q.SQL)
		for name := range q.Bindings {
			assert.True(t, names[name], "spec %d: binding %s unused", i, name)
		}
	}
}

func TestFTSRoundTrip(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/one.mkv", "title": "foo bar"},
		store.Row{"path": "/m/two.mkv", "title": "something else"},
	)

	assert.Equal(t, []string{"/m/one.mkv"}, run(t, st, Spec{Action: ActionSearch, Include: []string{"bar"}}))
	assert.Empty(t, run(t, st, Spec{Action: ActionSearch, Include: []string{"foo"}, Exclude: []string{"bar"}}))
	assert.Equal(t, []string{"/m/two.mkv"}, run(t, st, Spec{Action: ActionSearch, Exclude: []string{"bar"}}))
	assert.Equal(t, []string{"/m/one.mkv"}, run(t, st, Spec{Action: ActionSearch, Include: []string{"bar"}, NoFTS: true}))
}

func TestSizeRules(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/5.mkv", "size": int64(5_000_000)},
		store.Row{"path": "/m/6.mkv", "size": int64(6_000_000)},
		store.Row{"path": "/m/7.mkv", "size": int64(7_000_000)},
	)

	tests := []struct {
		name  string
		sizes []string
		want  []string
	}{
		{"tolerance", []string{"6MB"}, []string{"/m/6.mkv"}},
		{"inclusive bounds", []string{"+6MB", "-7MB"}, []string{"/m/7.mkv", "/m/6.mkv"}},
		{"between", []string{"+5.5MB", "-6.5MB"}, []string{"/m/6.mkv"}},
		{"strict", []string{">5MB", "<7MB"}, []string{"/m/6.mkv"}},
		{"wide percentage", []string{"6MB%20"}, []string{"/m/7.mkv", "/m/6.mkv", "/m/5.mkv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, st, Spec{Action: ActionSearch, Sizes: tt.sizes})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBadPredicates(t *testing.T) {
	cat := Catalog{Table: "media", Columns: map[string]string{"path": "TEXT", "size": "INTEGER"}}
	for _, spec := range []Spec{
		{Sizes: []string{"lots"}},
		{Durations: []string{"5 fortnights"}},
		{Where: []string{"1); DROP TABLE media; --"}},
		{Where: []string{"(size > 1"}},
		{Limit: "-3"},
		{Sort: []string{"same-a.b"}},
	} {
		_, err := Build(spec, cat)
		require.Error(t, err)
		assert.True(t, errors.Is(err, util.ErrBadPredicate), err.Error())
	}
}

func TestWhereRouting(t *testing.T) {
	cat := Catalog{Table: "media", Columns: map[string]string{"path": "TEXT", "time_deleted": "INTEGER"}}
	f, err := Compile(Spec{Where: []string{"play_count = 0", "path LIKE '/a%'"}}, cat)
	require.NoError(t, err)
	assert.Equal(t, []string{"AND (play_count = 0)"}, f.AggregateSQL)
	assert.Contains(t, f.SQL, "AND (path LIKE '/a%')")
	assert.Contains(t, f.SQL, "AND COALESCE(time_deleted, 0) = 0")

	f, err = Compile(Spec{Where: []string{"time_deleted > 0"}}, cat)
	require.NoError(t, err)
	assert.NotContains(t, f.SQL, "AND COALESCE(time_deleted, 0) = 0")
}

func TestSoftDeletedHidden(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/a.mkv"},
		store.Row{"path": "/m/b.mkv"},
	)
	_, err := st.MarkDeleted(context.Background(), time.Now(), "/m/b.mkv")
	require.NoError(t, err)

	assert.Equal(t, []string{"/m/a.mkv"}, run(t, st, Spec{Action: ActionSearch}))
	assert.Equal(t, []string{"/m/b.mkv"}, run(t, st, Spec{Action: ActionSearch, DeletedWithin: "1 day"}))
	assert.Len(t, run(t, st, Spec{Action: ActionSearch, Deleted: true}), 2)
}

func TestSameColumnSortIsDeterministic(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/c.mp3", "album": "x"},
		store.Row{"path": "/m/a.mp3", "album": "y"},
		store.Row{"path": "/m/b.mp3", "album": "x"},
		store.Row{"path": "/m/d.mp3"},
	)
	spec := Spec{Action: ActionSearch, Sort: []string{"same-album desc,path"}}
	first := run(t, st, spec)
	assert.Equal(t, []string{"/m/b.mp3", "/m/c.mp3", "/m/a.mp3", "/m/d.mp3"}, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(t, st, spec))
	}
}

func TestPlanSort(t *testing.T) {
	cat := Catalog{Table: "media", Columns: map[string]string{}}
	for _, c := range store.MediaColumns {
		cat.Columns[c] = "TEXT"
	}

	plan, err := PlanSort(Spec{Action: ActionSearch, Sort: []string{"month_created desc", "size,desc", "priority"}}, cat, &Filters{}, false)
	require.NoError(t, err)
	assert.Contains(t, plan.OrderBy, "cast(strftime('%Y%m', datetime(time_created, 'unixepoch')) AS INT) desc")
	assert.Contains(t, plan.OrderBy, "size DESC, ntile(1000) OVER (ORDER BY size) DESC, duration")
	assert.True(t, strings.HasSuffix(plan.OrderBy, "duration DESC, size DESC, title IS NOT NULL DESC, m.path, random()"))
	assert.NotContains(t, plan.OrderBy, "play_count")

	plan, err = PlanSort(Spec{Action: ActionWatch, Sort: []string{"mcda spotis size,-duration"}}, cat, &Filters{FTSParam: "FTS_x"}, true)
	require.NoError(t, err)
	require.NotNil(t, plan.MCDA)
	assert.Len(t, plan.MCDA.Criteria, 2)
	assert.True(t, strings.HasPrefix(plan.OrderBy, "rank, video_count > 0 DESC"))
	assert.Contains(t, plan.OrderBy, "play_count")
}

func TestSubtitlePreferenceIsSeeded(t *testing.T) {
	cat := Catalog{Table: "media", Columns: map[string]string{"subtitle_count": "INTEGER"}}
	seen := map[string]bool{}
	for seed := int64(0); seed < 50; seed++ {
		spec := Spec{Action: ActionWatch, Seed: seed}
		a, err := PlanSort(spec, cat, &Filters{}, false)
		require.NoError(t, err)
		b, err := PlanSort(spec, cat, &Filters{}, false)
		require.NoError(t, err)
		assert.Equal(t, a.OrderBy, b.OrderBy)
		seen[strings.Split(a.OrderBy, ", ")[0]] = true
	}
	assert.True(t, seen["subtitle_count = 0 DESC"])
	assert.True(t, seen["subtitle_count > 0 DESC"])

	plan, err := PlanSort(Spec{Action: ActionWatch, NoSubtitles: true}, cat, &Filters{}, false)
	require.NoError(t, err)
	assert.NotContains(t, plan.OrderBy, "subtitle_count")
}

func TestLimits(t *testing.T) {
	tests := []struct {
		spec Spec
		want int
	}{
		{Spec{Action: ActionWatch}, 120},
		{Spec{Action: ActionRead}, 120},
		{Spec{Action: ActionView}, 480},
		{Spec{Action: ActionDownload}, 7200},
		{Spec{Action: ActionWatch, Print: "f"}, -1},
		{Spec{Action: ActionWatch, Print: "f", Limit: "3"}, 3},
		{Spec{Action: ActionWatch, Limit: "inf"}, -1},
		{Spec{Action: ActionSearch}, -1},
	}
	for _, tt := range tests {
		got, err := resolveLimit(tt.spec)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%+v", tt.spec)
	}
}

func TestPlaybackJoinsHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st,
		store.Row{"path": "/m/a.mkv", "duration": int64(100)},
		store.Row{"path": "/m/b.mkv", "duration": int64(100)},
	)
	id, err := st.MediaID(ctx, "/m/a.mkv")
	require.NoError(t, err)
	hid, err := st.StartPlay(ctx, id, time.Now())
	require.NoError(t, err)
	require.NoError(t, st.FinishPlay(ctx, hid, 40, false))

	assert.Equal(t, []string{"/m/b.mkv"}, run(t, st, Spec{Action: ActionWatch, PartialSet: true, Partial: "s"}))
	assert.Equal(t, []string{"/m/a.mkv"}, run(t, st, Spec{Action: ActionWatch, PartialSet: true, Partial: "p"}))
	assert.Equal(t, []string{"/m/a.mkv"}, run(t, st, Spec{Action: ActionWatch, Where: []string{"playhead = 40"}}))
	assert.Empty(t, run(t, st, Spec{Action: ActionWatch, PartialSet: true, Partial: "f"}))
	assert.Equal(t, []string{"/m/a.mkv"}, run(t, st, Spec{Action: ActionWatch, PlayedWithin: "1 hour"}))
}

func TestPathPrefixesAndOffset(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/a/1.mkv"},
		store.Row{"path": "/a/2.mkv"},
		store.Row{"path": "/b/1.mkv"},
	)
	assert.Equal(t, []string{"/a/1.mkv", "/a/2.mkv"}, run(t, st, Spec{Action: ActionSearch, Paths: []string{"/a/"}}))
	assert.Equal(t, []string{"/a/2.mkv"}, run(t, st, Spec{Action: ActionSearch, Paths: []string{"/a/"}, Offset: 1}))
	assert.Equal(t, []string{"/a/1.mkv"}, run(t, st, Spec{Action: ActionSearch, Paths: []string{"/a/"}, Limit: "1"}))
}

func TestFTSExpression(t *testing.T) {
	tests := []struct {
		include, exclude []string
		flex             bool
		want             string
	}{
		{[]string{"cat"}, nil, false, `"cat"`},
		{[]string{"cat", "dog"}, nil, false, `"cat" AND "dog"`},
		{[]string{"cat", "dog"}, nil, true, `("cat" OR "dog")`},
		{[]string{"cat"}, []string{"dog"}, false, `"cat" NOT "dog"`},
		{[]string{"ca*"}, nil, false, `ca*`},
		{[]string{`say "hi"`}, nil, false, `"say ""hi"""`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FTSExpression(tt.include, tt.exclude, tt.flex))
	}
}

func TestAggregate(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/a.mkv", "size": int64(100), "duration": int64(60)},
		store.Row{"path": "/m/b.mkv", "size": int64(300), "duration": int64(180)},
	)
	ctx := context.Background()
	cat, err := LoadCatalog(ctx, st, "media")
	require.NoError(t, err)
	q, err := Build(Spec{Action: ActionWatch, Print: "a"}, cat)
	require.NoError(t, err)

	rep, err := Aggregate(ctx, st, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Count)
	assert.Equal(t, int64(400), rep.Size)
	assert.InDelta(t, 240, rep.Duration, 0.001)
	assert.InDelta(t, 120, rep.AvgDuration, 0.001)
	assert.Zero(t, rep.CadenceAdjDuration)

	id, err := st.MediaID(ctx, "/m/a.mkv")
	require.NoError(t, err)
	_, err = st.AddHistory(ctx, store.HistoryEntry{MediaID: id, TimePlayed: time.Now().Unix(), Done: true})
	require.NoError(t, err)

	rep, err = Aggregate(ctx, st, q)
	require.NoError(t, err)
	// 60s played within one hour: 240s of media takes four hours
	assert.InDelta(t, 4*3600, rep.CadenceAdjDuration, 0.001)
}

func TestAggregateKeepsExplicitBounds(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/a.mkv", "size": int64(100), "duration": int64(60)},
		store.Row{"path": "/m/b.mkv", "size": int64(200), "duration": int64(60)},
		store.Row{"path": "/m/c.mkv", "size": int64(300), "duration": int64(60)},
	)
	ctx := context.Background()
	cat, err := LoadCatalog(ctx, st, "media")
	require.NoError(t, err)

	aggregate := func(spec Spec) AggregateReport {
		t.Helper()
		q, err := Build(spec, cat)
		require.NoError(t, err)
		rep, err := Aggregate(ctx, st, q)
		require.NoError(t, err)
		return rep
	}

	rep := aggregate(Spec{Action: ActionWatch, Print: "a"})
	assert.Equal(t, int64(3), rep.Count)

	rep = aggregate(Spec{Action: ActionWatch, Print: "a", Limit: "2", Sort: []string{"size desc"}})
	assert.Equal(t, int64(2), rep.Count)
	assert.Equal(t, int64(500), rep.Size)

	rep = aggregate(Spec{Action: ActionWatch, Print: "a", Offset: 1, Sort: []string{"size"}})
	assert.Equal(t, int64(2), rep.Count)
	assert.Equal(t, int64(500), rep.Size)
}

func TestShortTermsUnderTrigram(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		store.Row{"path": "/m/ox.mkv", "title": "ox tail"},
		store.Row{"path": "/m/cat.mkv", "title": "big cat"},
	)

	assert.Equal(t, []string{"/m/ox.mkv"}, run(t, st, Spec{Action: ActionSearch, Include: []string{"ox"}}))
	assert.Equal(t, []string{"/m/ox.mkv"}, run(t, st, Spec{Action: ActionSearch, Include: []string{"ox", "tail"}}))
	assert.Empty(t, run(t, st, Spec{Action: ActionSearch, Include: []string{"ox", "cat"}}))
}
