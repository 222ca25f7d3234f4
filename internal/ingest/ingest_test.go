package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/playback"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

var fixedNow = func() time.Time { return time.Unix(1_700_000_000, 0) }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestConsolidate(t *testing.T) {
	row := Consolidate(map[string]any{
		"webpage_url":     "https://youtu.be/abc",
		"url":             "https://cdn.example.com/ignored",
		"filesize_approx": float64(1234),
		"duration":        42.7,
		"upload_date":     "20240131",
		"tags":            []any{"Cats", "unknown", "cats", " funny "},
		"categories":      []any{"Pets & Animals"},
		"uploader":        "someone",
		"formats":         []any{map[string]any{"format_id": "22"}},
		"view_count":      float64(10),
		"_type":           "video",
	})

	assert.Equal(t, "https://youtu.be/abc", row["path"])
	assert.NotContains(t, row, "webpath", "webpath equal to path is dropped")
	assert.Equal(t, int64(1234), row["size"])
	assert.Equal(t, int64(42), row["duration"])
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC).Unix(), row["time_uploaded"])
	assert.Equal(t, "Cats;funny;Pets & Animals", row["tags"])
	assert.Equal(t, "someone", row["uploader"])
	assert.Equal(t, float64(10), row["view_count"])
	assert.NotContains(t, row, "formats")
	assert.NotContains(t, row, "_type")
}

func TestConsolidateDownloaded(t *testing.T) {
	row := Consolidate(map[string]any{
		"filepath":    "/dl/Youtube/someone/clip_abc.mkv",
		"webpage_url": "https://youtu.be/abc",
	})
	assert.Equal(t, "/dl/Youtube/someone/clip_abc.mkv", row["path"])
	assert.Equal(t, "https://youtu.be/abc", row["webpath"])
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{"20240131", 1706659200, true},
		{float64(1706659200), 1706659200, true},
		{int64(1706659200000), 1706659200, true},
		{"2024-01-31T00:00:00Z", 1706659200, true},
		{"2024-01-31", 1706659200, true},
		{"1706659200", 1706659200, true},
		{"someday", 0, false},
		{"", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got.Unix(), "%v", tt.in)
		}
	}
}

func TestJoinTags(t *testing.T) {
	assert.Equal(t, "a;b;c", JoinTags("a;B", []string{"b", "none", "c"}, nil, "und"))
	assert.Equal(t, "", JoinTags("", "unknown"))
}

func TestIngestThenSearch(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	in := New(&Config{Store: st, Now: fixedNow})

	entry := map[string]any{"webpage_url": "https://youtu.be/abc", "title": "Cat Video", "duration": float64(42)}
	_, err := in.Add(ctx, entry, Options{})
	require.NoError(t, err)

	sel := playback.New(&playback.Config{Store: st})
	res, err := sel.Queue(ctx, query.Spec{Action: query.ActionWatch, Include: []string{"cat"}, Print: "f"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtu.be/abc"}, res.Paths())
}

func TestReingestIsIdempotent(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	in := New(&Config{Store: st, Now: fixedNow})

	entry := map[string]any{"url": "https://example.com/v/1", "title": "One", "tags": "alpha;beta"}
	id1, err := in.Add(ctx, entry, Options{})
	require.NoError(t, err)
	id2, err := in.Add(ctx, entry, Options{})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	n, err := st.QueryInt(ctx, "SELECT COUNT(*) FROM media")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	hits, err := st.SearchCaptions(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha;beta", hits[0].Text)
}

func TestDownloadedEntryReplacesOnlineRow(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	in := New(&Config{Store: st, Now: fixedNow})

	onlineID, err := in.Add(ctx, map[string]any{"webpage_url": "https://youtu.be/abc", "title": "Clip"}, Options{})
	require.NoError(t, err)
	_, err = st.AddHistory(ctx, store.HistoryEntry{MediaID: onlineID, TimePlayed: 100, Done: true})
	require.NoError(t, err)

	localID, err := in.Add(ctx, map[string]any{
		"filepath":    "/dl/clip.mkv",
		"webpage_url": "https://youtu.be/abc",
		"title":       "Clip",
	}, Options{Downloaded: true})
	require.NoError(t, err)

	_, err = st.MediaByPath(ctx, "https://youtu.be/abc")
	assert.ErrorIs(t, err, util.ErrNotFound)

	row, err := st.MediaByPath(ctx, "/dl/clip.mkv")
	require.NoError(t, err)
	assert.Equal(t, fixedNow().Unix(), row.Int64("time_downloaded"))

	hist, err := st.MediaHistory(ctx, localID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestSchemaConflictIsReported(t *testing.T) {
	st := openStore(t)
	in := New(&Config{Store: st, Now: fixedNow})
	_, err := in.Add(context.Background(), map[string]any{"url": "https://example.com/x", "year": "sometime"}, Options{})
	assert.ErrorIs(t, err, util.ErrSchemaConflict)
}

func TestNextDelay(t *testing.T) {
	delay := 70
	delay = NextDelay(delay, 0)
	assert.Equal(t, 140, delay)
	delay = NextDelay(delay, 0)
	assert.Equal(t, 280, delay)
	delay = NextDelay(delay, 3)
	assert.Equal(t, 140, delay)

	for range 20 {
		delay = NextDelay(delay, 0)
		assert.LessOrEqual(t, delay, MaxDelayHours)
	}
	assert.Equal(t, MaxDelayHours, delay)

	for range 40 {
		delay = NextDelay(delay, 1)
		assert.GreaterOrEqual(t, delay, MinDelayHours)
	}
	assert.Equal(t, MinDelayHours, delay)
	assert.Equal(t, 140, NextDelay(0, 0))
}

type fakeLister struct {
	batches [][]extractor.Entry
	errs    []error
	calls   int
}

func (f *fakeLister) Entries(_ context.Context, _ string, fn extractor.EntryFunc) error {
	i := f.calls
	f.calls++
	if i < len(f.batches) {
		for _, e := range f.batches[i] {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func entries(ids ...string) []extractor.Entry {
	out := make([]extractor.Entry, len(ids))
	for i, id := range ids {
		out[i] = extractor.Entry{"url": "https://youtu.be/" + id, "id": id, "title": "Video " + id}
	}
	return out
}

func TestRefreshBackoff(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	lister := &fakeLister{batches: [][]extractor.Entry{
		entries("a"),
		entries("a"),
		entries("a"),
		entries("a", "b"),
	}}
	r := NewRefresher(&RefreshConfig{Store: st, Videos: lister, Now: fixedNow})

	id, err := st.UpsertPlaylist(ctx, store.Playlist{Path: "https://youtube.com/@someone", ExtractorKey: "Youtube"})
	require.NoError(t, err)

	want := []struct{ added, delay int }{{1, 35}, {0, 70}, {0, 140}, {1, 70}}
	for i, w := range want {
		p, err := st.PlaylistByID(ctx, id)
		require.NoError(t, err)
		n, err := r.RefreshPlaylist(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, w.added, n, "refresh %d", i)
		p, err = st.PlaylistByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, w.delay, p.HoursUpdateDelay, "refresh %d", i)
	}

	row, err := st.MediaByPath(ctx, "https://youtu.be/b")
	require.NoError(t, err)
	assert.Equal(t, id, row.Int64("playlist_id"))
	assert.Equal(t, "Youtube", row.String("extractor_key"))
}

func TestRefreshErrorClasses(t *testing.T) {
	ctx := context.Background()

	t.Run("recoverable doubles and records", func(t *testing.T) {
		st := openStore(t)
		lister := &fakeLister{errs: []error{&extractor.Error{Class: extractor.Recoverable, Stderr: "HTTP Error 429"}}}
		r := NewRefresher(&RefreshConfig{Store: st, Videos: lister, Now: fixedNow})
		id, err := st.UpsertPlaylist(ctx, store.Playlist{Path: "https://youtube.com/@a"})
		require.NoError(t, err)

		stats, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)
		p, _ := st.PlaylistByID(ctx, id)
		assert.Equal(t, 140, p.HoursUpdateDelay)
		assert.Contains(t, p.Error, "HTTP Error 429")
		assert.Zero(t, p.TimeDeleted)
	})

	t.Run("unrecoverable deletes playlist", func(t *testing.T) {
		st := openStore(t)
		lister := &fakeLister{errs: []error{&extractor.Error{Class: extractor.Unrecoverable, Stderr: "HTTP Error 404"}}}
		r := NewRefresher(&RefreshConfig{Store: st, Videos: lister, Now: fixedNow})
		id, err := st.UpsertPlaylist(ctx, store.Playlist{Path: "https://youtube.com/@b"})
		require.NoError(t, err)

		stats, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Deleted)
		p, _ := st.PlaylistByID(ctx, id)
		assert.Equal(t, fixedNow().Unix(), p.TimeDeleted)

		live, err := st.Playlists(ctx)
		require.NoError(t, err)
		assert.Empty(t, live)
	})

	t.Run("prefix aborts the run", func(t *testing.T) {
		st := openStore(t)
		lister := &fakeLister{errs: []error{&extractor.Error{Class: extractor.Prefix, Stderr: "No space left on device"}}}
		r := NewRefresher(&RefreshConfig{Store: st, Videos: lister, Now: fixedNow})
		for _, u := range []string{"https://youtube.com/@c", "https://youtube.com/@d"} {
			_, err := st.UpsertPlaylist(ctx, store.Playlist{Path: u})
			require.NoError(t, err)
		}

		stats, err := r.Refresh(ctx)
		assert.ErrorIs(t, err, util.ErrAbortRun)
		assert.Equal(t, 1, stats.Playlists)
		assert.Equal(t, 1, lister.calls)
	})
}

func TestRefresherAddSanitizes(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	galleries := &fakeLister{batches: [][]extractor.Entry{{{"url": "https://i.example.com/1.jpg"}}}}
	r := NewRefresher(&RefreshConfig{Store: st, Videos: &fakeLister{}, Galleries: galleries, Now: fixedNow})

	p, n, err := r.Add(ctx, store.Playlist{Path: "https://m.reddit.com/r/cats/", ExtractorKey: "gallery-dl"}, "weekly")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "https://old.reddit.com/r/cats/top/?sort=top&t=week", p.Path)
	assert.Equal(t, "old.reddit.com", p.Hostname)
	assert.Equal(t, 1, galleries.calls)
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Download(_ context.Context, url, dir string) (extractor.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return extractor.Entry{"filepath": filepath.Join(dir, filepath.Base(url)+".mkv"), "title": "T"}, nil
}

func TestDownloader(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		err     error
		check   func(t *testing.T, st *store.Store, stats DownloadStats)
		wantErr error
	}{
		{"ok", nil, func(t *testing.T, st *store.Store, stats DownloadStats) {
			assert.Equal(t, 1, stats.Downloaded)
			_, err := st.MediaByPath(ctx, "/dl/v1.mkv")
			assert.NoError(t, err)
		}, nil},
		{"recoverable", &extractor.Error{Class: extractor.Recoverable, Stderr: "timed out"}, func(t *testing.T, st *store.Store, stats DownloadStats) {
			row, err := st.MediaByPath(ctx, "https://example.com/v1")
			require.NoError(t, err)
			assert.Contains(t, row.String("error"), "timed out")
			assert.Zero(t, row.Int64("time_deleted"))
		}, nil},
		{"unrecoverable", &extractor.Error{Class: extractor.Unrecoverable, Stderr: "Video unavailable"}, func(t *testing.T, st *store.Store, stats DownloadStats) {
			assert.Equal(t, 1, stats.Deleted)
			row, err := st.MediaByPath(ctx, "https://example.com/v1")
			require.NoError(t, err)
			assert.Positive(t, row.Int64("time_deleted"))
		}, nil},
		{"prefix", &extractor.Error{Class: extractor.Prefix}, nil, util.ErrAbortRun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openStore(t)
			in := New(&Config{Store: st, Now: fixedNow})
			_, err := in.Add(ctx, map[string]any{"url": "https://example.com/v1"}, Options{})
			require.NoError(t, err)
			row, err := st.MediaByPath(ctx, "https://example.com/v1")
			require.NoError(t, err)

			d := NewDownloader(st, in, fakeFetcher{err: tt.err}, "/dl", nil)
			stats, err := d.Download(ctx, []store.Row{row})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, st, stats)
		})
	}
}

type fakeProber struct {
	unplayable string
}

func (f fakeProber) Probe(_ context.Context, path string) (*extractor.ProbeInfo, error) {
	if filepath.Base(path) == f.unplayable {
		return nil, fmt.Errorf("probe %s: %w", path, util.ErrUnplayable)
	}
	return extractor.ParseProbe([]byte(`{"streams": [{"codec_type": "video", "width": 640, "height": 480}], "format": {"duration": "12.5"}}`))
}

type recordingTrasher struct{ paths []string }

func (r *recordingTrasher) Trash(_ context.Context, path string) error {
	r.paths = append(r.paths, path)
	return os.Remove(path)
}

func TestScanner(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	root := t.TempDir()
	for name, data := range map[string]string{
		"show/ep01.mkv":     "video one",
		"show/ep02.mkv":     "video two!",
		"broken.mkv":        "junk",
		"notes.xyz":         "not media",
		".cache/thumb.webm": "hidden",
	} {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}

	trash := &recordingTrasher{}
	s := NewScanner(&ScanConfig{Store: st, Prober: fakeProber{unplayable: "broken.mkv"}, Trash: trash, DeleteUnplayable: true, Workers: 2})

	res, err := s.Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Unplayable)
	assert.Equal(t, []string{filepath.Join(root, "broken.mkv")}, trash.paths)

	row, err := st.MediaByPath(ctx, filepath.Join(root, "show/ep02.mkv"))
	require.NoError(t, err)
	assert.Equal(t, LocalExtractorKey, row.String("extractor_key"))
	assert.Equal(t, "video", row.String("type"))
	assert.Equal(t, int64(10), row.Int64("size"))
	assert.Equal(t, int64(12), row.Int64("duration"))
	assert.Equal(t, int64(640), row.Int64("width"))
	assert.Positive(t, row.Int64("time_downloaded"))

	res, err = s.Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 2, res.Skipped)
}
