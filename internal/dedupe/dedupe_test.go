package dedupe

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
)

type memTrasher struct {
	fs      afero.Fs
	trashed []string
}

func (m *memTrasher) Trash(_ context.Context, path string) error {
	m.trashed = append(m.trashed, path)
	return m.fs.Remove(path)
}

func newTestDeduper(t *testing.T, fs afero.Fs) (*Deduper, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(&Config{Store: st, Fs: fs, Workers: 2}), st
}

func addFile(t *testing.T, fs afero.Fs, st *store.Store, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
	_, err := st.UpsertMedia(context.Background(), store.Row{"path": path, "size": int64(len(data))})
	require.NoError(t, err)
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, int64(256<<10), ChunkSize(1<<20))
	assert.Equal(t, int64(256<<10), ChunkSize(25<<20))
	assert.Equal(t, int64(10<<20), ChunkSize(60_000_000_000))
	mid := ChunkSize(25_000_000_000)
	assert.Greater(t, mid, int64(256<<10))
	assert.Less(t, mid, int64(10<<20))
}

func TestSegments(t *testing.T) {
	offsets, whole := Segments(700<<10, 256<<10, DefaultGap)
	assert.True(t, whole)
	assert.Equal(t, []int64{0}, offsets)

	offsets, whole = Segments(1<<20, 256<<10, DefaultGap)
	assert.False(t, whole)
	assert.Equal(t, []int64{0, 366802, 786432}, offsets)
}

func TestSampleHashFalsePositiveIsEliminated(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, st := newTestDeduper(t, fs)
	ctx := context.Background()

	a := bytes.Repeat([]byte{7}, 10<<20)
	b := append([]byte(nil), a...)
	b[512<<10] = 8
	addFile(t, fs, st, "/lib/a.bin", a)
	addFile(t, fs, st, "/lib/b.bin", b)

	ha, err := SampleHash(ctx, fs, "/lib/a.bin", DefaultGap)
	require.NoError(t, err)
	hb, err := SampleHash(ctx, fs, "/lib/b.bin", DefaultGap)
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "the differing byte falls in a gap")

	fa, err := FullHash(ctx, fs, "/lib/a.bin")
	require.NoError(t, err)
	fb, err := FullHash(ctx, fs, "/lib/b.bin")
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	dups, err := d.FindFS(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, dups)

	row, err := st.MediaByPath(ctx, "/lib/a.bin")
	require.NoError(t, err)
	assert.Equal(t, ha, row.String("hash"), "sample hash is cached")
}

func TestFindFSAndApply(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, st := newTestDeduper(t, fs)
	ctx := context.Background()

	same := bytes.Repeat([]byte("abcdefgh"), (1<<20)/8)
	other := append([]byte(nil), same...)
	other[0] = 'z'
	addFile(t, fs, st, "/lib/a.bin", same)
	addFile(t, fs, st, "/lib/b.bin", same)
	addFile(t, fs, st, "/lib/c.bin", other)
	addFile(t, fs, st, "/lib/d.bin", []byte("lonely"))

	dups, err := d.FindFS(ctx, nil)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, Duplicate{KeepPath: "/lib/b.bin", DuplicatePath: "/lib/a.bin", DuplicateSize: 1 << 20, Method: MethodFullHash}, dups[0])

	trash := &memTrasher{fs: fs}
	n, err := d.Apply(ctx, dups, trash)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"/lib/a.bin"}, trash.trashed)

	row, err := st.MediaByPath(ctx, "/lib/a.bin")
	require.NoError(t, err)
	assert.Positive(t, row.Int64("time_deleted"))

	// the retired copy is no longer a candidate
	dups, err = d.FindFS(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestApplySoftDeletesURLs(t *testing.T) {
	d, st := newTestDeduper(t, afero.NewMemMapFs())
	ctx := context.Background()
	_, err := st.UpsertMedia(ctx, store.Row{"path": "https://example.com/v"})
	require.NoError(t, err)

	trash := &memTrasher{}
	n, err := d.Apply(ctx, []Duplicate{{KeepPath: "/m/v.mkv", DuplicatePath: "https://example.com/v"}}, trash)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, trash.trashed)
}

func TestFindMeta(t *testing.T) {
	d, st := newTestDeduper(t, afero.NewMemMapFs())
	ctx := context.Background()
	for _, r := range []store.Row{
		{"path": "/m/song.mp3", "title": "Song", "artist": "A", "album": "X", "duration": int64(200), "audio_count": int64(1)},
		{"path": "/m/dir/song.mp3", "title": "Song", "artist": "A", "album": "X", "duration": int64(203), "audio_count": int64(1)},
		{"path": "/m/song (live).mp3", "title": "Song", "artist": "A", "album": "X", "duration": int64(260)},
		{"path": "/m/other.mp3", "title": "Other", "artist": "A", "album": "X", "duration": int64(200)},
	} {
		_, err := st.UpsertMedia(ctx, r)
		require.NoError(t, err)
	}

	dups, err := d.FindMeta(ctx, ProfileAudio, nil)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, "/m/dir/song.mp3", dups[0].KeepPath)
	assert.Equal(t, "/m/song.mp3", dups[0].DuplicatePath)

	dups, err = d.FindMeta(ctx, ProfileDuration, nil)
	require.NoError(t, err)
	assert.Len(t, dups, 2)

	_, err = ParseProfile("vibes")
	assert.Error(t, err)
}

func TestUserSortDecidesKeeper(t *testing.T) {
	d, st := newTestDeduper(t, afero.NewMemMapFs())
	ctx := context.Background()
	for _, r := range []store.Row{
		{"path": "/m/dir/song.mp3", "title": "Song", "size": int64(100)},
		{"path": "/m/song.mp3", "title": "Song", "size": int64(200)},
	} {
		_, err := st.UpsertMedia(ctx, r)
		require.NoError(t, err)
	}
	cat, err := query.LoadCatalog(ctx, st, "media")
	require.NoError(t, err)

	keeper := func(sort ...string) string {
		t.Helper()
		scope, err := query.Build(query.Spec{Action: query.ActionDedupe, Limit: "all", Sort: sort}, cat)
		require.NoError(t, err)
		dups, err := d.FindMeta(ctx, ProfileTitle, scope)
		require.NoError(t, err)
		require.Len(t, dups, 1)
		return dups[0].KeepPath
	}

	assert.Equal(t, "/m/dir/song.mp3", keeper())
	assert.Equal(t, "/m/song.mp3", keeper("size desc"))
	assert.Equal(t, "/m/dir/song.mp3", keeper("size"))
}

func TestBetter(t *testing.T) {
	tests := []struct {
		name string
		a, b store.Row
	}{
		{"streams", store.Row{"path": "/z", "video_count": int64(1)}, store.Row{"path": "/a"}},
		{"user sort", store.Row{"path": "/z", userRankColumn: int64(1)}, store.Row{"path": "/a/b/c", "uploader": "u", userRankColumn: int64(2)}},
		{"uploader", store.Row{"path": "/z", "uploader": "u"}, store.Row{"path": "/a"}},
		{"deeper", store.Row{"path": "/a/b/c"}, store.Row{"path": "/abcd"}},
		{"fewer dots", store.Row{"path": "/a/bc"}, store.Row{"path": "/a/b.c"}},
		{"shorter", store.Row{"path": "/a/b"}, store.Row{"path": "/a/bc"}},
		{"larger", store.Row{"path": "/a/b", "size": int64(2)}, store.Row{"path": "/a/c", "size": int64(1)}},
		{"newer", store.Row{"path": "/a/b", "time_modified": int64(2)}, store.Row{"path": "/a/c", "time_modified": int64(1)}},
		{"path desc", store.Row{"path": "/a/c"}, store.Row{"path": "/a/b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Better(tt.a, tt.b))
			assert.False(t, Better(tt.b, tt.a))
		})
	}
}

func TestSimilarityGate(t *testing.T) {
	d := &Deduper{minSimilarity: 0.8, similarityOn: SimilarityBasename}
	dups := []Duplicate{
		{KeepPath: "/a/holiday video.mkv", DuplicatePath: "/b/holiday video (1).mkv"},
		{KeepPath: "/a/holiday video.mkv", DuplicatePath: "/b/xyz.mkv"},
	}
	kept := d.gate(dups)
	require.Len(t, kept, 1)
	assert.Equal(t, "/b/holiday video (1).mkv", kept[0].DuplicatePath)
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 1e-9)
}
