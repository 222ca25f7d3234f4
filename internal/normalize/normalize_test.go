package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/franz/media-librarian/internal/util"
)

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		frequency string
		expected  string
	}{
		{"subreddit weekly", "https://www.reddit.com/r/cats/", "weekly", "https://old.reddit.com/r/cats/top/?sort=top&t=week"},
		{"subreddit post quarterly", "https://reddit.com/r/cats/comments/abc/title", "quarterly", "https://old.reddit.com/r/cats/top/?sort=top&t=year"},
		{"default bucket", "https://old.reddit.com/r/cats/new", "", "https://old.reddit.com/r/cats/top/?sort=top&t=month"},
		{"mobile host", "https://m.youtube.com/watch?v=abc", "daily", "https://www.youtube.com/watch?v=abc"},
		{"mobile reddit", "https://m.reddit.com/r/dogs", "yearly", "https://old.reddit.com/r/dogs/top/?sort=top&t=year"},
		{"untouched", "https://youtu.be/abc", "monthly", "https://youtu.be/abc"},
		{"local path", "/home/me/video.mkv", "monthly", "/home/me/video.mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeURL(tt.input, tt.frequency)
			if err != nil {
				t.Fatalf("SanitizeURL(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("SanitizeURL(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
			again, _ := SanitizeURL(got, tt.frequency)
			if again != got {
				t.Errorf("SanitizeURL not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeURLUnknownFrequency(t *testing.T) {
	_, err := SanitizeURL("https://reddit.com/r/cats", "hourly")
	if !errors.Is(err, util.ErrBadPredicate) {
		t.Errorf("expected ErrBadPredicate, got %v", err)
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapse whitespace", "/music/My   Song.mp3", "/music/My Song.mp3"},
		{"control chars", "/music/a\x07b\tc.mp3", "/music/abc.mp3"},
		{"punctuation runs", "/v/a___b...c.mkv", "/v/a_b.c.mkv"},
		{"empty components", "/v//x.mkv", "/v/x.mkv"},
		{"invalid utf8", "/v/a\xffb.mkv", "/v/a�b.mkv"},
		{"windows drive", `C:\Users\me\My  File.txt`, `C:\Users\me\My File.txt`},
		{"root", "/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanPath(tt.input, 0)
			if got != tt.expected {
				t.Errorf("CleanPath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanPathTruncatesMiddle(t *testing.T) {
	name := strings.Repeat("a", 150) + strings.Repeat("é", 100) + ".flac"
	got := CleanPath("/m/"+name, 64)
	base := got[len("/m/"):]

	if !strings.HasSuffix(base, ".flac") {
		t.Errorf("extension lost: %q", base)
	}
	if !strings.Contains(base, "…") {
		t.Errorf("missing truncation marker: %q", base)
	}
	if len(base) > 64 {
		t.Errorf("component is %d bytes, want <= 64", len(base))
	}
	if !strings.HasPrefix(base, "aaa") || !strings.Contains(base, "éé") {
		t.Errorf("expected head and tail to survive: %q", base)
	}
}

func TestCleanPathIdempotent(t *testing.T) {
	inputs := []string{
		"/music/My   Song.mp3",
		"/v/a___b...c.mkv",
		"/m/" + strings.Repeat("word ", 80) + ".opus",
		"/m/" + strings.Repeat("日本", 90) + "_end.mkv",
		`D:\x\\y  z\file...name.txt`,
		"relative//path\x01/file",
	}
	for _, in := range inputs {
		once := CleanPath(in, 100)
		twice := CleanPath(once, 100)
		if once != twice {
			t.Errorf("CleanPath not idempotent for %q:\n once=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestPathToSentence(t *testing.T) {
	got := PathToSentence("/tv/Show_Name/[S01] ep-02.mkv")
	if got != "tv Show Name S01 ep 02 mkv" {
		t.Errorf("PathToSentence = %q", got)
	}
}

func TestExtractWords(t *testing.T) {
	got := ExtractWords("The Cat and the 2 Dogs of Paris, 1999 edition x")
	want := []string{"cat", "dogs", "paris", "edition"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExtractWords = %v, expected %v", got, want)
	}
}

func TestLongestWords(t *testing.T) {
	got := LongestWords("cat caterpillar dog cat elephant", 2)
	if strings.Join(got, ",") != "caterpillar,elephant" {
		t.Errorf("LongestWords = %v", got)
	}
}

func TestLastChars(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/a/ep02.mkv", "mkv"},
		{"/a/ep02.", "."},
		{"/a/ep02", "ep02"},
		{"/a/Show x12", "x12"},
		{"/a/EP03", "EP03"},
		{"/a/deep1", "deep1"},
		{"/a/box12", "box12"},
		{"/a/inbox x2", "x2"},
		{"/a/", "/"},
		{"word", "word"},
	}
	for _, tt := range tests {
		if got := LastChars(tt.input); got != tt.expected {
			t.Errorf("LastChars(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestLastCharsErosionTerminates(t *testing.T) {
	seed := "/tv/Some Show/Season 1/Some.Show.S01E02.1080p.mkv"
	candidate := seed
	steps := 0
	for candidate != "" {
		strip := LastChars(candidate)
		if strip == "" {
			t.Fatalf("no progress at %q", candidate)
		}
		candidate = candidate[:len(candidate)-len(strip)]
		steps++
		if steps > len(seed) {
			t.Fatal("erosion did not terminate")
		}
	}
}

func TestCommonPrefix(t *testing.T) {
	if got := CommonPrefix([]string{"/a/ep01.mkv", "/a/ep02.mkv", "/a/ep03.mkv"}); got != "/a/ep0" {
		t.Errorf("CommonPrefix = %q", got)
	}
	if got := CommonPrefix([]string{"/x/é1", "/x/é2"}); got != "/x/é" {
		t.Errorf("CommonPrefix unicode = %q", got)
	}
	if got := CommonPrefix(nil); got != "" {
		t.Errorf("CommonPrefix(nil) = %q", got)
	}
}
