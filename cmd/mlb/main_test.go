package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/ingest"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

func TestExitCode(t *testing.T) {
	live := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{"success", live, nil, exitOK},
		{"plain failure", live, errors.New("boom"), exitFailure},
		{"no media", live, fmt.Errorf("search: %w", util.ErrNoMedia), exitUsage},
		{"bad predicate", live, fmt.Errorf("size: %w", util.ErrBadPredicate), exitUsage},
		{"usage", live, usageError{errors.New("accepts 1 arg")}, exitUsage},
		{"deadline", live, fmt.Errorf("ffprobe: %w", context.DeadlineExceeded), exitTimeout},
		{"canceled error", live, context.Canceled, exitInterrupt},
		{"canceled context", canceled, errors.New("signal: killed"), exitInterrupt},
		{"broken pipe", live, fmt.Errorf("write: %w", syscall.EPIPE), exitPipe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.ctx, tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUsageArgs(t *testing.T) {
	check := usageArgs(func(_ *cobra.Command, a []string) error {
		if len(a) == 0 {
			return errors.New("need a database")
		}
		return nil
	})
	if err := check(nil, []string{"db"}); err != nil {
		t.Errorf("valid args returned %v", err)
	}
	err := check(nil, nil)
	if !errors.As(err, new(usageError)) {
		t.Errorf("expected usageError, got %T", err)
	}
}

func TestRunMissingDatabaseIsUsage(t *testing.T) {
	if code := run([]string{"search"}); code != exitUsage {
		t.Errorf("run(search) = %d, want %d", code, exitUsage)
	}
}

func TestRunSearchPrintsPaths(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	alpha := filepath.Join(dir, "alpha.mkv")
	beta := filepath.Join(dir, "beta.mkv")
	for _, p := range []string{alpha, beta} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", p, err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	for _, r := range []store.Row{
		{"path": alpha, "title": "alpha", "size": int64(100), "duration": int64(60)},
		{"path": beta, "title": "beta", "size": int64(200), "duration": int64(120)},
	} {
		if _, err := db.UpsertMedia(ctx, r); err != nil {
			t.Fatalf("UpsertMedia failed: %v", err)
		}
	}
	db.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	code := run([]string{"search", dbPath, "--print=f", "--where", "size > 150"})
	if code != exitOK {
		t.Fatalf("run returned %d", code)
	}
	got := strings.TrimSpace(out.String())
	if got != beta {
		t.Errorf("output = %q, want %s", got, beta)
	}
}

func TestRunWatchPrintsOnlineMatch(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	in := ingest.New(&ingest.Config{Store: db})
	for _, entry := range []map[string]any{
		{"webpage_url": "https://youtu.be/abc", "title": "Cat Video", "duration": 42},
		{"webpage_url": "https://youtu.be/xyz", "title": "Dog Video", "duration": 42},
	} {
		if _, err := in.Add(ctx, entry, ingest.Options{}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	db.Close()

	tests := []struct {
		name string
		args []string
	}{
		{"fts", []string{"--fts"}},
		{"no-fts", []string{"--no-fts"}},
		{"last switch wins", []string{"--no-fts", "--fts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			defer rootCmd.SetOut(nil)

			args := append([]string{"watch", dbPath, "--include", "cat"}, tt.args...)
			code := run(append(args, "-pf"))
			if code != exitOK {
				t.Fatalf("run returned %d", code)
			}
			if got := strings.TrimSpace(out.String()); got != "https://youtu.be/abc" {
				t.Errorf("output = %q, want https://youtu.be/abc", got)
			}
		})
	}
}

func TestSwitchFlagLastWins(t *testing.T) {
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	f := addQueryFlags(cmd)

	tests := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"--no-fts"}, true},
		{[]string{"--fts"}, false},
		{[]string{"--fts", "--no-fts"}, true},
		{[]string{"--no-fts", "--fts"}, false},
		{[]string{"--fts=false"}, true},
	}
	for _, tt := range tests {
		f.noFTS = false
		if err := cmd.ParseFlags(tt.args); err != nil {
			t.Fatalf("ParseFlags(%v): %v", tt.args, err)
		}
		if f.noFTS != tt.want {
			t.Errorf("ParseFlags(%v): noFTS = %v, want %v", tt.args, f.noFTS, tt.want)
		}
	}
}

func TestRunDedupeFS(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")

	same := bytes.Repeat([]byte("a"), 1<<20)
	other := bytes.Repeat([]byte("b"), 1<<20)
	files := map[string][]byte{
		filepath.Join(dir, "a.mkv"): same,
		filepath.Join(dir, "b.mkv"): same,
		filepath.Join(dir, "c.mkv"): other,
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	for p, data := range files {
		if err := os.WriteFile(p, data, 0644); err != nil {
			t.Fatalf("failed to create %s: %v", p, err)
		}
		if _, err := db.UpsertMedia(ctx, store.Row{"path": p, "size": int64(len(data))}); err != nil {
			t.Fatalf("UpsertMedia failed: %v", err)
		}
	}
	db.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	if code := run([]string{"dedupe-media", dbPath, "--fs"}); code != exitOK {
		t.Fatalf("run returned %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q, want a header and one duplicate", out.String())
	}
	fields := strings.Fields(lines[1])
	if fields[0] != filepath.Join(dir, "b.mkv") || fields[1] != filepath.Join(dir, "a.mkv") {
		t.Errorf("duplicate row = %q, want b.mkv kept over a.mkv", lines[1])
	}
	if _, err := os.Stat(filepath.Join(dir, "a.mkv")); err != nil {
		t.Errorf("a.mkv removed without --apply: %v", err)
	}
}

func TestDedupeProfileSwitchesAreExclusive(t *testing.T) {
	cmd := newDedupeCmd()
	cmd.SetArgs([]string{"catalog.db", "--fs", "--title"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "none of the others") {
		t.Errorf("Execute() = %v, want a mutually exclusive flags error", err)
	}
}
