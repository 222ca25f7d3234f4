package fileops

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/media-librarian/internal/util"
)

func noTrashCommands(string) (string, error) {
	return "", errors.New("not found")
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTrashFallsBackToUnlink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mkv")
	writeFile(t, path, []byte("data"))

	ops := New(nil)
	ops.lookPath = noTrashCommands
	if err := ops.Trash(context.Background(), path); err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be gone, stat err = %v", path, err)
	}

	// a second call on a missing file is fine
	if err := ops.Trash(context.Background(), path); err != nil {
		t.Errorf("Trash of missing file failed: %v", err)
	}
}

func TestTrashUsesConfiguredCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mkv")
	writeFile(t, path, []byte("data"))

	ops := New(&Config{TrashCmd: "rm -f"})
	ops.lookPath = noTrashCommands
	if err := ops.Trash(context.Background(), path); err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected configured command to remove %s", path)
	}
}

func TestMoveInto(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "show.mkv")
	writeFile(t, src, []byte("payload"))

	ops := New(nil)
	dest, err := ops.MoveInto(context.Background(), src, filepath.Join(dir, "keep"))
	if err != nil {
		t.Fatalf("MoveInto failed: %v", err)
	}
	if dest != filepath.Join(dir, "keep", "show.mkv") {
		t.Errorf("dest = %s", dest)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "payload" {
		t.Errorf("moved content = %q, %v", got, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still exists")
	}
}

func TestMoveRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mkv")
	dest := filepath.Join(dir, "keep", "a.mkv")
	writeFile(t, src, []byte("new"))
	writeFile(t, dest, []byte("old"))

	err := New(nil).Move(context.Background(), src, dest)
	if !errors.Is(err, util.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "old" {
		t.Errorf("destination was overwritten")
	}
}

func TestCopyFileKeepsContentAndMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	data := bytes.Repeat([]byte("0123456789"), 50_000)
	writeFile(t, src, data)
	mtime := time.Unix(1_600_000_000, 0)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "b.bin")
	ops := New(&Config{BufferSize: 4096})
	if err := ops.copyFile(context.Background(), src, dest); err != nil {
		t.Fatalf("copyFile failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("copy mismatch: %d bytes, %v", len(got), err)
	}
	info, _ := os.Stat(dest)
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf(".part file left behind")
	}
}

func TestCopyWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var dst bytes.Buffer
	_, err := copyWithContext(ctx, &dst, bytes.NewReader([]byte("abc")), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
