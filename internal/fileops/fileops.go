// Package fileops performs the filesystem side effects of post-actions and
// dedupe: trashing and moving media files.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/franz/media-librarian/internal/util"
)

// DefaultTrashCommands are tried in order when no command is configured
var DefaultTrashCommands = []string{"trash-put", "trash"}

// Ops trashes and moves files
type Ops struct {
	trashCmd    []string
	retryConfig *util.RetryConfig
	bufferSize  int

	lookPath func(string) (string, error)
}

// Config holds fileops configuration
type Config struct {
	TrashCmd    string // e.g. "gio trash"; empty tries DefaultTrashCommands then unlink
	RetryConfig *util.RetryConfig
	BufferSize  int
}

// New creates a new Ops
func New(cfg *Config) *Ops {
	if cfg == nil {
		cfg = &Config{}
	}
	o := &Ops{
		trashCmd:    strings.Fields(cfg.TrashCmd),
		retryConfig: cfg.RetryConfig,
		bufferSize:  cfg.BufferSize,
		lookPath:    exec.LookPath,
	}
	if o.retryConfig == nil {
		o.retryConfig = util.DefaultRetryConfig()
	}
	if o.bufferSize <= 0 {
		o.bufferSize = 128 * 1024
	}
	return o
}

// Trash sends path to the desktop trash, or unlinks it when no trash
// command is available. A missing file is not an error.
func (o *Ops) Trash(ctx context.Context, path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		util.DebugLog("Already gone: %s", path)
		return nil
	}

	argv := o.trashCmd
	if len(argv) == 0 {
		for _, name := range DefaultTrashCommands {
			if bin, err := o.lookPath(name); err == nil {
				argv = []string{bin}
				break
			}
		}
	}

	if len(argv) > 0 {
		cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			util.DebugLog("Trashed: %s", path)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		util.WarnLog("%s failed for %s: %v %s", argv[0], path, err, strings.TrimSpace(string(out)))
	}

	if err := util.RetryableRemove(ctx, path, o.retryConfig); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	util.DebugLog("Deleted: %s", path)
	return nil
}

// MoveInto moves src into dir keeping its base name and returns the new
// path. It refuses to overwrite with util.ErrConflict.
func (o *Ops) MoveInto(ctx context.Context, src, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(src))
	if err := o.Move(ctx, src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Move renames src to dest, copying across filesystems
func (o *Ops) Move(ctx context.Context, src, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("%s: %w", dest, util.ErrConflict)
	}
	if err := util.RetryableMkdirAll(ctx, filepath.Dir(dest), 0o755, o.retryConfig); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	same, err := util.IsSameFilesystem(src, dest)
	if err == nil && same {
		err = util.RetryableRename(ctx, src, dest, o.retryConfig)
		if err == nil {
			util.DebugLog("Moved: %s -> %s", src, dest)
			return nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("failed to rename %s: %w", src, err)
		}
	}

	if err := o.copyFile(ctx, src, dest); err != nil {
		return err
	}
	if err := util.RetryableRemove(ctx, src, o.retryConfig); err != nil {
		util.WarnLog("Failed to delete source file %s: %v", src, err)
	}
	util.DebugLog("Moved across filesystems: %s -> %s", src, dest)
	return nil
}

// copyFile writes dest via a .part file so readers never see a partial copy
func (o *Ops) copyFile(ctx context.Context, src, dest string) error {
	in, err := util.RetryableOpen(ctx, src, o.retryConfig)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tempPath := dest + ".part"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = copyWithContext(ctx, out, in, o.bufferSize)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to copy: %w", err)
	}

	if err := util.RetryableRename(ctx, tempPath, dest, o.retryConfig); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	os.Chtimes(dest, info.ModTime(), info.ModTime())
	return nil
}

// copyWithContext copies from src to dst, checking for cancellation per buffer
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			return written, nil
		}
	}
}
