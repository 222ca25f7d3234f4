package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/media-librarian/internal/util"
)

// DefaultSettle is how long a file must stay unchanged before it is ingested
const DefaultSettle = 2 * time.Second

// Watch ingests media created under roots until ctx is cancelled. Removed
// files are soft-deleted.
func (s *Scanner) Watch(ctx context.Context, settle time.Duration, roots ...string) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	for i, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			roots[i] = abs
		}
		if err := addTree(watcher, roots[i]); err != nil {
			return err
		}
	}
	util.InfoLog("Watching %s", strings.Join(roots, ", "))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if event.Has(fsnotify.Create) {
						if err := addTree(watcher, event.Name); err != nil {
							util.WarnLog("Cannot watch %s: %v", event.Name, err)
						}
					}
					continue
				}
				if s.IsMedia(event.Name) {
					pending[event.Name] = time.Now()
				}
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				delete(pending, event.Name)
				if s.IsMedia(event.Name) {
					if n, err := s.store.MarkDeleted(ctx, time.Now(), event.Name); err == nil && n > 0 {
						util.InfoLog("Gone: %s", event.Name)
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				if err := s.IngestFile(ctx, path); err != nil {
					util.WarnLog("Failed to ingest %s: %v", path, err)
					continue
				}
				util.SuccessLog("Added %s", path)
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
