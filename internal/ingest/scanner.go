package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// LocalExtractorKey marks rows found on disk
const LocalExtractorKey = "Local"

// Extensions by media type; the type is stored on the row
var (
	VideoExtensions = []string{".mkv", ".mp4", ".webm", ".avi", ".mov", ".m4v", ".wmv", ".flv", ".mpg", ".mpeg", ".ts", ".3gp", ".ogv"}
	AudioExtensions = []string{".mp3", ".flac", ".m4a", ".aac", ".ogg", ".opus", ".wav", ".aiff", ".aif", ".wma", ".ape", ".wv", ".mpc", ".m4b"}
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".heic", ".bmp"}
	TextExtensions  = []string{".epub", ".pdf", ".mobi", ".azw3", ".cbz", ".cbr", ".txt", ".html"}
)

// Prober inspects a local media file; extractor.FFprobe satisfies it
type Prober interface {
	Probe(ctx context.Context, path string) (*extractor.ProbeInfo, error)
}

// Trasher removes a file; fileops.Ops satisfies it
type Trasher interface {
	Trash(ctx context.Context, path string) error
}

// Scanner discovers media files in directory trees
type Scanner struct {
	store            *store.Store
	ingester         *Ingester
	prober           Prober
	trash            Trasher
	types            map[string]string
	workers          int
	deleteUnplayable bool
	force            bool
	logger           *report.EventLogger
}

// ScanConfig holds scanner configuration
type ScanConfig struct {
	Store            *store.Store
	Ingester         *Ingester
	Prober           Prober // nil skips probing
	Trash            Trasher
	AdditionalExts   []string // catalogued with type "other"
	Workers          int
	DeleteUnplayable bool
	Force            bool // re-probe files that are already catalogued
	Logger           *report.EventLogger
}

// NewScanner creates a Scanner
func NewScanner(cfg *ScanConfig) *Scanner {
	types := make(map[string]string)
	for typ, exts := range map[string][]string{
		"video": VideoExtensions,
		"audio": AudioExtensions,
		"image": ImageExtensions,
		"text":  TextExtensions,
	} {
		for _, ext := range exts {
			types[ext] = typ
		}
	}
	for _, ext := range cfg.AdditionalExts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := types[ext]; !ok {
			types[ext] = "other"
		}
	}

	s := &Scanner{
		store:            cfg.Store,
		ingester:         cfg.Ingester,
		prober:           cfg.Prober,
		trash:            cfg.Trash,
		types:            types,
		workers:          cfg.Workers,
		deleteUnplayable: cfg.DeleteUnplayable,
		force:            cfg.Force,
		logger:           cfg.Logger,
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	if s.ingester == nil {
		s.ingester = New(&Config{Store: cfg.Store, Logger: cfg.Logger})
	}
	return s
}

// ScanResult represents a scan result
type ScanResult struct {
	Found      int
	Added      int
	Skipped    int
	Unplayable int
	Errors     []error
}

type probed struct {
	path  string
	entry map[string]any
	err   error
}

// Scan walks roots and ingests every media file not yet catalogued
func (s *Scanner) Scan(ctx context.Context, roots ...string) (*ScanResult, error) {
	result := &ScanResult{}
	var found atomic.Int64

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make(chan probed, 100)
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for res := range results {
			s.collect(ctx, res, result)
			if bar != nil {
				bar.Add(1)
			}
		}
	}()

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.workers)
	var walkErr error
	for _, root := range roots {
		root, err := filepath.Abs(root)
		if err != nil {
			walkErr = err
			break
		}
		walkErr = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				util.WarnLog("Error accessing path %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.IsMedia(path) {
				return nil
			}
			found.Add(1)
			if !s.force {
				known, err := s.store.KnownPaths(ctx, []string{path})
				if err != nil {
					return err
				}
				if known[path] {
					results <- probed{path: path}
					return nil
				}
			}
			p.Go(func(ctx context.Context) error {
				entry, err := s.Entry(ctx, path)
				results <- probed{path: path, entry: entry, err: err}
				return nil
			})
			return nil
		})
		if walkErr != nil {
			break
		}
	}
	p.Wait()
	close(results)
	writer.Wait()

	if bar != nil {
		bar.Finish()
	}
	result.Found = int(found.Load())
	util.SuccessLog("Scan complete: %d found, %d added, %d skipped, %d unplayable",
		result.Found, result.Added, result.Skipped, result.Unplayable)

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}
	return result, ctx.Err()
}

// collect runs on the single writer goroutine
func (s *Scanner) collect(ctx context.Context, res probed, result *ScanResult) {
	switch {
	case res.entry == nil && res.err == nil:
		result.Skipped++
	case errors.Is(res.err, util.ErrUnplayable):
		result.Unplayable++
		s.unplayable(ctx, res.path, res.err)
	case res.err != nil:
		result.Errors = append(result.Errors, res.err)
		util.ErrorLog("Failed to probe %s: %v", res.path, res.err)
	default:
		if _, err := s.ingester.Add(ctx, res.entry, Options{ExtractorKey: LocalExtractorKey, Source: "fs"}); err != nil {
			result.Errors = append(result.Errors, err)
			return
		}
		result.Added++
	}
}

func (s *Scanner) unplayable(ctx context.Context, path string, cause error) {
	if !s.deleteUnplayable || s.trash == nil {
		util.WarnLog("Unplayable: %s: %v", path, cause)
		return
	}
	if err := s.trash.Trash(ctx, path); err != nil {
		util.ErrorLog("Failed to trash unplayable %s: %v", path, err)
		return
	}
	s.store.MarkDeleted(ctx, time.Now(), path)
	s.logger.LogPostAction(path, "", "delete", "unplayable", nil)
	util.InfoLog("Deleted unplayable: %s", path)
}

// IsMedia reports whether path has a catalogued extension
func (s *Scanner) IsMedia(path string) bool {
	_, ok := s.types[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Entry builds the ingest entry of one local file
func (s *Scanner) Entry(ctx context.Context, path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mtime := info.ModTime().Unix()
	typ := s.types[strings.ToLower(filepath.Ext(path))]
	entry := map[string]any{
		"path":            path,
		"size":            info.Size(),
		"type":            typ,
		"time_modified":   mtime,
		"time_downloaded": mtime,
	}

	if s.prober != nil && (typ == "video" || typ == "audio") {
		probe, err := s.prober.Probe(ctx, path)
		if err != nil {
			return nil, err
		}
		for k, v := range probe.Entry() {
			if k == "size" {
				continue
			}
			entry[k] = v
		}
	}

	if typ == "audio" {
		if f, err := os.Open(path); err == nil {
			tags, terr := extractor.ReadTags(f)
			f.Close()
			if terr == nil {
				for k, v := range tags {
					entry[k] = v
				}
			} else {
				util.DebugLog("No tags in %s: %v", path, terr)
			}
		}
	}
	return entry, nil
}

// IngestFile probes and ingests one file, e.g. from the watcher
func (s *Scanner) IngestFile(ctx context.Context, path string) error {
	entry, err := s.Entry(ctx, path)
	if err != nil {
		if errors.Is(err, util.ErrUnplayable) {
			s.unplayable(ctx, path, err)
		}
		return err
	}
	_, err = s.ingester.Add(ctx, entry, Options{ExtractorKey: LocalExtractorKey, Source: "watch"})
	return err
}
