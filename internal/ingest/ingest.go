package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Ingester upserts consolidated entries into the catalog
type Ingester struct {
	store  *store.Store
	logger *report.EventLogger
	now    func() time.Time
}

// Config holds ingester configuration
type Config struct {
	Store  *store.Store
	Logger *report.EventLogger
	Now    func() time.Time
}

// New creates a new Ingester
func New(cfg *Config) *Ingester {
	in := &Ingester{store: cfg.Store, logger: cfg.Logger, now: cfg.Now}
	if in.now == nil {
		in.now = time.Now
	}
	return in
}

// Options describe where an entry came from
type Options struct {
	PlaylistID   int64
	ExtractorKey string // used when the entry names none
	Downloaded   bool   // the entry describes a finished download
	Source       string // for the event log
}

// Add consolidates and upserts one entry and returns the media id.
// A store.SchemaConflictError means the row was skipped.
func (in *Ingester) Add(ctx context.Context, entry map[string]any, opts Options) (int64, error) {
	row := Consolidate(entry)
	path := row.String("path")
	if path == "" {
		return 0, fmt.Errorf("entry without path or url: %w", util.ErrInvalidConfig)
	}

	if opts.PlaylistID > 0 {
		row["playlist_id"] = opts.PlaylistID
	}
	if row.String("extractor_key") == "" && opts.ExtractorKey != "" {
		row["extractor_key"] = opts.ExtractorKey
	}
	now := in.now().Unix()
	if opts.Downloaded {
		row["time_downloaded"] = now
	}
	if _, err := in.store.MediaID(ctx, path); errors.Is(err, util.ErrNotFound) {
		row["time_created"] = now
	}
	if _, ok := row["time_modified"]; !ok {
		row["time_modified"] = now
	}

	id, err := in.store.UpsertMedia(ctx, in.store.Coerce(ctx, "media", row))
	if err != nil {
		var conflict *store.SchemaConflictError
		if errors.As(err, &conflict) {
			util.WarnLog("Skipping %s: %v", path, err)
			in.logger.LogError(report.EventIngest, path, err)
		}
		return 0, err
	}

	if webpath := row.String("webpath"); opts.Downloaded && webpath != "" && webpath != path {
		if err := in.replaceOnline(ctx, webpath, id); err != nil {
			return id, err
		}
	}

	if tags := row.String("tags"); tags != "" {
		if err := in.store.ReplaceCaptions(ctx, id, 0, tags); err != nil {
			return id, err
		}
	}

	in.logger.LogIngest(id, path, opts.Source)
	util.DebugLog("Ingested %s (%d keys)", path, len(sortedKeys(row)))
	return id, nil
}

// replaceOnline drops the row keyed by the URL a download came from,
// keeping its plays
func (in *Ingester) replaceOnline(ctx context.Context, webpath string, id int64) error {
	oldID, err := in.store.MediaID(ctx, webpath)
	if errors.Is(err, util.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := in.store.ReassignHistory(ctx, oldID, id); err != nil {
		return err
	}
	_, err = in.store.DeleteRows(ctx, webpath)
	return err
}

// AddAll ingests entries, skipping the ones that fail
func (in *Ingester) AddAll(ctx context.Context, entries []map[string]any, opts Options) (int, error) {
	added := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if _, err := in.Add(ctx, e, opts); err != nil {
			util.WarnLog("Ingest failed: %v", err)
			continue
		}
		added++
	}
	return added, nil
}
