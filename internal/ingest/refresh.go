package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/normalize"
	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Lister enumerates the entries of a playlist URL
type Lister interface {
	Entries(ctx context.Context, url string, fn extractor.EntryFunc) error
}

// Default jitter between playlist URLs
const (
	DefaultJitterMin = 50 * time.Millisecond
	DefaultJitterMax = 2 * time.Second
)

// Refresher re-lists due playlists and ingests what is new
type Refresher struct {
	store     *store.Store
	ingester  *Ingester
	videos    Lister
	galleries Lister
	jitterMin time.Duration
	jitterMax time.Duration
	rng       *rand.Rand
	logger    *report.EventLogger
	now       func() time.Time
}

// RefreshConfig holds refresher configuration
type RefreshConfig struct {
	Store     *store.Store
	Ingester  *Ingester
	Videos    Lister // yt-dlp
	Galleries Lister // gallery-dl
	JitterMin time.Duration
	JitterMax time.Duration // 0 with JitterMin 0 disables sleeping
	Seed      int64
	Logger    *report.EventLogger
	Now       func() time.Time
}

// NewRefresher creates a Refresher
func NewRefresher(cfg *RefreshConfig) *Refresher {
	r := &Refresher{
		store:     cfg.Store,
		ingester:  cfg.Ingester,
		videos:    cfg.Videos,
		galleries: cfg.Galleries,
		jitterMin: cfg.JitterMin,
		jitterMax: cfg.JitterMax,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.ingester == nil {
		r.ingester = New(&Config{Store: cfg.Store, Logger: cfg.Logger, Now: r.now})
	}
	return r
}

// RefreshStats summarizes a refresh pass
type RefreshStats struct {
	Playlists int
	NewMedia  int
	Failed    int
	Deleted   int
}

// Refresh visits every due playlist. A Prefix-class extractor failure
// stops the pass; other failures are recorded on the playlist.
func (r *Refresher) Refresh(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats
	due, err := r.store.DuePlaylists(ctx, r.now())
	if err != nil {
		return stats, err
	}
	util.InfoLog("%d playlists due for refresh", len(due))

	for i, p := range due {
		if i > 0 {
			if err := r.pause(ctx); err != nil {
				return stats, err
			}
		}
		n, err := r.RefreshPlaylist(ctx, p)
		stats.Playlists++
		stats.NewMedia += n
		if err != nil {
			if errors.Is(err, util.ErrAbortRun) || ctx.Err() != nil {
				return stats, err
			}
			if errors.Is(err, util.ErrUnrecoverable) {
				stats.Deleted++
			}
			stats.Failed++
		}
	}
	return stats, nil
}

// RefreshPlaylist lists one playlist, ingests unseen entries and applies
// the back-off. It returns how many media were new.
func (r *Refresher) RefreshPlaylist(ctx context.Context, p store.Playlist) (int, error) {
	lister := r.listerFor(p)
	if lister == nil {
		return 0, fmt.Errorf("no extractor for %s: %w", p.Path, util.ErrInvalidConfig)
	}

	added := 0
	listErr := lister.Entries(ctx, p.Path, func(e extractor.Entry) error {
		row := Consolidate(e)
		key := row.String("path")
		if key == "" {
			return nil
		}
		known, err := r.store.KnownPaths(ctx, []string{key})
		if err != nil {
			return err
		}
		if known[key] {
			return nil
		}
		if _, err := r.ingester.Add(ctx, e, Options{PlaylistID: p.ID, ExtractorKey: p.ExtractorKey, Source: p.Path}); err != nil {
			util.WarnLog("Skipping entry of %s: %v", p.Path, err)
			return nil
		}
		added++
		return nil
	})

	if listErr != nil {
		r.logger.LogRefresh(p.Path, added, p.HoursUpdateDelay, listErr)
		var xerr *extractor.Error
		if !errors.As(listErr, &xerr) {
			return added, listErr
		}
		switch xerr.Class {
		case extractor.Prefix:
			return added, listErr
		case extractor.Unrecoverable:
			util.WarnLog("Playlist gone, marking deleted: %s", p.Path)
			if err := r.store.MarkPlaylistDeleted(ctx, p.ID, r.now()); err != nil {
				return added, err
			}
			return added, listErr
		default:
			delay := NextDelay(p.HoursUpdateDelay, 0)
			if err := r.store.SetPlaylistDelay(ctx, p.ID, delay, r.now()); err != nil {
				return added, err
			}
			if err := r.store.SetPlaylistError(ctx, p.ID, listErr.Error()); err != nil {
				return added, err
			}
			return added, listErr
		}
	}

	delay := NextDelay(p.HoursUpdateDelay, added)
	if err := r.store.SetPlaylistDelay(ctx, p.ID, delay, r.now()); err != nil {
		return added, err
	}
	r.logger.LogRefresh(p.Path, added, delay, nil)
	util.InfoLog("%s: %d new, next refresh in %dh", p.Path, added, delay)
	return added, nil
}

// Add registers a playlist URL and lists it right away
func (r *Refresher) Add(ctx context.Context, p store.Playlist, frequency string) (store.Playlist, int, error) {
	clean, err := normalize.SanitizeURL(p.Path, frequency)
	if err != nil {
		return p, 0, err
	}
	p.Path = clean
	if p.Hostname == "" {
		p.Hostname = hostname(clean)
	}
	id, err := r.store.UpsertPlaylist(ctx, p)
	if err != nil {
		return p, 0, err
	}
	saved, err := r.store.PlaylistByID(ctx, id)
	if err != nil {
		return p, 0, err
	}
	n, err := r.RefreshPlaylist(ctx, saved)
	return saved, n, err
}

func (r *Refresher) listerFor(p store.Playlist) Lister {
	key := strings.ToLower(p.ExtractorKey)
	if strings.Contains(key, "gallery") && r.galleries != nil {
		return r.galleries
	}
	return r.videos
}

func (r *Refresher) pause(ctx context.Context) error {
	if r.jitterMax <= 0 && r.jitterMin <= 0 {
		return nil
	}
	d := r.jitterMin
	if span := r.jitterMax - r.jitterMin; span > 0 {
		d += time.Duration(r.rng.Int63n(int64(span)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
