package postaction

import (
	"context"
	"time"

	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
)

// Recorder writes the history rows around a play
type Recorder struct {
	store  *store.Store
	logger *report.EventLogger
	now    func() time.Time
}

// NewRecorder creates a Recorder; now defaults to time.Now
func NewRecorder(st *store.Store, logger *report.EventLogger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: st, logger: logger, now: now}
}

// Play is a reserved history row
type Play struct {
	rec       *Recorder
	historyID int64
	mediaID   int64
	path      string
	started   time.Time
}

// Start reserves a history row with playhead 0 and done 0
func (r *Recorder) Start(ctx context.Context, row store.Row) (*Play, error) {
	started := r.now()
	id, err := r.store.StartPlay(ctx, row.Int64("id"), started)
	if err != nil {
		return nil, err
	}
	return &Play{rec: r, historyID: id, mediaID: row.Int64("id"), path: row.String("path"), started: started}, nil
}

// Finish records how the play ended. A negative playhead means the player
// did not report one; a clean exit without a playhead marks the row done.
func (p *Play) Finish(ctx context.Context, playhead int64, exitCode int) error {
	done := exitCode == 0 && playhead < 0
	if err := p.rec.store.FinishPlay(ctx, p.historyID, playhead, done); err != nil {
		return err
	}
	p.rec.logger.LogPlay(p.mediaID, p.path, playhead, done, exitCode, p.rec.now().Sub(p.started))
	return nil
}

// MarkWatched appends a finished play without running a player
func (r *Recorder) MarkWatched(ctx context.Context, row store.Row) error {
	_, err := r.store.AddHistory(ctx, store.HistoryEntry{
		MediaID:    row.Int64("id"),
		TimePlayed: r.now().Unix(),
		Playhead:   row.Int64("duration"),
		Done:       true,
	})
	return err
}
