package store

import (
	"context"
	"fmt"
	"time"
)

// HistoryEntry is one play
type HistoryEntry struct {
	ID         int64
	MediaID    int64
	TimePlayed int64
	Playhead   int64
	Done       bool
}

// StartPlay reserves a history row with playhead 0 and done 0
func (s *Store) StartPlay(ctx context.Context, mediaID int64, when time.Time) (int64, error) {
	res, err := s.Exec(ctx,
		"INSERT INTO history (media_id, time_played, playhead, done) VALUES (?, ?, 0, 0)",
		mediaID, when.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record play of media %d: %w", mediaID, err)
	}
	return res.LastInsertId()
}

// FinishPlay updates a reserved history row. A negative playhead leaves
// the stored value untouched.
func (s *Store) FinishPlay(ctx context.Context, historyID, playhead int64, done bool) error {
	doneVal := 0
	if done {
		doneVal = 1
	}
	var err error
	if playhead < 0 {
		_, err = s.Exec(ctx, "UPDATE history SET done = ? WHERE id = ?", doneVal, historyID)
	} else {
		_, err = s.Exec(ctx, "UPDATE history SET playhead = ?, done = ? WHERE id = ?", playhead, doneVal, historyID)
	}
	if err != nil {
		return fmt.Errorf("failed to finish history row %d: %w", historyID, err)
	}
	return nil
}

// AddHistory appends a completed play, e.g. from --mark-watched
func (s *Store) AddHistory(ctx context.Context, e HistoryEntry) (int64, error) {
	done := 0
	if e.Done {
		done = 1
	}
	res, err := s.Exec(ctx,
		"INSERT INTO history (media_id, time_played, playhead, done) VALUES (?, ?, ?, ?)",
		e.MediaID, e.TimePlayed, e.Playhead, done)
	if err != nil {
		return 0, fmt.Errorf("failed to add history for media %d: %w", e.MediaID, err)
	}
	return res.LastInsertId()
}

// MediaHistory returns plays of one media row, newest first
func (s *Store) MediaHistory(ctx context.Context, mediaID int64) ([]HistoryEntry, error) {
	rows, err := s.Query(ctx, `
		SELECT id, media_id, time_played, COALESCE(playhead, 0) AS playhead, COALESCE(done, 0) AS done
		FROM history WHERE media_id = ?
		ORDER BY time_played DESC, id DESC`, mediaID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryEntry{
			ID:         r.Int64("id"),
			MediaID:    r.Int64("media_id"),
			TimePlayed: r.Int64("time_played"),
			Playhead:   r.Int64("playhead"),
			Done:       r.Int64("done") == 1,
		})
	}
	return out, nil
}

// ReassignHistory moves plays of one media row onto another, used when a
// downloaded file replaces its online row
func (s *Store) ReassignHistory(ctx context.Context, fromID, toID int64) error {
	if _, err := s.Exec(ctx, "UPDATE history SET media_id = ? WHERE media_id = ?", toID, fromID); err != nil {
		return fmt.Errorf("failed to move history of media %d: %w", fromID, err)
	}
	return nil
}
