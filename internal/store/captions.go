package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CaptionHit is a captions_fts match with its media path
type CaptionHit struct {
	MediaID int64
	Path    string
	Title   string
	Time    int64
	Text    string
}

// ReplaceCaptions stores text for media at offset t, replacing what was there
func (s *Store) ReplaceCaptions(ctx context.Context, mediaID, t int64, text string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM captions WHERE media_id = ? AND time = ?", mediaID, t); err != nil {
			return fmt.Errorf("failed to clear captions of media %d: %w", mediaID, err)
		}
		if text == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO captions (media_id, time, text) VALUES (?, ?, ?)", mediaID, t, text); err != nil {
			return fmt.Errorf("failed to insert captions of media %d: %w", mediaID, err)
		}
		return nil
	})
}

// SearchCaptions full-text searches captions of live media. match is an
// FTS5 expression.
func (s *Store) SearchCaptions(ctx context.Context, match string, limit int) ([]CaptionHit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(ctx, `
		SELECT m.id AS media_id, m.path, m.title, c.time, c.text
		FROM captions c
		JOIN captions_fts fts ON c.id = fts.rowid
		JOIN media m ON m.id = c.media_id
		WHERE captions_fts MATCH ?
		  AND COALESCE(m.time_deleted, 0) = 0
		ORDER BY fts.rank, m.path, c.time
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, err
	}
	out := make([]CaptionHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, CaptionHit{
			MediaID: r.Int64("media_id"),
			Path:    r.String("path"),
			Title:   r.String("title"),
			Time:    r.Int64("time"),
			Text:    r.String("text"),
		})
	}
	return out, nil
}
