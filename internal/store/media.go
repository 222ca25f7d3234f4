package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franz/media-librarian/internal/util"
)

// UpsertMedia inserts or updates one media row keyed by path and returns its id
func (s *Store) UpsertMedia(ctx context.Context, row Row) (int64, error) {
	path := row.String("path")
	if path == "" {
		return 0, fmt.Errorf("media row without path: %w", util.ErrInvalidConfig)
	}
	if _, err := s.InsertMany(ctx, "media", []Row{row}, InsertOptions{PK: "path", Mode: ModeUpsert}); err != nil {
		return 0, err
	}
	return s.MediaID(ctx, path)
}

// MediaID returns the id of the media row at path
func (s *Store) MediaID(ctx context.Context, path string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM media WHERE path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("media %s: %w", path, util.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up media %s: %w", path, err)
	}
	return id, nil
}

// MediaByPath returns the full media row at path
func (s *Store) MediaByPath(ctx context.Context, path string) (Row, error) {
	rows, err := s.Query(ctx, "SELECT * FROM media WHERE path = ?", path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("media %s: %w", path, util.ErrNotFound)
	}
	return rows[0], nil
}

// MarkDeleted soft-deletes live rows at the given paths. Rows that are
// already soft-deleted keep their original timestamp.
func (s *Store) MarkDeleted(ctx context.Context, when time.Time, paths ...string) (int64, error) {
	var total int64
	for _, path := range paths {
		res, err := s.Exec(ctx,
			"UPDATE media SET time_deleted = ? WHERE path = ? AND COALESCE(time_deleted, 0) = 0",
			when.Unix(), path)
		if err != nil {
			return total, fmt.Errorf("failed to mark %s deleted: %w", path, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Restore clears time_deleted
func (s *Store) Restore(ctx context.Context, paths ...string) (int64, error) {
	var total int64
	for _, path := range paths {
		res, err := s.Exec(ctx, "UPDATE media SET time_deleted = 0 WHERE path = ?", path)
		if err != nil {
			return total, fmt.Errorf("failed to restore %s: %w", path, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// DeleteRows hard-deletes media rows and their captions. History rows stay.
func (s *Store) DeleteRows(ctx context.Context, paths ...string) (int64, error) {
	var total int64
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM captions WHERE media_id IN (SELECT id FROM media WHERE path = ?)", path); err != nil {
				return fmt.Errorf("failed to delete captions of %s: %w", path, err)
			}
			res, err := tx.ExecContext(ctx, "DELETE FROM media WHERE path = ?", path)
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", path, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

// UpdatePath moves a row to a new path, e.g. after a move into keep_dir
func (s *Store) UpdatePath(ctx context.Context, oldPath, newPath string) error {
	res, err := s.Exec(ctx,
		"UPDATE media SET path = ?, time_modified = ? WHERE path = ?",
		newPath, time.Now().Unix(), oldPath)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("media %s already catalogued: %w", newPath, util.ErrConflict)
		}
		return fmt.Errorf("failed to update path %s: %w", oldPath, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("media %s: %w", oldPath, util.ErrNotFound)
	}
	return nil
}

// SetHash caches a sample hash
func (s *Store) SetHash(ctx context.Context, path, hash string) error {
	if _, err := s.Exec(ctx, "UPDATE media SET hash = ? WHERE path = ?", hash, path); err != nil {
		return fmt.Errorf("failed to cache hash for %s: %w", path, err)
	}
	return nil
}

// SetError records the last extractor error on a row
func (s *Store) SetError(ctx context.Context, path, msg string) error {
	if _, err := s.Exec(ctx, "UPDATE media SET error = ? WHERE path = ?", msg, path); err != nil {
		return fmt.Errorf("failed to record error for %s: %w", path, err)
	}
	return nil
}
