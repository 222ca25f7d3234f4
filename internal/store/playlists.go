package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/media-librarian/internal/util"
)

// DefaultHoursUpdateDelay is the refresh delay of a new playlist
const DefaultHoursUpdateDelay = 70

// Playlist is a recurrent source of media
type Playlist struct {
	ID                  int64
	Path                string
	ExtractorKey        string
	ExtractorPlaylistID string
	Title               string
	Uploader            string
	Category            string
	Hostname            string
	ExtractorConfig     string // JSON of the flags used when the playlist was added
	HoursUpdateDelay    int
	TimeCreated         int64
	TimeModified        int64
	TimeDeleted         int64
	Error               string
}

func (p Playlist) row() Row {
	r := Row{
		"path":                  p.Path,
		"extractor_key":         p.ExtractorKey,
		"extractor_playlist_id": p.ExtractorPlaylistID,
		"title":                 p.Title,
		"uploader":              p.Uploader,
		"category":              p.Category,
		"hostname":              p.Hostname,
		"extractor_config":      p.ExtractorConfig,
		"time_modified":         p.TimeModified,
	}
	if p.HoursUpdateDelay > 0 {
		r["hours_update_delay"] = int64(p.HoursUpdateDelay)
	}
	if p.TimeCreated > 0 {
		r["time_created"] = p.TimeCreated
	}
	return r
}

func playlistFromRow(r Row) Playlist {
	return Playlist{
		ID:                  r.Int64("id"),
		Path:                r.String("path"),
		ExtractorKey:        r.String("extractor_key"),
		ExtractorPlaylistID: r.String("extractor_playlist_id"),
		Title:               r.String("title"),
		Uploader:            r.String("uploader"),
		Category:            r.String("category"),
		Hostname:            r.String("hostname"),
		ExtractorConfig:     r.String("extractor_config"),
		HoursUpdateDelay:    int(r.Int64("hours_update_delay")),
		TimeCreated:         r.Int64("time_created"),
		TimeModified:        r.Int64("time_modified"),
		TimeDeleted:         r.Int64("time_deleted"),
		Error:               r.String("error"),
	}
}

// UpsertPlaylist inserts or updates a playlist keyed by path
func (s *Store) UpsertPlaylist(ctx context.Context, p Playlist) (int64, error) {
	if p.Path == "" {
		return 0, fmt.Errorf("playlist without path: %w", util.ErrInvalidConfig)
	}
	if p.TimeCreated == 0 {
		p.TimeCreated = time.Now().Unix()
	}
	row := p.row()
	// keep the original creation time on update
	if _, err := s.PlaylistByPath(ctx, p.Path); err == nil {
		delete(row, "time_created")
	}
	if _, err := s.InsertMany(ctx, "playlists", []Row{row}, InsertOptions{PK: "path", Mode: ModeUpsert}); err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM playlists WHERE path = ?", p.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up playlist %s: %w", p.Path, err)
	}
	return id, nil
}

// PlaylistByPath returns one playlist
func (s *Store) PlaylistByPath(ctx context.Context, path string) (Playlist, error) {
	rows, err := s.Query(ctx, "SELECT * FROM playlists WHERE path = ?", path)
	if err != nil {
		return Playlist{}, err
	}
	if len(rows) == 0 {
		return Playlist{}, fmt.Errorf("playlist %s: %w", path, util.ErrNotFound)
	}
	return playlistFromRow(rows[0]), nil
}

// PlaylistByID returns one playlist
func (s *Store) PlaylistByID(ctx context.Context, id int64) (Playlist, error) {
	rows, err := s.Query(ctx, "SELECT * FROM playlists WHERE id = ?", id)
	if err != nil {
		return Playlist{}, err
	}
	if len(rows) == 0 {
		return Playlist{}, fmt.Errorf("playlist %d: %w", id, util.ErrNotFound)
	}
	return playlistFromRow(rows[0]), nil
}

// Playlists lists live playlists
func (s *Store) Playlists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.Query(ctx, `
		SELECT * FROM playlists
		WHERE COALESCE(time_deleted, 0) = 0
		ORDER BY path`)
	if err != nil {
		return nil, err
	}
	out := make([]Playlist, 0, len(rows))
	for _, r := range rows {
		out = append(out, playlistFromRow(r))
	}
	return out, nil
}

// DuePlaylists lists live playlists whose delay has elapsed at now
func (s *Store) DuePlaylists(ctx context.Context, now time.Time) ([]Playlist, error) {
	rows, err := s.Query(ctx, `
		SELECT * FROM playlists
		WHERE COALESCE(time_deleted, 0) = 0
		  AND COALESCE(time_modified, 0) + COALESCE(hours_update_delay, ?) * 3600 <= ?
		ORDER BY COALESCE(time_modified, 0), path`,
		DefaultHoursUpdateDelay, now.Unix())
	if err != nil {
		return nil, err
	}
	out := make([]Playlist, 0, len(rows))
	for _, r := range rows {
		out = append(out, playlistFromRow(r))
	}
	return out, nil
}

// SetPlaylistDelay stores a new back-off delay and stamps time_modified
func (s *Store) SetPlaylistDelay(ctx context.Context, id int64, hours int, modified time.Time) error {
	_, err := s.Exec(ctx,
		"UPDATE playlists SET hours_update_delay = ?, time_modified = ?, error = NULL WHERE id = ?",
		hours, modified.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update delay of playlist %d: %w", id, err)
	}
	return nil
}

// SetPlaylistError records an extractor error without touching the delay
func (s *Store) SetPlaylistError(ctx context.Context, id int64, msg string) error {
	if _, err := s.Exec(ctx, "UPDATE playlists SET error = ? WHERE id = ?", msg, id); err != nil {
		return fmt.Errorf("failed to record error on playlist %d: %w", id, err)
	}
	return nil
}

// MarkPlaylistDeleted stamps time_deleted so refreshes skip it
func (s *Store) MarkPlaylistDeleted(ctx context.Context, id int64, when time.Time) error {
	_, err := s.Exec(ctx,
		"UPDATE playlists SET time_deleted = ? WHERE id = ? AND COALESCE(time_deleted, 0) = 0",
		when.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist %d: %w", id, err)
	}
	return nil
}

// KnownPaths returns which of paths are already catalogued
func (s *Store) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM media WHERE path = ? OR webpath = ? LIMIT 1", p, p).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", p, err)
		}
		known[p] = true
	}
	return known, nil
}
