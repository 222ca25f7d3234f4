package extractor

import (
	"fmt"
	"io"

	"github.com/dhowden/tag"
)

// ReadTags reads embedded audio tags (ID3, MP4, FLAC, OGG) into catalog keys
func ReadTags(r io.ReadSeeker) (map[string]any, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	e := map[string]any{
		"title":  m.Title(),
		"artist": m.Artist(),
		"album":  m.Album(),
		"genre":  m.Genre(),
	}
	if m.AlbumArtist() != "" {
		e["album_artist"] = m.AlbumArtist()
	}
	if m.Composer() != "" {
		e["composer"] = m.Composer()
	}
	if m.Year() > 0 {
		e["year"] = int64(m.Year())
	}
	if track, total := m.Track(); track > 0 {
		e["track"] = int64(track)
		if total > 0 {
			e["track_total"] = int64(total)
		}
	}
	if c := m.Comment(); c != "" {
		e["comment"] = c
	}
	if l := m.Lyrics(); l != "" {
		e["lyrics"] = l
	}
	for k, v := range e {
		if s, ok := v.(string); ok && s == "" {
			delete(e, k)
		}
	}
	return e, nil
}
