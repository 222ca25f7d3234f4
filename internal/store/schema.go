package store

// Schema v1 - catalog tables
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS media (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  webpath TEXT,
  playlist_id INTEGER,
  extractor_key TEXT,
  extractor_id TEXT,
  type TEXT,
  size INTEGER,
  duration INTEGER,
  video_count INTEGER,
  audio_count INTEGER,
  subtitle_count INTEGER,
  chapter_count INTEGER,
  width INTEGER,
  height INTEGER,
  fps REAL,
  language TEXT,
  title TEXT,
  tags TEXT,
  description TEXT,
  artist TEXT,
  album TEXT,
  genre TEXT,
  mood TEXT,
  year INTEGER,
  bpm INTEGER,
  key TEXT,
  uploader TEXT,
  time_created INTEGER,
  time_modified INTEGER,
  time_downloaded INTEGER,
  time_deleted INTEGER,
  time_uploaded INTEGER,
  corruption REAL,
  error TEXT,
  hash TEXT,
  extra TEXT
);

CREATE TABLE IF NOT EXISTS playlists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  extractor_key TEXT,
  extractor_playlist_id TEXT,
  title TEXT,
  uploader TEXT,
  category TEXT,
  hostname TEXT,
  extractor_config TEXT,
  hours_update_delay INTEGER DEFAULT 70,
  time_created INTEGER,
  time_modified INTEGER,
  time_deleted INTEGER,
  error TEXT
);

CREATE TABLE IF NOT EXISTS history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL,
  time_played INTEGER NOT NULL,
  playhead INTEGER,
  done INTEGER
);

CREATE TABLE IF NOT EXISTS captions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL,
  time INTEGER,
  text TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_media_time ON history(media_id, time_played);
CREATE INDEX IF NOT EXISTS idx_captions_media ON captions(media_id);
CREATE INDEX IF NOT EXISTS idx_media_size ON media(size);
CREATE INDEX IF NOT EXISTS idx_media_time_deleted ON media(time_deleted);
`

// MediaColumns is the promoted-column registry: the curated media schema.
// Consolidated keys outside it are kept as JSON in media.extra unless the
// caller asks InsertMany to alter the table.
var MediaColumns = []string{
	"id", "path", "webpath", "playlist_id", "extractor_key", "extractor_id",
	"type", "size", "duration", "video_count", "audio_count", "subtitle_count",
	"chapter_count", "width", "height", "fps", "language",
	"title", "tags", "description", "artist", "album", "genre", "mood",
	"year", "bpm", "key", "uploader",
	"time_created", "time_modified", "time_downloaded", "time_deleted", "time_uploaded",
	"corruption", "error", "hash", "extra",
}

// MediaSearchColumns are mirrored into media_fts and used by LIKE search
var MediaSearchColumns = []string{"path", "title", "mood", "genre", "description", "artist", "album"}

// CaptionSearchColumns are mirrored into captions_fts
var CaptionSearchColumns = []string{"text"}

// ftsTable describes an external-content FTS5 mirror kept in sync by triggers
type ftsTable struct {
	base    string
	rowid   string
	columns []string
}

var ftsTables = []ftsTable{
	{base: "media", rowid: "id", columns: MediaSearchColumns},
	{base: "captions", rowid: "id", columns: CaptionSearchColumns},
}
