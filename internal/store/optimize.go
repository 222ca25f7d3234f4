package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

const fallbackTokenizer = `unicode61 tokenchars '_.'`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// detectTokenizer prefers trigram when the linked SQLite ships it
func detectTokenizer(db execer) string {
	_, err := db.Exec(`CREATE VIRTUAL TABLE temp.mlb_tokenizer_probe USING fts5(x, tokenize='trigram')`)
	if err != nil {
		util.DebugLog("trigram tokenizer unavailable, using unicode61: %v", err)
		return fallbackTokenizer
	}
	db.Exec(`DROP TABLE temp.mlb_tokenizer_probe`)
	return "trigram"
}

func createFTS(db execer, fts ftsTable, tokenizer string) error {
	name := fts.base + "_fts"
	cols := strings.Join(fts.columns, ", ")

	newVals := make([]string, len(fts.columns))
	oldVals := make([]string, len(fts.columns))
	for i, c := range fts.columns {
		newVals[i] = "new." + c
		oldVals[i] = "old." + c
	}
	insertNew := fmt.Sprintf("INSERT INTO %s(rowid, %s) VALUES (new.%s, %s);",
		name, cols, fts.rowid, strings.Join(newVals, ", "))
	deleteOld := fmt.Sprintf("INSERT INTO %s(%s, rowid, %s) VALUES ('delete', old.%s, %s);",
		name, name, cols, fts.rowid, strings.Join(oldVals, ", "))

	stmts := []string{
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, content='%s', content_rowid='%s', tokenize=\"%s\")",
			name, cols, fts.base, fts.rowid, tokenizer),
		fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s_ai AFTER INSERT ON %s BEGIN %s END", name, fts.base, insertNew),
		fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s_ad AFTER DELETE ON %s BEGIN %s END", name, fts.base, deleteOld),
		fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s_au AFTER UPDATE OF %s ON %s BEGIN %s %s END",
			name, cols, fts.base, deleteOld, insertNew),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}
	return nil
}

// uniquePathTables have one row per path
var uniquePathTables = map[string]bool{"media": true, "playlists": true}

// Optimize indexes every integer column and path, rebuilds the FTS mirrors,
// then runs VACUUM and ANALYZE. Safe to run repeatedly.
func (s *Store) Optimize(ctx context.Context) error {
	tables, err := s.TableNames(ctx)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if table == "schema_version" || strings.HasSuffix(table, "_fts") {
			continue
		}
		cols, err := s.Columns(ctx, table)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, col := range names {
			var stmt string
			switch {
			case col == "path" && uniquePathTables[table]:
				stmt = fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_path ON %s(path)", table, quoteIdent(table))
			case col == "path", col != "id" && strings.Contains(cols[col], "INT"):
				stmt = fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", table, col, quoteIdent(table), quoteIdent(col))
			default:
				continue
			}
			if _, err := s.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to index %s.%s: %w", table, col, err)
			}
		}
	}

	if err := s.RebuildFTS(ctx); err != nil {
		return err
	}

	for _, stmt := range []string{"VACUUM", "ANALYZE"} {
		if _, err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to %s: %w", strings.ToLower(stmt), err)
		}
	}
	return nil
}

// RebuildFTS recreates missing FTS mirrors and reindexes all of them from
// their content tables.
func (s *Store) RebuildFTS(ctx context.Context) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		tokenizer := ""
		for _, fts := range ftsTables {
			name := fts.base + "_fts"
			if !ftsExists(tx, name) {
				if tokenizer == "" {
					tokenizer = detectTokenizer(tx)
				}
				if err := createFTS(tx, fts, tokenizer); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(%s) VALUES('rebuild')", name, name)); err != nil {
				return fmt.Errorf("failed to rebuild %s: %w", name, err)
			}
		}
		return nil
	})
}

func ftsExists(tx *sql.Tx, name string) bool {
	var count int
	err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&count)
	return err == nil && count > 0
}

// Tokenizer reports the tokenizer of the media FTS mirror, "" without one
func (s *Store) Tokenizer(ctx context.Context) string {
	return s.FTSTokenizer(ctx, "media_fts")
}

// FTSTokenizer reports the tokenizer an FTS table was created with
func (s *Store) FTSTokenizer(ctx context.Context, fts string) string {
	var ddl string
	err := s.db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type='table' AND name=?`, fts).Scan(&ddl)
	switch {
	case err != nil:
		return ""
	case strings.Contains(ddl, "trigram"):
		return "trigram"
	case strings.Contains(ddl, "unicode61"):
		return "unicode61"
	}
	return "unknown"
}
