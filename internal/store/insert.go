package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/franz/media-librarian/internal/util"
)

// InsertMode selects the conflict clause of InsertMany
type InsertMode int

const (
	ModeInsert InsertMode = iota
	ModeReplace
	ModeIgnore
	ModeUpsert
)

// InsertOptions controls InsertMany
type InsertOptions struct {
	PK    string // conflict target for ModeUpsert, defaults to "id"
	Alter bool   // add missing columns instead of folding them into extra
	Mode  InsertMode
}

// SchemaConflictError is returned when a value's affinity cannot be stored
// in an existing column without widening it.
type SchemaConflictError struct {
	Table  string
	Column string
	Have   string
	Want   string
	Row    int
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on %s.%s (row %d): column is %s, value is %s",
		e.Table, e.Column, e.Row, e.Have, e.Want)
}

func (e *SchemaConflictError) Unwrap() error {
	return util.ErrSchemaConflict
}

// affinityOf infers the SQLite affinity of a Go value, "" for NULL
func affinityOf(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, time.Time:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	case []byte:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// columnAffinity applies SQLite's declared-type affinity rules
func columnAffinity(decl string) string {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "INT"):
		return "INTEGER"
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return "TEXT"
	case d == "", strings.Contains(d, "BLOB"):
		return "BLOB"
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return "REAL"
	default:
		return "NUMERIC"
	}
}

func conflicts(colAff, valAff string) bool {
	switch colAff {
	case "INTEGER", "REAL", "NUMERIC":
		return valAff == "TEXT"
	case "TEXT":
		return valAff == "INTEGER" || valAff == "REAL"
	}
	return false
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Unix()
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// Coerce converts row values towards the declared affinity of existing
// columns. Values that cannot be converted are left as they are so
// InsertMany reports the conflict.
func (s *Store) Coerce(ctx context.Context, table string, row Row) Row {
	cols, err := s.Columns(ctx, table)
	if err != nil || len(cols) == 0 {
		return row
	}
	out := make(Row, len(row))
	for k, v := range row {
		decl, ok := cols[k]
		if !ok || v == nil {
			out[k] = v
			continue
		}
		switch columnAffinity(decl) {
		case "INTEGER":
			if i, err := cast.ToInt64E(v); err == nil {
				out[k] = i
				continue
			}
			if f, err := cast.ToFloat64E(v); err == nil {
				out[k] = int64(f)
				continue
			}
		case "REAL":
			if f, err := cast.ToFloat64E(v); err == nil {
				out[k] = f
				continue
			}
		case "TEXT":
			if str, err := cast.ToStringE(v); err == nil {
				out[k] = str
				continue
			}
		}
		out[k] = v
	}
	return out
}

// InsertMany writes heterogeneous rows in one transaction. Unknown keys
// become new columns when opts.Alter is set, otherwise they are folded
// into the table's extra JSON column (or dropped when it has none).
// Missing tables are created from the rows.
func (s *Store) InsertMany(ctx context.Context, table string, rows []Row, opts InsertOptions) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if opts.PK == "" {
		opts.PK = "id"
	}

	cols, err := s.Columns(ctx, table)
	if err != nil {
		return 0, err
	}

	// infer affinities of unknown keys from the first non-NULL value
	newCols := make(map[string]string)
	for _, row := range rows {
		for k, v := range row {
			if _, ok := cols[k]; ok {
				continue
			}
			if aff := affinityOf(v); aff != "" && newCols[k] == "" {
				newCols[k] = aff
			}
		}
	}

	creating := len(cols) == 0
	_, hasExtra := cols["extra"]
	alter := opts.Alter || creating

	prepared := make([]Row, len(rows))
	for i, row := range rows {
		out := make(Row, len(row))
		extra := make(map[string]any)
		for k, v := range row {
			v = normalizeValue(v)
			decl, known := cols[k]
			switch {
			case known:
				if conflicts(columnAffinity(decl), affinityOf(v)) {
					return 0, &SchemaConflictError{Table: table, Column: k, Have: columnAffinity(decl), Want: affinityOf(v), Row: i}
				}
				out[k] = v
			case alter && newCols[k] != "":
				if v != nil && conflicts(newCols[k], affinityOf(v)) {
					return 0, &SchemaConflictError{Table: table, Column: k, Have: newCols[k], Want: affinityOf(v), Row: i}
				}
				out[k] = v
			case alter:
				// only ever NULL, nothing to infer
			case hasExtra && v != nil:
				extra[k] = v
			default:
				util.DebugLog("dropping unknown column %s.%s", table, k)
			}
		}
		if len(extra) > 0 {
			b, err := json.Marshal(extra)
			if err != nil {
				return 0, fmt.Errorf("failed to encode extra columns: %w", err)
			}
			out["extra"] = string(b)
		}
		prepared[i] = out
	}

	var total int64
	err = s.Transaction(ctx, func(tx *sql.Tx) error {
		if creating {
			if err := createTableFor(ctx, tx, table, newCols, opts.PK); err != nil {
				return err
			}
		} else if alter {
			for _, name := range sortedKeys(newCols) {
				stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(name), newCols[name])
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("failed adding column %s.%s: %w", table, name, err)
				}
			}
		}

		stmts := make(map[string]*sql.Stmt)
		defer func() {
			for _, st := range stmts {
				st.Close()
			}
		}()

		for _, row := range prepared {
			keys := sortedKeys(row)
			if len(keys) == 0 {
				continue
			}
			query := insertSQL(table, keys, opts)
			st, ok := stmts[query]
			if !ok {
				var err error
				st, err = tx.PrepareContext(ctx, query)
				if err != nil {
					return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
				}
				stmts[query] = st
			}

			args := make([]any, len(keys))
			for i, k := range keys {
				args[i] = row[k]
			}
			start := time.Now()
			res, err := st.ExecContext(ctx, args...)
			util.TraceSQL(query, args, time.Since(start))
			if err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if creating || alter {
		s.forgetColumns(table)
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

func insertSQL(table string, keys []string, opts InsertOptions) string {
	quoted := make([]string, len(keys))
	marks := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quoteIdent(k)
		marks[i] = "?"
	}

	verb := "INSERT"
	switch opts.Mode {
	case ModeReplace:
		verb = "INSERT OR REPLACE"
	case ModeIgnore:
		verb = "INSERT OR IGNORE"
	}

	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if opts.Mode == ModeUpsert {
		var sets []string
		for _, k := range keys {
			if k == opts.PK || k == "id" {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s=excluded.%s", quoteIdent(k), quoteIdent(k)))
		}
		if len(sets) == 0 {
			query += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", quoteIdent(opts.PK))
		} else {
			query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", quoteIdent(opts.PK), strings.Join(sets, ", "))
		}
	}
	return query
}

func createTableFor(ctx context.Context, tx *sql.Tx, table string, cols map[string]string, pk string) error {
	var defs []string
	if _, ok := cols[pk]; ok {
		for _, name := range sortedKeys(cols) {
			def := quoteIdent(name) + " " + cols[name]
			if name == pk {
				def += " PRIMARY KEY"
			}
			defs = append(defs, def)
		}
	} else {
		for _, name := range sortedKeys(cols) {
			defs = append(defs, quoteIdent(name)+" "+cols[name])
		}
	}
	if len(defs) == 0 {
		return fmt.Errorf("cannot create %s: no typed columns", table)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
