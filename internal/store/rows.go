package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/franz/media-librarian/internal/util"
)

// Row is one result row keyed by column name
type Row map[string]any

// String returns the column as a string, "" when NULL or missing
func (r Row) String(col string) string {
	return cast.ToString(r[col])
}

// Int64 returns the column as an int64, 0 when NULL or missing
func (r Row) Int64(col string) int64 {
	return cast.ToInt64(r[col])
}

// Float64 returns the column as a float64, 0 when NULL or missing
func (r Row) Float64(col string) float64 {
	return cast.ToFloat64(r[col])
}

// IsNull reports whether the column is NULL or missing
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// Query runs a statement and collects every row
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := s.QueryEach(ctx, query, args, func(r Row) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// QueryEach streams rows to fn; a non-nil error from fn stops the iteration
func (s *Store) QueryEach(ctx context.Context, query string, args []any, fn func(Row) error) error {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	util.TraceSQL(query, args, time.Since(start))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, fn)
}

func scanRows(rows *sql.Rows, fn func(Row) error) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryInt runs a single-value query such as COUNT(*)
func (s *Store) QueryInt(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&v)
	util.TraceSQL(query, args, time.Since(start))
	if err != nil {
		return 0, err
	}
	return v.Int64, nil
}
