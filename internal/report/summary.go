package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/media-librarian/internal/store"
)

// SummaryReport represents a catalog summary
type SummaryReport struct {
	GeneratedAt time.Time

	// Media statistics
	MediaLive    int64
	MediaDeleted int64
	MediaOnline  int64
	TotalSize    int64
	TotalSeconds int64
	ByType       []TypeCount

	// History statistics
	Plays         int64
	MediaFinished int64

	// Playlist statistics
	Playlists        int64
	PlaylistsFailing int64
	PlaylistsDeleted int64

	// Details
	TopErrors  []ErrorSummary
	Duplicates []DuplicateDecision

	DatabasePath string
	EventLogPath string
}

// TypeCount is the live media of one type
type TypeCount struct {
	Type  string
	Count int64
	Size  int64
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// DuplicateDecision is a dedupe event read back from the event log
type DuplicateDecision struct {
	KeepPath      string
	DuplicatePath string
	Size          int64
	Method        string
}

// GenerateSummaryReport summarizes the catalog and, when eventLogPath is
// set, the dedupe decisions recorded there
func GenerateSummaryReport(ctx context.Context, db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: db.Path(),
		EventLogPath: eventLogPath,
	}

	rows, err := db.Query(ctx, `
		SELECT
			COALESCE(SUM(COALESCE(time_deleted, 0) = 0), 0) AS live,
			COALESCE(SUM(time_deleted > 0), 0) AS deleted,
			COALESCE(SUM(COALESCE(time_deleted, 0) = 0 AND path LIKE 'http%'), 0) AS online,
			COALESCE(SUM(CASE WHEN COALESCE(time_deleted, 0) = 0 THEN size END), 0) AS size,
			COALESCE(SUM(CASE WHEN COALESCE(time_deleted, 0) = 0 THEN duration END), 0) AS seconds
		FROM media`)
	if err != nil {
		return nil, fmt.Errorf("failed to count media: %w", err)
	}
	if len(rows) > 0 {
		report.MediaLive = rows[0].Int64("live")
		report.MediaDeleted = rows[0].Int64("deleted")
		report.MediaOnline = rows[0].Int64("online")
		report.TotalSize = rows[0].Int64("size")
		report.TotalSeconds = rows[0].Int64("seconds")
	}

	types, err := db.Query(ctx, `
		SELECT COALESCE(NULLIF(type, ''), 'unknown') AS type, COUNT(*) AS count, COALESCE(SUM(size), 0) AS size
		FROM media WHERE COALESCE(time_deleted, 0) = 0
		GROUP BY 1 ORDER BY count DESC, type`)
	if err != nil {
		return nil, fmt.Errorf("failed to group media by type: %w", err)
	}
	for _, r := range types {
		report.ByType = append(report.ByType, TypeCount{Type: r.String("type"), Count: r.Int64("count"), Size: r.Int64("size")})
	}

	if report.Plays, err = db.QueryInt(ctx, "SELECT COUNT(*) FROM history"); err != nil {
		return nil, err
	}
	if report.MediaFinished, err = db.QueryInt(ctx, "SELECT COUNT(DISTINCT media_id) FROM history WHERE done = 1"); err != nil {
		return nil, err
	}

	pl, err := db.Query(ctx, `
		SELECT
			COALESCE(SUM(COALESCE(time_deleted, 0) = 0), 0) AS live,
			COALESCE(SUM(COALESCE(time_deleted, 0) = 0 AND COALESCE(error, '') != ''), 0) AS failing,
			COALESCE(SUM(time_deleted > 0), 0) AS deleted
		FROM playlists`)
	if err != nil {
		return nil, fmt.Errorf("failed to count playlists: %w", err)
	}
	if len(pl) > 0 {
		report.Playlists = pl[0].Int64("live")
		report.PlaylistsFailing = pl[0].Int64("failing")
		report.PlaylistsDeleted = pl[0].Int64("deleted")
	}

	if report.TopErrors, err = gatherTopErrors(ctx, db, 10); err != nil {
		return nil, err
	}

	if eventLogPath != "" {
		dups, err := ReadDuplicateDecisions(eventLogPath, 20)
		if err != nil {
			return nil, err
		}
		report.Duplicates = dups
	}

	return report, nil
}

// gatherTopErrors retrieves the most common media and playlist errors
func gatherTopErrors(ctx context.Context, db *store.Store, limit int) ([]ErrorSummary, error) {
	rows, err := db.Query(ctx, `
		SELECT error, COUNT(*) AS count FROM (
			SELECT error FROM media WHERE COALESCE(error, '') != ''
			UNION ALL
			SELECT error FROM playlists WHERE COALESCE(error, '') != ''
		) GROUP BY error`)
	if err != nil {
		return nil, fmt.Errorf("failed to gather errors: %w", err)
	}

	errors := make([]ErrorSummary, 0, len(rows))
	for _, r := range rows {
		errors = append(errors, ErrorSummary{Error: r.String("error"), Count: int(r.Int64("count"))})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors, nil
}

// ReadDuplicateDecisions returns up to limit duplicate events of a JSONL
// event log, largest first
func ReadDuplicateDecisions(path string, limit int) ([]DuplicateDecision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var out []DuplicateDecision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Event != EventDuplicate {
			continue
		}
		out = append(out, DuplicateDecision{
			KeepPath:      ev.DestPath,
			DuplicatePath: ev.Path,
			Size:          ev.Size,
			Method:        ev.Reason,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Media Librarian - Catalog Summary\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Media | %d |\n", report.MediaLive))
	if report.MediaOnline > 0 {
		md.WriteString(fmt.Sprintf("| Online only | %d |\n", report.MediaOnline))
	}
	if report.MediaDeleted > 0 {
		md.WriteString(fmt.Sprintf("| Deleted | %d |\n", report.MediaDeleted))
	}
	md.WriteString(fmt.Sprintf("| Size | %s |\n", humanize.IBytes(uint64(report.TotalSize))))
	md.WriteString(fmt.Sprintf("| Duration | %s |\n", (time.Duration(report.TotalSeconds) * time.Second).String()))
	md.WriteString("\n")

	if len(report.ByType) > 0 {
		md.WriteString("## 🗂 By Type\n\n")
		md.WriteString("| Type | Count | Size |\n")
		md.WriteString("|------|-------|------|\n")
		for _, t := range report.ByType {
			md.WriteString(fmt.Sprintf("| %s | %d | %s |\n", t.Type, t.Count, humanize.IBytes(uint64(t.Size))))
		}
		md.WriteString("\n")
	}

	if report.Plays > 0 {
		md.WriteString("## ▶️ History\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Plays | %d |\n", report.Plays))
		md.WriteString(fmt.Sprintf("| Finished media | %d |\n", report.MediaFinished))
		md.WriteString("\n")
	}

	if report.Playlists > 0 || report.PlaylistsDeleted > 0 {
		md.WriteString("## 📺 Playlists\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Active | %d |\n", report.Playlists))
		if report.PlaylistsFailing > 0 {
			md.WriteString(fmt.Sprintf("| Failing | %d |\n", report.PlaylistsFailing))
		}
		if report.PlaylistsDeleted > 0 {
			md.WriteString(fmt.Sprintf("| Gone | %d |\n", report.PlaylistsDeleted))
		}
		md.WriteString("\n")
	}

	if len(report.Duplicates) > 0 {
		md.WriteString(fmt.Sprintf("## 🔍 Duplicates Retired (Top %d)\n\n", len(report.Duplicates)))
		md.WriteString("| Size | Method | Duplicate | Kept |\n")
		md.WriteString("|------|--------|-----------|------|\n")
		for _, d := range report.Duplicates {
			md.WriteString(fmt.Sprintf("| %s | %s | `%s` | `%s` |\n",
				humanize.IBytes(uint64(d.Size)), d.Method,
				truncatePath(d.DuplicatePath, 60), truncatePath(d.KeepPath, 60)))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, strings.ReplaceAll(err.Error, "|", "\\|")))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by mlb*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
