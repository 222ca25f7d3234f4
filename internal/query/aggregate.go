package query

import (
	"context"
	"strings"

	"github.com/franz/media-librarian/internal/store"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// AggregateReport is the single-row summary printed by --print a
type AggregateReport struct {
	Count       int64
	Size        int64
	Duration    float64
	AvgDuration float64

	// CadenceAdjDuration is Duration stretched to wall-clock seconds at the
	// hourly rate media has been played so far; 0 without history
	CadenceAdjDuration float64
	// DownloadDuration estimates seconds to add Count items at the
	// historical download rate; 0 without downloads
	DownloadDuration float64
}

// Aggregate summarizes every row q matches. An explicit --limit or --offset
// bounds the summary; the action's default queue length does not.
func Aggregate(ctx context.Context, st *store.Store, q *Query) (AggregateReport, error) {
	cols := []string{"COUNT(*) AS count"}
	if q.Catalog.Has("size") {
		cols = append(cols, "COALESCE(SUM(size), 0) AS size")
	}
	if q.Catalog.Has("duration") {
		cols = append(cols, "COALESCE(SUM(duration), 0) AS duration", "COALESCE(AVG(duration), 0) AS avg_duration")
	}

	rows, err := st.Query(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM ("+q.Scoped()+")", q.Args...)
	if err != nil {
		return AggregateReport{}, err
	}
	var rep AggregateReport
	if len(rows) > 0 {
		rep.Count = rows[0].Int64("count")
		rep.Size = rows[0].Int64("size")
		rep.Duration = rows[0].Float64("duration")
		rep.AvgDuration = rows[0].Float64("avg_duration")
	}
	if q.Catalog.Table != "media" {
		return rep, nil
	}

	hist, err := st.Query(ctx, `
		SELECT COALESCE(SUM(m.duration), 0) AS played,
			COALESCE(MIN(h.time_played), 0) AS first,
			COALESCE(MAX(h.time_played), 0) AS last
		FROM history h JOIN media m ON m.id = h.media_id`)
	if err != nil {
		return rep, err
	}
	if len(hist) > 0 {
		rate := perSpan(hist[0].Float64("played"), hist[0].Int64("last")-hist[0].Int64("first"), secondsPerHour)
		if rate > 0 {
			rep.CadenceAdjDuration = rep.Duration / rate * secondsPerHour
		}
	}

	dl, err := st.Query(ctx, `
		SELECT COUNT(*) AS n,
			COALESCE(MIN(time_downloaded), 0) AS first,
			COALESCE(MAX(time_downloaded), 0) AS last
		FROM media WHERE time_downloaded > 0`)
	if err != nil {
		return rep, err
	}
	if len(dl) > 0 {
		rate := perSpan(dl[0].Float64("n"), dl[0].Int64("last")-dl[0].Int64("first"), secondsPerMinute)
		if rate > 0 {
			rep.DownloadDuration = float64(rep.Count) / rate * secondsPerMinute
		}
	}
	return rep, nil
}

// perSpan is amount per unit seconds over span, counting at least one unit
func perSpan(amount float64, span, unit int64) float64 {
	units := float64(span) / float64(unit)
	if units < 1 {
		units = 1
	}
	return amount / units
}
