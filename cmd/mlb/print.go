package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cast"

	"github.com/franz/media-librarian/internal/playback"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/units"
)

// Default columns of --print p per action
var defaultCols = map[query.Action][]string{
	query.ActionHistory:   {"path", "play_count", "playhead", "time_last_played"},
	query.ActionPlaylists: {"path", "title", "extractor_key", "hours_update_delay", "error"},
}

var mediaCols = []string{"path", "title", "duration", "size"}

func columnsFor(spec query.Spec, cols []string) []string {
	if len(cols) > 0 {
		return cols
	}
	if c, ok := defaultCols[spec.Action]; ok {
		return c
	}
	return mediaCols
}

// printResult writes every requested print letter for res to out. Letters
// that mutate (d, w) are handled by mutate.
func printResult(ctx context.Context, out io.Writer, a *app, spec query.Spec, cols []string, res *playback.Result) error {
	w := bufio.NewWriter(out)
	explicit := len(cols) > 0
	cols = columnsFor(spec, cols)

	if spec.HasPrint('a') {
		rep, err := query.Aggregate(ctx, a.store, res.Query)
		if err != nil {
			return err
		}
		writeAggregate(w, rep)
	}
	if spec.HasPrint('b') {
		writeBigDirs(w, playback.BigDirs(res.Rows, playback.BigDirsOptions{}))
	}
	if spec.HasPrint('p') {
		writeTable(w, res.Rows, cols)
	}
	if spec.HasPrint('j') {
		if err := writeJSON(w, res.Rows, cols, explicit); err != nil {
			return err
		}
	}
	if spec.HasPrint('f') {
		for _, p := range res.Paths() {
			fmt.Fprintln(w, p)
		}
	}
	return w.Flush()
}

func writeTable(w io.Writer, rows []store.Row, cols []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(c, r[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// formatCell renders sizes, durations and timestamps for humans
func formatCell(col string, v any) string {
	if v == nil {
		return ""
	}
	switch {
	case col == "size":
		return units.Bytes(cast.ToInt64(v))
	case col == "duration" || col == "playhead":
		return units.Seconds(cast.ToFloat64(v))
	case strings.HasPrefix(col, "time_"):
		if n := cast.ToInt64(v); n > 0 {
			return units.Ago(n)
		}
		return ""
	}
	s := cast.ToString(v)
	return strings.ReplaceAll(s, "\n", " ")
}

// writeJSON writes one object per row. With only set it keeps cols.
func writeJSON(w io.Writer, rows []store.Row, cols []string, only bool) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		obj := map[string]any(r)
		if only {
			obj = make(map[string]any, len(cols))
			for _, c := range cols {
				obj[c] = r[c]
			}
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}

func writeAggregate(w io.Writer, rep query.AggregateReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "count\tsize\tduration\tavg_duration\tcadence_adj_duration\tdownload_duration")
	fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
		rep.Count, units.Bytes(rep.Size), units.Seconds(rep.Duration), units.Seconds(rep.AvgDuration),
		units.Seconds(rep.CadenceAdjDuration), units.Seconds(rep.DownloadDuration))
	tw.Flush()
}

func writeBigDirs(w io.Writer, folders []playback.Folder) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "path\tsize\tmedian_size\texists\tdeleted\tplayed")
	for _, f := range folders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			f.Path, units.Bytes(f.SizeSum), units.Bytes(f.MedianSize), f.Exists, f.Deleted, f.Played)
	}
	tw.Flush()
}
