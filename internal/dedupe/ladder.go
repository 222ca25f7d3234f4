package dedupe

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Ladder method names, reported on each Duplicate
const (
	MethodFullHash = "full-hash"
)

type hashResult struct {
	row  store.Row
	hash string
	err  error
}

// FindFS runs the size, sample-hash, full-hash ladder over live local
// media. Only byte-identical files are reported.
func (d *Deduper) FindFS(ctx context.Context, scope *query.Query) ([]Duplicate, error) {
	stmt := fmt.Sprintf(`SELECT m.* FROM media m
WHERE COALESCE(m.time_deleted, 0) = 0
	AND m.path NOT LIKE 'http%%'
	AND m.size > 0
	%s
ORDER BY m.size, m.path`, scopeSQL("m", scope))
	rows, err := d.store.Query(ctx, stmt, scopeArgs(stmt, scope)...)
	if err != nil {
		return nil, err
	}
	if err := d.rankByUserSort(ctx, scope, rows); err != nil {
		return nil, err
	}

	bySize := make(map[int64][]store.Row)
	for _, r := range rows {
		bySize[r.Int64("size")] = append(bySize[r.Int64("size")], r)
	}
	var candidates []store.Row
	for _, group := range bySize {
		if len(group) > 1 {
			candidates = append(candidates, group...)
		}
	}
	util.InfoLog("%d files share a size with another file", len(candidates))
	if len(candidates) == 0 {
		return nil, nil
	}

	// sample hashes, cached in media.hash
	var need []store.Row
	for _, r := range candidates {
		if r.String("hash") == "" {
			need = append(need, r)
		}
	}
	sampled, err := d.hashAll(ctx, need, "Sample hashing", func(ctx context.Context, path string) (string, error) {
		return SampleHash(ctx, d.fs, path, d.gap)
	})
	if err != nil {
		return nil, err
	}
	for _, res := range sampled {
		if err := d.store.SetHash(ctx, res.row.String("path"), res.hash); err != nil {
			return nil, err
		}
		res.row["hash"] = res.hash
	}

	missing := make(map[string]bool)
	for _, r := range need {
		if r.String("hash") == "" {
			missing[r.String("path")] = true
		}
	}

	bySample := make(map[string][]store.Row)
	for _, r := range candidates {
		if missing[r.String("path")] {
			continue
		}
		key := fmt.Sprintf("%d:%s", r.Int64("size"), r.String("hash"))
		bySample[key] = append(bySample[key], r)
	}
	var suspects []store.Row
	for _, group := range bySample {
		if len(group) > 1 {
			suspects = append(suspects, group...)
		}
	}
	if len(suspects) == 0 {
		return nil, nil
	}

	full, err := d.hashAll(ctx, suspects, "Full hashing", func(ctx context.Context, path string) (string, error) {
		return FullHash(ctx, d.fs, path)
	})
	if err != nil {
		return nil, err
	}

	byFull := make(map[string][]store.Row)
	for _, res := range full {
		byFull[res.hash] = append(byFull[res.hash], res.row)
	}
	keys := make([]string, 0, len(byFull))
	for k := range byFull {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dups []Duplicate
	for _, k := range keys {
		if group := byFull[k]; len(group) > 1 {
			dups = append(dups, pickKeeper(group, MethodFullHash)...)
		}
	}
	sort.SliceStable(dups, func(i, j int) bool { return dups[i].DuplicatePath < dups[j].DuplicatePath })
	return d.gate(dups), nil
}

// hashAll hashes rows on a bounded pool. Files that cannot be read are
// logged and left out of the result.
func (d *Deduper) hashAll(ctx context.Context, rows []store.Row, label string, hash func(context.Context, string) (string, error)) ([]hashResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(rows),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	p := pool.NewWithResults[hashResult]().WithContext(ctx).WithMaxGoroutines(d.workers)
	for _, r := range rows {
		p.Go(func(ctx context.Context) (hashResult, error) {
			path := r.String("path")
			res := hashResult{row: r}
			info, err := d.fs.Stat(path)
			switch {
			case err != nil:
				res.err = err
			case info.IsDir():
				res.err = fmt.Errorf("%s is a directory", path)
			default:
				res.hash, res.err = hash(ctx, path)
			}
			if bar != nil {
				bar.Add(1)
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, nil
		})
	}
	results, err := p.Wait()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}

	out := results[:0]
	for _, res := range results {
		if res.err != nil {
			util.WarnLog("Cannot hash %s: %v", res.row.String("path"), res.err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
