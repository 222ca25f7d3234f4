package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/playback"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// queryRun is an opened catalog and the queue a spec produced
type queryRun struct {
	app      *app
	selector *playback.Selector
	spec     query.Spec
	res      *playback.Result
	flags    *queryFlags
}

// startQuery opens DATABASE (args[0]) and runs the query.Spec built from the
// flags. The remaining args are path prefixes. adjust may rewrite it
// before it runs.
func startQuery(cmd *cobra.Command, f *queryFlags, action query.Action, args []string, adjust func(*query.Spec)) (*queryRun, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	spec := f.spec(cmd, action, args[1:])
	if adjust != nil {
		adjust(&spec)
	}

	a, err := openApp(args[0])
	if err != nil {
		return nil, err
	}
	sel := playback.New(&playback.Config{Store: a.store})
	res, err := sel.Queue(cmd.Context(), spec)
	if err != nil {
		a.Close()
		return nil, err
	}
	util.DebugLog("%s matched %d rows", action, len(res.Rows))
	return &queryRun{app: a, selector: sel, spec: spec, res: res, flags: f}, nil
}

// output prints and mutates as the flags ask. done reports that nothing
// is left for the command to do.
func (q *queryRun) output(ctx context.Context, out io.Writer) (done bool, err error) {
	if q.spec.Print != "" {
		if err := printResult(ctx, out, q.app, q.spec, q.flags.cols, q.res); err != nil {
			return true, err
		}
		done = true
	}
	if m := q.flags.mutation(q.spec.Print); m != mutateNone {
		n, err := mutate(ctx, q.app, m, q.res.Rows)
		if err != nil {
			return true, err
		}
		util.SuccessLog("Updated %d media", n)
		done = true
	}
	return done, nil
}

func (q *queryRun) Close() {
	q.app.Close()
}

// newListCmd builds a subcommand that prints its result; a table when no
// print letters are given
func newListCmd(action query.Action, use, short string, adjust func(*query.Spec)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.MinimumNArgs(1)),
	}
	qf := addQueryFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, a []string) error {
		q, err := startQuery(cmd, qf, action, a, func(spec *query.Spec) {
			if adjust != nil {
				adjust(spec)
			}
			if spec.Print == "" && !qf.mutates() {
				spec.Print = "p"
			}
		})
		if err != nil {
			return err
		}
		defer q.Close()
		_, err = q.output(cmd.Context(), cmd.OutOrStdout())
		return err
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newListCmd(query.ActionSearch, "search DATABASE [PATH...]",
		"Search the catalog and print the matches", nil))

	rootCmd.AddCommand(newListCmd(query.ActionHistory, "history DATABASE [PATH...]",
		"List played media, most recent first", func(spec *query.Spec) {
			spec.Where = append(spec.Where, "play_count > 0")
			if len(spec.Sort) == 0 {
				spec.Sort = []string{"time_last_played DESC"}
			}
		}))

	rootCmd.AddCommand(newListCmd(query.ActionPlaylists, "playlists DATABASE [PATH...]",
		"List tracked playlists", func(spec *query.Spec) {
			spec.Table = "playlists"
		}))

	rootCmd.AddCommand(newBigDirsCmd())
}

func newBigDirsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bigdirs DATABASE [PATH...]",
		Short: "Group media by folder to find what to clean up",
		Long: `Group media by folder to find what to clean up.

Folders come smallest average file size first. --sort takes folder keys
instead of columns: size, avg_size, median_size, count, deleted, played,
total and path, each with an optional asc or desc.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
	}
	qf := addQueryFlags(cmd)
	depth := cmd.Flags().Int("depth", 0, "group by the first N path components instead of the parent folder")
	lower := cmd.Flags().Int("lower", 0, "skip folders with fewer media")
	upper := cmd.Flags().Int("upper", 0, "skip folders with more media")

	cmd.RunE = func(cmd *cobra.Command, a []string) error {
		folderSort, err := playback.ParseFolderSort(qf.sort)
		if err != nil {
			return usageError{err}
		}
		q, err := startQuery(cmd, qf, query.ActionBigDirs, a, func(spec *query.Spec) {
			// --sort orders folders here, not rows
			spec.Sort = nil
			spec.Deleted = true
			if spec.Limit == "" {
				spec.Limit = "all"
			}
		})
		if err != nil {
			return err
		}
		defer q.Close()

		folders := playback.BigDirs(q.res.Rows, playback.BigDirsOptions{Depth: *depth, Lower: *lower, Upper: *upper, Sort: folderSort})
		if len(folders) == 0 {
			return util.ErrNoMedia
		}
		writeBigDirs(cmd.OutOrStdout(), folders)
		return nil
	}
	return cmd
}

// dedupeRows drops repeated paths, keeping the first
func dedupeRows(rows []store.Row) []store.Row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		p := r.String("path")
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, r)
	}
	return out
}
