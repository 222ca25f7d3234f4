package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/media-librarian/internal/playback"
	"github.com/franz/media-librarian/internal/player"
	"github.com/franz/media-librarian/internal/postaction"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// playFlags are the options only playback subcommands take
type playFlags struct {
	postAction      string
	exitCodeConfirm bool
	guiConfirm      bool

	related            int
	relatedDropFilters bool
	relatedDropSearch  bool
	inOrder            int
	clusterSort        bool
	clusters           int

	watchLaterDir string
}

func addPlayFlags(cmd *cobra.Command) *playFlags {
	f := &playFlags{}
	fs := cmd.Flags()
	fs.StringVar(&f.postAction, "post-action", "keep", "after playing: keep, delete, delete-if-audiobook, softdelete, move, ask-keep, ask-delete, ask-move, ask-softdelete, ask-move-or-delete")
	fs.BoolVar(&f.exitCodeConfirm, "exit-code-confirm", false, "answer ask-* post-actions with the player exit code (0 yes, 1 no)")
	fs.BoolVar(&f.guiConfirm, "gui-confirm", false, "answer ask-* post-actions in a zenity dialog")
	fs.IntVar(&f.related, "related", 0, "queue N media related to the first match after it")
	fs.BoolVar(&f.relatedDropFilters, "related-drop-filters", false, "related media ignore the filters")
	fs.BoolVar(&f.relatedDropSearch, "related-drop-search", false, "related media ignore the search terms")
	fs.IntVarP(&f.inOrder, "play-in-order", "O", 0, "replace each match with its first unplayed sibling: 1 within the queue, 2 filtered, 3 anywhere")
	fs.BoolVarP(&f.clusterSort, "cluster-sort", "C", false, "group the queue by path similarity")
	fs.IntVar(&f.clusters, "clusters", 0, "number of groups for --cluster-sort")
	fs.StringVar(&f.watchLaterDir, "watch-later-dir", defaultWatchLaterDir(), "mpv resume directory used to read the playhead")
	return f
}

func defaultWatchLaterDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "mpv", "watch_later")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "mpv", "watch_later")
}

func (f *playFlags) confirmer() postaction.Confirmer {
	switch {
	case f.exitCodeConfirm:
		return postaction.ExitCodeConfirmer{}
	case f.guiConfirm:
		return &postaction.GUIConfirmer{}
	}
	return postaction.NewTTYConfirmer()
}

func init() {
	for _, c := range []struct {
		action query.Action
		short  string
	}{
		{query.ActionWatch, "Play videos"},
		{query.ActionListen, "Play audio"},
		{query.ActionRead, "Open documents"},
		{query.ActionView, "Open images"},
	} {
		rootCmd.AddCommand(newPlaybackCmd(c.action, c.short))
	}
}

func newPlaybackCmd(action query.Action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " DATABASE [PATH...]",
		Short: short,
		Long: short + ` matching the filters, one after the other.

Each play is recorded in the history table. When the player exits the
--post-action decides what happens to the file.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
	}
	qf := addQueryFlags(cmd)
	pf := addPlayFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, a []string) error {
		return runPlayback(cmd, qf, pf, action, a)
	}
	return cmd
}

func runPlayback(cmd *cobra.Command, qf *queryFlags, pf *playFlags, action query.Action, a []string) error {
	ctx := cmd.Context()
	post, err := postaction.ParseAction(pf.postAction)
	if err != nil {
		return usageError{err}
	}

	q, err := startQuery(cmd, qf, action, a, nil)
	if err != nil {
		return err
	}
	defer q.Close()

	rows, err := expandQueue(ctx, q, pf)
	if err != nil {
		return err
	}
	q.res.Rows = rows

	if done, err := q.output(ctx, cmd.OutOrStdout()); done || err != nil {
		return err
	}

	command := GetConfigString("player", "")
	if command == "" && (action == query.ActionRead || action == query.ActionView) {
		command = "xdg-open"
	}
	p := player.New(&player.Config{
		Command:       command,
		WatchLaterDir: pf.watchLaterDir,
		Recorder:      postaction.NewRecorder(q.app.store, q.app.events, nil),
		Machine: postaction.New(&postaction.Config{
			Store:     q.app.store,
			Files:     q.app.files,
			Confirmer: pf.confirmer(),
			KeepDir:   viper.GetString("keep_dir"),
			Logger:    q.app.events,
		}),
	})

	util.InfoLog("Playing %d media", len(rows))
	return p.PlayQueue(ctx, rows, post)
}

// expandQueue applies the related, ordinal and cluster options to the
// fetched queue
func expandQueue(ctx context.Context, q *queryRun, pf *playFlags) ([]store.Row, error) {
	rows := q.res.Rows

	if pf.related > 0 && len(rows) > 0 {
		rel, err := q.selector.Related(ctx, rows[0], q.spec, playback.RelatedOptions{
			DropFilters: pf.relatedDropFilters,
			DropSearch:  pf.relatedDropSearch,
		})
		if err != nil {
			return nil, err
		}
		if len(rel) > pf.related {
			rel = rel[:pf.related]
		}
		expanded := append([]store.Row{rows[0]}, rel...)
		rows = dedupeRows(append(expanded, rows[1:]...))
	}

	if pf.inOrder > 0 {
		for i, r := range rows {
			next, err := q.selector.NextInOrder(ctx, r, q.res.Query, pf.inOrder)
			if err != nil {
				return nil, err
			}
			rows[i] = next
		}
		rows = dedupeRows(rows)
	}

	if pf.clusterSort && len(rows) > 1 {
		groups := playback.ClusterRows(rows, playback.ClusterOptions{Clusters: pf.clusters, Seed: q.spec.Seed})
		sorted := make([]store.Row, 0, len(rows))
		for _, g := range groups {
			util.DebugLog("Cluster %q: %d media", g.Name, len(g.Rows))
			sorted = append(sorted, g.Rows...)
		}
		rows = sorted
	}
	return rows, nil
}
