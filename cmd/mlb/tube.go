package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/ingest"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

var tubeAddCmd = &cobra.Command{
	Use:   "tube-add DATABASE URL...",
	Short: "Track playlists and channels and catalog their media",
	Long: `Register playlist, channel or gallery URLs and list them right away.

Entries are catalogued without downloading. tube-update re-lists the
playlists later; each playlist backs off when nothing new shows up.`,
	Args: usageArgs(cobra.MinimumNArgs(2)),
	RunE: runTubeAdd,
}

var tubeUpdateCmd = &cobra.Command{
	Use:   "tube-update DATABASE",
	Short: "Re-list playlists whose refresh delay has elapsed",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runTubeUpdate,
}

func init() {
	rootCmd.AddCommand(tubeAddCmd)
	rootCmd.AddCommand(tubeUpdateCmd)
	rootCmd.AddCommand(newDownloadCmd())

	tubeAddCmd.Flags().String("category", "", "category stored on the playlist")
	tubeAddCmd.Flags().String("frequency", "", "for reddit URLs: listing window (daily, weekly, monthly, yearly)")
	tubeAddCmd.Flags().Bool("gallery", false, "list with gallery-dl instead of yt-dlp")
	tubeAddCmd.Flags().StringArray("extractor-args", nil, "extra arguments passed to the extractor")

	tubeUpdateCmd.Flags().Bool("no-jitter", false, "do not pause between playlists")
	tubeUpdateCmd.Flags().StringArray("extractor-args", nil, "extra arguments passed to the extractor")
}

func newRefresher(a *app, extra []string, jitter bool) *ingest.Refresher {
	cfg := &ingest.RefreshConfig{
		Store:     a.store,
		Videos:    &extractor.YTDLP{Binary: GetConfigString("yt_dlp", "yt-dlp"), ExtraArgs: extra},
		Galleries: &extractor.GalleryDL{Binary: GetConfigString("gallery_dl", "gallery-dl"), ExtraArgs: extra},
		Logger:    a.events,
	}
	if jitter {
		cfg.JitterMin = ingest.DefaultJitterMin
		cfg.JitterMax = ingest.DefaultJitterMax
		cfg.Seed = int64(os.Getpid())
	}
	return ingest.NewRefresher(cfg)
}

func runTubeAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	category, _ := cmd.Flags().GetString("category")
	frequency, _ := cmd.Flags().GetString("frequency")
	gallery, _ := cmd.Flags().GetBool("gallery")
	extra, _ := cmd.Flags().GetStringArray("extractor-args")

	a, err := openApp(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	key := ""
	if gallery {
		key = "gallery-dl"
	}
	config, err := json.Marshal(map[string]any{"frequency": frequency, "extractor_args": extra})
	if err != nil {
		return err
	}

	r := newRefresher(a, extra, false)
	var errs []error
	for _, url := range args[1:] {
		p, n, err := r.Add(ctx, store.Playlist{
			Path:            url,
			ExtractorKey:    key,
			Category:        category,
			ExtractorConfig: string(config),
		}, frequency)
		if err != nil {
			if errors.Is(err, util.ErrAbortRun) || ctx.Err() != nil {
				return err
			}
			util.ErrorLog("%s: %v", url, err)
			errs = append(errs, err)
			continue
		}
		util.SuccessLog("Added %s (%d media)", p.Path, n)
	}
	return errors.Join(errs...)
}

func runTubeUpdate(cmd *cobra.Command, args []string) error {
	noJitter, _ := cmd.Flags().GetBool("no-jitter")
	extra, _ := cmd.Flags().GetStringArray("extractor-args")

	a, err := openApp(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := newRefresher(a, extra, !noJitter).Refresh(cmd.Context())
	util.InfoLog("Refreshed %d playlists: %d new media, %d failed, %d gone",
		stats.Playlists, stats.NewMedia, stats.Failed, stats.Deleted)
	return err
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download DATABASE [PATH...]",
		Short: "Download online media and catalog the local files",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
	}
	qf := addQueryFlags(cmd)
	dir := cmd.Flags().String("download-dir", ".", "directory downloads are written to")
	extra := cmd.Flags().StringArray("extractor-args", nil, "extra arguments passed to yt-dlp")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := startQuery(cmd, qf, query.ActionDownload, args, func(spec *query.Spec) {
			spec.OnlineOnly = true
		})
		if err != nil {
			return err
		}
		defer q.Close()
		if done, err := q.output(ctx, cmd.OutOrStdout()); done || err != nil {
			return err
		}

		fetcher := &extractor.YTDLP{Binary: GetConfigString("yt_dlp", "yt-dlp"), ExtraArgs: *extra}
		in := ingest.New(&ingest.Config{Store: q.app.store, Logger: q.app.events})
		stats, err := ingest.NewDownloader(q.app.store, in, fetcher, *dir, q.app.events).Download(ctx, q.res.Rows)
		util.InfoLog("Downloaded %d media, %d failed, %d gone", stats.Downloaded, stats.Failed, stats.Deleted)
		return err
	}
	return cmd
}
