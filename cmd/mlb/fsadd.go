package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/ingest"
	"github.com/franz/media-librarian/internal/util"
)

var fsAddCmd = &cobra.Command{
	Use:   "fs-add DATABASE DIR...",
	Short: "Catalog local media files",
	Long: `Walk directories and catalog every media file found.

Files are probed with ffprobe when it is installed; audio tags are read
directly. With --watch the directories stay watched and new files are
catalogued as they settle, until interrupted.`,
	Args: usageArgs(cobra.MinimumNArgs(2)),
	RunE: runFsAdd,
}

func init() {
	rootCmd.AddCommand(fsAddCmd)

	fsAddCmd.Flags().Bool("watch", false, "keep watching the directories after the scan")
	fsAddCmd.Flags().Duration("settle", ingest.DefaultSettle, "how long a file must stay unchanged before --watch ingests it")
	fsAddCmd.Flags().Bool("delete-unplayable", false, "trash files ffprobe cannot read")
	fsAddCmd.Flags().Bool("force", false, "re-probe files that are already catalogued")
	fsAddCmd.Flags().StringSlice("ext", nil, "additional file extensions to catalog")
	fsAddCmd.Flags().Int("workers", 0, "probe workers (default: hash workers for the first directory)")
}

func runFsAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	watch, _ := cmd.Flags().GetBool("watch")
	settle, _ := cmd.Flags().GetDuration("settle")
	deleteUnplayable, _ := cmd.Flags().GetBool("delete-unplayable")
	force, _ := cmd.Flags().GetBool("force")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	workers, _ := cmd.Flags().GetInt("workers")

	roots := args[1:]
	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			return usageError{fmt.Errorf("directory does not exist: %s", root)}
		}
	}
	if workers <= 0 {
		workers = util.HashWorkers(roots[0], GetConfigInt("hash_workers", 0))
	}

	a, err := openApp(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	var prober ingest.Prober
	ffprobe := &extractor.FFprobe{}
	if ffprobe.Available() {
		prober = ffprobe
	} else {
		util.WarnLog("ffprobe not found; media is catalogued without stream details")
	}

	scanner := ingest.NewScanner(&ingest.ScanConfig{
		Store:            a.store,
		Prober:           prober,
		Trash:            a.files,
		AdditionalExts:   exts,
		Workers:          workers,
		DeleteUnplayable: deleteUnplayable,
		Force:            force,
		Logger:           a.events,
	})

	start := time.Now()
	res, err := scanner.Scan(ctx, roots...)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	util.SuccessLog("Scan complete in %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Files found: %d", res.Found)
	util.InfoLog("  Added: %d", res.Added)
	util.InfoLog("  Skipped: %d", res.Skipped)
	if res.Unplayable > 0 {
		util.WarnLog("  Unplayable: %d", res.Unplayable)
	}
	if len(res.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(res.Errors))
	}

	if !watch {
		return nil
	}
	util.InfoLog("Watching %d directories, Ctrl-C to stop", len(roots))
	err = scanner.Watch(ctx, settle, roots...)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}
