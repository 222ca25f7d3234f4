package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/units"
	"github.com/franz/media-librarian/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report DATABASE",
	Short: "Write a Markdown summary of the catalog",
	Long: `Write a Markdown summary of the catalog.

The report includes:
- Media counts, size and duration by type
- Play history totals
- Playlist health
- The most common media and playlist errors
- Duplicates retired, when an event log is given

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Event log to read duplicate decisions from (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Generating Summary Report ===")

	a, err := openApp(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	summary, err := report.GenerateSummaryReport(cmd.Context(), a.store, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		outputDir = filepath.Join("artifacts", "reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("  Media: %d (%s)", summary.MediaLive, units.Bytes(summary.TotalSize))
	util.InfoLog("  Plays: %d", summary.Plays)
	if summary.PlaylistsFailing > 0 {
		util.WarnLog("  Failing playlists: %d", summary.PlaylistsFailing)
	}
	return nil
}
