package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/units"
	"github.com/franz/media-librarian/internal/util"
)

var searchCaptionsCmd = &cobra.Command{
	Use:   "search-captions DATABASE TERM...",
	Short: "Full-text search subtitles and tags",
	Args:  usageArgs(cobra.MinimumNArgs(2)),
	RunE:  runSearchCaptions,
}

func init() {
	rootCmd.AddCommand(searchCaptionsCmd)

	searchCaptionsCmd.Flags().IntP("limit", "L", 100, "max matches")
	searchCaptionsCmd.Flags().StringArrayP("exclude", "E", nil, "exclude terms")
	searchCaptionsCmd.Flags().Bool("or", false, "match any term instead of all")
}

func runSearchCaptions(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	exclude, _ := cmd.Flags().GetStringArray("exclude")
	flex, _ := cmd.Flags().GetBool("or")

	a, err := openApp(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.store.SearchCaptions(cmd.Context(), query.FTSExpression(args[1:], exclude, flex), limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("captions: %w", util.ErrNoMedia)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "path\ttime\ttext")
	width := 0
	if util.IsTerminal(os.Stdout.Fd()) {
		width = util.GetTerminalWidth() / 2
	}
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Path, units.Seconds(float64(h.Time)), clip(h.Text, width))
	}
	return tw.Flush()
}

// clip shortens s to width runes; width 0 keeps it whole
func clip(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
