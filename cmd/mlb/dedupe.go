package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/dedupe"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/units"
	"github.com/franz/media-librarian/internal/util"
)

// profileFS selects the size -> sample hash -> full hash ladder
const profileFS = "fs"

// profileSwitches are the one-word spellings of --profile
var profileSwitches = []struct{ flag, profile string }{
	{"fs", profileFS},
	{"audio", string(dedupe.ProfileAudio)},
	{"title", string(dedupe.ProfileTitle)},
	{"extractor-id", string(dedupe.ProfileExtractorID)},
	{"duration", string(dedupe.ProfileDuration)},
}

func init() {
	rootCmd.AddCommand(newDedupeCmd())
}

func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe-media DATABASE [PATH...]",
		Short: "Find duplicate media and optionally retire them",
		Long: `Find duplicate media among the rows matching the filters.

Profiles:
  fs            same bytes: size, then a sampled hash, then a full hash
  audio         same title, artist and album
  title         same title
  extractor_id  same id at the source site
  duration      same duration

Each profile also has its own switch (--fs, --audio, --title,
--extractor-id, --duration); the duration filter is --durations here.

Each group keeps its best copy. Without --apply the duplicates are only
printed; with it they are trashed and soft-deleted.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
	}
	qf := addQueryFlagsNamed(cmd, "durations")
	profile := cmd.Flags().String("profile", profileFS, "duplicate profile: fs, audio, title, extractor_id, duration")
	switches := make(map[string]*bool, len(profileSwitches))
	exclusive := []string{"profile"}
	for _, ps := range profileSwitches {
		switches[ps.flag] = cmd.Flags().Bool(ps.flag, false, "same as --profile "+ps.profile)
		exclusive = append(exclusive, ps.flag)
	}
	cmd.MarkFlagsMutuallyExclusive(exclusive...)
	apply := cmd.Flags().Bool("apply", false, "trash and soft-delete the duplicates")
	minSimilarity := cmd.Flags().Float64("min-similarity", 0, "only keep pairs whose paths are at least this similar (0-1)")
	similarityOn := cmd.Flags().String("similarity-on", dedupe.SimilarityBasename, "compare basename or dirname for --min-similarity")
	gap := cmd.Flags().Float64("gap", dedupe.DefaultGap, "fraction of the file skipped between sampled chunks")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := qf.validate(); err != nil {
			return err
		}
		spec := qf.spec(cmd, query.ActionDedupe, args[1:])
		spec.Limit = "all"

		a, err := openApp(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		cat, err := query.LoadCatalog(ctx, a.store, "media")
		if err != nil {
			return err
		}
		scope, err := query.Build(spec, cat)
		if err != nil {
			return err
		}

		d := dedupe.New(&dedupe.Config{
			Store:         a.store,
			Fs:            afero.NewOsFs(),
			Workers:       GetConfigInt("hash_workers", 0),
			Gap:           *gap,
			Logger:        a.events,
			MinSimilarity: *minSimilarity,
			SimilarityOn:  *similarityOn,
		})

		chosen := *profile
		for _, ps := range profileSwitches {
			if *switches[ps.flag] {
				chosen = ps.profile
			}
		}

		var dups []dedupe.Duplicate
		if strings.EqualFold(chosen, profileFS) {
			dups, err = d.FindFS(ctx, scope)
		} else {
			var p dedupe.Profile
			if p, err = dedupe.ParseProfile(chosen); err != nil {
				return err
			}
			dups, err = d.FindMeta(ctx, p, scope)
		}
		if err != nil {
			return err
		}
		if len(dups) == 0 {
			return fmt.Errorf("duplicates: %w", util.ErrNoMedia)
		}

		var total int64
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "keep\tduplicate\tsize\tmethod")
		for _, dup := range dups {
			total += dup.DuplicateSize
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dup.KeepPath, dup.DuplicatePath, units.Bytes(dup.DuplicateSize), dup.Method)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		util.InfoLog("%d duplicates, %s reclaimable", len(dups), units.Bytes(total))

		if !*apply {
			return nil
		}
		n, err := d.Apply(ctx, dups, a.files)
		util.SuccessLog("Retired %d duplicates", n)
		return err
	}
	return cmd
}
