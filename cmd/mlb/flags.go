package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/franz/media-librarian/internal/query"
)

// queryFlags are the filter, sort and print options shared by every
// query subcommand
type queryFlags struct {
	include, exclude, where, sort []string
	limit                         string
	offset                        int
	random                        bool

	ext, sizes, bitrates, durations, durationFromSize []string

	createdWithin, createdBefore       string
	changedWithin, changedBefore       string
	deletedWithin, deletedBefore       string
	downloadedWithin, downloadedBefore string
	playedWithin, playedBefore         string

	portrait, noVideo, noAudio, noSubtitles, subtitles bool
	onlineOnly, localOnly                              bool

	partial string

	noFTS, flex, or, exact bool

	print  string
	cols   []string
	toJSON bool

	markDeleted, markWatched, deleteRows, deleteFiles bool

	deleted bool
	seed    int64
}

func addQueryFlags(cmd *cobra.Command) *queryFlags {
	return addQueryFlagsNamed(cmd, "duration")
}

// addQueryFlagsNamed lets a subcommand that needs --duration for itself
// move the duration filter to another long name; -d stays
func addQueryFlagsNamed(cmd *cobra.Command, durationName string) *queryFlags {
	f := &queryFlags{}
	fs := cmd.Flags()

	fs.StringArrayVarP(&f.include, "include", "s", nil, "search terms (repeatable, all must match)")
	fs.StringArrayVarP(&f.exclude, "exclude", "E", nil, "exclude terms (repeatable)")
	fs.StringArrayVarP(&f.where, "where", "w", nil, "SQL where expression (repeatable)")
	fs.StringArrayVarP(&f.sort, "sort", "u", nil, "sort keys, e.g. 'size desc' or 'mcda -size,duration'")
	fs.StringVarP(&f.limit, "limit", "L", "", "max rows (number, all or inf)")
	fs.IntVar(&f.offset, "offset", 0, "skip rows")
	fs.BoolVarP(&f.random, "random", "r", false, "random order")

	fs.StringSliceVarP(&f.ext, "ext", "e", nil, "file extensions")
	fs.StringArrayVarP(&f.sizes, "sizes", "S", nil, "size rule, e.g. +5MB, -1GB, 700MB%10")
	fs.StringArrayVarP(&f.bitrates, "bitrates", "b", nil, "bitrate rule, e.g. +500kbps")
	fs.StringArrayVarP(&f.durations, durationName, "d", nil, "duration rule in minutes, e.g. +20, -1h")
	fs.StringArrayVar(&f.durationFromSize, "duration-from-size", nil, "match durations of media in this size band")

	fs.StringVar(&f.createdWithin, "created-within", "", "created in the last period, e.g. 3 days")
	fs.StringVar(&f.createdBefore, "created-before", "", "created before the last period")
	fs.StringVar(&f.changedWithin, "changed-within", "", "modified in the last period")
	fs.StringVar(&f.changedBefore, "changed-before", "", "modified before the last period")
	fs.StringVar(&f.deletedWithin, "deleted-within", "", "deleted in the last period")
	fs.StringVar(&f.deletedBefore, "deleted-before", "", "deleted before the last period")
	fs.StringVar(&f.downloadedWithin, "downloaded-within", "", "downloaded in the last period")
	fs.StringVar(&f.downloadedBefore, "downloaded-before", "", "downloaded before the last period")
	fs.StringVar(&f.playedWithin, "played-within", "", "last played in the last period")
	fs.StringVar(&f.playedBefore, "played-before", "", "last played before the last period")

	fs.BoolVar(&f.portrait, "portrait", false, "only portrait media")
	fs.BoolVar(&f.noVideo, "no-video", false, "only media without video streams")
	fs.BoolVar(&f.noAudio, "no-audio", false, "only media without audio streams")
	fs.BoolVar(&f.noSubtitles, "no-subtitles", false, "only media without subtitles")
	fs.BoolVar(&f.subtitles, "subtitles", false, "only media with subtitles")
	fs.BoolVar(&f.onlineOnly, "online-media-only", false, "only media that was never downloaded")
	fs.BoolVar(&f.localOnly, "local-media-only", false, "only local files")

	fs.StringVarP(&f.partial, "partial", "P", "", "watch history mode: s unplayed, o oldest, n newest, p progress, t time since, f finished")
	fs.Lookup("partial").NoOptDefVal = "o"

	addSwitch(fs, &f.noFTS, "no-fts", "fts", "search with LIKE instead of full-text", "search the full-text index (default)")
	fs.BoolVar(&f.flex, "flexible-search", false, "match any search term instead of all")
	fs.BoolVar(&f.or, "or", false, "alias of --flexible-search")
	fs.BoolVar(&f.exact, "exact", false, "LIKE search without wildcards")

	fs.StringVarP(&f.print, "print", "p", "", "print instead of acting: p table, a aggregate, f paths, j json, d mark deleted, w mark watched, b bigdirs")
	fs.Lookup("print").NoOptDefVal = "p"
	fs.StringSliceVar(&f.cols, "cols", nil, "columns shown by --print p and j")
	fs.BoolVar(&f.toJSON, "to-json", false, "alias of --print j")

	fs.BoolVar(&f.markDeleted, "mark-deleted", false, "soft-delete the matched media")
	fs.BoolVar(&f.markWatched, "mark-watched", false, "record the matched media as watched")
	fs.BoolVar(&f.deleteRows, "delete-rows", false, "remove the matched rows from the catalog")
	fs.BoolVar(&f.deleteFiles, "delete-files", false, "trash the matched files and soft-delete them")

	fs.BoolVar(&f.deleted, "deleted", false, "include soft-deleted media")
	fs.Int64Var(&f.seed, "seed", 0, "random seed (default: time based)")
	return f
}

// switchValue is one half of an on/off flag pair writing the same bool;
// the last flag given wins
type switchValue struct {
	target *bool
	invert bool
}

func (v *switchValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.target = b != v.invert
	return nil
}

func (v *switchValue) String() string {
	if v.target == nil {
		return "false"
	}
	return strconv.FormatBool(*v.target != v.invert)
}

func (v *switchValue) Type() string     { return "bool" }
func (v *switchValue) IsBoolFlag() bool { return true }

// addSwitch registers on and off as a pair of bool flags over target
func addSwitch(fs *pflag.FlagSet, target *bool, on, off, onUsage, offUsage string) {
	fs.Var(&switchValue{target: target}, on, onUsage)
	fs.Lookup(on).NoOptDefVal = "true"
	fs.Var(&switchValue{target: target, invert: true}, off, offUsage)
	fs.Lookup(off).NoOptDefVal = "true"
}

// spec turns the parsed flags into a query.Spec
func (f *queryFlags) spec(cmd *cobra.Command, action query.Action, paths []string) query.Spec {
	letters := f.print
	if f.toJSON {
		letters += "j"
	}
	seed := f.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return query.Spec{
		Action:  action,
		Paths:   paths,
		Include: f.include,
		Exclude: f.exclude,
		Where:   f.where,
		Sort:    f.sort,
		Limit:   f.limit,
		Offset:  f.offset,
		Random:  f.random,

		Ext:              f.ext,
		Sizes:            f.sizes,
		Bitrates:         f.bitrates,
		Durations:        f.durations,
		DurationFromSize: f.durationFromSize,

		CreatedWithin:    f.createdWithin,
		CreatedBefore:    f.createdBefore,
		ChangedWithin:    f.changedWithin,
		ChangedBefore:    f.changedBefore,
		DeletedWithin:    f.deletedWithin,
		DeletedBefore:    f.deletedBefore,
		DownloadedWithin: f.downloadedWithin,
		DownloadedBefore: f.downloadedBefore,
		PlayedWithin:     f.playedWithin,
		PlayedBefore:     f.playedBefore,

		Portrait:    f.portrait,
		NoVideo:     f.noVideo,
		NoAudio:     f.noAudio,
		NoSubtitles: f.noSubtitles,
		Subtitles:   f.subtitles,
		OnlineOnly:  f.onlineOnly,
		LocalOnly:   f.localOnly,

		Partial:    f.partial,
		PartialSet: cmd.Flags().Changed("partial"),

		NoFTS: f.noFTS,
		Flex:  f.flex || f.or,
		Exact: f.exact,

		Print:       letters,
		KeepDir:     viper.GetString("keep_dir"),
		Deleted:     f.deleted,
		SubtitleMix: GetConfigFloat("subtitle_mix", query.DefaultSubtitleMix),
		Seed:        seed,
	}
}

// mutates reports whether the flags ask to change the matched rows
// rather than play or print them
func (f *queryFlags) mutates() bool {
	return f.markDeleted || f.markWatched || f.deleteRows || f.deleteFiles
}

func (f *queryFlags) validate() error {
	n := 0
	for _, set := range []bool{f.markDeleted, f.markWatched, f.deleteRows, f.deleteFiles} {
		if set {
			n++
		}
	}
	if n > 1 {
		return usageError{fmt.Errorf("--mark-deleted, --mark-watched, --delete-rows and --delete-files are exclusive")}
	}
	if f.noSubtitles && f.subtitles {
		return usageError{fmt.Errorf("--subtitles and --no-subtitles are exclusive")}
	}
	if f.onlineOnly && f.localOnly {
		return usageError{fmt.Errorf("--online-media-only and --local-media-only are exclusive")}
	}
	return nil
}
