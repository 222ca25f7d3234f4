package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/franz/media-librarian/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Process exit codes
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitTimeout   = 124
	exitInterrupt = 130
	exitPipe      = 141
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	// cancelTimeout releases the --timeout context once a command returns
	cancelTimeout context.CancelFunc = func() {}

	rootCmd = &cobra.Command{
		Use:   "mlb",
		Short: "Media Librarian - catalog, query and play your media",
		Long: `mlb (Media Librarian) keeps a SQLite catalog of local files and online
media, answers filter/sort/search queries over it, hands the result to a
player and records what was watched. It also ingests playlists and folders,
downloads online media and finds duplicates.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// usageError marks bad flags or arguments
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./configs/mlb.yaml or ~/.config/mlb/mlb.yaml)")
	pf.CountP("verbose", "v", "verbose output (-vvv traces SQL)")
	pf.BoolP("quiet", "q", false, "quiet output (errors only)")
	pf.Duration("timeout", 0, "give up after this long (exit 124)")
	pf.String("events-dir", "", "write a JSONL event log into this directory")
	pf.String("trash-cmd", "", "command used to trash files (default trash-put, then trash, then unlink)")
	pf.String("player", "", "player command (default mpv, then xdg-open)")
	pf.Float64("subtitle-mix", 0, "chance that a watch queue prefers media without subtitles (default 0.35)")
	pf.Int("hash-workers", 0, "hashing workers (default 20 on local disks, 4 on network mounts)")
	pf.String("keep-dir", "", "destination of the move post-action; media inside it is never queued")
	pf.String("yt-dlp", "yt-dlp", "yt-dlp binary")
	pf.String("gallery-dl", "gallery-dl", "gallery-dl binary")

	for key, flag := range map[string]string{
		"verbose":      "verbose",
		"quiet":        "quiet",
		"timeout":      "timeout",
		"events_dir":   "events-dir",
		"trash_cmd":    "trash-cmd",
		"player":       "player",
		"subtitle_mix": "subtitle-mix",
		"hash_workers": "hash-workers",
		"keep_dir":     "keep-dir",
		"yt_dlp":       "yt-dlp",
		"gallery_dl":   "gallery-dl",
	} {
		viper.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mlb"))
		}
		viper.SetConfigName("mlb")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MLB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// setup applies logging flags and the --timeout deadline
func setup(cmd *cobra.Command, args []string) error {
	util.SetColors(util.IsTerminal(os.Stderr.Fd()))
	util.SetVerbosity(viper.GetInt("verbose"))
	if viper.GetBool("quiet") {
		util.SetQuiet(true)
	}

	if d := viper.GetDuration("timeout"); d > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), d)
		cancelTimeout = cancel
		cmd.SetContext(ctx)
	}
	return nil
}

// usageArgs wraps a positional-args validator so its errors exit with 2
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := fn(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// exitCode maps the error a command returned to the process exit code
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.DeadlineExceeded):
		return exitTimeout
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return exitInterrupt
	case errors.Is(err, syscall.EPIPE):
		return exitPipe
	case errors.Is(err, util.ErrNoMedia), errors.Is(err, util.ErrBadPredicate), errors.As(err, new(usageError)):
		return exitUsage
	}
	return exitFailure
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { cancelTimeout() }()

	rootCmd.SetArgs(args)
	start := time.Now()
	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(ctx, err)

	switch {
	case err == nil:
	case code == exitPipe:
	case code == exitTimeout:
		util.ErrorLog("Timed out after %v", time.Since(start).Round(time.Second))
	case code == exitInterrupt:
		util.WarnLog("Interrupted")
	case errors.Is(err, util.ErrNoMedia):
		util.WarnLog("%v", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

func main() {
	os.Exit(run(os.Args[1:]))
}
