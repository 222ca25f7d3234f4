// Package player hands media to an external player and records the play.
package player

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/media-librarian/internal/postaction"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Candidates are tried in order when no player is configured
var Candidates = []string{"mpv", "xdg-open", "open"}

// Player launches one process per media and waits for it
type Player struct {
	argv          []string
	watchLaterDir string
	recorder      *postaction.Recorder
	machine       *postaction.Machine
}

// Config holds player configuration
type Config struct {
	Command       string // e.g. "mpv --fs"; empty picks the first of Candidates in PATH
	WatchLaterDir string // mpv resume files; enables playhead tracking
	Recorder      *postaction.Recorder
	Machine       *postaction.Machine
}

// New creates a new Player
func New(cfg *Config) *Player {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		for _, name := range Candidates {
			if bin, err := exec.LookPath(name); err == nil {
				argv = []string{bin}
				break
			}
		}
	}
	return &Player{
		argv:          argv,
		watchLaterDir: cfg.WatchLaterDir,
		recorder:      cfg.Recorder,
		machine:       cfg.Machine,
	}
}

// Command is the argv used for path
func (p *Player) Command(path string) []string {
	argv := append([]string(nil), p.argv...)
	if p.isMPV() && p.watchLaterDir != "" {
		argv = append(argv, "--save-position-on-quit", "--watch-later-directory="+p.watchLaterDir)
	}
	return append(argv, path)
}

func (p *Player) isMPV() bool {
	return len(p.argv) > 0 && strings.HasPrefix(filepath.Base(p.argv[0]), "mpv")
}

// Play runs the player on row, records the play and applies action.
// Cancelling ctx kills the player.
func (p *Player) Play(ctx context.Context, row store.Row, action postaction.Action) (postaction.Outcome, error) {
	path := row.String("path")
	if len(p.argv) == 0 {
		return postaction.Outcome{Action: postaction.Keep, Path: path}, errors.New("no player found; set --player")
	}

	play, err := p.recorder.Start(ctx, row)
	if err != nil {
		return postaction.Outcome{Action: postaction.Keep, Path: path}, err
	}

	argv := p.Command(path)
	util.DebugLog("Playing: %s", strings.Join(argv, " "))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	code := exitCode(cmd.Run())

	if err := play.Finish(context.WithoutCancel(ctx), p.playhead(path), code); err != nil {
		return postaction.Outcome{Action: postaction.Keep, Path: path}, err
	}
	if ctx.Err() != nil {
		return postaction.Outcome{Action: postaction.Keep, Path: path}, ctx.Err()
	}
	return p.machine.AfterPlay(ctx, row, action, code)
}

// PlayQueue plays rows one after the other. A failed post-action is
// logged and the queue continues.
func (p *Player) PlayQueue(ctx context.Context, rows []store.Row, action postaction.Action) error {
	for _, row := range rows {
		if _, err := p.Play(ctx, row, action); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			util.ErrorLog("%v", err)
		}
	}
	return nil
}

// exitCode maps a Run error to the process exit code; -1 when the process
// was killed by a signal or never started
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	util.ErrorLog("Player failed: %v", err)
	return -1
}

// playhead reads the resume position mpv saved for path, -1 when unknown
func (p *Player) playhead(path string) int64 {
	if p.watchLaterDir == "" {
		return -1
	}
	sum := md5.Sum([]byte(path))
	f, err := os.Open(filepath.Join(p.watchLaterDir, strings.ToUpper(hex.EncodeToString(sum[:]))))
	if err != nil {
		return -1
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "start="); ok {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				return int64(secs)
			}
		}
	}
	return -1
}
