package postaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// maxAskDepth bounds how many ask nodes one run may pass through
const maxAskDepth = 1

// Files performs the filesystem side of an action; fileops.Ops satisfies it
type Files interface {
	Trash(ctx context.Context, path string) error
	MoveInto(ctx context.Context, src, dir string) (string, error)
}

// Outcome is where a run ended
type Outcome struct {
	Action Action // terminal action taken
	Path   string // path of the media afterwards
}

// Machine runs post-actions against the catalog and the filesystem
type Machine struct {
	store   *store.Store
	files   Files
	confirm Confirmer
	keepDir string
	logger  *report.EventLogger
	now     func() time.Time
}

// Config holds machine configuration
type Config struct {
	Store     *store.Store
	Files     Files
	Confirmer Confirmer // defaults to a TTY prompt
	KeepDir   string    // destination of move
	Logger    *report.EventLogger
	Now       func() time.Time
}

// New creates a new Machine
func New(cfg *Config) *Machine {
	m := &Machine{
		store:   cfg.Store,
		files:   cfg.Files,
		confirm: cfg.Confirmer,
		keepDir: cfg.KeepDir,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if m.confirm == nil {
		m.confirm = NewTTYConfirmer()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// AfterPlay runs action for a row whose player exited with exitCode.
// Exit codes outside 0..4 mean the player was killed or crashed; the
// media is kept untouched.
func (m *Machine) AfterPlay(ctx context.Context, row store.Row, action Action, exitCode int) (Outcome, error) {
	if exitCode < 0 || exitCode > 4 {
		util.DebugLog("Player exit code %d, skipping %s for %s", exitCode, action, row.String("path"))
		return Outcome{Action: Keep, Path: row.String("path")}, nil
	}
	return m.step(ctx, row, action, exitCode, 0)
}

// Run runs action for a row selected without playing it
func (m *Machine) Run(ctx context.Context, row store.Row, action Action) (Outcome, error) {
	return m.step(ctx, row, action, NoExitCode, 0)
}

func (m *Machine) step(ctx context.Context, row store.Row, action Action, exitCode, depth int) (Outcome, error) {
	path := row.String("path")

	if action.IsAsk() {
		if depth >= maxAskDepth {
			return Outcome{Action: Keep, Path: path}, fmt.Errorf("nested %s: %w", action, util.ErrInvalidConfig)
		}
		yes, err := m.confirm.Confirm(ctx, Prompt{Question: action.Question(), Path: path, ExitCode: exitCode})
		if err != nil {
			if errors.Is(err, util.ErrNoAnswer) {
				util.WarnLog("No answer for %s, keeping it: %v", path, err)
				return Outcome{Action: Keep, Path: path}, nil
			}
			return Outcome{Action: Keep, Path: path}, err
		}
		return m.step(ctx, row, action.Resolve(yes), exitCode, depth+1)
	}

	out := Outcome{Action: action, Path: path}
	var err error
	switch action {
	case Keep:
		return out, nil
	case DeleteIfAudiobook:
		if !strings.Contains(strings.ToLower(path), "audiobook") {
			return Outcome{Action: Keep, Path: path}, nil
		}
		out.Action = Delete
		err = m.delete(ctx, path)
	case Delete:
		err = m.delete(ctx, path)
	case SoftDelete:
		_, err = m.store.MarkDeleted(ctx, m.now(), path)
	case Move:
		out.Path, err = m.move(ctx, path)
		if err != nil {
			out.Path = path
		}
	default:
		err = fmt.Errorf("unknown post-action %q: %w", action, util.ErrInvalidConfig)
	}

	dest := ""
	if out.Path != path {
		dest = out.Path
	}
	m.logger.LogPostAction(path, dest, string(out.Action), string(action), err)
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", out.Action, path, err)
	}
	util.InfoLog("%s: %s", out.Action, path)
	return out, nil
}

func (m *Machine) delete(ctx context.Context, path string) error {
	if !util.IsURL(path) {
		if err := m.files.Trash(ctx, path); err != nil {
			return err
		}
	}
	_, err := m.store.MarkDeleted(ctx, m.now(), path)
	return err
}

func (m *Machine) move(ctx context.Context, path string) (string, error) {
	if m.keepDir == "" {
		return "", fmt.Errorf("no keep directory configured: %w", util.ErrInvalidConfig)
	}
	if util.IsURL(path) {
		return "", fmt.Errorf("cannot move a URL: %w", util.ErrInvalidConfig)
	}
	dest, err := m.files.MoveInto(ctx, path, m.keepDir)
	if err != nil {
		return "", err
	}
	if err := m.store.UpdatePath(ctx, path, dest); err != nil {
		return dest, err
	}
	return dest, nil
}
