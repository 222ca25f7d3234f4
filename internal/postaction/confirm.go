package postaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/franz/media-librarian/internal/util"
)

// Prompt is what a Confirmer is asked
type Prompt struct {
	Question string
	Path     string
	ExitCode int // player exit code, NoExitCode when nothing was played
}

// NoExitCode marks prompts that do not follow a player run
const NoExitCode = -1

// Confirmer answers an ask node. util.ErrNoAnswer means the question was
// dismissed; the machine then keeps the media.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ExitCodeConfirmer bifurcates on the player exit code: 0 is yes, 1 is no
type ExitCodeConfirmer struct{}

func (ExitCodeConfirmer) Confirm(_ context.Context, p Prompt) (bool, error) {
	switch p.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	}
	return false, fmt.Errorf("exit code %d: %w", p.ExitCode, util.ErrNoAnswer)
}

// TTYConfirmer asks on the terminal. One goroutine reads In line by line
for every prompt and exits at EOF; a prompt canceled before its answer
leaves the next typed line to the next prompt.
type TTYConfirmer struct {
	In    io.Reader
	Out   io.Writer
	IsTTY func() bool

	once  sync.Once
	lines chan string
}

// NewTTYConfirmer prompts on stdin/stderr
func NewTTYConfirmer() *TTYConfirmer {
	return &TTYConfirmer{In: os.Stdin, Out: os.Stderr, IsTTY: util.StdinIsTerminal}
}

func (c *TTYConfirmer) readLines() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		r := bufio.NewReader(c.In)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				c.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
}

func (c *TTYConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	if c.IsTTY != nil && !c.IsTTY() {
		return false, fmt.Errorf("stdin is not a terminal: %w", util.ErrNoAnswer)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.once.Do(c.readLines)
	fmt.Fprintf(c.Out, "%s %s? [y/N] ", p.Question, p.Path)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-c.lines:
		// a closed In reads as the default answer
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		return false, fmt.Errorf("answer %q: %w", strings.TrimSpace(line), util.ErrNoAnswer)
	}
}

// GUIConfirmer shows a yes/no dialog through an external program that
// exits 0 for yes and 1 for no, zenity by default
type GUIConfirmer struct {
	Command []string
}

// DefaultGUICommand is the dialog program used when none is configured
var DefaultGUICommand = []string{"zenity", "--question", "--title=Media Librarian"}

func (c *GUIConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	argv := c.Command
	if len(argv) == 0 {
		argv = DefaultGUICommand
	}
	text := fmt.Sprintf("--text=%s %s?", p.Question, p.Path)
	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], text)...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, fmt.Errorf("%s: %v: %w", argv[0], err, util.ErrNoAnswer)
}
