// Package postaction decides what happens to a media row after it was
// played or selected: keep it, trash it, soft-delete it, move it into the
// keep directory, or ask first.
package postaction

import (
	"fmt"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

// Action is one node of the post-action state machine
type Action string

const (
	Keep              Action = "keep"
	Delete            Action = "delete"
	DeleteIfAudiobook Action = "delete-if-audiobook"
	SoftDelete        Action = "softdelete"
	Move              Action = "move"
	AskKeep           Action = "ask-keep"
	AskDelete         Action = "ask-delete"
	AskMove           Action = "ask-move"
	AskSoftDelete     Action = "ask-softdelete"
	AskMoveOrDelete   Action = "ask-move-or-delete"
)

// branch is the successor pair of an ask node
type branch struct {
	question string
	yes, no  Action
}

var askBranches = map[Action]branch{
	AskKeep:         {"Keep", Keep, Delete},
	AskDelete:       {"Delete", Delete, Keep},
	AskSoftDelete:   {"Mark deleted", SoftDelete, Keep},
	AskMove:         {"Move to keep folder", Move, Keep},
	AskMoveOrDelete: {"Keep (move to keep folder)", Move, Delete},
}

var terminal = map[Action]bool{
	Keep:              true,
	Delete:            true,
	DeleteIfAudiobook: true,
	SoftDelete:        true,
	Move:              true,
}

// ParseAction accepts the action names in any case, with _ or - separators
func ParseAction(s string) (Action, error) {
	if strings.TrimSpace(s) == "" {
		return Keep, nil
	}
	a := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if a == "soft-delete" {
		a = SoftDelete
	}
	if a == "ask-soft-delete" {
		a = AskSoftDelete
	}
	if terminal[a] {
		return a, nil
	}
	if _, ok := askBranches[a]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown post-action %q: %w", s, util.ErrInvalidConfig)
}

// IsAsk reports whether a needs a confirmation
func (a Action) IsAsk() bool {
	_, ok := askBranches[a]
	return ok
}

// Resolve picks the successor of an ask node from the answer
func (a Action) Resolve(yes bool) Action {
	b, ok := askBranches[a]
	if !ok {
		return a
	}
	if yes {
		return b.yes
	}
	return b.no
}

// Question is the prompt text of an ask node
func (a Action) Question() string {
	return askBranches[a].question
}
