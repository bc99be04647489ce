package domain

import (
	"fmt"
	"strings"
)

// Action is a lifecycle transition a caller can request.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionLaunch
	ActionFreeze
	ActionArchive
	ActionFinish
	ActionRestart
	ActionDelete
)

var actionNames = map[Action]string{
	ActionCreate:  "create",
	ActionLaunch:  "launch",
	ActionFreeze:  "freeze",
	ActionArchive: "archive",
	ActionFinish:  "finish",
	ActionRestart: "restart",
	ActionDelete:  "delete",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction resolves user input into an Action.
func ParseAction(value string) (Action, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for a, name := range actionNames {
		if name == v {
			return a, nil
		}
	}
	return 0, &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", value)}
}

// RequiresSnapshot reports whether the transition must carry a snapshot.
func (a Action) RequiresSnapshot() bool {
	return a == ActionFreeze || a == ActionFinish
}

// SnapshotKind returns the snapshot kind recorded by a snapshot-bearing action.
func (a Action) SnapshotKind() SnapshotKind {
	if a == ActionFinish {
		return SnapshotFinish
	}
	return SnapshotFreeze
}
