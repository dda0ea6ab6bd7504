// Package action defines the mailbox mutations a ruleset can request.
//
// Rules files spell actions as strings ("mark_as_read", "move_to_label:Finance").
// Internally an action is a kind plus an optional label, so label names that
// contain the delimiter survive the round trip.
package action

import "strings"

// Kind identifies an action. Values outside the known set are kept verbatim
// so the executor can record them as failed.
type Kind string

const (
	MarkAsRead   Kind = "mark_as_read"
	MarkAsUnread Kind = "mark_as_unread"
	MoveToLabel  Kind = "move_to_label"
)

const labelSeparator = ":"

// Action is a parsed action: the kind and, for MoveToLabel, the label name.
type Action struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label,omitempty"`
}

// Parse converts the rules-file syntax into an Action. Only the first ':'
// separates the kind from the label.
func Parse(s string) Action {
	s = strings.TrimSpace(s)
	if name, label, ok := strings.Cut(s, labelSeparator); ok && Kind(name) == MoveToLabel {
		return Action{Kind: MoveToLabel, Label: label}
	}
	return Action{Kind: Kind(s)}
}

// Known reports whether the executor knows how to run the action.
func (a Action) Known() bool {
	switch a.Kind {
	case MarkAsRead, MarkAsUnread:
		return true
	case MoveToLabel:
		return a.Label != ""
	}
	return false
}

// String renders the action back into rules-file syntax.
func (a Action) String() string {
	if a.Kind == MoveToLabel {
		return string(a.Kind) + labelSeparator + a.Label
	}
	return string(a.Kind)
}
