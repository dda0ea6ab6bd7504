// Package rules holds the ruleset configuration and its evaluation against
// stored emails.
package rules

import (
	"fmt"
	"strings"
	"time"

	"rulemate/internal/action"
	"rulemate/internal/model"
)

// Field identifies the email attribute a rule inspects.
type Field int

const (
	FieldSender Field = iota + 1
	FieldSubject
	FieldSnippet
	FieldReceived
	FieldID
)

var fieldNames = map[string]Field{
	"from":     FieldSender,
	"sender":   FieldSender,
	"subject":  FieldSubject,
	"snippet":  FieldSnippet,
	"received": FieldReceived,
	"id":       FieldID,
}

// ParseField resolves a configured field name. "from" is an alias for the
// sender.
func ParseField(name string) (Field, error) {
	f, ok := fieldNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown field %q", name)
	}
	return f, nil
}

func (f Field) String() string {
	switch f {
	case FieldSender:
		return "sender"
	case FieldSubject:
		return "subject"
	case FieldSnippet:
		return "snippet"
	case FieldReceived:
		return "received"
	case FieldID:
		return "id"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// MarshalText renders the field by name.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Value returns the string form of the field on the email. Missing values
// are the empty string.
func (f Field) Value(email *model.Email) string {
	switch f {
	case FieldSender:
		return email.Sender
	case FieldSubject:
		return email.Subject
	case FieldSnippet:
		return email.Snippet
	case FieldReceived:
		if email.Received.IsZero() {
			return ""
		}
		return email.Received.Format(time.RFC3339)
	case FieldID:
		return email.ID
	}
	return ""
}

// Predicate is a comparison operator. Unknown predicates are kept so they can
// be reported when evaluated.
type Predicate string

const (
	Contains          Predicate = "contains"
	DoesNotContain    Predicate = "does_not_contain"
	Equals            Predicate = "equals"
	DoesNotEqual      Predicate = "does_not_equal"
	GreaterThanDays   Predicate = "greater_than_days"
	LessThanDays      Predicate = "less_than_days"
	GreaterThanMonths Predicate = "greater_than_months"
	LessThanMonths    Predicate = "less_than_months"
)

// Known reports whether the predicate can be evaluated.
func (p Predicate) Known() bool {
	switch p {
	case Contains, DoesNotContain, Equals, DoesNotEqual,
		GreaterThanDays, LessThanDays, GreaterThanMonths, LessThanMonths:
		return true
	}
	return false
}

// IsDate reports whether the predicate compares the received timestamp.
func (p Predicate) IsDate() bool {
	switch p {
	case GreaterThanDays, LessThanDays, GreaterThanMonths, LessThanMonths:
		return true
	}
	return false
}

// GlobalPredicate combines the rules of a ruleset.
type GlobalPredicate string

const (
	Any GlobalPredicate = "any"
	All GlobalPredicate = "all"
)

// Known reports whether the combinator is any or all.
func (g GlobalPredicate) Known() bool {
	return g == Any || g == All
}

// Rule is a single comparison against one field.
type Rule struct {
	Field     Field     `json:"field"`
	Predicate Predicate `json:"predicate"`
	Value     string    `json:"value"`
}

// Ruleset is a named group of rules and the actions applied on a match.
type Ruleset struct {
	Name            string          `json:"name"`
	GlobalPredicate GlobalPredicate `json:"global_predicate"`
	Rules           []Rule          `json:"rules"`
	Actions         []action.Action `json:"actions"`
}

// Match is a ruleset that matched an email together with its actions.
type Match struct {
	RuleName string
	Actions  []action.Action
}

// Static is a fixed list of rulesets.
type Static []Ruleset

// Rulesets returns s.
func (s Static) Rulesets() []Ruleset {
	return s
}
