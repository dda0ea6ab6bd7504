package model

import (
	"time"

	"rulemate/internal/action"
)

// ActionStatus is the lifecycle state of a queued action.
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusSuccess || s == ActionStatusFailed
}

// ActionEntry is one queued intent to mutate a message.
type ActionEntry struct {
	ID           uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	EmailID      string       `json:"email_id" gorm:"type:varchar(255);not null;index"`
	Action       action.Kind  `json:"action" gorm:"type:varchar(64);not null"`
	Label        string       `json:"label,omitempty" gorm:"type:varchar(255)"`
	Status       ActionStatus `json:"status" gorm:"type:varchar(16);not null;default:pending;index"`
	RetryCount   int          `json:"retry_count" gorm:"not null;default:0"`
	FromRuleName string       `json:"from_rule_name" gorm:"type:varchar(255)"`
	LastError    string       `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Email *Email `json:"email,omitempty" gorm:"foreignKey:EmailID;references:ID"`
}

// TableName specifies the table name for ActionEntry
func (ActionEntry) TableName() string {
	return "action_queue"
}

// Intent returns the tagged action carried by the entry.
func (e ActionEntry) Intent() action.Action {
	return action.Action{Kind: e.Action, Label: e.Label}
}

// NewActionEntry builds a pending entry for the given email and action.
func NewActionEntry(emailID string, a action.Action, ruleName string) ActionEntry {
	return ActionEntry{
		EmailID:      emailID,
		Action:       a.Kind,
		Label:        a.Label,
		Status:       ActionStatusPending,
		FromRuleName: ruleName,
	}
}
