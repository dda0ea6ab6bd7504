package model

import (
	"time"
)

// Email is a message observed in the mailbox. Rows are inserted once by the
// fetcher and only ever flipped to processed by the rule engine.
type Email struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(255)"`
	Sender      string    `json:"sender" gorm:"type:varchar(512)"`
	Subject     string    `json:"subject" gorm:"type:text"`
	Snippet     string    `json:"snippet" gorm:"type:text"`
	Received    time.Time `json:"received" gorm:"index"`
	IsRead      bool      `json:"is_read"`
	IsProcessed bool      `json:"is_processed" gorm:"default:false;index"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// TableName specifies the table name for Email
func (Email) TableName() string {
	return "emails"
}
