package model

import "time"

// CheckpointID is the primary key of the single checkpoint row.
const CheckpointID uint = 1

// Checkpoint holds the lower bound used by the fetcher.
type Checkpoint struct {
	ID                   uint      `json:"-" gorm:"primaryKey"`
	LastFetchedTimestamp time.Time `json:"last_fetched_timestamp" gorm:"not null"`
}

// TableName specifies the table name for Checkpoint
func (Checkpoint) TableName() string {
	return "checkpoint"
}
