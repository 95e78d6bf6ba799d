package model

import (
	"time"

	"gorm.io/datatypes"
)

// Command is one persisted row of the replicated command history. The session
// loads every row at startup and replays it to reconstruct state; CommandID is
// the idempotency key, Timestamp orders commands within a category.
type Command struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	CommandID string         `gorm:"uniqueIndex;size:36;not null" json:"command_id"`
	Category  string         `gorm:"index:idx_command_category;size:24;not null" json:"category"`
	Type      string         `gorm:"size:48;not null" json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	Timestamp int64          `gorm:"index;not null" json:"timestamp"` // unix milliseconds

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}
