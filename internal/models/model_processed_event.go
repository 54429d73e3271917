package models

import "time"

// ProcessedEvent records provider event ids that have already mutated state.
// The row is inserted inside the same transaction as the order mutation; an
// insert conflict means the event is a re-delivery and must be acknowledged
// without applying it again.
type ProcessedEvent struct {
	EventID   string    `gorm:"column:event_id;type:varchar(128);primary_key" json:"event_id"`
	Type      string    `gorm:"column:type;type:varchar(64);not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }
