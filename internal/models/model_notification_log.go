package models

import (
	"time"

	"github.com/otwdelivery/otw-backend/pkg/types"
)

// NotificationLog records one dispatch attempt on one channel. Append-only,
// written after every attempt regardless of outcome; this durable audit trail
// substitutes for guaranteed delivery.
type NotificationLog struct {
	ID string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	// Recipient is a user id, a token, an email address, or a topic/condition
	// expression depending on the channel and target.
	Recipient string                    `gorm:"column:recipient;type:varchar(512);not null" json:"recipient"`
	Channel   types.NotificationChannel `gorm:"column:channel;type:varchar(16);not null" json:"channel"`
	Success   bool                      `gorm:"column:success;not null" json:"success"`
	Error     *string                   `gorm:"column:error;type:varchar(512)" json:"error"`
	TraceID   string                    `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	CreatedAt time.Time                 `json:"created_at"`
}

func (NotificationLog) TableName() string { return "notification_log" }
