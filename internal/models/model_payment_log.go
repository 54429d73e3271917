package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentLog is an append-only record of every observed payment-provider
// event, one row per delivery. Rows are never mutated; they serve as the
// audit trail and the evidence for duplicate-delivery analysis.
type PaymentLog struct {
	ID string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	// EventID is the provider-assigned event id of the delivery that
	// produced this row.
	EventID        string         `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	Type           string         `gorm:"column:type;type:varchar(64);not null" json:"type"`
	OrderID        *string        `gorm:"column:order_id;type:uuid;index" json:"order_id"`
	SubscriptionID *string        `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`
	AmountCents    int64          `gorm:"column:amount_cents;type:bigint" json:"amount_cents"`
	Currency       string         `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Detail         datatypes.JSON `gorm:"column:detail;type:jsonb;default:'{}'" json:"detail"`
	OccurredAt     time.Time      `gorm:"column:occurred_at" json:"occurred_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (PaymentLog) TableName() string { return "payment_log" }
