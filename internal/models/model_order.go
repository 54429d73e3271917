package models

import (
	"time"

	"github.com/otwdelivery/otw-backend/pkg/types"
)

// Order is the delivery order document. Status transitions are monotonic per
// the state machine in pkg/types; PaymentIntentID is set at most once and
// never overwritten (idempotency anchor for duplicate webhook deliveries).
// Orders are never deleted, only anonymized on user deletion.
type Order struct {
	ID     string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Status types.OrderStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// TotalCents is the order total in the smallest currency unit.
	TotalCents int64  `gorm:"column:total_cents;type:bigint;not null" json:"total_cents"`
	Currency   string `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// PaymentIntentID is the external payment reference, set by the first
	// applied payment_intent.succeeded event.
	PaymentIntentID *string    `gorm:"column:payment_intent_id;type:varchar(128);index" json:"payment_intent_id"`
	FailureReason   *string    `gorm:"column:failure_reason;type:varchar(255)" json:"failure_reason"`
	PaidAt          *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
