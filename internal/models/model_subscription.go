package models

import (
	"time"

	"github.com/otwdelivery/otw-backend/pkg/types"
)

// Subscription mirrors one provider subscription. The primary key is the
// provider's subscription id; Status must always equal the latest
// provider-reported status. The owning User carries a denormalized copy of
// id+status, updated in the same transaction.
type Subscription struct {
	ID         string                   `gorm:"column:id;type:varchar(128);primary_key" json:"id"`
	UserID     string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CustomerID string                   `gorm:"column:customer_id;type:varchar(128);not null;index" json:"customer_id"`
	Status     types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	PriceID    string                   `gorm:"column:price_id;type:varchar(128)" json:"price_id"`
	// Current billing period reported by the provider.
	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

func (s *Subscription) Active() bool {
	return s != nil && (s.Status == types.SubscriptionStatusActive || s.Status == types.SubscriptionStatusTrialing)
}
