package models

import (
	"time"

	"gorm.io/datatypes"
)

// User holds the notification-relevant slice of the user document: the push
// device token set, per-channel preferences, and the denormalized
// subscription copy.
type User struct {
	ID    string `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Email string `gorm:"column:email;type:varchar(255)" json:"email"`
	Name  string `gorm:"column:name;type:varchar(128)" json:"name"`
	// DeviceTokens is the push-messaging device token set. Tokens the push
	// provider reports as permanently invalid are pruned best-effort.
	DeviceTokens datatypes.JSONSlice[string] `gorm:"column:device_tokens;type:jsonb;default:'[]'" json:"device_tokens"`
	PushEnabled  bool                        `gorm:"column:push_enabled;not null;default:true" json:"push_enabled"`
	EmailEnabled bool                        `gorm:"column:email_enabled;not null;default:true" json:"email_enabled"`
	// Denormalized subscription copy, mirrored by the lifecycle tracker.
	SubscriptionID     *string   `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`
	SubscriptionStatus *string   `gorm:"column:subscription_status;type:varchar(32)" json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (User) TableName() string { return "app_user" }

// HasToken reports whether token is currently in the device token set.
func (u *User) HasToken(token string) bool {
	if u == nil {
		return false
	}
	for _, t := range u.DeviceTokens {
		if t == token {
			return true
		}
	}
	return false
}
