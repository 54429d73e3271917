package types

// SubscriptionStatus mirrors the payment provider's subscription status enum.
// The stored value must always equal the latest provider-reported status.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Canceled() bool {
	return s == SubscriptionStatusCanceled
}
