package webhook

import (
	"time"

	"github.com/otwdelivery/otw-backend/pkg/types"
)

// Event is the verified, typed form of an inbound provider webhook. The
// reconciler and the subscription tracker switch over the concrete variants
// instead of inspecting raw payloads.
type Event interface {
	// EventID is the provider-assigned delivery id, the idempotency anchor.
	EventID() string
	// EventType is the provider's type string, kept for logging and audit.
	EventType() string
}

type base struct {
	ID   string
	Type string
}

func (b base) EventID() string   { return b.ID }
func (b base) EventType() string { return b.Type }

// PaymentSucceeded is emitted for payment_intent.succeeded.
type PaymentSucceeded struct {
	base
	PaymentIntentID string
	// OrderID comes from the intent's metadata; empty means the event cannot
	// be correlated and must be dropped.
	OrderID     string
	AmountCents int64
	Currency    string
	OccurredAt  time.Time
}

// NewPaymentSucceeded builds a verified success event. Exposed so tests and
// replay tooling can construct events without raw provider payloads.
func NewPaymentSucceeded(eventID, orderID, paymentIntentID string, amountCents int64, currency string, occurredAt time.Time) PaymentSucceeded {
	return PaymentSucceeded{
		base:            base{ID: eventID, Type: "payment_intent.succeeded"},
		PaymentIntentID: paymentIntentID,
		OrderID:         orderID,
		AmountCents:     amountCents,
		Currency:        currency,
		OccurredAt:      occurredAt,
	}
}

// PaymentFailed is emitted for payment_intent.payment_failed.
type PaymentFailed struct {
	base
	PaymentIntentID string
	OrderID         string
	Reason          string
	Currency        string
	OccurredAt      time.Time
}

// NewPaymentFailed builds a verified failure event.
func NewPaymentFailed(eventID, orderID, paymentIntentID, reason, currency string, occurredAt time.Time) PaymentFailed {
	return PaymentFailed{
		base:            base{ID: eventID, Type: "payment_intent.payment_failed"},
		PaymentIntentID: paymentIntentID,
		OrderID:         orderID,
		Reason:          reason,
		Currency:        currency,
		OccurredAt:      occurredAt,
	}
}

// SubscriptionData carries the provider subscription fields the tracker
// mirrors into the repository.
type SubscriptionData struct {
	SubscriptionID     string
	CustomerID         string
	UserID             string
	Status             types.SubscriptionStatus
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

type SubscriptionCreated struct {
	base
	Subscription SubscriptionData
}

// NewSubscriptionCreated builds a verified subscription-created event.
func NewSubscriptionCreated(eventID string, data SubscriptionData) SubscriptionCreated {
	return SubscriptionCreated{base: base{ID: eventID, Type: "customer.subscription.created"}, Subscription: data}
}

type SubscriptionUpdated struct {
	base
	Subscription SubscriptionData
}

// NewSubscriptionUpdated builds a verified subscription-updated event.
func NewSubscriptionUpdated(eventID string, data SubscriptionData) SubscriptionUpdated {
	return SubscriptionUpdated{base: base{ID: eventID, Type: "customer.subscription.updated"}, Subscription: data}
}

type SubscriptionDeleted struct {
	base
	Subscription SubscriptionData
}

// NewSubscriptionDeleted builds a verified subscription-deleted event.
func NewSubscriptionDeleted(eventID string, data SubscriptionData) SubscriptionDeleted {
	return SubscriptionDeleted{base: base{ID: eventID, Type: "customer.subscription.deleted"}, Subscription: data}
}

// Unhandled is a verified event of a type this service does not process.
// It is acknowledged so the provider stops retrying.
type Unhandled struct {
	base
}
