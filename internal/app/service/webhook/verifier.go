package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/fx"

	cfgpkg "github.com/otwdelivery/otw-backend/pkg/config"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

var (
	// ErrInvalidSignature means the Stripe-Signature header does not match
	// the payload, or the signed timestamp is outside tolerance. The caller
	// must answer 400 so the provider does not retry.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrMalformedPayload means the body passed signature verification but
	// cannot be decoded into an event envelope.
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)

const DefaultTolerance = 5 * time.Minute

// Verifier validates raw webhook deliveries and produces typed events.
// Pure validation: no side effects, no state.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(cfg *cfgpkg.Config) *Verifier {
	tolerance := cfg.Stripe.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: cfg.Stripe.WebhookSecret, tolerance: tolerance}
}

// Verify checks the signature header against the raw body and decodes the
// event into its typed variant. The body must be the unparsed request bytes;
// any re-serialization before this call breaks the signature.
// API version mismatches are ignored: the account's configured version is
// independent of the SDK's pinned one, and the signature already proves
// authenticity.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) (Event, error) {
	ev, err := stripewebhook.ConstructEventWithOptions(rawBody, signatureHeader, v.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v.decode(&ev)
}

func isSignatureErr(err error) bool {
	return errors.Is(err, stripewebhook.ErrNotSigned) ||
		errors.Is(err, stripewebhook.ErrNoValidSignature) ||
		errors.Is(err, stripewebhook.ErrInvalidHeader) ||
		errors.Is(err, stripewebhook.ErrTooOld)
}

func (v *Verifier) decode(ev *stripe.Event) (Event, error) {
	b := base{ID: ev.ID, Type: string(ev.Type)}

	switch ev.Type {
	case "payment_intent.succeeded":
		pi, err := decodePaymentIntent(ev)
		if err != nil {
			return nil, err
		}
		return PaymentSucceeded{
			base:            b,
			PaymentIntentID: pi.ID,
			OrderID:         pi.Metadata["orderId"],
			AmountCents:     pi.Amount,
			Currency:        string(pi.Currency),
			OccurredAt:      time.Unix(ev.Created, 0),
		}, nil

	case "payment_intent.payment_failed":
		pi, err := decodePaymentIntent(ev)
		if err != nil {
			return nil, err
		}
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return PaymentFailed{
			base:            b,
			PaymentIntentID: pi.ID,
			OrderID:         pi.Metadata["orderId"],
			Reason:          reason,
			Currency:        string(pi.Currency),
			OccurredAt:      time.Unix(ev.Created, 0),
		}, nil

	case "customer.subscription.created":
		sub, err := decodeSubscription(ev)
		if err != nil {
			return nil, err
		}
		return SubscriptionCreated{base: b, Subscription: sub}, nil

	case "customer.subscription.updated":
		sub, err := decodeSubscription(ev)
		if err != nil {
			return nil, err
		}
		return SubscriptionUpdated{base: b, Subscription: sub}, nil

	case "customer.subscription.deleted":
		sub, err := decodeSubscription(ev)
		if err != nil {
			return nil, err
		}
		return SubscriptionDeleted{base: b, Subscription: sub}, nil
	}

	return Unhandled{base: b}, nil
}

func decodePaymentIntent(ev *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", ErrMalformedPayload, err)
	}
	return &pi, nil
}

func decodeSubscription(ev *stripe.Event) (SubscriptionData, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return SubscriptionData{}, fmt.Errorf("%w: subscription: %v", ErrMalformedPayload, err)
	}

	data := SubscriptionData{
		SubscriptionID: sub.ID,
		UserID:         sub.Metadata["userId"],
		Status:         mapSubscriptionStatus(sub.Status),
	}
	if sub.Customer != nil {
		data.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		data.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0)
		data.CurrentPeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		data.CurrentPeriodEnd = &t
	}
	return data, nil
}

func mapSubscriptionStatus(s stripe.SubscriptionStatus) types.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return types.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return types.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return types.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusUnpaid:
		return types.SubscriptionStatusUnpaid
	case stripe.SubscriptionStatusCanceled:
		return types.SubscriptionStatusCanceled
	default:
		return types.SubscriptionStatusIncomplete
	}
}

var Module = fx.Options(
	fx.Provide(NewVerifier),
)
