package reconciler

import (
	"fmt"

	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// succeededPlan is the decision for one payment_intent.succeeded delivery
// against the current order row. Planning is pure; the caller executes it
// under the order row lock.
type succeededPlan struct {
	// setPaid moves pending -> paid, records the payment intent and paidAt.
	setPaid bool
	// anchorOnly records the payment intent on the order without a status
	// change (success observed for an order already past pending).
	anchorOnly bool
	// fraud flags a success carrying a different payment intent than the one
	// already anchored on the order.
	fraud bool
	warn  string
}

func planSucceeded(o *models.Order, paymentIntentID string) succeededPlan {
	if o.PaymentIntentID != nil {
		if *o.PaymentIntentID == paymentIntentID {
			// Same confirmation delivered again under a new event id: the
			// order is settled, only the audit row is appended.
			return succeededPlan{}
		}
		return succeededPlan{
			fraud: true,
			warn: fmt.Sprintf("conflicting payment intent %s, order already anchored to %s",
				paymentIntentID, *o.PaymentIntentID),
		}
	}

	switch {
	case o.Status == types.OrderStatusPending:
		return succeededPlan{setPaid: true}
	case o.Status.IsTerminal():
		return succeededPlan{warn: fmt.Sprintf("payment success for terminal order in status %s", o.Status)}
	default:
		return succeededPlan{
			anchorOnly: true,
			warn:       fmt.Sprintf("payment success for order already in status %s", o.Status),
		}
	}
}

// failedPlan is the decision for one payment_intent.payment_failed delivery.
type failedPlan struct {
	apply bool
	warn  string
}

func planFailed(o *models.Order) failedPlan {
	switch {
	case o.Status.IsTerminal():
		return failedPlan{warn: fmt.Sprintf("payment failure for terminal order in status %s", o.Status)}
	case o.Status == types.OrderStatusPending:
		return failedPlan{apply: true}
	default:
		// Failure arriving after success was applied: the paid state stands,
		// the provider gives no refund semantics to act on.
		return failedPlan{warn: fmt.Sprintf("payment failure after order reached status %s, not reverted", o.Status)}
	}
}
