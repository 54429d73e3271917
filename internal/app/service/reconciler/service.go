package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/otwdelivery/otw-backend/internal/app/service/webhook"
	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// Outcome classifies what a reconciliation did. Every outcome except a
// returned error is acknowledged with success to the provider.
type Outcome string

const (
	// OutcomeApplied means the order state was mutated.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the event id was seen before; nothing written.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event was audited but the order state was
	// protected (terminal state, already-anchored payment intent).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDropped means the event cannot be correlated to an order.
	OutcomeDropped Outcome = "dropped"
)

// Result reports one reconciliation and carries the side-effect intents for
// the caller to queue.
type Result struct {
	Outcome     Outcome
	OrderID     string
	Status      types.OrderStatus
	AmountCents int64
	Currency    string
	Intents     []types.SideEffectIntent
}

type Service struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return NewWithStore(newGormStore(db), log)
}

func NewWithStore(store Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Reconcile applies one verified payment event to the order repository.
// Duplicate deliveries (same provider event id) are no-ops that still return
// success; store failures are returned so the caller answers 5xx and the
// provider retries.
func (s *Service) Reconcile(ctx context.Context, ev webhook.Event) (*Result, error) {
	switch e := ev.(type) {
	case webhook.PaymentSucceeded:
		if e.OrderID == "" {
			logctx.FromCtx(ctx, s.log).Warnw("payment_event_dropped",
				"event_id", e.EventID(), "type", e.EventType(), "reason", "missing orderId metadata")
			return &Result{Outcome: OutcomeDropped}, nil
		}
		return s.applySucceeded(ctx, e)
	case webhook.PaymentFailed:
		if e.OrderID == "" {
			logctx.FromCtx(ctx, s.log).Warnw("payment_event_dropped",
				"event_id", e.EventID(), "type", e.EventType(), "reason", "missing orderId metadata")
			return &Result{Outcome: OutcomeDropped}, nil
		}
		return s.applyFailed(ctx, e)
	default:
		return nil, fmt.Errorf("reconciler: unsupported event type %s", ev.EventType())
	}
}

func (s *Service) applySucceeded(ctx context.Context, e webhook.PaymentSucceeded) (*Result, error) {
	result := &Result{OrderID: e.OrderID, AmountCents: e.AmountCents, Currency: e.Currency}

	err := s.store.InTx(ctx, func(tx Store) error {
		fresh, err := tx.MarkEventProcessed(ctx, e.EventID(), e.EventType())
		if err != nil {
			return err
		}
		if !fresh {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		o, err := tx.GetOrderForUpdate(ctx, e.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				logctx.FromCtx(ctx, s.log).Warnw("payment_event_dropped",
					"event_id", e.EventID(), "order_id", e.OrderID, "reason", "order not found")
				result.Outcome = OutcomeDropped
				return nil
			}
			return err
		}

		plan := planSucceeded(o, e.PaymentIntentID)
		if plan.warn != "" {
			logctx.FromCtx(ctx, s.log).Warnw("payment_success_protected",
				"event_id", e.EventID(), "order_id", o.ID, "status", o.Status, "detail", plan.warn)
		}

		switch {
		case plan.setPaid:
			o.Status = types.OrderStatusPaid
			o.PaymentIntentID = lo.ToPtr(e.PaymentIntentID)
			o.PaidAt = lo.ToPtr(s.now())
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			result.Outcome = OutcomeApplied
			result.Intents = append(result.Intents, types.SideEffectIntent{
				Kind:    types.IntentKindNotifyOrderEvent,
				OrderID: o.ID,
				UserID:  o.UserID,
				Event:   types.OrderEventPaid,
			})
		case plan.anchorOnly:
			o.PaymentIntentID = lo.ToPtr(e.PaymentIntentID)
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			result.Outcome = OutcomeIgnored
		default:
			result.Outcome = OutcomeIgnored
		}

		if plan.fraud {
			result.Intents = append(result.Intents, types.SideEffectIntent{
				Kind:    types.IntentKindFraudAlert,
				OrderID: o.ID,
				UserID:  o.UserID,
				Data:    map[string]string{"payment_intent_id": e.PaymentIntentID},
			})
		}

		result.Status = o.Status
		return tx.AppendPaymentLog(ctx, &models.PaymentLog{
			EventID:     e.EventID(),
			Type:        e.EventType(),
			OrderID:     lo.ToPtr(o.ID),
			AmountCents: e.AmountCents,
			Currency:    e.Currency,
			OccurredAt:  e.OccurredAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s: %w", e.EventID(), err)
	}
	return result, nil
}

func (s *Service) applyFailed(ctx context.Context, e webhook.PaymentFailed) (*Result, error) {
	result := &Result{OrderID: e.OrderID, Currency: e.Currency}

	err := s.store.InTx(ctx, func(tx Store) error {
		fresh, err := tx.MarkEventProcessed(ctx, e.EventID(), e.EventType())
		if err != nil {
			return err
		}
		if !fresh {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		o, err := tx.GetOrderForUpdate(ctx, e.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				logctx.FromCtx(ctx, s.log).Warnw("payment_event_dropped",
					"event_id", e.EventID(), "order_id", e.OrderID, "reason", "order not found")
				result.Outcome = OutcomeDropped
				return nil
			}
			return err
		}

		plan := planFailed(o)
		if plan.warn != "" {
			logctx.FromCtx(ctx, s.log).Warnw("payment_failure_protected",
				"event_id", e.EventID(), "order_id", o.ID, "status", o.Status, "detail", plan.warn)
		}

		if plan.apply {
			o.Status = types.OrderStatusPaymentFailed
			o.FailureReason = lo.ToPtr(e.Reason)
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			result.Outcome = OutcomeApplied
			result.Intents = append(result.Intents, types.SideEffectIntent{
				Kind:    types.IntentKindNotifyOrderEvent,
				OrderID: o.ID,
				UserID:  o.UserID,
				Event:   types.OrderEventPaymentFailed,
				Data:    map[string]string{"reason": e.Reason},
			})
		} else {
			result.Outcome = OutcomeIgnored
		}

		result.Status = o.Status
		return tx.AppendPaymentLog(ctx, &models.PaymentLog{
			EventID:    e.EventID(),
			Type:       e.EventType(),
			OrderID:    lo.ToPtr(o.ID),
			Currency:   e.Currency,
			OccurredAt: e.OccurredAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s: %w", e.EventID(), err)
	}
	return result, nil
}

// GetOrder returns one order by id. Exposed for the RPC surface.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ReconcileStatusChange is the second entry point, invoked after an order
// changed outside the webhook path. UpdateOrderStatus feeds it once its
// transition committed. It produces notification intents only; the status
// write has already happened.
func (s *Service) ReconcileStatusChange(ctx context.Context, orderID string, oldStatus, newStatus types.OrderStatus) []types.SideEffectIntent {
	if oldStatus == newStatus {
		return nil
	}

	userID := ""
	if o, err := s.store.GetOrder(ctx, orderID); err == nil {
		userID = o.UserID
	} else {
		logctx.FromCtx(ctx, s.log).Warnw("status_change_order_lookup_failed",
			"order_id", orderID, "error", err.Error())
	}

	return []types.SideEffectIntent{{
		Kind:    types.IntentKindNotifyOrderEvent,
		OrderID: orderID,
		UserID:  userID,
		Event:   types.OrderEvent(newStatus),
		Data:    map[string]string{"old_status": string(oldStatus), "new_status": string(newStatus)},
	}}
}

// UpdateOrderStatus performs an operator-driven transition under the order
// row lock and returns the intents the change produces.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, newStatus types.OrderStatus) (*models.Order, []types.SideEffectIntent, error) {
	if !newStatus.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown status %s", ErrIllegalTransition, newStatus)
	}

	var updated *models.Order
	var oldStatus types.OrderStatus
	err := s.store.InTx(ctx, func(tx Store) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, newStatus)
		}
		oldStatus = o.Status
		o.Status = newStatus
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return updated, s.ReconcileStatusChange(ctx, updated.ID, oldStatus, newStatus), nil
}
