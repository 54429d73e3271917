package subscription

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/otwdelivery/otw-backend/internal/app/service/webhook"
	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// ErrOrphanedSubscription marks a created event with no resolvable owning
// user. Such events are logged and dropped, never retried.
var ErrOrphanedSubscription = errors.New("subscription has no owning user")

// Service mirrors provider subscription lifecycle events into the repository.
// Each handler keeps Subscription.Status equal to the latest provider-reported
// status and updates the owning user's denormalized copy in the same
// transaction.
type Service struct {
	store Store
	log   *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return NewWithStore(newGormStore(db), log)
}

func NewWithStore(store Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log}
}

// Handle routes a verified subscription event to its lifecycle handler.
// Lookup failures are logged and swallowed so one handler's failure never
// aborts processing of the delivery; only store errors propagate.
func (s *Service) Handle(ctx context.Context, ev webhook.Event) error {
	switch e := ev.(type) {
	case webhook.SubscriptionCreated:
		return s.HandleCreated(ctx, e.Subscription)
	case webhook.SubscriptionUpdated:
		return s.HandleUpdated(ctx, e.Subscription)
	case webhook.SubscriptionDeleted:
		return s.HandleDeleted(ctx, e.Subscription)
	default:
		return fmt.Errorf("subscription: unsupported event type %s", ev.EventType())
	}
}

// HandleCreated upserts the Subscription mirror. The owning user comes from
// the event's customer metadata; without it the subscription is orphaned and
// the event is dropped.
func (s *Service) HandleCreated(ctx context.Context, data webhook.SubscriptionData) error {
	if data.UserID == "" {
		logctx.FromCtx(ctx, s.log).Warnw("orphaned_subscription_dropped",
			"subscription_id", data.SubscriptionID, "customer_id", data.CustomerID,
			"error", ErrOrphanedSubscription.Error())
		return nil
	}

	return s.store.InTx(ctx, func(tx Store) error {
		sub := &models.Subscription{
			ID:                 data.SubscriptionID,
			UserID:             data.UserID,
			CustomerID:         data.CustomerID,
			Status:             data.Status,
			PriceID:            data.PriceID,
			CurrentPeriodStart: data.CurrentPeriodStart,
			CurrentPeriodEnd:   data.CurrentPeriodEnd,
		}
		if existing, err := tx.GetSubscription(ctx, data.SubscriptionID); err == nil {
			sub.CreatedAt = existing.CreatedAt
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.MirrorToUser(ctx, data.UserID, sub.ID, string(sub.Status))
	})
}

// HandleUpdated refreshes status and period fields. The owning user is read
// from the stored record, not the event: update deliveries may omit customer
// metadata.
func (s *Service) HandleUpdated(ctx context.Context, data webhook.SubscriptionData) error {
	return s.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubscription(ctx, data.SubscriptionID)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				logctx.FromCtx(ctx, s.log).Warnw("subscription_update_unmatched",
					"subscription_id", data.SubscriptionID)
				return nil
			}
			return err
		}

		sub.Status = data.Status
		if data.PriceID != "" {
			sub.PriceID = data.PriceID
		}
		if data.CurrentPeriodStart != nil {
			sub.CurrentPeriodStart = data.CurrentPeriodStart
		}
		if data.CurrentPeriodEnd != nil {
			sub.CurrentPeriodEnd = data.CurrentPeriodEnd
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.MirrorToUser(ctx, sub.UserID, sub.ID, string(sub.Status))
	})
}

// HandleDeleted marks the subscription canceled. Re-applying to an already
// canceled subscription is a no-op.
func (s *Service) HandleDeleted(ctx context.Context, data webhook.SubscriptionData) error {
	return s.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubscription(ctx, data.SubscriptionID)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				logctx.FromCtx(ctx, s.log).Warnw("subscription_delete_unmatched",
					"subscription_id", data.SubscriptionID)
				return nil
			}
			return err
		}
		if sub.Status.Canceled() {
			return nil
		}

		sub.Status = types.SubscriptionStatusCanceled
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.MirrorToUser(ctx, sub.UserID, sub.ID, string(sub.Status))
	})
}
