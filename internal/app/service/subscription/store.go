package subscription

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/otwdelivery/otw-backend/internal/models"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// Store persists the Subscription mirror and the denormalized copy on the
// owning user. InTx keeps the pair consistent: both writes commit or neither.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	MirrorToUser(ctx context.Context, userID string, subID, status string) error
}

type gormStore struct {
	db *gorm.DB
}

func newGormStore(db *gorm.DB) *gormStore { return &gormStore{db: db} }

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *gormStore) MirrorToUser(ctx context.Context, userID string, subID, status string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"subscription_id":     subID,
			"subscription_status": status,
		}).Error
}
