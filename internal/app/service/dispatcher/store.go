package dispatcher

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/otwdelivery/otw-backend/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserStore resolves notification targets and prunes dead device tokens.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error
}

type gormUserStore struct {
	db *gorm.DB
}

func newGormUserStore(db *gorm.DB) *gormUserStore { return &gormUserStore{db: db} }

func (s *gormUserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *gormUserStore) RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	kept := lo.Filter(u.DeviceTokens, func(t string, _ int) bool {
		return !lo.Contains(tokens, t)
	})
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("device_tokens", datatypes.JSONSlice[string](kept)).Error
}
