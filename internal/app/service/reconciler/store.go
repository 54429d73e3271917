package reconciler

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/tool"
)

var (
	// ErrOrderNotFound means the event's orderId does not correspond to any
	// stored order.
	ErrOrderNotFound = errors.New("reconciler: order not found")
	// ErrIllegalTransition is returned for operator status changes the state
	// machine does not allow.
	ErrIllegalTransition = errors.New("reconciler: illegal status transition")
)

// Store is the narrow order-repository surface the reconciler needs. All
// mutations for one event happen inside a single InTx call so that the
// check-then-write on the order row is atomic with the processed-event
// insert.
type Store interface {
	// InTx runs fn inside one transaction; the Store passed to fn operates
	// on that transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	// GetOrderForUpdate loads the order with a row lock held until the
	// surrounding transaction ends.
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	// MarkEventProcessed inserts the event id; it returns false when the id
	// was already present (duplicate delivery).
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	AppendPaymentLog(ctx context.Context, row *models.PaymentLog) error
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

func (s *gormStore) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (s *gormStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (s *gormStore) SaveOrder(ctx context.Context, o *models.Order) error {
	if err := s.db.WithContext(ctx).Save(o).Error; err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *gormStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedEvent{EventID: eventID, Type: eventType})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record processed event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) AppendPaymentLog(ctx context.Context, row *models.PaymentLog) error {
	if row.ID == "" {
		row.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}
	return nil
}
