package analytics

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/tool"
)

// Counter names. Revenue counters are partitioned by currency via Label.
const (
	CounterOrdersPaid   = "orders_paid"
	CounterOrdersFailed = "orders_failed"
	CounterRevenueCents = "revenue_cents"
)

// periodKeys returns the daily and monthly bucket keys for t.
func periodKeys(t time.Time) (day, month string) {
	return t.UTC().Format("2006-01-02"), t.UTC().Format("2006-01")
}

// Service maintains denormalized daily/monthly aggregates. Increments are
// arithmetic upserts so concurrent webhook invocations never lose counts;
// callers only feed it events the reconciler actually applied, so the
// event-id dedup upstream keeps the counters idempotent.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// RecordOrderPaid bumps the paid-order count and revenue buckets for both the
// daily and monthly period. Best-effort: failures log, never propagate.
func (s *Service) RecordOrderPaid(ctx context.Context, amountCents int64, currency string, at time.Time) {
	day, month := periodKeys(at)
	for _, period := range []string{day, month} {
		s.increment(ctx, period, CounterOrdersPaid, "", 1)
		s.increment(ctx, period, CounterRevenueCents, currency, amountCents)
	}
}

// RecordOrderFailed bumps the failed-order count buckets.
func (s *Service) RecordOrderFailed(ctx context.Context, at time.Time) {
	day, month := periodKeys(at)
	for _, period := range []string{day, month} {
		s.increment(ctx, period, CounterOrdersFailed, "", 1)
	}
}

func (s *Service) increment(ctx context.Context, periodKey, counter, label string, delta int64) {
	row := &models.AnalyticsCounter{
		ID:        tool.GenerateUUIDV7(),
		PeriodKey: periodKey,
		Counter:   counter,
		Label:     label,
		Value:     delta,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_key"}, {Name: "counter"}, {Name: "label"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      gorm.Expr("analytics_counter.value + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("counter_increment_failed",
			"period", periodKey, "counter", counter, "label", label, "error", err.Error())
	}
}

// Query returns all counter rows for a period key, ordered for stable output.
func (s *Service) Query(ctx context.Context, periodKey string) ([]models.AnalyticsCounter, error) {
	var rows []models.AnalyticsCounter
	err := s.db.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Order("counter, label").
		Find(&rows).Error
	return rows, err
}

var Module = fx.Options(
	fx.Provide(New),
)
