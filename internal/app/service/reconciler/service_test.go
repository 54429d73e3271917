package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otwdelivery/otw-backend/internal/app/service/webhook"
	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// memStore is an in-memory Store used to exercise the reconciler without a
// database. InTx applies fn directly; the tests never exercise rollback.
type memStore struct {
	orders      map[string]*models.Order
	processed   map[string]string
	paymentLogs []*models.PaymentLog
	reads       int
}

func newMemStore(orders ...*models.Order) *memStore {
	m := &memStore{orders: map[string]*models.Order{}, processed: map[string]string{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Store) error) error { return fn(m) }

func (m *memStore) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.reads++
	return m.GetOrderForUpdate(ctx, orderID)
}

func (m *memStore) SaveOrder(ctx context.Context, o *models.Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if _, ok := m.processed[eventID]; ok {
		return false, nil
	}
	m.processed[eventID] = eventType
	return true, nil
}

func (m *memStore) AppendPaymentLog(ctx context.Context, row *models.PaymentLog) error {
	m.paymentLogs = append(m.paymentLogs, row)
	return nil
}

func (m *memStore) logsForEvent(eventID string) []*models.PaymentLog {
	var out []*models.PaymentLog
	for _, l := range m.paymentLogs {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	return out
}

func pendingOrder(id string) *models.Order {
	return &models.Order{
		ID:         id,
		UserID:     "user-1",
		Status:     types.OrderStatusPending,
		TotalCents: 2350,
		Currency:   "usd",
	}
}

func succeededEvent(eventID, orderID, piID string) webhook.PaymentSucceeded {
	return webhook.NewPaymentSucceeded(eventID, orderID, piID, 2350, "usd", time.Now())
}

func failedEvent(eventID, orderID, piID, reason string) webhook.PaymentFailed {
	return webhook.NewPaymentFailed(eventID, orderID, piID, reason, "usd", time.Now())
}

func TestReconcile_SucceededAppliedOnce(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	ev := succeededEvent("evt-1", "order-1", "pi-1")

	res, err := svc.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, types.OrderStatusPaid, res.Status)
	require.Len(t, res.Intents, 1)
	require.Equal(t, types.IntentKindNotifyOrderEvent, res.Intents[0].Kind)
	require.Equal(t, types.OrderEventPaid, res.Intents[0].Event)

	o := store.orders["order-1"]
	require.Equal(t, types.OrderStatusPaid, o.Status)
	require.NotNil(t, o.PaymentIntentID)
	require.Equal(t, "pi-1", *o.PaymentIntentID)
	require.NotNil(t, o.PaidAt)
	require.Len(t, store.logsForEvent("evt-1"), 1)

	// Same event id delivered again: no mutation, no second log row, still ok.
	res2, err := svc.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res2.Outcome)
	require.Empty(t, res2.Intents)
	require.Len(t, store.logsForEvent("evt-1"), 1)
	require.Equal(t, types.OrderStatusPaid, store.orders["order-1"].Status)
}

func TestReconcile_SucceededSamePaymentIntentNewEventID(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	_, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "order-1", "pi-1"))
	require.NoError(t, err)

	// Provider re-sends the same confirmation under a fresh event id: the
	// order is untouched but the delivery is still audited.
	res, err := svc.Reconcile(context.Background(), succeededEvent("evt-2", "order-1", "pi-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Empty(t, res.Intents)
	require.Len(t, store.logsForEvent("evt-2"), 1)
	require.Equal(t, types.OrderStatusPaid, store.orders["order-1"].Status)
}

func TestReconcile_ConflictingPaymentIntentRaisesFraudAlert(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	_, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "order-1", "pi-1"))
	require.NoError(t, err)

	res, err := svc.Reconcile(context.Background(), succeededEvent("evt-2", "order-1", "pi-2"))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Len(t, res.Intents, 1)
	require.Equal(t, types.IntentKindFraudAlert, res.Intents[0].Kind)
	require.Equal(t, "pi-1", *store.orders["order-1"].PaymentIntentID)
}

func TestReconcile_TerminalStateProtected(t *testing.T) {
	for _, status := range []types.OrderStatus{types.OrderStatusDelivered, types.OrderStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			o := pendingOrder("order-1")
			o.Status = status
			store := newMemStore(o)
			svc := NewWithStore(store, zap.NewNop().Sugar())

			res, err := svc.Reconcile(context.Background(), failedEvent("evt-1", "order-1", "pi-1", "card declined"))
			require.NoError(t, err)
			require.Equal(t, OutcomeIgnored, res.Outcome)
			require.Equal(t, status, store.orders["order-1"].Status)
			require.Nil(t, store.orders["order-1"].FailureReason)
			// audit row is still written
			require.Len(t, store.logsForEvent("evt-1"), 1)
		})
	}
}

func TestReconcile_FailureAfterPaid(t *testing.T) {
	o := pendingOrder("order-1")
	o.Status = types.OrderStatusPaid
	o.PaymentIntentID = lo.ToPtr("pi-1")
	store := newMemStore(o)
	svc := NewWithStore(store, zap.NewNop().Sugar())

	// Out-of-order failure after success: paid stands, delivery is audited.
	res, err := svc.Reconcile(context.Background(), failedEvent("evt-9", "order-1", "pi-1", "card declined"))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Empty(t, res.Intents)
	require.Equal(t, types.OrderStatusPaid, store.orders["order-1"].Status)
	require.Len(t, store.logsForEvent("evt-9"), 1)
}

func TestReconcile_FailureAppliedFromPending(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	res, err := svc.Reconcile(context.Background(), failedEvent("evt-1", "order-1", "pi-1", "insufficient funds"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, "usd", res.Currency)
	require.Equal(t, types.OrderStatusPaymentFailed, store.orders["order-1"].Status)
	require.Equal(t, "insufficient funds", *store.orders["order-1"].FailureReason)
	require.Len(t, res.Intents, 1)
	require.Equal(t, types.OrderEventPaymentFailed, res.Intents[0].Event)

	logs := store.logsForEvent("evt-1")
	require.Len(t, logs, 1)
	require.Equal(t, "usd", logs[0].Currency)
}

func TestReconcile_DuplicateThenLateFailure(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	_, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "order-1", "pi-1"))
	require.NoError(t, err)

	// Re-delivery of the success, then an out-of-order failure: neither
	// moves the order off paid, and only the failure adds an audit row.
	res, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "order-1", "pi-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res.Outcome)
	require.Len(t, store.logsForEvent("evt-1"), 1)

	res, err = svc.Reconcile(context.Background(), failedEvent("evt-2", "order-1", "pi-1", "card declined"))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Equal(t, types.OrderStatusPaid, store.orders["order-1"].Status)
	require.Nil(t, store.orders["order-1"].FailureReason)
	require.Len(t, store.logsForEvent("evt-2"), 1)
}

func TestReconcile_MissingOrderIDDropped(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	res, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "", "pi-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, res.Outcome)
	require.Empty(t, store.paymentLogs)
	require.Equal(t, types.OrderStatusPending, store.orders["order-1"].Status)
}

func TestReconcile_UnknownOrderDropped(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())

	res, err := svc.Reconcile(context.Background(), succeededEvent("evt-1", "order-missing", "pi-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, res.Outcome)
	require.Empty(t, store.paymentLogs)
}

func TestUpdateOrderStatus_LegalAndIllegal(t *testing.T) {
	o := pendingOrder("order-1")
	o.Status = types.OrderStatusPaid
	store := newMemStore(o)
	svc := NewWithStore(store, zap.NewNop().Sugar())

	updated, intents, err := svc.UpdateOrderStatus(context.Background(), "order-1", types.OrderStatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusConfirmed, updated.Status)
	require.Len(t, intents, 1)
	require.Equal(t, types.OrderEvent(types.OrderStatusConfirmed), intents[0].Event)
	require.Equal(t, "user-1", intents[0].UserID)
	require.Equal(t, string(types.OrderStatusPaid), intents[0].Data["old_status"])
	require.Equal(t, string(types.OrderStatusConfirmed), intents[0].Data["new_status"])
	// Intent production goes through the status-change path, which re-reads
	// the order outside the row lock.
	require.Equal(t, 1, store.reads)

	_, _, err = svc.UpdateOrderStatus(context.Background(), "order-1", types.OrderStatusDelivered)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestReconcileStatusChange_NoChangeNoIntents(t *testing.T) {
	store := newMemStore(pendingOrder("order-1"))
	svc := NewWithStore(store, zap.NewNop().Sugar())

	intents := svc.ReconcileStatusChange(context.Background(), "order-1",
		types.OrderStatusPreparing, types.OrderStatusPreparing)
	require.Empty(t, intents)

	intents = svc.ReconcileStatusChange(context.Background(), "order-1",
		types.OrderStatusPreparing, types.OrderStatusReady)
	require.Len(t, intents, 1)
	require.Equal(t, "user-1", intents[0].UserID)
}
