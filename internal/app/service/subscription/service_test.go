package subscription

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

type mirroredUser struct {
	SubID  string
	Status string
}

type memStore struct {
	subs  map[string]*models.Subscription
	users map[string]*mirroredUser
	saves int
}

func newMemStore() *memStore {
	return &memStore{subs: map[string]*models.Subscription{}, users: map[string]*mirroredUser{}}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Store) error) error { return fn(m) }

func (m *memStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *memStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	cp := *sub
	m.subs[sub.ID] = &cp
	m.saves++
	return nil
}

func (m *memStore) MirrorToUser(ctx context.Context, userID string, subID, status string) error {
	m.users[userID] = &mirroredUser{SubID: subID, Status: status}
	return nil
}

func subData(status types.SubscriptionStatus) webhook.SubscriptionData {
	return webhook.SubscriptionData{
		SubscriptionID:     "sub-1",
		CustomerID:         "cus-1",
		UserID:             "user-1",
		Status:             status,
		PriceID:            "price-1",
		CurrentPeriodStart: lo.ToPtr(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)),
		CurrentPeriodEnd:   lo.ToPtr(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestLifecycleRoundTrip(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, svc.HandleCreated(ctx, subData(types.SubscriptionStatusActive)))
	require.Len(t, store.subs, 1)
	require.Equal(t, types.SubscriptionStatusActive, store.subs["sub-1"].Status)
	require.Equal(t, "active", store.users["user-1"].Status)

	// updated events may omit customer metadata; the owner comes from the record
	updated := subData(types.SubscriptionStatusPastDue)
	updated.UserID = ""
	require.NoError(t, svc.HandleUpdated(ctx, updated))
	require.Equal(t, types.SubscriptionStatusPastDue, store.subs["sub-1"].Status)
	require.Equal(t, "past_due", store.users["user-1"].Status)

	require.NoError(t, svc.HandleDeleted(ctx, subData(types.SubscriptionStatusPastDue)))
	require.Equal(t, types.SubscriptionStatusCanceled, store.subs["sub-1"].Status)
	require.Equal(t, "canceled", store.users["user-1"].Status)

	// exactly one subscription record throughout
	require.Len(t, store.subs, 1)

	// re-applying deleted is a no-op
	saves := store.saves
	require.NoError(t, svc.HandleDeleted(ctx, subData(types.SubscriptionStatusCanceled)))
	require.Equal(t, saves, store.saves)
	require.Equal(t, types.SubscriptionStatusCanceled, store.subs["sub-1"].Status)
}

func TestHandleCreated_OrphanDropped(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())

	orphan := subData(types.SubscriptionStatusActive)
	orphan.UserID = ""
	require.NoError(t, svc.HandleCreated(context.Background(), orphan))
	require.Empty(t, store.subs)
	require.Empty(t, store.users)
}

func TestHandleCreated_ReapplyKeepsSingleRecord(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, svc.HandleCreated(ctx, subData(types.SubscriptionStatusActive)))
	require.NoError(t, svc.HandleCreated(ctx, subData(types.SubscriptionStatusActive)))
	require.Len(t, store.subs, 1)
}

func TestHandleUpdated_UnknownSubscriptionSwallowed(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())

	require.NoError(t, svc.HandleUpdated(context.Background(), subData(types.SubscriptionStatusActive)))
	require.Empty(t, store.subs)
}

func TestHandle_RoutesVariants(t *testing.T) {
	store := newMemStore()
	svc := NewWithStore(store, zap.NewNop().Sugar())

	ev := webhook.NewSubscriptionCreated("evt-1", subData(types.SubscriptionStatusTrialing))
	require.NoError(t, svc.Handle(context.Background(), ev))
	require.Equal(t, types.SubscriptionStatusTrialing, store.subs["sub-1"].Status)
}
