package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

var errDeadToken = errors.New("registration token not registered")

// fakePush scripts per-token outcomes. Tokens listed in dead come back as
// permanently-invalid failures.
type fakePush struct {
	dead      map[string]bool
	failAll   error
	multicast []*messaging.MulticastMessage
	single    []*messaging.Message
	subs      []string
	unsubs    []string
}

func (f *fakePush) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.multicast = append(f.multicast, msg)
	if f.failAll != nil {
		return nil, f.failAll
	}
	br := &messaging.BatchResponse{}
	for _, token := range msg.Tokens {
		if f.dead[token] {
			br.FailureCount++
			br.Responses = append(br.Responses, &messaging.SendResponse{Success: false, Error: errDeadToken})
			continue
		}
		br.SuccessCount++
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: "msg-" + token})
	}
	return br, nil
}

func (f *fakePush) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	f.single = append(f.single, msg)
	if f.failAll != nil {
		return "", f.failAll
	}
	return "msg-1", nil
}

func (f *fakePush) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	f.subs = append(f.subs, topic)
	return &messaging.TopicManagementResponse{SuccessCount: len(tokens)}, nil
}

func (f *fakePush) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	f.unsubs = append(f.unsubs, topic)
	return &messaging.TopicManagementResponse{SuccessCount: len(tokens)}, nil
}

// fakeMailer fails for addresses listed in reject.
type fakeMailer struct {
	reject map[string]bool
	sent   []string
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if f.reject[to] {
		return fmt.Errorf("smtp: mailbox unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

type memUsers struct {
	users  map[string]*models.User
	pruned map[string][]string
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{users: map[string]*models.User{}, pruned: map[string][]string{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error {
	m.pruned[userID] = append(m.pruned[userID], tokens...)
	return nil
}

// nopAudit swallows audit rows synchronously so tests see no goroutines.
type nopAudit struct{ rows []*models.NotificationLog }

func (a *nopAudit) Save(ctx context.Context, row *models.NotificationLog) {
	a.rows = append(a.rows, row)
}

func swapTokenClassifier(t *testing.T) {
	t.Helper()
	orig := tokenNotRegistered
	tokenNotRegistered = func(err error) bool { return errors.Is(err, errDeadToken) }
	t.Cleanup(func() { tokenNotRegistered = orig })
}

func testUser(tokens ...string) *models.User {
	return &models.User{
		ID:           "user-1",
		Email:        "sam@example.com",
		Name:         "Sam",
		DeviceTokens: datatypes.JSONSlice[string](tokens),
		PushEnabled:  true,
		EmailEnabled: true,
	}
}

func orderIntent() types.SideEffectIntent {
	return types.SideEffectIntent{
		Kind:    types.IntentKindNotifyOrderEvent,
		OrderID: "order-1",
		UserID:  "user-1",
		Event:   types.OrderEventPaid,
	}
}

func TestDispatch_PerTokenIsolationAndPruning(t *testing.T) {
	swapTokenClassifier(t)

	push := &fakePush{dead: map[string]bool{"tok-2": true}}
	mail := &fakeMailer{}
	users := newMemUsers(testUser("tok-1", "tok-2", "tok-3"))
	svc := NewWithDeps(push, mail, users, &nopAudit{}, zap.NewNop().Sugar())

	report, err := svc.Dispatch(context.Background(), orderIntent())
	require.NoError(t, err)

	// 2 push successes, 1 push failure, 1 email success; the dead token never
	// fails the dispatch as a whole.
	require.Equal(t, 3, report.SuccessCount())
	require.Equal(t, 1, report.FailureCount())
	require.Equal(t, []string{"tok-2"}, users.pruned["user-1"])
	require.Equal(t, []string{"sam@example.com"}, mail.sent)
}

func TestDispatch_PushOutageDoesNotBlockEmail(t *testing.T) {
	push := &fakePush{failAll: errors.New("fcm unavailable")}
	mail := &fakeMailer{}
	users := newMemUsers(testUser("tok-1", "tok-2"))
	svc := NewWithDeps(push, mail, users, &nopAudit{}, zap.NewNop().Sugar())

	report, err := svc.Dispatch(context.Background(), orderIntent())
	require.NoError(t, err)

	require.Equal(t, 2, report.FailureCount())
	require.Equal(t, 1, report.SuccessCount())
	require.Equal(t, []string{"sam@example.com"}, mail.sent)
}

func TestDispatch_RespectsChannelPreferences(t *testing.T) {
	u := testUser("tok-1")
	u.PushEnabled = false
	u.EmailEnabled = false
	push := &fakePush{}
	mail := &fakeMailer{}
	svc := NewWithDeps(push, mail, newMemUsers(u), &nopAudit{}, zap.NewNop().Sugar())

	report, err := svc.Dispatch(context.Background(), orderIntent())
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.Empty(t, push.multicast)
	require.Empty(t, mail.sent)
}

func TestDispatch_ExplicitTokensSkipPreferences(t *testing.T) {
	push := &fakePush{}
	mail := &fakeMailer{}
	// No user in the store at all: explicit tokens must not trigger a lookup.
	svc := NewWithDeps(push, mail, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())

	intent := orderIntent()
	intent.Tokens = []string{"tok-a", "tok-b"}

	report, err := svc.Dispatch(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, 2, report.SuccessCount())
	require.Empty(t, mail.sent)
}

func TestDispatch_TopicAndConditionTargets(t *testing.T) {
	push := &fakePush{}
	svc := NewWithDeps(push, &fakeMailer{}, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())

	intent := orderIntent()
	intent.Topic = "orders-news"
	report, err := svc.Dispatch(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessCount())
	require.Len(t, push.single, 1)
	require.Equal(t, "orders-news", push.single[0].Topic)

	intent = orderIntent()
	intent.Condition = "'a' in topics && 'b' in topics"
	_, err = svc.Dispatch(context.Background(), intent)
	require.NoError(t, err)
	require.Len(t, push.single, 2)
	require.Equal(t, intent.Condition, push.single[1].Condition)
}

func TestDispatch_UnknownUserProducesEmptyReport(t *testing.T) {
	svc := NewWithDeps(&fakePush{}, &fakeMailer{}, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())

	report, err := svc.Dispatch(context.Background(), orderIntent())
	require.NoError(t, err)
	require.Empty(t, report.Results)
}

func TestDispatch_FraudAlertHasNoCustomerDelivery(t *testing.T) {
	push := &fakePush{}
	mail := &fakeMailer{}
	svc := NewWithDeps(push, mail, newMemUsers(testUser("tok-1")), &nopAudit{}, zap.NewNop().Sugar())

	report, err := svc.Dispatch(context.Background(), types.SideEffectIntent{
		Kind:    types.IntentKindFraudAlert,
		OrderID: "order-1",
		UserID:  "user-1",
	})
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.Empty(t, push.multicast)
	require.Empty(t, mail.sent)
}

func TestDispatch_UnsupportedKind(t *testing.T) {
	svc := NewWithDeps(&fakePush{}, &fakeMailer{}, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())
	_, err := svc.Dispatch(context.Background(), types.SideEffectIntent{Kind: "unknown"})
	require.Error(t, err)
}

func TestSendBulkEmail_PerRecipientIsolation(t *testing.T) {
	mail := &fakeMailer{reject: map[string]bool{"b@example.com": true}}
	svc := NewWithDeps(&fakePush{}, mail, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())

	results := svc.SendBulkEmail(context.Background(),
		[]string{"a@example.com", "b@example.com", "c@example.com"},
		"Hello {{name}}", "Order {{orderId}} update", map[string]string{"name": "all", "orderId": "order-1"})

	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.NotEmpty(t, results[1].Error)
	require.True(t, results[2].Success)
	require.Equal(t, []string{"a@example.com", "c@example.com"}, mail.sent)
}

func TestManageTopicSubscriptions(t *testing.T) {
	push := &fakePush{}
	svc := NewWithDeps(push, &fakeMailer{}, newMemUsers(), &nopAudit{}, zap.NewNop().Sugar())

	success, failure, err := svc.ManageTopicSubscriptions(context.Background(), []string{"tok-1", "tok-2"}, "promos", true)
	require.NoError(t, err)
	require.Equal(t, 2, success)
	require.Zero(t, failure)
	require.Equal(t, []string{"promos"}, push.subs)

	_, _, err = svc.ManageTopicSubscriptions(context.Background(), []string{"tok-1"}, "promos", false)
	require.NoError(t, err)
	require.Equal(t, []string{"promos"}, push.unsubs)
}
