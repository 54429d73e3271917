package dispatcher

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/otwdelivery/otw-backend/internal/app/service/notification_log"
	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/internal/platform/mailer"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/metrics"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// PushClient is the slice of the FCM messaging client the dispatcher uses.
// *messaging.Client satisfies it.
type PushClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// auditor records one dispatch attempt. Satisfied by notification_log.Service.
type auditor interface {
	Save(ctx context.Context, row *models.NotificationLog)
}

// tokenNotRegistered reports whether a push send error means the device token
// is permanently invalid and should be pruned. Swapped in tests because the
// FCM SDK's error values cannot be constructed outside the package.
var tokenNotRegistered = messaging.IsRegistrationTokenNotRegistered

// Service executes side-effect intents: it resolves targets, renders message
// content, and fans out to the push and email channels. A failed channel is
// recorded and never aborts the remaining channels.
type Service struct {
	push  PushClient
	mail  mailer.Mailer
	users UserStore
	audit auditor
	log   *zap.SugaredLogger
}

func New(push *messaging.Client, mail mailer.Mailer, db *gorm.DB, audit *notification_log.Service, log *zap.SugaredLogger) *Service {
	return NewWithDeps(push, mail, newGormUserStore(db), audit, log)
}

func NewWithDeps(push PushClient, mail mailer.Mailer, users UserStore, audit auditor, log *zap.SugaredLogger) *Service {
	return &Service{push: push, mail: mail, users: users, audit: audit, log: log}
}

// Dispatch executes one intent and reports per-channel results. It returns an
// error only for intents the dispatcher does not understand; channel failures
// live in the report.
func (s *Service) Dispatch(ctx context.Context, intent types.SideEffectIntent) (*types.DispatchReport, error) {
	switch intent.Kind {
	case types.IntentKindNotifyOrderEvent:
		return s.dispatchOrderEvent(ctx, intent), nil
	case types.IntentKindFraudAlert:
		// Alert path is log-and-audit only; there is no customer-facing
		// delivery for a payment-intent mismatch.
		logctx.FromCtx(ctx, s.log).Errorw("fraud_alert",
			"order_id", intent.OrderID, "user_id", intent.UserID, "data", intent.Data)
		return &types.DispatchReport{}, nil
	default:
		return nil, fmt.Errorf("dispatcher: unsupported intent kind %s", intent.Kind)
	}
}

func (s *Service) dispatchOrderEvent(ctx context.Context, intent types.SideEffectIntent) *types.DispatchReport {
	payload := payloadFor(intent)
	report := &types.DispatchReport{}

	// Explicit targets on the intent win over user preference resolution.
	switch {
	case intent.Condition != "":
		s.sendToPushTarget(ctx, report, payload, &messaging.Message{Condition: intent.Condition}, intent.Condition)
	case intent.Topic != "":
		s.sendToPushTarget(ctx, report, payload, &messaging.Message{Topic: intent.Topic}, intent.Topic)
	case len(intent.Tokens) > 0:
		s.sendMulticast(ctx, report, payload, "", intent.Tokens)
	default:
		user, err := s.users.GetUser(ctx, intent.UserID)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("dispatch_target_unresolved",
				"user_id", intent.UserID, "order_id", intent.OrderID, "error", err.Error())
			return report
		}
		if user.PushEnabled && len(user.DeviceTokens) > 0 {
			s.sendMulticast(ctx, report, payload, user.ID, user.DeviceTokens)
		}
		if user.EmailEnabled && user.Email != "" {
			s.sendEmail(ctx, report, payload, user.Email)
		}
	}

	logctx.FromCtx(ctx, s.log).Infow("intent_dispatched",
		"kind", intent.Kind, "order_id", intent.OrderID, "event", intent.Event,
		"success", report.SuccessCount(), "failure", report.FailureCount())
	return report
}

// sendMulticast pushes to a token set and inspects per-token results. Tokens
// the provider reports as unregistered are pruned from the owning user,
// best-effort; a prune failure only logs.
func (s *Service) sendMulticast(ctx context.Context, report *types.DispatchReport, payload types.NotificationPayload, userID string, tokens []string) {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    payload.Title,
			Body:     payload.Body,
			ImageURL: payload.ImageURL,
		},
		Data: payload.Data,
	}

	br, err := s.push.SendEachForMulticast(ctx, msg)
	if err != nil {
		for _, t := range tokens {
			s.record(ctx, report, types.NotificationChannelPush, t, false, err.Error())
		}
		return
	}

	var dead []string
	for i, resp := range br.Responses {
		if resp.Success {
			s.record(ctx, report, types.NotificationChannelPush, tokens[i], true, "")
			continue
		}
		errMsg := ""
		if resp.Error != nil {
			errMsg = resp.Error.Error()
			if tokenNotRegistered(resp.Error) {
				dead = append(dead, tokens[i])
			}
		}
		s.record(ctx, report, types.NotificationChannelPush, tokens[i], false, errMsg)
	}

	if len(dead) > 0 && userID != "" {
		if err := s.users.RemoveDeviceTokens(ctx, userID, dead); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("token_prune_failed",
				"user_id", userID, "tokens", len(dead), "error", err.Error())
		} else {
			logctx.FromCtx(ctx, s.log).Infow("dead_tokens_pruned", "user_id", userID, "tokens", len(dead))
		}
	}
}

func (s *Service) sendToPushTarget(ctx context.Context, report *types.DispatchReport, payload types.NotificationPayload, msg *messaging.Message, recipient string) {
	msg.Notification = &messaging.Notification{
		Title:    payload.Title,
		Body:     payload.Body,
		ImageURL: payload.ImageURL,
	}
	msg.Data = payload.Data

	if _, err := s.push.Send(ctx, msg); err != nil {
		s.record(ctx, report, types.NotificationChannelPush, recipient, false, err.Error())
		return
	}
	s.record(ctx, report, types.NotificationChannelPush, recipient, true, "")
}

func (s *Service) sendEmail(ctx context.Context, report *types.DispatchReport, payload types.NotificationPayload, to string) {
	if err := s.mail.Send(ctx, to, payload.Title, emailHTML(payload)); err != nil {
		s.record(ctx, report, types.NotificationChannelEmail, to, false, err.Error())
		return
	}
	s.record(ctx, report, types.NotificationChannelEmail, to, true, "")
}

// SendBulkEmail renders the subject and body once and sends to each recipient
// independently. A failed recipient is recorded and the loop continues; there
// is no retry.
func (s *Service) SendBulkEmail(ctx context.Context, recipients []string, subject, body string, vars map[string]string) []types.BulkEmailResult {
	renderedSubject := Render(subject, vars)
	renderedBody := Render(body, vars)

	results := make([]types.BulkEmailResult, 0, len(recipients))
	for _, to := range recipients {
		err := s.mail.Send(ctx, to, renderedSubject, renderedBody)
		res := types.BulkEmailResult{Email: to, Success: err == nil}
		if err != nil {
			res.Error = err.Error()
		}
		s.record(ctx, &types.DispatchReport{}, types.NotificationChannelEmail, to, res.Success, res.Error)
		results = append(results, res)
	}
	return results
}

// ManageTopicSubscriptions subscribes or unsubscribes a token set to a topic
// and returns the provider's per-token success and failure counts.
func (s *Service) ManageTopicSubscriptions(ctx context.Context, tokens []string, topic string, subscribe bool) (success, failure int, err error) {
	var resp *messaging.TopicManagementResponse
	if subscribe {
		resp, err = s.push.SubscribeToTopic(ctx, tokens, topic)
	} else {
		resp, err = s.push.UnsubscribeFromTopic(ctx, tokens, topic)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("topic management failed: %w", err)
	}
	return resp.SuccessCount, resp.FailureCount, nil
}

func (s *Service) record(ctx context.Context, report *types.DispatchReport, ch types.NotificationChannel, recipient string, success bool, errMsg string) {
	report.Add(types.ChannelResult{Channel: ch, Recipient: recipient, Success: success, Error: errMsg})

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.DispatchResults.WithLabelValues(string(ch), outcome).Inc()

	var errPtr *string
	if errMsg != "" {
		errPtr = lo.ToPtr(errMsg)
	}
	s.audit.Save(ctx, &models.NotificationLog{
		Recipient: recipient,
		Channel:   ch,
		Success:   success,
		Error:     errPtr,
	})
}

func emailHTML(payload types.NotificationPayload) string {
	return fmt.Sprintf("<h2>%s</h2><p>%s</p>", payload.Title, payload.Body)
}
