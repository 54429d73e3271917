package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otwdelivery/otw-backend/internal/app/service/analytics"
	"github.com/otwdelivery/otw-backend/internal/app/service/reconciler"
	"github.com/otwdelivery/otw-backend/internal/app/service/subscription"
	"github.com/otwdelivery/otw-backend/internal/app/service/webhook"
	"github.com/otwdelivery/otw-backend/internal/platform/queue"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/metrics"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// WebhookHandler terminates the payment provider's webhook deliveries. The
// response contract: 400 for bad signatures (provider stops retrying), 500
// for store failures (provider retries, safe because reconciliation is
// idempotent), 200 for everything else including duplicates and drops.
type WebhookHandler struct {
	verifier *webhook.Verifier
	orders   *reconciler.Service
	subs     *subscription.Service
	stats    *analytics.Service
	queue    *queue.Publisher
	log      *zap.SugaredLogger
}

func NewWebhookHandler(verifier *webhook.Verifier, orders *reconciler.Service, subs *subscription.Service,
	stats *analytics.Service, publisher *queue.Publisher, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, orders: orders, subs: subs, stats: stats, queue: publisher, log: log}
}

// @Summary      Payment provider webhook
// @Description  Verifies and reconciles one Stripe event delivery
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {string}  string
// @Failure      500  {object}  map[string]string
// @Router       /stripeWebhook [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	log := logctx.FromGin(c, h.log)

	raw, err := c.GetRawData()
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		c.String(http.StatusBadRequest, "cannot read body")
		return
	}

	ev, err := h.verifier.Verify(raw, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		if errors.Is(err, webhook.ErrInvalidSignature) {
			log.Warnw("webhook_signature_rejected", "error", err.Error())
			c.String(http.StatusBadRequest, "signature verification failed")
			return
		}
		log.Warnw("webhook_payload_rejected", "error", err.Error())
		c.String(http.StatusBadRequest, "malformed payload")
		return
	}

	ctx := c.Request.Context()
	switch ev.(type) {
	case webhook.PaymentSucceeded, webhook.PaymentFailed:
		res, err := h.orders.Reconcile(ctx, ev)
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.EventType(), "error").Inc()
			log.Errorw("webhook_reconcile_failed", "event_id", ev.EventID(), "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
			return
		}
		metrics.WebhookEvents.WithLabelValues(ev.EventType(), string(res.Outcome)).Inc()

		if res.Outcome == reconciler.OutcomeApplied {
			if _, ok := ev.(webhook.PaymentSucceeded); ok {
				h.stats.RecordOrderPaid(ctx, res.AmountCents, res.Currency, time.Now())
			} else {
				h.stats.RecordOrderFailed(ctx, time.Now())
			}
		}
		h.publishIntents(c, res.Intents)

	case webhook.SubscriptionCreated, webhook.SubscriptionUpdated, webhook.SubscriptionDeleted:
		if err := h.subs.Handle(ctx, ev); err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.EventType(), "error").Inc()
			log.Errorw("webhook_subscription_failed", "event_id", ev.EventID(), "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription mirroring failed"})
			return
		}
		metrics.WebhookEvents.WithLabelValues(ev.EventType(), "mirrored").Inc()

	default:
		metrics.WebhookEvents.WithLabelValues(ev.EventType(), "unhandled").Inc()
		log.Debugw("webhook_event_unhandled", "event_id", ev.EventID(), "type", ev.EventType())
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// publishIntents queues side effects after the order mutation committed.
// Queue failures only log: acknowledgment must not depend on delivery.
func (h *WebhookHandler) publishIntents(c *gin.Context, intents []types.SideEffectIntent) {
	ctx := c.Request.Context()
	for _, intent := range intents {
		if err := h.queue.Publish(ctx, intent); err != nil {
			logctx.FromGin(c, h.log).Errorw("intent_publish_failed",
				"kind", intent.Kind, "order_id", intent.OrderID, "error", err.Error())
		}
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *WebhookHandler) {
	r.POST("/stripeWebhook", h.HandleStripeWebhook)
}
