package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otwdelivery/otw-backend/internal/app/service/dispatcher"
	"github.com/otwdelivery/otw-backend/internal/app/service/reconciler"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/response"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// NotificationHandler serves the callable RPC surface used by the client app.
// All routes require an authenticated caller.
type NotificationHandler struct {
	orders     *reconciler.Service
	dispatcher *dispatcher.Service
	log        *zap.SugaredLogger
}

func NewNotificationHandler(orders *reconciler.Service, d *dispatcher.Service, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{orders: orders, dispatcher: d, log: log}
}

type SendOrderNotificationRequest struct {
	OrderID     string            `json:"order_id" binding:"required"`
	Type        string            `json:"type" binding:"required"`
	CustomTitle string            `json:"custom_title"`
	CustomBody  string            `json:"custom_body"`
	Data        map[string]string `json:"data"`
}

type SendOrderNotificationResponse struct {
	Success bool                  `json:"success"`
	Results []types.ChannelResult `json:"results"`
}

// @Summary      Send an order notification
// @Description  Dispatches an order event notification to the owning user
// @Tags         Notification
// @Accept       json
// @Produce      json
// @Param        request  body  SendOrderNotificationRequest  true  "notification request"
// @Success      200  {object}  response.APIResponse[SendOrderNotificationResponse]
// @Router       /api/v1/notifications/order [post]
func (h *NotificationHandler) SendOrderNotification(c *gin.Context) {
	var req SendOrderNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
		return
	}

	ctx := c.Request.Context()
	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, reconciler.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
			return
		}
		logctx.FromGin(c, h.log).Errorw("order_lookup_failed", "order_id", req.OrderID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		return
	}

	report, err := h.dispatcher.Dispatch(ctx, types.SideEffectIntent{
		Kind:        types.IntentKindNotifyOrderEvent,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Event:       types.OrderEvent(req.Type),
		CustomTitle: req.CustomTitle,
		CustomBody:  req.CustomBody,
		Data:        req.Data,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
		return
	}

	c.JSON(http.StatusOK, response.OKT(SendOrderNotificationResponse{
		Success: report.FailureCount() == 0,
		Results: report.Results,
	}))
}

type ManageTopicSubscriptionsRequest struct {
	Action string   `json:"action" binding:"required,oneof=subscribe unsubscribe"`
	Tokens []string `json:"tokens" binding:"required,min=1"`
	Topics []string `json:"topics" binding:"required,min=1"`
}

type ManageTopicSubscriptionsResponse struct {
	Success      bool `json:"success"`
	SuccessCount int  `json:"success_count"`
	FailureCount int  `json:"failure_count"`
}

// @Summary      Manage topic subscriptions
// @Description  Subscribes or unsubscribes device tokens to notification topics
// @Tags         Notification
// @Accept       json
// @Produce      json
// @Param        request  body  ManageTopicSubscriptionsRequest  true  "topic management request"
// @Success      200  {object}  response.APIResponse[ManageTopicSubscriptionsResponse]
// @Router       /api/v1/notifications/topics [post]
func (h *NotificationHandler) ManageTopicSubscriptions(c *gin.Context) {
	var req ManageTopicSubscriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
		return
	}

	ctx := c.Request.Context()
	var out ManageTopicSubscriptionsResponse
	for _, topic := range req.Topics {
		success, failure, err := h.dispatcher.ManageTopicSubscriptions(ctx, req.Tokens, topic, req.Action == "subscribe")
		if err != nil {
			logctx.FromGin(c, h.log).Errorw("topic_management_failed",
				"topic", topic, "action", req.Action, "error", err.Error())
			out.FailureCount += len(req.Tokens)
			continue
		}
		out.SuccessCount += success
		out.FailureCount += failure
	}
	out.Success = out.FailureCount == 0

	c.JSON(http.StatusOK, response.OKT(out))
}

func RegisterNotificationRoutes(r gin.IRouter, h *NotificationHandler) {
	r.POST("/notifications/order", h.SendOrderNotification)
	r.POST("/notifications/topics", h.ManageTopicSubscriptions)
}
