package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otwdelivery/otw-backend/internal/app/service/analytics"
	"github.com/otwdelivery/otw-backend/internal/app/service/dispatcher"
	"github.com/otwdelivery/otw-backend/internal/app/service/reconciler"
	"github.com/otwdelivery/otw-backend/internal/models"
	"github.com/otwdelivery/otw-backend/internal/platform/queue"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/response"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// AdminHandler serves operator endpoints: order status transitions, counter
// queries, and bulk promotional email.
type AdminHandler struct {
	orders     *reconciler.Service
	stats      *analytics.Service
	dispatcher *dispatcher.Service
	queue      *queue.Publisher
	log        *zap.SugaredLogger
}

func NewAdminHandler(orders *reconciler.Service, stats *analytics.Service, d *dispatcher.Service,
	publisher *queue.Publisher, log *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{orders: orders, stats: stats, dispatcher: d, queue: publisher, log: log}
}

type UpdateOrderStatusRequest struct {
	Status types.OrderStatus `json:"status" binding:"required"`
}

// @Summary      Update order status
// @Description  Applies an operator-driven order status transition and queues notifications
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id       path  string                    true  "order id"
// @Param        request  body  UpdateOrderStatusRequest  true  "target status"
// @Success      200  {object}  response.APIResponse[models.Order]
// @Router       /api/v1/admin/orders/{id}/status [patch]
func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
		return
	}

	ctx := c.Request.Context()
	order, intents, err := h.orders.UpdateOrderStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
		case errors.Is(err, reconciler.ErrIllegalTransition):
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		default:
			logctx.FromGin(c, h.log).Errorw("order_status_update_failed",
				"order_id", c.Param("id"), "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		}
		return
	}

	for _, intent := range intents {
		if err := h.queue.Publish(ctx, intent); err != nil {
			logctx.FromGin(c, h.log).Errorw("intent_publish_failed",
				"kind", intent.Kind, "order_id", intent.OrderID, "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, response.OKT(order))
}

// @Summary      Query analytics counters
// @Description  Returns the aggregate counters for one period bucket
// @Tags         Admin
// @Produce      json
// @Param        period  query  string  false  "period key (2006-01-02 daily, 2006-01 monthly); defaults to today"
// @Success      200  {object}  response.APIResponse[[]models.AnalyticsCounter]
// @Router       /api/v1/admin/statistics [get]
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	period := c.Query("period")
	if period == "" {
		period = time.Now().UTC().Format("2006-01-02")
	}

	rows, err := h.stats.Query(c.Request.Context(), period)
	if err != nil {
		logctx.FromGin(c, h.log).Errorw("statistics_query_failed", "period", period, "error", err.Error())
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		return
	}
	if rows == nil {
		rows = []models.AnalyticsCounter{}
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

type BulkEmailRequest struct {
	Recipients []string          `json:"recipients" binding:"required,min=1"`
	Subject    string            `json:"subject" binding:"required"`
	Body       string            `json:"body" binding:"required"`
	Vars       map[string]string `json:"vars"`
}

type BulkEmailResponse struct {
	Success bool                    `json:"success"`
	Results []types.BulkEmailResult `json:"results"`
}

// @Summary      Send bulk email
// @Description  Sends a templated email to each recipient; failures are per-recipient and not retried
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request  body  BulkEmailRequest  true  "bulk email request"
// @Success      200  {object}  response.APIResponse[BulkEmailResponse]
// @Router       /api/v1/admin/notifications/bulk-email [post]
func (h *AdminHandler) SendBulkEmail(c *gin.Context) {
	var req BulkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
		return
	}

	results := h.dispatcher.SendBulkEmail(c.Request.Context(), req.Recipients, req.Subject, req.Body, req.Vars)

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
			break
		}
	}
	c.JSON(http.StatusOK, response.OKT(BulkEmailResponse{Success: success, Results: results}))
}

func RegisterAdminRoutes(r gin.IRouter, h *AdminHandler) {
	r.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	r.GET("/statistics", h.GetStatistics)
	r.POST("/notifications/bulk-email", h.SendBulkEmail)
}
