package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"momopay/internal/errors"
	"momopay/internal/service"
)

// WebhookHandler receives asynchronous gateway push notifications.
type WebhookHandler struct {
	webhookService service.WebhookService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// WebhookAck is the acknowledgement returned to the gateway.
type WebhookAck struct {
	Received bool `json:"received"`
}

// Notify godoc
// @Summary Receive a gateway payment notification
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} WebhookAck
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/webhook [post]
func (h *WebhookHandler) Notify(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil || len(payload) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "empty payload",
			Code:  "MALFORMED_WEBHOOK",
		})
	}

	if err := h.webhookService.HandleNotification(c.Request().Context(), payload); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, WebhookAck{Received: true})
}
