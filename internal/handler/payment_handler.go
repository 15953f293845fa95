package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"momopay/internal/errors"
	"momopay/internal/model"
	"momopay/internal/service"
)

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	initiation service.InitiationService
	reconcile  service.ReconciliationService
	link       service.LinkService
	retry      service.RetryService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(
	initiation service.InitiationService,
	reconcile service.ReconciliationService,
	link service.LinkService,
	retry service.RetryService,
) *PaymentHandler {
	return &PaymentHandler{
		initiation: initiation,
		reconcile:  reconcile,
		link:       link,
		retry:      retry,
	}
}

// InitiatePaymentRequest represents a payment initiation request. OrderID is
// omitted for session payments (order created after payment completes).
type InitiatePaymentRequest struct {
	OrderID       string `json:"order_id" validate:"omitempty,uuid"`
	Reference     string `json:"reference" validate:"omitempty,max=64"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"omitempty,len=3"`
	Method        string `json:"payment_method" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

// InitiatePaymentResponse represents the checkout handle returned to clients.
type InitiatePaymentResponse struct {
	PaymentID   string `json:"payment_id"`
	Reference   string `json:"reference"`
	GatewayTxID string `json:"gateway_tx_id,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// InitiatePayment godoc
// @Summary Initiate a mobile-money payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InitiatePaymentRequest true "Payment data"
// @Success 200 {object} InitiatePaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 502 {object} InitiatePaymentResponse
// @Failure 503 {object} InitiatePaymentResponse
// @Router /payments/initiate [post]
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	var req InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	input, httpErr := h.buildInitiateInput(req)
	if httpErr != nil {
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	result, err := h.initiation.Initiate(c.Request().Context(), *input)
	if err != nil {
		return initiateError(c, result, err)
	}

	return c.JSON(http.StatusOK, initiateResponse(result))
}

// RetryPaymentRequest represents a retry for a previously failed or abandoned
// attempt on an order.
type RetryPaymentRequest struct {
	OrderID        string `json:"order_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
	Method         string `json:"payment_method" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email" validate:"omitempty,email"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,min=0,max=3600"`
}

// RetryPayment godoc
// @Summary Retry a payment for an order with a fresh attempt
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RetryPaymentRequest true "Retry data"
// @Success 200 {object} InitiatePaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 502 {object} InitiatePaymentResponse
// @Failure 503 {object} InitiatePaymentResponse
// @Router /payments/retry [post]
func (h *PaymentHandler) RetryPayment(c echo.Context) error {
	var req RetryPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid order_id",
			Code:  "INVALID_UUID",
		})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	result, rerr := h.retry.Retry(c.Request().Context(), orderID, service.RetryInput{
		Amount:         amount,
		Currency:       req.Currency,
		Method:         req.Method,
		Phone:          req.Phone,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if rerr != nil {
		return initiateError(c, result, rerr)
	}

	return c.JSON(http.StatusOK, initiateResponse(result))
}

// CheckStatus godoc
// @Summary Check the current status of a payment
// @Tags payments
// @Produce json
// @Param payment_id query string false "Payment ID"
// @Param reference query string false "Merchant reference"
// @Param gateway_tx_id query string false "Gateway transaction ID"
// @Success 200 {object} service.StatusView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/status [get]
func (h *PaymentHandler) CheckStatus(c echo.Context) error {
	var paymentID *uuid.UUID
	if raw := c.QueryParam("payment_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid payment_id",
				Code:  "INVALID_UUID",
			})
		}
		paymentID = &parsed
	}

	view, err := h.reconcile.CheckStatus(
		c.Request().Context(),
		paymentID,
		c.QueryParam("reference"),
		c.QueryParam("gateway_tx_id"),
	)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, view)
}

// LinkPaymentRequest associates a payment with an order.
type LinkPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required,uuid"`
	Reference string `json:"reference" validate:"omitempty,max=64"`
	PaymentID string `json:"payment_id" validate:"omitempty,uuid"`
}

// LinkPaymentResponse reports the payment state after linking.
type LinkPaymentResponse struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	OrderPaid bool   `json:"order_paid"`
}

// LinkPayment godoc
// @Summary Link a session payment to an order
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LinkPaymentRequest true "Link data"
// @Success 200 {object} LinkPaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/link [post]
func (h *PaymentHandler) LinkPayment(c echo.Context) error {
	var req LinkPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}
	if req.Reference == "" && req.PaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "reference or payment_id is required",
			Code:  "VALIDATION_ERROR",
		})
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid order_id",
			Code:  "INVALID_UUID",
		})
	}
	var paymentID *uuid.UUID
	if req.PaymentID != "" {
		parsed, perr := uuid.Parse(req.PaymentID)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid payment_id",
				Code:  "INVALID_UUID",
			})
		}
		paymentID = &parsed
	}

	result, err := h.link.LinkPaymentToOrder(c.Request().Context(), orderID, req.Reference, paymentID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, LinkPaymentResponse{
		PaymentID: result.Payment.ID.String(),
		OrderID:   orderID.String(),
		Status:    string(result.Payment.Status),
		OrderPaid: result.OrderPaid,
	})
}

// FinalizeRequest resolves a payment at checkout return time.
type FinalizeRequest struct {
	Reference   string `json:"reference" validate:"omitempty,max=64"`
	GatewayTxID string `json:"gateway_tx_id" validate:"omitempty,max=64"`
}

// Finalize godoc
// @Summary Resolve a payment after checkout and report whether an order can be created
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body FinalizeRequest true "Finalize data"
// @Success 200 {object} service.StatusView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/finalize [post]
func (h *PaymentHandler) Finalize(c echo.Context) error {
	var req FinalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if req.Reference == "" && req.GatewayTxID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "reference or gateway_tx_id is required",
			Code:  "VALIDATION_ERROR",
		})
	}

	view, err := h.reconcile.Finalize(c.Request().Context(), req.Reference, req.GatewayTxID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, view)
}

func (h *PaymentHandler) buildInitiateInput(req InitiatePaymentRequest) (*service.InitiateInput, *errors.HTTPError) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, errors.NewHTTPError(http.StatusBadRequest, "invalid amount", "INVALID_AMOUNT")
	}

	input := &service.InitiateInput{
		Reference:     req.Reference,
		Amount:        amount,
		Currency:      req.Currency,
		Method:        req.Method,
		Phone:         req.Phone,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	}
	if req.OrderID != "" {
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			return nil, errors.NewHTTPError(http.StatusBadRequest, "invalid order_id", "INVALID_UUID")
		}
		input.OrderID = &orderID
	}
	return input, nil
}

// initiateError answers a failed initiation. When a payment row was created,
// it is part of the answer: failed with the rejection reason, or still pending
// behind an unreachable gateway so the caller can poll it by reference.
func initiateError(c echo.Context, result *service.InitiateResult, err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	if result != nil && result.Payment != nil {
		resp := initiateResponse(result)
		if resp.Message == "" {
			resp.Message = httpErr.Message
		}
		return c.JSON(httpErr.StatusCode, resp)
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func initiateResponse(result *service.InitiateResult) InitiatePaymentResponse {
	resp := InitiatePaymentResponse{
		PaymentID:   result.Payment.ID.String(),
		Reference:   result.Payment.Reference,
		GatewayTxID: result.Payment.GatewayTxID,
		CheckoutURL: result.CheckoutURL,
		Status:      string(result.Payment.Status),
	}
	if result.Payment.Status == model.PaymentStatusFailed {
		resp.Message = result.Payment.FailureReason
	}
	if result.Existing {
		resp.Message = "payment already in progress, returning existing attempt"
	}
	return resp
}
