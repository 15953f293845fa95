package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPaymentNotFound is returned when no payment matches the given identifier.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrOrderNotFound is returned when an order is not found.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentInProgress is returned when a non-terminal payment already exists for the order.
	ErrPaymentInProgress = errors.New("payment already in progress for this order")
	// ErrAlreadyPaid is returned when the order already has a completed payment.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrOrderMismatch is returned when a payment is already linked to a different order.
	ErrOrderMismatch = errors.New("payment is linked to a different order")
	// ErrInvalidAmount is returned when amount is invalid.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidPhone is returned when the customer phone cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrMalformedWebhook is returned when a webhook payload fails structural validation.
	ErrMalformedWebhook = errors.New("malformed webhook payload")
)

// GatewayUnavailableError wraps a transport failure reaching the gateway.
// Always retryable, never a terminal payment outcome.
type GatewayUnavailableError struct {
	Err error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("gateway unavailable: %v", e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }

// GatewayRejectedError carries an explicit vendor failure code.
type GatewayRejectedError struct {
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("gateway rejected payment (code %s): %s", e.Code, e.Message)
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	var rejected *GatewayRejectedError
	if errors.As(err, &rejected) {
		return NewHTTPError(http.StatusBadGateway, rejected.Message, "GATEWAY_REJECTED")
	}
	var unavailable *GatewayUnavailableError
	if errors.As(err, &unavailable) {
		return NewHTTPError(http.StatusServiceUnavailable, "payment gateway unreachable, please retry", "GATEWAY_UNAVAILABLE")
	}

	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "PAYMENT_NOT_FOUND")
	case errors.Is(err, ErrOrderNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "ORDER_NOT_FOUND")
	case errors.Is(err, ErrPaymentInProgress):
		return NewHTTPError(http.StatusConflict, err.Error(), "PAYMENT_IN_PROGRESS")
	case errors.Is(err, ErrAlreadyPaid):
		return NewHTTPError(http.StatusConflict, err.Error(), "ALREADY_PAID")
	case errors.Is(err, ErrOrderMismatch):
		return NewHTTPError(http.StatusConflict, err.Error(), "ORDER_MISMATCH")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrInvalidPhone):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_PHONE")
	case errors.Is(err, ErrMalformedWebhook):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "MALFORMED_WEBHOOK")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
