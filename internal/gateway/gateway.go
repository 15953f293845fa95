package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"momopay/internal/errors"
)

// Return codes the gateway uses on initiation and status responses. Everything
// that is not ReturnCodeSuccess or ReturnCodePending is an explicit rejection.
const (
	ReturnCodeSuccess = "00"
	ReturnCodePending = "01"
)

// InitiateRequest carries everything the gateway needs to start a charge.
type InitiateRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Phone         string
	CustomerName  string
	CustomerEmail string
}

// InitiateResult is the gateway's answer to an initiation attempt.
type InitiateResult struct {
	GatewayTxID string
	ReturnCode  string
	CheckoutURL string
	RawResponse []byte
}

// Accepted reports whether the gateway accepted the charge for processing.
func (r *InitiateResult) Accepted() bool {
	return r.ReturnCode == ReturnCodeSuccess || r.ReturnCode == ReturnCodePending
}

// StatusResult is the gateway's answer to a status poll.
type StatusResult struct {
	StatusCode       string
	Successful       bool
	Failed           bool
	MomTransactionID string
	RawResponse      []byte
}

// WebhookEvent is the canonical decoding of an asynchronous gateway push.
type WebhookEvent struct {
	Reference        string
	GatewayTxID      string
	Successful       bool
	Failed           bool
	Pending          bool
	MomTransactionID string
	FailureCode      string
	RawPayload       []byte
}

// Client abstracts the external mobile-money gateway. Implementations must
// surface transport failures as *errors.GatewayUnavailableError and explicit
// vendor rejections as *errors.GatewayRejectedError, never swallow them.
type Client interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, gatewayTxID, reference string) (*StatusResult, error)
	DecodeWebhook(payload []byte) (*WebhookEvent, error)
}

// returnCodeMessages maps vendor return codes to user-facing failure reasons.
var returnCodeMessages = map[string]string{
	"02": "payment declined by subscriber",
	"03": "subscriber account has insufficient funds",
	"04": "subscriber phone number is not registered for mobile money",
	"05": "transaction limit exceeded",
	"06": "payment request expired before confirmation",
	"99": "payment rejected by the mobile money provider",
}

// MessageForCode translates a vendor return code into a human-readable reason.
func MessageForCode(code string) string {
	if msg, ok := returnCodeMessages[code]; ok {
		return msg
	}
	return "payment could not be processed (code " + code + ")"
}

// RejectionError builds the typed error for an explicit vendor rejection.
func RejectionError(code string) *errors.GatewayRejectedError {
	return &errors.GatewayRejectedError{Code: code, Message: MessageForCode(code)}
}
