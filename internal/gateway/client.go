package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"momopay/internal/errors"
)

// httpClient is the HTTP implementation of Client.
type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a gateway client with a bounded request timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type initiatePayload struct {
	Reference     string `json:"reference"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"payment_method"`
	Phone         string `json:"msisdn"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

type initiateResponse struct {
	TransactionID string `json:"transaction_id"`
	ReturnCode    string `json:"return_code"`
	CheckoutURL   string `json:"checkout_url"`
}

// Initiate starts a charge at the gateway. The vendor answers 200 even for
// rejections; rejection is carried in return_code.
func (c *httpClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	payload := initiatePayload{
		Reference:     req.Reference,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Method:        req.Method,
		Phone:         phone,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	}

	raw, err := c.post(ctx, "/v1/transactions", payload)
	if err != nil {
		return nil, err
	}

	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &errors.GatewayUnavailableError{Err: fmt.Errorf("decode initiate response: %w", err)}
	}

	return &InitiateResult{
		GatewayTxID: resp.TransactionID,
		ReturnCode:  resp.ReturnCode,
		CheckoutURL: resp.CheckoutURL,
		RawResponse: raw,
	}, nil
}

type statusResponse struct {
	TransactionID    string `json:"transaction_id"`
	StatusCode       string `json:"status_code"`
	MomTransactionID string `json:"mom_transaction_id"`
}

// CheckStatus polls the gateway for the current transaction state, preferring
// the gateway's own transaction id over the merchant reference.
func (c *httpClient) CheckStatus(ctx context.Context, gatewayTxID, reference string) (*StatusResult, error) {
	path := "/v1/transactions/" + gatewayTxID
	if gatewayTxID == "" {
		path = "/v1/transactions/by-reference/" + reference
	}

	raw, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &errors.GatewayUnavailableError{Err: fmt.Errorf("decode status response: %w", err)}
	}

	return &StatusResult{
		StatusCode:       resp.StatusCode,
		Successful:       resp.StatusCode == ReturnCodeSuccess,
		Failed:           resp.StatusCode != ReturnCodeSuccess && resp.StatusCode != ReturnCodePending,
		MomTransactionID: resp.MomTransactionID,
		RawResponse:      raw,
	}, nil
}

type webhookPayload struct {
	Reference        string `json:"reference"`
	TransactionID    string `json:"transaction_id"`
	StatusCode       string `json:"status_code"`
	MomTransactionID string `json:"mom_transaction_id"`
}

// DecodeWebhook validates and normalizes an asynchronous gateway push. A
// payload missing both identifiers, or missing a status code, is rejected
// before any record is touched.
func (c *httpClient) DecodeWebhook(payload []byte) (*WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.ErrMalformedWebhook
	}
	if p.Reference == "" && p.TransactionID == "" {
		return nil, errors.ErrMalformedWebhook
	}
	if p.StatusCode == "" {
		return nil, errors.ErrMalformedWebhook
	}

	event := &WebhookEvent{
		Reference:        p.Reference,
		GatewayTxID:      p.TransactionID,
		MomTransactionID: p.MomTransactionID,
		RawPayload:       payload,
	}
	switch p.StatusCode {
	case ReturnCodeSuccess:
		event.Successful = true
	case ReturnCodePending:
		event.Pending = true
	default:
		event.Failed = true
		event.FailureCode = p.StatusCode
	}
	return event, nil
}

func (c *httpClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// timeout or network failure: retryable, never a payment outcome
		return nil, &errors.GatewayUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.GatewayUnavailableError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &errors.GatewayUnavailableError{Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, RejectionError(fmt.Sprintf("http_%d", resp.StatusCode))
	}
	return raw, nil
}
