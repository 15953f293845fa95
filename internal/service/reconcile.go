package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"momopay/internal/cache"
	"momopay/internal/errors"
	"momopay/internal/gateway"
	"momopay/internal/model"
	"momopay/internal/repository"
)

const statusCacheTTL = 5 * time.Minute

// ReconcileResult carries the payment after reconciliation and whether the
// gateway could actually be reached. GatewayReached=false means the returned
// state is the last known local one and the caller should keep polling.
type ReconcileResult struct {
	Payment        *model.Payment
	GatewayReached bool
}

// StatusView is the caller-facing shape of a status or finalize lookup.
type StatusView struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	Reference      string              `json:"reference"`
	Status         model.PaymentStatus `json:"status"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	TransactionID  string              `json:"transaction_id,omitempty"`
	NeedsUpdate    bool                `json:"needs_update"`
	CanCreateOrder bool                `json:"can_create_order"`
	FailureReason  string              `json:"failure_reason,omitempty"`
}

// ReconciliationService actively resolves a non-terminal payment against the
// gateway, covering the gap where a webhook has not arrived (yet or ever).
type ReconciliationService interface {
	Reconcile(ctx context.Context, payment *model.Payment) (*ReconcileResult, error)
	CheckStatus(ctx context.Context, paymentID *uuid.UUID, reference, gatewayTxID string) (*StatusView, error)
	Finalize(ctx context.Context, reference, gatewayTxID string) (*StatusView, error)
}

type reconciliationService struct {
	payments repository.PaymentRepository
	gateway  gateway.Client
	cache    *cache.Client
	tr       *transitioner
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	gw gateway.Client,
	cacheClient *cache.Client,
	audit *AuditRecorder,
) ReconciliationService {
	return &reconciliationService{
		payments: payments,
		gateway:  gw,
		cache:    cacheClient,
		tr:       &transitioner{payments: payments, orders: orders, audit: audit},
	}
}

// Reconcile pulls current status from the gateway and persists any discovered
// change. A terminal payment is returned as-is without a gateway call. Gateway
// unavailability is not an error: the last known state comes back with
// GatewayReached=false so pollers keep retrying instead of treating an outage
// as a payment failure.
func (s *reconciliationService) Reconcile(ctx context.Context, payment *model.Payment) (*ReconcileResult, error) {
	if payment.Status.IsTerminal() {
		return &ReconcileResult{Payment: payment, GatewayReached: true}, nil
	}

	status, err := s.gateway.CheckStatus(ctx, payment.GatewayTxID, payment.Reference)
	if err != nil {
		var unavailable *errors.GatewayUnavailableError
		if stderrors.As(err, &unavailable) {
			return &ReconcileResult{Payment: payment, GatewayReached: false}, nil
		}
		var rejected *errors.GatewayRejectedError
		if stderrors.As(err, &rejected) {
			// the gateway answered but would not resolve the transaction;
			// keep the local state and let the caller retry
			return &ReconcileResult{Payment: payment, GatewayReached: false}, nil
		}
		return nil, fmt.Errorf("gateway status check: %w", err)
	}

	updated, err := s.tr.apply(ctx, payment, gatewayOutcome{
		kind:             outcomeKind(status.Successful, status.Failed),
		momTransactionID: status.MomTransactionID,
		failureCode:      status.StatusCode,
		raw:              status.RawResponse,
	}, model.SourceReconcile)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Payment: updated, GatewayReached: true}, nil
}

// CheckStatus resolves a payment by whichever identifier the caller has and
// reconciles it when still pending. Settled results are cached only when
// nothing in the view can change anymore, so the cache can never serve a
// stale answer.
func (s *reconciliationService) CheckStatus(ctx context.Context, paymentID *uuid.UUID, reference, gatewayTxID string) (*StatusView, error) {
	if cached := s.cachedView(ctx, reference, gatewayTxID); cached != nil {
		return cached, nil
	}

	payment, err := s.lookup(ctx, paymentID, reference, gatewayTxID)
	if err != nil {
		return nil, err
	}

	result, err := s.Reconcile(ctx, payment)
	if err != nil {
		return nil, err
	}

	view := s.view(result)
	if cacheableView(result.Payment) {
		s.storeView(ctx, result.Payment, view)
	}
	return view, nil
}

// cacheableView reports whether the payment's status view is frozen. A
// completed session payment is terminal but its view is not: linking it to an
// order later flips whether an order may still be created for it.
func cacheableView(p *model.Payment) bool {
	if !p.Status.IsTerminal() {
		return false
	}
	return !(p.Status == model.PaymentStatusCompleted && p.IsSessionPayment())
}

// Finalize is the checkout-return path: resolve the payment and report whether
// the client may proceed (status completed) and whether a session payment is
// still waiting for an order to be created.
func (s *reconciliationService) Finalize(ctx context.Context, reference, gatewayTxID string) (*StatusView, error) {
	payment, err := s.lookup(ctx, nil, reference, gatewayTxID)
	if err != nil {
		return nil, err
	}

	result, err := s.Reconcile(ctx, payment)
	if err != nil {
		return nil, err
	}
	return s.view(result), nil
}

func (s *reconciliationService) lookup(ctx context.Context, paymentID *uuid.UUID, reference, gatewayTxID string) (*model.Payment, error) {
	var (
		payment *model.Payment
		err     error
	)
	switch {
	case paymentID != nil:
		payment, err = s.payments.FindByID(ctx, *paymentID)
	case reference != "":
		payment, err = s.payments.FindByReference(ctx, reference)
	case gatewayTxID != "":
		payment, err = s.payments.FindByGatewayTxID(ctx, gatewayTxID)
	default:
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *reconciliationService) view(result *ReconcileResult) *StatusView {
	p := result.Payment
	return &StatusView{
		PaymentID:      p.ID,
		Reference:      p.Reference,
		Status:         p.Status,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		TransactionID:  p.GatewayTxID,
		NeedsUpdate:    !result.GatewayReached && !p.Status.IsTerminal(),
		CanCreateOrder: p.Status == model.PaymentStatusCompleted && p.IsSessionPayment(),
		FailureReason:  p.FailureReason,
	}
}

func (s *reconciliationService) cachedView(ctx context.Context, reference, gatewayTxID string) *StatusView {
	key := statusCacheKey(reference, gatewayTxID)
	if key == "" {
		return nil
	}
	raw, _ := s.cache.Get(ctx, key)
	if raw == nil {
		return nil
	}
	var view StatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil
	}
	return &view
}

func (s *reconciliationService) storeView(ctx context.Context, payment *model.Payment, view *StatusView) {
	encoded, err := json.Marshal(view)
	if err != nil {
		return
	}
	if payment.Reference != "" {
		_ = s.cache.Set(ctx, statusCacheKey(payment.Reference, ""), encoded, statusCacheTTL)
	}
	if payment.GatewayTxID != "" {
		_ = s.cache.Set(ctx, statusCacheKey("", payment.GatewayTxID), encoded, statusCacheTTL)
	}
}

func statusCacheKey(reference, gatewayTxID string) string {
	if reference != "" {
		return "payment:status:ref:" + reference
	}
	if gatewayTxID != "" {
		return "payment:status:tx:" + gatewayTxID
	}
	return ""
}
