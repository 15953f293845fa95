package service

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/gateway"
	"momopay/internal/model"
	"momopay/internal/repository"
)

// WebhookService applies asynchronous gateway push notifications to the
// payment record store idempotently.
type WebhookService interface {
	HandleNotification(ctx context.Context, payload []byte) error
}

type webhookService struct {
	payments repository.PaymentRepository
	gateway  gateway.Client
	tr       *transitioner
}

// NewWebhookService creates a new webhook ingestion service.
func NewWebhookService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	gw gateway.Client,
	audit *AuditRecorder,
) WebhookService {
	return &webhookService{
		payments: payments,
		gateway:  gw,
		tr:       &transitioner{payments: payments, orders: orders, audit: audit},
	}
}

// HandleNotification validates, decodes and applies one gateway push.
// Malformed payloads are rejected before any record is touched; an unknown
// payment is a not-found so the gateway retries its delivery later; a terminal
// payment is acknowledged without modification so duplicate or out-of-order
// deliveries cannot flap a settled payment.
func (s *webhookService) HandleNotification(ctx context.Context, payload []byte) error {
	event, err := s.gateway.DecodeWebhook(payload)
	if err != nil {
		return err
	}

	payment, err := s.lookup(ctx, event)
	if err != nil {
		return err
	}

	_, err = s.tr.apply(ctx, payment, gatewayOutcome{
		kind:             outcomeKind(event.Successful, event.Failed),
		gatewayTxID:      event.GatewayTxID,
		momTransactionID: event.MomTransactionID,
		failureCode:      event.FailureCode,
		raw:              event.RawPayload,
	}, model.SourceWebhook)
	return err
}

// lookup resolves the payment by reference first, falling back to the
// gateway's transaction id. Either identifier may become known to us first.
func (s *webhookService) lookup(ctx context.Context, event *gateway.WebhookEvent) (*model.Payment, error) {
	if event.Reference != "" {
		payment, err := s.payments.FindByReference(ctx, event.Reference)
		if err == nil {
			return payment, nil
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if event.GatewayTxID != "" {
		payment, err := s.payments.FindByGatewayTxID(ctx, event.GatewayTxID)
		if err == nil {
			return payment, nil
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, errors.ErrPaymentNotFound
}
