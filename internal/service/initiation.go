package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/gateway"
	"momopay/internal/model"
	"momopay/internal/repository"
)

const (
	createAttempts = 2
	createBackoff  = 100 * time.Millisecond
)

// InitiateInput carries everything needed to start a payment attempt. OrderID
// is nil for session payments (order created after payment).
type InitiateInput struct {
	OrderID       *uuid.UUID
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Phone         string
	CustomerName  string
	CustomerEmail string
}

// InitiateResult is returned to the caller so it can drive the checkout UI.
type InitiateResult struct {
	Payment     *model.Payment
	CheckoutURL string
	Existing    bool
}

// InitiationService creates a payment attempt and starts a gateway
// transaction.
type InitiationService interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
}

type initiationService struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	gateway  gateway.Client
	audit    *AuditRecorder
}

// NewInitiationService creates a new initiation service.
func NewInitiationService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	gw gateway.Client,
	audit *AuditRecorder,
) InitiationService {
	return &initiationService{
		payments: payments,
		orders:   orders,
		gateway:  gw,
		audit:    audit,
	}
}

// Initiate validates the attempt, creates the pending record and asks the
// gateway to start the charge. A rejection from the gateway lands the payment
// in failed with the mapped reason; gateway unavailability leaves it pending
// and resumable via polling.
func (s *initiationService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	if _, err := gateway.NormalizePhone(input.Phone); err != nil {
		return nil, err
	}

	if input.OrderID != nil {
		if err := s.checkOrder(ctx, *input.OrderID); err != nil {
			return nil, err
		}
	}

	payment := &model.Payment{
		Reference: input.Reference,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Method:    input.Method,
		Phone:     input.Phone,
		Status:    model.PaymentStatusPending,
		OrderID:   input.OrderID,
	}
	if payment.Reference == "" {
		payment.Reference = "PAY-" + uuid.NewString()
	}
	if payment.Currency == "" {
		payment.Currency = "RWF"
	}
	if input.OrderID != nil {
		slot := input.OrderID.String()
		payment.OpenOrderID = &slot
	}

	existing, err := s.createWithRetry(ctx, payment)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// duplicate submission: hand back the row that won the race
		return &InitiateResult{Payment: existing, Existing: true}, nil
	}

	s.audit.Record(ctx, payment.ID, model.SourceInitiate, model.PaymentStatusPending, "payment created")

	return s.startGatewayCharge(ctx, payment, input)
}

// checkOrder rejects initiation when the order already has a completed payment
// or another attempt in flight.
func (s *initiationService) checkOrder(ctx context.Context, orderID uuid.UUID) error {
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrOrderNotFound
		}
		return err
	}

	if _, err := s.payments.FindCompletedByOrder(ctx, orderID); err == nil {
		return errors.ErrAlreadyPaid
	} else if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if _, err := s.payments.FindOpenByOrder(ctx, orderID); err == nil {
		return errors.ErrPaymentInProgress
	} else if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return nil
}

// createWithRetry absorbs transient store write failures with a small bounded
// retry. A unique-constraint collision is not a failure: the already-created
// row is fetched and returned so a duplicate submission can proceed.
func (s *initiationService) createWithRetry(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(createBackoff)
		}
		err := s.payments.Create(ctx, payment)
		if err == nil {
			return nil, nil
		}
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return s.findCollision(ctx, payment)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create payment: %w", lastErr)
}

// findCollision resolves which unique constraint fired and returns the row
// that holds it.
func (s *initiationService) findCollision(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	if existing, err := s.payments.FindByReference(ctx, payment.Reference); err == nil {
		return existing, nil
	} else if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if payment.OrderID != nil {
		if existing, err := s.payments.FindOpenByOrder(ctx, *payment.OrderID); err == nil {
			return existing, nil
		} else if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, errors.ErrPaymentInProgress
}

// startGatewayCharge calls the gateway and persists its answer regardless of
// outcome, so the audit trail always holds what the vendor said.
func (s *initiationService) startGatewayCharge(ctx context.Context, payment *model.Payment, input InitiateInput) (*InitiateResult, error) {
	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Reference:     payment.Reference,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.Method,
		Phone:         input.Phone,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
	})
	if err != nil {
		// unreachable gateway: the pending row stays resumable via polling, so
		// the caller gets its id and reference alongside the error
		s.audit.Record(ctx, payment.ID, model.SourceInitiate, model.PaymentStatusPending, err.Error())
		return &InitiateResult{Payment: payment}, err
	}

	if err := s.payments.SetGatewayResult(ctx, payment.ID, resp.GatewayTxID, resp.RawResponse); err != nil {
		return nil, fmt.Errorf("persist gateway result: %w", err)
	}
	payment.GatewayTxID = resp.GatewayTxID
	payment.GatewayRawResponse = resp.RawResponse

	if !resp.Accepted() {
		reason := gateway.MessageForCode(resp.ReturnCode)
		if _, err := s.payments.MarkFailed(ctx, payment.ID, reason, resp.RawResponse); err != nil {
			return nil, fmt.Errorf("mark payment failed: %w", err)
		}
		payment.Status = model.PaymentStatusFailed
		payment.FailureReason = reason
		s.audit.Record(ctx, payment.ID, model.SourceInitiate, model.PaymentStatusFailed, reason)
		return &InitiateResult{Payment: payment}, gateway.RejectionError(resp.ReturnCode)
	}

	return &InitiateResult{Payment: payment, CheckoutURL: resp.CheckoutURL}, nil
}
