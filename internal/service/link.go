package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/model"
	"momopay/internal/repository"
)

// LinkResult reports the payment state after linking so the caller knows
// whether the order is already paid or still waiting for confirmation.
type LinkResult struct {
	Payment   *model.Payment
	OrderPaid bool
}

// LinkService associates a payment with an order exactly once and propagates
// completion into the order's payment state.
type LinkService interface {
	LinkPaymentToOrder(ctx context.Context, orderID uuid.UUID, reference string, paymentID *uuid.UUID) (*LinkResult, error)
}

type linkService struct {
	payments  repository.PaymentRepository
	orders    repository.OrderRepository
	reconcile ReconciliationService
	audit     *AuditRecorder
	tr        *transitioner
}

// NewLinkService creates a new order-linking service.
func NewLinkService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	reconcile ReconciliationService,
	audit *AuditRecorder,
) LinkService {
	return &linkService{
		payments:  payments,
		orders:    orders,
		reconcile: reconcile,
		audit:     audit,
		tr:        &transitioner{payments: payments, orders: orders, audit: audit},
	}
}

// LinkPaymentToOrder links the payment to the order. Linking a still-pending
// payment is permitted so a later completion can find its home; re-linking to
// the same order is a no-op; linking to a different order is a conflict.
func (s *linkService) LinkPaymentToOrder(ctx context.Context, orderID uuid.UUID, reference string, paymentID *uuid.UUID) (*LinkResult, error) {
	payment, err := s.lookup(ctx, reference, paymentID)
	if err != nil {
		return nil, err
	}

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, err
	}

	if payment.OrderID != nil && !payment.LinkedTo(orderID) {
		return nil, errors.ErrOrderMismatch
	}

	// Best effort: resolve a missed webhook before linking. A reconciliation
	// failure does not block the link.
	if !payment.Status.IsTerminal() {
		if result, rerr := s.reconcile.Reconcile(ctx, payment); rerr == nil {
			payment = result.Payment
		}
	}

	if payment.OrderID == nil {
		payment, err = s.attach(ctx, payment, orderID)
		if err != nil {
			return nil, err
		}
	}

	orderPaid := false
	if payment.Status == model.PaymentStatusCompleted {
		if err := s.tr.markOrderPaid(ctx, payment, model.SourceLink); err != nil {
			return nil, err
		}
		orderPaid = true
	}

	return &LinkResult{Payment: payment, OrderPaid: orderPaid}, nil
}

// attach sets order_id at most once and re-reads the row when a concurrent
// linker got there first, failing only if the winner chose a different order.
func (s *linkService) attach(ctx context.Context, payment *model.Payment, orderID uuid.UUID) (*model.Payment, error) {
	applied, err := s.payments.AttachOrder(ctx, payment.ID, orderID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			// the order's open-payment slot is held by another attempt
			return nil, errors.ErrPaymentInProgress
		}
		return nil, fmt.Errorf("attach order: %w", err)
	}

	fresh, err := s.payments.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	if fresh.OrderID == nil || !fresh.LinkedTo(orderID) {
		return nil, errors.ErrOrderMismatch
	}
	if applied {
		s.audit.Record(ctx, payment.ID, model.SourceLink, fresh.Status, "linked to order "+orderID.String())
	}
	return fresh, nil
}

func (s *linkService) lookup(ctx context.Context, reference string, paymentID *uuid.UUID) (*model.Payment, error) {
	var (
		payment *model.Payment
		err     error
	)
	switch {
	case paymentID != nil:
		payment, err = s.payments.FindByID(ctx, *paymentID)
	case reference != "":
		payment, err = s.payments.FindByReference(ctx, reference)
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
