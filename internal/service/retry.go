package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/model"
	"momopay/internal/repository"
)

// defaultRetryWindow applies when the client does not declare its own timeout
// for an in-flight attempt.
const defaultRetryWindow = 90 * time.Second

// RetryInput describes a fresh attempt for an order whose previous attempt
// failed, timed out or was abandoned.
type RetryInput struct {
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Phone         string
	CustomerName  string
	CustomerEmail string
	// TimeoutSeconds is the client's declared wait before it considers its
	// previous pending attempt abandoned.
	TimeoutSeconds int
}

// RetryService creates a new payment attempt for an order. It never mutates a
// previous attempt's terminal history; at most it cancels an abandoned
// pending attempt to release the order's open-payment slot.
type RetryService interface {
	Retry(ctx context.Context, orderID uuid.UUID, input RetryInput) (*InitiateResult, error)
}

type retryService struct {
	payments   repository.PaymentRepository
	initiation InitiationService
	audit      *AuditRecorder
}

// NewRetryService creates a new retry service.
func NewRetryService(payments repository.PaymentRepository, initiation InitiationService, audit *AuditRecorder) RetryService {
	return &retryService{
		payments:   payments,
		initiation: initiation,
		audit:      audit,
	}
}

// Retry inspects the most recent attempt for the order, rejects when it is
// completed or still within its client-declared window, supersedes an
// abandoned pending attempt and runs a fresh initiation with a new reference.
func (s *retryService) Retry(ctx context.Context, orderID uuid.UUID, input RetryInput) (*InitiateResult, error) {
	latest, err := s.payments.FindLatestByOrder(ctx, orderID)
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if latest != nil {
		if latest.Status == model.PaymentStatusCompleted {
			return nil, errors.ErrAlreadyPaid
		}
		if latest.Status == model.PaymentStatusPending {
			window := defaultRetryWindow
			if input.TimeoutSeconds > 0 {
				window = time.Duration(input.TimeoutSeconds) * time.Second
			}
			if time.Since(latest.CreatedAt) < window {
				return nil, errors.ErrPaymentInProgress
			}
			if err := s.supersede(ctx, latest); err != nil {
				return nil, err
			}
		}
	}

	return s.initiation.Initiate(ctx, InitiateInput{
		OrderID:       &orderID,
		Amount:        input.Amount,
		Currency:      input.Currency,
		Method:        input.Method,
		Phone:         input.Phone,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
	})
}

// supersede cancels an abandoned pending attempt so the order's open slot is
// free for the new one. The conditional update protects against a webhook
// that completes the old attempt at the same moment: if the cancel does not
// apply, the attempt settled first and the retry must not proceed.
func (s *retryService) supersede(ctx context.Context, stale *model.Payment) error {
	applied, err := s.payments.MarkCancelled(ctx, stale.ID)
	if err != nil {
		return err
	}
	if !applied {
		fresh, ferr := s.payments.FindByID(ctx, stale.ID)
		if ferr != nil {
			return ferr
		}
		if fresh.Status == model.PaymentStatusCompleted {
			return errors.ErrAlreadyPaid
		}
		// failed or cancelled meanwhile: slot already released
		return nil
	}
	s.audit.Record(ctx, stale.ID, model.SourceRetry, model.PaymentStatusCancelled, "superseded by retry")
	return nil
}
