package repository

import (
	"context"

	"gorm.io/gorm"

	"momopay/internal/model"
)

// PaymentEventRepository defines audit event persistence operations.
type PaymentEventRepository interface {
	Create(ctx context.Context, event *model.PaymentEvent) error
	CreateBatch(ctx context.Context, events []model.PaymentEvent) error
}

type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository.
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// Create creates a single audit event.
func (r *paymentEventRepository) Create(ctx context.Context, event *model.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CreateBatch creates multiple audit events in a single statement.
func (r *paymentEventRepository) CreateBatch(ctx context.Context, events []model.PaymentEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}
