package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"momopay/internal/model"
)

// OrderRepository is the boundary to the order system: lookups plus the single
// permitted mutation, flipping an order to paid.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates a new order (used by seeding and tests).
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID finds an order by ID.
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid flips the order to paid. Conditional on is_paid so concurrent
// propagation from a webhook and a reconciliation poll marks it exactly once.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]interface{}{
			"payment_status": model.OrderPaid,
			"is_paid":        true,
		})
	return res.RowsAffected > 0, res.Error
}
