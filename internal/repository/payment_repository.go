package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"momopay/internal/model"
)

// PaymentRepository defines payment persistence operations. All status and
// order-id writes are conditional updates so a losing concurrent writer
// becomes a no-op (applied=false) instead of overwriting a settled row.
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	FindByReference(ctx context.Context, reference string) (*model.Payment, error)
	FindByGatewayTxID(ctx context.Context, gatewayTxID string) (*model.Payment, error)
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	FindCompletedByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	ListStalePending(ctx context.Context, before time.Time) ([]model.Payment, error)

	SetGatewayResult(ctx context.Context, id uuid.UUID, gatewayTxID string, raw []byte) error
	MarkCompleted(ctx context.Context, id uuid.UUID, gatewayTxID, momTransactionID string, raw []byte) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, raw []byte) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	AttachOrder(ctx context.Context, id uuid.UUID, orderID uuid.UUID) (bool, error)
	RefreshRawResponse(ctx context.Context, id uuid.UUID, raw []byte) error
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a new payment record.
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// FindByID finds a payment by ID.
func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByReference finds a payment by its merchant reference.
func (r *paymentRepository) FindByReference(ctx context.Context, reference string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByGatewayTxID finds a payment by the gateway's transaction id.
func (r *paymentRepository) FindByGatewayTxID(ctx context.Context, gatewayTxID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("gateway_tx_id = ?", gatewayTxID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindOpenByOrder finds the non-terminal payment holding the order's open slot.
func (r *paymentRepository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("open_order_id = ?", orderID.String()).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindCompletedByOrder finds a completed payment for the order, if any.
func (r *paymentRepository) FindCompletedByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, model.PaymentStatusCompleted).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindLatestByOrder finds the most recent payment attempt for the order.
func (r *paymentRepository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at desc").
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListStalePending lists pending payments created before the cutoff.
func (r *paymentRepository) ListStalePending(ctx context.Context, before time.Time) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, before).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// SetGatewayResult records the gateway transaction id and raw response after
// initiation. The transaction id is set-once: a recorded id is never replaced.
func (r *paymentRepository) SetGatewayResult(ctx context.Context, id uuid.UUID, gatewayTxID string, raw []byte) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gateway_tx_id":        gorm.Expr("CASE WHEN gateway_tx_id = '' THEN ? ELSE gateway_tx_id END", gatewayTxID),
			"gateway_raw_response": raw,
		}).Error
}

// MarkCompleted transitions pending -> completed. The WHERE clause on status is
// the race guard: whichever of webhook and reconciliation writes first wins and
// the second caller gets applied=false. Clearing open_order_id in the same
// update releases the order's open-payment slot.
func (r *paymentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayTxID, momTransactionID string, raw []byte) (bool, error) {
	updates := map[string]interface{}{
		"status":               model.PaymentStatusCompleted,
		"completed_at":         time.Now(),
		"mom_transaction_id":   momTransactionID,
		"gateway_raw_response": raw,
		"open_order_id":        nil,
	}
	if gatewayTxID != "" {
		updates["gateway_tx_id"] = gorm.Expr("CASE WHEN gateway_tx_id = '' THEN ? ELSE gateway_tx_id END", gatewayTxID)
	}
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// MarkFailed transitions pending -> failed with the mapped failure reason.
func (r *paymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, raw []byte) (bool, error) {
	updates := map[string]interface{}{
		"status":         model.PaymentStatusFailed,
		"failure_reason": reason,
		"open_order_id":  nil,
	}
	if raw != nil {
		updates["gateway_raw_response"] = raw
	}
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// MarkCancelled transitions pending -> cancelled (abandoned-payment sweep or
// retry supersede). The cause is recorded in the audit trail; failure_reason
// is reserved for failed payments.
func (r *paymentRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":        model.PaymentStatusCancelled,
			"open_order_id": nil,
		})
	return res.RowsAffected > 0, res.Error
}

// AttachOrder sets order_id at most once. The WHERE clause on order_id makes a
// concurrent second link a no-op; the caller distinguishes "same order retried"
// from "different order" by re-reading the row. While the payment is still
// pending the order's open slot is claimed in the same write, so the unique
// index rejects a second open payment for the order.
func (r *paymentRepository) AttachOrder(ctx context.Context, id uuid.UUID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND order_id IS NULL", id).
		Updates(map[string]interface{}{
			"order_id":      orderID,
			"open_order_id": gorm.Expr("CASE WHEN status = ? THEN ? ELSE NULL END", model.PaymentStatusPending, orderID.String()),
		})
	return res.RowsAffected > 0, res.Error
}

// RefreshRawResponse stores the latest raw gateway payload for audit without
// touching status.
func (r *paymentRepository) RefreshRawResponse(ctx context.Context, id uuid.UUID, raw []byte) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Update("gateway_raw_response", raw).Error
}
