package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents the status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// validTransitions encodes the payment state machine. Terminal states have no
// outgoing transitions, which is what makes duplicate webhook deliveries and
// racing reconciliation polls harmless.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted: {},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
}

// IsTerminal reports whether no further status transition is permitted.
func (s PaymentStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransition reports whether the transition s -> to is allowed.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, t := range validTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// PaymentEventKind is a canonical gateway outcome, decoupled from any
// vendor-specific status code.
type PaymentEventKind string

const (
	EventSucceeded PaymentEventKind = "succeeded"
	EventFailed    PaymentEventKind = "failed"
	EventPending   PaymentEventKind = "pending"
)

// TargetStatus returns the payment status a gateway event drives toward.
func (k PaymentEventKind) TargetStatus() PaymentStatus {
	switch k {
	case EventSucceeded:
		return PaymentStatusCompleted
	case EventFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

// Payment represents a single mobile-money payment attempt. Rows are an
// immutable audit trail once terminal; they are never deleted.
type Payment struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	Reference   string          `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	GatewayTxID string          `json:"gateway_tx_id" gorm:"type:varchar(64);index"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency    string          `json:"currency" gorm:"type:varchar(8);not null;default:'RWF'"`
	Method      string          `json:"payment_method" gorm:"type:varchar(32);not null"`
	Phone       string          `json:"phone" gorm:"type:varchar(20)"`
	Status      PaymentStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	OrderID     *uuid.UUID      `json:"order_id" gorm:"type:char(36);index"`

	// OpenOrderID mirrors OrderID while the payment is non-terminal and is
	// cleared by the same conditional update that lands a terminal status.
	// The unique index enforces "at most one open payment per order" in
	// storage, not just in application logic.
	OpenOrderID *string `json:"-" gorm:"type:char(36);uniqueIndex"`

	MomTransactionID   string     `json:"mom_transaction_id" gorm:"type:varchar(64)"`
	GatewayRawResponse []byte     `json:"-" gorm:"type:blob"`
	FailureReason      string     `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// BeforeCreate sets UUID before creating the record.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsSessionPayment reports whether the payment was created before an order
// existed and has not been linked yet.
func (p *Payment) IsSessionPayment() bool {
	return p.OrderID == nil
}

// LinkedTo reports whether the payment is linked to the given order.
func (p *Payment) LinkedTo(orderID uuid.UUID) bool {
	return p.OrderID != nil && *p.OrderID == orderID
}
