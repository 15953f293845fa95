package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderPaymentStatus represents the payment state of an order.
type OrderPaymentStatus string

const (
	OrderUnpaid OrderPaymentStatus = "unpaid"
	OrderPaid   OrderPaymentStatus = "paid"
)

// Order is the boundary view of an order held by the order system. This
// service only reads it and flips it to paid when an associated payment
// completes; everything else about orders belongs to the order system.
type Order struct {
	ID            uuid.UUID          `json:"id" gorm:"type:char(36);primaryKey"`
	Reference     string             `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	Amount        decimal.Decimal    `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency      string             `json:"currency" gorm:"type:varchar(8);not null;default:'RWF'"`
	PaymentStatus OrderPaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;default:'unpaid'"`
	IsPaid        bool               `json:"is_paid" gorm:"not null;default:false"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
