package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventSource identifies which entry point observed or caused a transition.
type EventSource string

const (
	SourceInitiate  EventSource = "initiate"
	SourceWebhook   EventSource = "webhook"
	SourceReconcile EventSource = "reconcile"
	SourceLink      EventSource = "link"
	SourceRetry     EventSource = "retry"
	SourceSweep     EventSource = "sweep"
)

// PaymentEvent is an append-only audit record of everything that touched a
// payment: transitions, no-ops from losing writers, gateway outcomes.
type PaymentEvent struct {
	ID        uuid.UUID     `json:"id" gorm:"type:char(36);primaryKey"`
	PaymentID uuid.UUID     `json:"payment_id" gorm:"type:char(36);not null;index"`
	Source    EventSource   `json:"source" gorm:"type:varchar(20);not null"`
	Status    PaymentStatus `json:"status" gorm:"type:varchar(20);not null"`
	Message   string        `json:"message" gorm:"type:varchar(255)"`
	CreatedAt time.Time     `json:"created_at"`
}

// BeforeCreate sets UUID before creating the record.
func (e *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
