package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"momopay/internal/model"
	"momopay/internal/repository"
)

// AuditRecorder writes payment audit events asynchronously through a buffered
// channel with batch flushing. Audit is best-effort and never blocks or fails
// payment processing.
type AuditRecorder struct {
	events  repository.PaymentEventRepository
	channel chan model.PaymentEvent
}

// NewAuditRecorder creates a recorder and starts its background worker.
func NewAuditRecorder(events repository.PaymentEventRepository) *AuditRecorder {
	r := &AuditRecorder{
		events:  events,
		channel: make(chan model.PaymentEvent, 100),
	}
	go r.worker(context.Background())
	return r
}

// Record enqueues an audit event, falling back to a synchronous write when the
// channel is full.
func (r *AuditRecorder) Record(ctx context.Context, paymentID uuid.UUID, source model.EventSource, status model.PaymentStatus, message string) {
	event := model.PaymentEvent{
		PaymentID: paymentID,
		Source:    source,
		Status:    status,
		Message:   message,
	}

	select {
	case r.channel <- event:
	default:
		_ = r.events.Create(ctx, &event)
	}
}

// worker batches audit events and flushes them on size or on a ticker.
func (r *AuditRecorder) worker(ctx context.Context) {
	batch := make([]model.PaymentEvent, 0, 10)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-r.channel:
			if !ok {
				if len(batch) > 0 {
					_ = r.events.CreateBatch(ctx, batch)
				}
				return
			}
			batch = append(batch, event)
			if len(batch) >= 10 {
				_ = r.events.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				_ = r.events.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			return
		}
	}
}
