package service

import (
	"context"
	"log"
	"time"

	"momopay/internal/model"
	"momopay/internal/repository"
)

// Sweeper cancels pending payments that neither a webhook nor polling ever
// resolved, so truly abandoned attempts do not hold an order's open-payment
// slot forever.
type Sweeper struct {
	payments repository.PaymentRepository
	audit    *AuditRecorder
	expiry   time.Duration
	interval time.Duration
}

// NewSweeper creates a sweeper for pending payments older than expiry.
func NewSweeper(payments repository.PaymentRepository, audit *AuditRecorder, expiry, interval time.Duration) *Sweeper {
	return &Sweeper{
		payments: payments,
		audit:    audit,
		expiry:   expiry,
		interval: interval,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Printf("pending payment sweep: %v", err)
			} else if n > 0 {
				log.Printf("pending payment sweep: cancelled %d stale payments", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce cancels all pending payments older than the expiry. Each cancel
// uses the same conditional transition as every other writer, so a webhook
// arriving mid-sweep either wins before the cancel or becomes a no-op after.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, time.Now().Add(-s.expiry))
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range stale {
		applied, err := s.payments.MarkCancelled(ctx, stale[i].ID)
		if err != nil {
			return cancelled, err
		}
		if applied {
			s.audit.Record(ctx, stale[i].ID, model.SourceSweep, model.PaymentStatusCancelled, "expired without confirmation")
			cancelled++
		}
	}
	return cancelled, nil
}
