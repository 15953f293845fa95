package service

import (
	"context"
	"fmt"

	"momopay/internal/gateway"
	"momopay/internal/model"
	"momopay/internal/repository"
)

// gatewayOutcome is the canonical result both asynchronous webhooks and
// synchronous status polls reduce to before touching the record store.
type gatewayOutcome struct {
	kind             model.PaymentEventKind
	gatewayTxID      string
	momTransactionID string
	failureCode      string
	raw              []byte
}

// outcomeKind collapses the gateway's success/failure flags into a canonical
// event kind.
func outcomeKind(successful, failed bool) model.PaymentEventKind {
	switch {
	case successful:
		return model.EventSucceeded
	case failed:
		return model.EventFailed
	default:
		return model.EventPending
	}
}

// transitioner applies a gateway outcome to a payment. It is the single place
// the idempotency guard and the conditional transition writes live, shared by
// the webhook and reconciliation paths so the two cannot diverge.
type transitioner struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	audit    *AuditRecorder
}

// apply transitions the payment per the outcome and returns the resulting
// row. The in-memory state machine rejects transitions out of a terminal
// state, so duplicate or out-of-order deliveries leave a settled payment
// untouched; the conditional writes repeat the same guard at the storage
// layer for writers racing on a fresh read.
func (t *transitioner) apply(ctx context.Context, payment *model.Payment, outcome gatewayOutcome, source model.EventSource) (*model.Payment, error) {
	target := outcome.kind.TargetStatus()

	switch {
	case target == model.PaymentStatusCompleted && payment.Status.CanTransition(target):
		return t.complete(ctx, payment, outcome, source)

	case target == model.PaymentStatusFailed && payment.Status.CanTransition(target):
		return t.fail(ctx, payment, outcome, source)

	case outcome.kind == model.EventPending && payment.Status == model.PaymentStatusPending:
		// still pending at the gateway: keep the latest payload for audit
		if outcome.raw != nil {
			if err := t.payments.RefreshRawResponse(ctx, payment.ID, outcome.raw); err != nil {
				return nil, fmt.Errorf("refresh raw response: %w", err)
			}
		}
		return payment, nil

	default:
		t.audit.Record(ctx, payment.ID, source, payment.Status, "ignored: payment already terminal")
		return payment, nil
	}
}

// complete lands the completed transition and, when the payment is linked,
// propagates paid state into the order. Only the writer that won the
// conditional update propagates, so an order is marked paid exactly once per
// completed payment even under concurrent webhook and reconcile calls. The
// propagation decision reads the reloaded row, not the caller's copy: a manual
// link may have attached the order between the read and the conditional write.
func (t *transitioner) complete(ctx context.Context, payment *model.Payment, outcome gatewayOutcome, source model.EventSource) (*model.Payment, error) {
	applied, err := t.payments.MarkCompleted(ctx, payment.ID, outcome.gatewayTxID, outcome.momTransactionID, outcome.raw)
	if err != nil {
		return nil, fmt.Errorf("mark payment completed: %w", err)
	}

	fresh, err := t.reload(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !applied {
		// lost the race; return whatever settled first
		return fresh, nil
	}

	t.audit.Record(ctx, fresh.ID, source, model.PaymentStatusCompleted, "")

	if fresh.OrderID != nil {
		if err := t.markOrderPaid(ctx, fresh, source); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func (t *transitioner) fail(ctx context.Context, payment *model.Payment, outcome gatewayOutcome, source model.EventSource) (*model.Payment, error) {
	reason := gateway.MessageForCode(outcome.failureCode)
	applied, err := t.payments.MarkFailed(ctx, payment.ID, reason, outcome.raw)
	if err != nil {
		return nil, fmt.Errorf("mark payment failed: %w", err)
	}
	if applied {
		t.audit.Record(ctx, payment.ID, source, model.PaymentStatusFailed, reason)
	}
	return t.reload(ctx, payment)
}

func (t *transitioner) markOrderPaid(ctx context.Context, payment *model.Payment, source model.EventSource) error {
	applied, err := t.orders.MarkPaid(ctx, *payment.OrderID)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if applied {
		t.audit.Record(ctx, payment.ID, source, model.PaymentStatusCompleted, "order marked paid")
	}
	return nil
}

func (t *transitioner) reload(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	fresh, err := t.payments.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	return fresh, nil
}
