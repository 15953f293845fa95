package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/gateway"
	"momopay/internal/model"
)

func newReconciliationService(payments *MockPaymentRepository, orders *MockOrderRepository, gw *MockGatewayClient) ReconciliationService {
	return NewReconciliationService(payments, orders, gw, nil, testAudit())
}

func TestReconcile_TerminalPaymentSkipsGateway(t *testing.T) {
	payment := pendingPayment(nil)
	payment.Status = model.PaymentStatusCompleted

	gw := new(MockGatewayClient)
	service := newReconciliationService(new(MockPaymentRepository), new(MockOrderRepository), gw)

	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.True(t, result.GatewayReached)
	assert.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
	gw.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_GatewayOutageReturnsLastKnownState(t *testing.T) {
	payment := pendingPayment(nil)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)
	gw.On("CheckStatus", mock.Anything, "", "REF-1").
		Return(nil, &errors.GatewayUnavailableError{Err: context.DeadlineExceeded})

	service := newReconciliationService(payments, new(MockOrderRepository), gw)
	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.False(t, result.GatewayReached)
	assert.Equal(t, model.PaymentStatusPending, result.Payment.Status)
	payments.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_SuccessCompletesAndPropagates(t *testing.T) {
	orderID := uuid.New()
	payment := pendingPayment(&orderID)
	payment.GatewayTxID = "GTX-1"
	raw := []byte(`{"status_code":"00"}`)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)

	gw.On("CheckStatus", mock.Anything, "GTX-1", "REF-1").Return(&gateway.StatusResult{
		StatusCode:       "00",
		Successful:       true,
		MomTransactionID: "MOM-9",
		RawResponse:      raw,
	}, nil)
	payments.On("MarkCompleted", mock.Anything, payment.ID, "", "MOM-9", raw).Return(true, nil)
	orders.On("MarkPaid", mock.Anything, orderID).Return(true, nil)
	completed := *payment
	completed.Status = model.PaymentStatusCompleted
	payments.On("FindByID", mock.Anything, payment.ID).Return(&completed, nil)

	service := newReconciliationService(payments, orders, gw)
	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.True(t, result.GatewayReached)
	assert.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
	orders.AssertExpectations(t)
}

func TestReconcile_LostRaceDoesNotPropagateTwice(t *testing.T) {
	orderID := uuid.New()
	payment := pendingPayment(&orderID)
	raw := []byte(`{"status_code":"00"}`)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)

	gw.On("CheckStatus", mock.Anything, "", "REF-1").Return(&gateway.StatusResult{
		StatusCode:  "00",
		Successful:  true,
		RawResponse: raw,
	}, nil)
	// webhook won the conditional write first
	payments.On("MarkCompleted", mock.Anything, payment.ID, "", "", raw).Return(false, nil)
	settled := *payment
	settled.Status = model.PaymentStatusCompleted
	payments.On("FindByID", mock.Anything, payment.ID).Return(&settled, nil)

	service := newReconciliationService(payments, orders, gw)
	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
	orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestReconcile_GatewayReportsFailure(t *testing.T) {
	payment := pendingPayment(nil)
	raw := []byte(`{"status_code":"06"}`)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)

	gw.On("CheckStatus", mock.Anything, "", "REF-1").Return(&gateway.StatusResult{
		StatusCode:  "06",
		Failed:      true,
		RawResponse: raw,
	}, nil)
	payments.On("MarkFailed", mock.Anything, payment.ID, "payment request expired before confirmation", raw).Return(true, nil)
	failed := *payment
	failed.Status = model.PaymentStatusFailed
	payments.On("FindByID", mock.Anything, payment.ID).Return(&failed, nil)

	service := newReconciliationService(payments, new(MockOrderRepository), gw)
	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, result.Payment.Status)
}

func TestReconcile_StillPendingKeepsState(t *testing.T) {
	payment := pendingPayment(nil)
	raw := []byte(`{"status_code":"01"}`)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)

	gw.On("CheckStatus", mock.Anything, "", "REF-1").Return(&gateway.StatusResult{
		StatusCode:  "01",
		RawResponse: raw,
	}, nil)
	payments.On("RefreshRawResponse", mock.Anything, payment.ID, raw).Return(nil)

	service := newReconciliationService(payments, new(MockOrderRepository), gw)
	result, err := service.Reconcile(context.Background(), payment)

	assert.NoError(t, err)
	assert.True(t, result.GatewayReached)
	assert.Equal(t, model.PaymentStatusPending, result.Payment.Status)
}

func TestCheckStatus_LookupPrecedence(t *testing.T) {
	payment := pendingPayment(nil)
	paymentID := payment.ID

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)

	payments.On("FindByID", mock.Anything, paymentID).Return(payment, nil)
	gw.On("CheckStatus", mock.Anything, "", "REF-1").
		Return(nil, &errors.GatewayUnavailableError{Err: context.DeadlineExceeded})

	service := newReconciliationService(payments, new(MockOrderRepository), gw)
	view, err := service.CheckStatus(context.Background(), &paymentID, "ignored-ref", "ignored-tx")

	assert.NoError(t, err)
	assert.Equal(t, paymentID, view.PaymentID)
	assert.Equal(t, model.PaymentStatusPending, view.Status)
	assert.True(t, view.NeedsUpdate)
}

func TestCheckStatus_UnknownPayment(t *testing.T) {
	payments := new(MockPaymentRepository)
	payments.On("FindByReference", mock.Anything, "REF-GONE").Return(nil, gorm.ErrRecordNotFound)

	service := newReconciliationService(payments, new(MockOrderRepository), new(MockGatewayClient))
	_, err := service.CheckStatus(context.Background(), nil, "REF-GONE", "")

	assert.ErrorIs(t, err, errors.ErrPaymentNotFound)
}

func TestStatusCache_CompletedSessionPaymentIsNotCacheable(t *testing.T) {
	orderID := uuid.New()

	completedSession := pendingPayment(nil)
	completedSession.Status = model.PaymentStatusCompleted

	completedLinked := pendingPayment(&orderID)
	completedLinked.Status = model.PaymentStatusCompleted

	failedSession := pendingPayment(nil)
	failedSession.Status = model.PaymentStatusFailed

	// linking can still flip can_create_order on a completed session payment,
	// so its view must always come from a fresh read
	assert.False(t, cacheableView(completedSession))
	assert.True(t, cacheableView(completedLinked))
	assert.True(t, cacheableView(failedSession))
	assert.False(t, cacheableView(pendingPayment(nil)))
}

func TestFinalize_CompletedSessionPaymentCanCreateOrder(t *testing.T) {
	payment := pendingPayment(nil)
	payment.Status = model.PaymentStatusCompleted

	payments := new(MockPaymentRepository)
	payments.On("FindByReference", mock.Anything, "REF-1").Return(payment, nil)

	service := newReconciliationService(payments, new(MockOrderRepository), new(MockGatewayClient))
	view, err := service.Finalize(context.Background(), "REF-1", "")

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, view.Status)
	assert.True(t, view.CanCreateOrder)
	assert.False(t, view.NeedsUpdate)
}

func TestFinalize_PendingWithGatewayDownNeedsUpdate(t *testing.T) {
	payment := pendingPayment(nil)

	gw := new(MockGatewayClient)
	payments := new(MockPaymentRepository)
	payments.On("FindByReference", mock.Anything, "REF-1").Return(payment, nil)
	gw.On("CheckStatus", mock.Anything, "", "REF-1").
		Return(nil, &errors.GatewayUnavailableError{Err: context.DeadlineExceeded})

	service := newReconciliationService(payments, new(MockOrderRepository), gw)
	view, err := service.Finalize(context.Background(), "REF-1", "")

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, view.Status)
	assert.True(t, view.NeedsUpdate)
	assert.False(t, view.CanCreateOrder)
}
