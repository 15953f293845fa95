package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"momopay/internal/errors"
	"momopay/internal/gateway"
	"momopay/internal/model"
)

func validInput(orderID *uuid.UUID) InitiateInput {
	return InitiateInput{
		OrderID:      orderID,
		Amount:       decimal.NewFromInt(5000),
		Currency:     "RWF",
		Method:       "mobile_money",
		Phone:        "0788123456",
		CustomerName: "Test Customer",
	}
}

func expectNoExistingAttempts(payments *MockPaymentRepository, orders *MockOrderRepository, orderID uuid.UUID) {
	orders.On("FindByID", mock.Anything, orderID).Return(&model.Order{ID: orderID}, nil)
	payments.On("FindCompletedByOrder", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound)
	payments.On("FindOpenByOrder", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound)
}

func assignPaymentID(payments *MockPaymentRepository, err error) {
	call := payments.On("Create", mock.Anything, mock.AnythingOfType("*model.Payment"))
	call.Run(func(args mock.Arguments) {
		p := args.Get(1).(*model.Payment)
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	})
	call.Return(err)
}

func TestInitiation_OrderPaymentCreatedPending(t *testing.T) {
	orderID := uuid.New()
	raw := []byte(`{"return_code":"00"}`)

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)
	gw := new(MockGatewayClient)

	expectNoExistingAttempts(payments, orders, orderID)
	assignPaymentID(payments, nil)
	gw.On("Initiate", mock.Anything, mock.AnythingOfType("gateway.InitiateRequest")).Return(&gateway.InitiateResult{
		GatewayTxID: "GTX-1",
		ReturnCode:  "00",
		CheckoutURL: "https://pay.example/GTX-1",
		RawResponse: raw,
	}, nil)
	payments.On("SetGatewayResult", mock.Anything, mock.AnythingOfType("uuid.UUID"), "GTX-1", raw).Return(nil)

	service := NewInitiationService(payments, orders, gw, testAudit())
	result, err := service.Initiate(context.Background(), validInput(&orderID))

	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, "GTX-1", result.Payment.GatewayTxID)
	assert.Equal(t, "https://pay.example/GTX-1", result.CheckoutURL)
	assert.NotEmpty(t, result.Payment.Reference)
	assert.Equal(t, &orderID, result.Payment.OrderID)
	payments.AssertExpectations(t)
}

func TestInitiation_SessionPaymentSkipsOrderChecks(t *testing.T) {
	raw := []byte(`{"return_code":"00"}`)

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)
	gw := new(MockGatewayClient)

	assignPaymentID(payments, nil)
	gw.On("Initiate", mock.Anything, mock.AnythingOfType("gateway.InitiateRequest")).Return(&gateway.InitiateResult{
		GatewayTxID: "GTX-2",
		ReturnCode:  "00",
		RawResponse: raw,
	}, nil)
	payments.On("SetGatewayResult", mock.Anything, mock.AnythingOfType("uuid.UUID"), "GTX-2", raw).Return(nil)

	service := NewInitiationService(payments, orders, gw, testAudit())
	result, err := service.Initiate(context.Background(), validInput(nil))

	assert.NoError(t, err)
	assert.Nil(t, result.Payment.OrderID)
	orders.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestInitiation_RejectsWhenPaymentInProgress(t *testing.T) {
	orderID := uuid.New()

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)

	orders.On("FindByID", mock.Anything, orderID).Return(&model.Order{ID: orderID}, nil)
	payments.On("FindCompletedByOrder", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound)
	payments.On("FindOpenByOrder", mock.Anything, orderID).Return(pendingPayment(&orderID), nil)

	service := NewInitiationService(payments, orders, new(MockGatewayClient), testAudit())
	_, err := service.Initiate(context.Background(), validInput(&orderID))

	assert.ErrorIs(t, err, errors.ErrPaymentInProgress)
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitiation_RejectsWhenAlreadyPaid(t *testing.T) {
	orderID := uuid.New()

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)

	orders.On("FindByID", mock.Anything, orderID).Return(&model.Order{ID: orderID}, nil)
	completed := pendingPayment(&orderID)
	completed.Status = model.PaymentStatusCompleted
	payments.On("FindCompletedByOrder", mock.Anything, orderID).Return(completed, nil)

	service := NewInitiationService(payments, orders, new(MockGatewayClient), testAudit())
	_, err := service.Initiate(context.Background(), validInput(&orderID))

	assert.ErrorIs(t, err, errors.ErrAlreadyPaid)
}

func TestInitiation_UnknownOrder(t *testing.T) {
	orderID := uuid.New()

	orders := new(MockOrderRepository)
	orders.On("FindByID", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound)

	service := NewInitiationService(new(MockPaymentRepository), orders, new(MockGatewayClient), testAudit())
	_, err := service.Initiate(context.Background(), validInput(&orderID))

	assert.ErrorIs(t, err, errors.ErrOrderNotFound)
}

func TestInitiation_GatewayRejectionFailsPayment(t *testing.T) {
	orderID := uuid.New()
	raw := []byte(`{"return_code":"99"}`)

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)
	gw := new(MockGatewayClient)

	expectNoExistingAttempts(payments, orders, orderID)
	assignPaymentID(payments, nil)
	gw.On("Initiate", mock.Anything, mock.AnythingOfType("gateway.InitiateRequest")).Return(&gateway.InitiateResult{
		GatewayTxID: "GTX-3",
		ReturnCode:  "99",
		RawResponse: raw,
	}, nil)
	payments.On("SetGatewayResult", mock.Anything, mock.AnythingOfType("uuid.UUID"), "GTX-3", raw).Return(nil)
	payments.On("MarkFailed", mock.Anything, mock.AnythingOfType("uuid.UUID"),
		"payment rejected by the mobile money provider", raw).Return(true, nil)

	service := NewInitiationService(payments, orders, gw, testAudit())
	result, err := service.Initiate(context.Background(), validInput(&orderID))

	var rejected *errors.GatewayRejectedError
	assert.True(t, stderrors.As(err, &rejected))
	assert.Equal(t, "99", rejected.Code)
	assert.Equal(t, model.PaymentStatusFailed, result.Payment.Status)
	assert.Equal(t, "payment rejected by the mobile money provider", result.Payment.FailureReason)
	payments.AssertExpectations(t)
}

func TestInitiation_GatewayOutageLeavesPaymentPending(t *testing.T) {
	orderID := uuid.New()

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)
	gw := new(MockGatewayClient)

	expectNoExistingAttempts(payments, orders, orderID)
	assignPaymentID(payments, nil)
	gw.On("Initiate", mock.Anything, mock.AnythingOfType("gateway.InitiateRequest")).
		Return(nil, &errors.GatewayUnavailableError{Err: context.DeadlineExceeded})

	service := NewInitiationService(payments, orders, gw, testAudit())
	result, err := service.Initiate(context.Background(), validInput(&orderID))

	var unavailable *errors.GatewayUnavailableError
	assert.True(t, stderrors.As(err, &unavailable))
	// the pending row comes back with the error so the caller can poll it
	assert.Equal(t, model.PaymentStatusPending, result.Payment.Status)
	assert.NotEmpty(t, result.Payment.Reference)
	payments.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiation_DuplicateCollisionReturnsExistingRow(t *testing.T) {
	orderID := uuid.New()
	existing := pendingPayment(&orderID)

	payments := new(MockPaymentRepository)
	orders := new(MockOrderRepository)
	gw := new(MockGatewayClient)

	orders.On("FindByID", mock.Anything, orderID).Return(&model.Order{ID: orderID}, nil)
	payments.On("FindCompletedByOrder", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound)
	// the slot is free at pre-check time but a concurrent request creates its
	// attempt first, so our insert hits the open-slot unique index
	payments.On("FindOpenByOrder", mock.Anything, orderID).Return(nil, gorm.ErrRecordNotFound).Once()
	assignPaymentID(payments, gorm.ErrDuplicatedKey)
	payments.On("FindByReference", mock.Anything, mock.AnythingOfType("string")).Return(nil, gorm.ErrRecordNotFound)
	payments.On("FindOpenByOrder", mock.Anything, orderID).Return(existing, nil)

	service := NewInitiationService(payments, orders, gw, testAudit())
	result, err := service.Initiate(context.Background(), validInput(&orderID))

	assert.NoError(t, err)
	assert.True(t, result.Existing)
	assert.Equal(t, existing.ID, result.Payment.ID)
	gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestInitiation_ReferenceCollisionReturnsExistingRow(t *testing.T) {
	existing := pendingPayment(nil)
	existing.Reference = "REF-DUP"

	payments := new(MockPaymentRepository)
	gw := new(MockGatewayClient)

	assignPaymentID(payments, gorm.ErrDuplicatedKey)
	payments.On("FindByReference", mock.Anything, "REF-DUP").Return(existing, nil)

	input := validInput(nil)
	input.Reference = "REF-DUP"

	service := NewInitiationService(payments, new(MockOrderRepository), gw, testAudit())
	result, err := service.Initiate(context.Background(), input)

	assert.NoError(t, err)
	assert.True(t, result.Existing)
	assert.Equal(t, existing.ID, result.Payment.ID)
	gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestInitiation_InputValidation(t *testing.T) {
	service := NewInitiationService(new(MockPaymentRepository), new(MockOrderRepository), new(MockGatewayClient), testAudit())

	t.Run("non-positive amount", func(t *testing.T) {
		input := validInput(nil)
		input.Amount = decimal.Zero
		_, err := service.Initiate(context.Background(), input)
		assert.ErrorIs(t, err, errors.ErrInvalidAmount)
	})

	t.Run("bad phone", func(t *testing.T) {
		input := validInput(nil)
		input.Phone = "12345"
		_, err := service.Initiate(context.Background(), input)
		assert.ErrorIs(t, err, errors.ErrInvalidPhone)
	})
}
