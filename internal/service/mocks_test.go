package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"momopay/internal/gateway"
	"momopay/internal/model"
)

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByReference(ctx context.Context, reference string) (*model.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByGatewayTxID(ctx context.Context, gatewayTxID string) (*model.Payment, error) {
	args := m.Called(ctx, gatewayTxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindCompletedByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListStalePending(ctx context.Context, before time.Time) ([]model.Payment, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SetGatewayResult(ctx context.Context, id uuid.UUID, gatewayTxID string, raw []byte) error {
	args := m.Called(ctx, id, gatewayTxID, raw)
	return args.Error(0)
}

func (m *MockPaymentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayTxID, momTransactionID string, raw []byte) (bool, error) {
	args := m.Called(ctx, id, gatewayTxID, momTransactionID, raw)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, raw []byte) (bool, error) {
	args := m.Called(ctx, id, reason, raw)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) AttachOrder(ctx context.Context, id uuid.UUID, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) RefreshRawResponse(ctx context.Context, id uuid.UUID, raw []byte) error {
	args := m.Called(ctx, id, raw)
	return args.Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockGatewayClient is a mock implementation of gateway.Client.
type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResult), args.Error(1)
}

func (m *MockGatewayClient) CheckStatus(ctx context.Context, gatewayTxID, reference string) (*gateway.StatusResult, error) {
	args := m.Called(ctx, gatewayTxID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}

func (m *MockGatewayClient) DecodeWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WebhookEvent), args.Error(1)
}

// MockReconciliationService is a mock implementation of ReconciliationService.
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) Reconcile(ctx context.Context, payment *model.Payment) (*ReconcileResult, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReconcileResult), args.Error(1)
}

func (m *MockReconciliationService) CheckStatus(ctx context.Context, paymentID *uuid.UUID, reference, gatewayTxID string) (*StatusView, error) {
	args := m.Called(ctx, paymentID, reference, gatewayTxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatusView), args.Error(1)
}

func (m *MockReconciliationService) Finalize(ctx context.Context, reference, gatewayTxID string) (*StatusView, error) {
	args := m.Called(ctx, reference, gatewayTxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatusView), args.Error(1)
}

// stubEventRepo is a no-op audit sink so tests do not race the async worker.
type stubEventRepo struct{}

func (stubEventRepo) Create(ctx context.Context, event *model.PaymentEvent) error { return nil }
func (stubEventRepo) CreateBatch(ctx context.Context, events []model.PaymentEvent) error {
	return nil
}

func testAudit() *AuditRecorder {
	return NewAuditRecorder(stubEventRepo{})
}
