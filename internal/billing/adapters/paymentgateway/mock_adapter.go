package paymentgateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockGateway is an in-memory Gateway for tests and local development. Each
// Simulate* field, when set, is returned by the corresponding call.
type MockGateway struct {
	logger *slog.Logger

	mu sync.Mutex

	SimulateCreateIntentErr   error
	SimulateListMethodsErr    error
	SimulateListMethodsResult []PaymentMethod
	SimulateCreateAccountErr  error
	SimulateBalance           *Balance
	SimulateBalanceErr        error
	SimulateRefundErr         error
	SimulateDetachErr         error

	CreatedIntents  []CreateIntentRequest
	DetachedMethods []string
}

func NewMockGateway(logger *slog.Logger) *MockGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockGateway{logger: logger.With("adapter", "mock_payment_gateway")}
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.InfoContext(ctx, "MockGateway: CreatePaymentIntent",
		"amount", req.Amount.String(), "currency", req.Currency, "idempotency_key", req.IdempotencyKey)

	if m.SimulateCreateIntentErr != nil {
		return nil, m.SimulateCreateIntentErr
	}

	m.CreatedIntents = append(m.CreatedIntents, req)
	return &Intent{ID: "pi_mock_" + uuid.NewString(), Status: "succeeded"}, nil
}

func (m *MockGateway) RetrieveBalance(ctx context.Context, connectedAccount string) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SimulateBalanceErr != nil {
		return nil, m.SimulateBalanceErr
	}
	if m.SimulateBalance != nil {
		return m.SimulateBalance, nil
	}
	return &Balance{Available: decimal.Zero, Currency: "USD"}, nil
}

func (m *MockGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SimulateListMethodsErr != nil {
		return nil, m.SimulateListMethodsErr
	}
	return m.SimulateListMethodsResult, nil
}

func (m *MockGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SimulateDetachErr != nil {
		return m.SimulateDetachErr
	}
	m.DetachedMethods = append(m.DetachedMethods, paymentMethodID)
	return nil
}

func (m *MockGateway) Refund(ctx context.Context, intentID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SimulateRefundErr
}

func (m *MockGateway) CreateConnectedAccount(ctx context.Context, email, countryCode string) (*ConnectedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SimulateCreateAccountErr != nil {
		return nil, m.SimulateCreateAccountErr
	}
	return &ConnectedAccount{
		ID:   "acct_mock_" + uuid.NewString(),
		Type: "standard",
	}, nil
}

var _ Gateway = (*MockGateway)(nil)
