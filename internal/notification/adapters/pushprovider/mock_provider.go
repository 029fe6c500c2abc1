package pushprovider

import (
	"context"
	"log/slog"
	"sync"
)

// MockProvider is an in-memory Provider for tests and local development.
type MockProvider struct {
	logger *slog.Logger

	mu sync.Mutex

	SimulateSendErr error
	SimulateResult  *Result

	SentPayloads []Payload
	SentTokens   [][]string
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockProvider{logger: logger.With("adapter", "mock_push_provider")}
}

func (m *MockProvider) Send(ctx context.Context, payload Payload, deviceTokens []string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.InfoContext(ctx, "MockProvider: Send", "devices", len(deviceTokens), "title", payload.Title)

	if m.SimulateSendErr != nil {
		return nil, m.SimulateSendErr
	}

	m.SentPayloads = append(m.SentPayloads, payload)
	m.SentTokens = append(m.SentTokens, deviceTokens)

	if m.SimulateResult != nil {
		return m.SimulateResult, nil
	}
	return &Result{}, nil
}

var _ Provider = (*MockProvider)(nil)
