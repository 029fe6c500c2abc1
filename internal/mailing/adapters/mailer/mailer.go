// Package mailer is the narrow mailing-list capability behind tag updates.
package mailer

import (
	"context"
	"sync"
)

// MailingList manages subscriber tags on the mailing-list provider.
type MailingList interface {
	UpdateTags(ctx context.Context, email string, add, remove []string) error
}

// TagUpdate records one UpdateTags call on the mock.
type TagUpdate struct {
	Email  string
	Add    []string
	Remove []string
}

// MockMailingList is an in-memory MailingList for tests.
type MockMailingList struct {
	mu sync.Mutex

	SimulateErr error
	Updates     []TagUpdate
}

var _ MailingList = (*MockMailingList)(nil)

func (m *MockMailingList) UpdateTags(ctx context.Context, email string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SimulateErr != nil {
		return m.SimulateErr
	}
	m.Updates = append(m.Updates, TagUpdate{Email: email, Add: add, Remove: remove})
	return nil
}
