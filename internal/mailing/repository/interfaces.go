package repository

import (
	"context"
	"time"

	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Querier is re-exported from the outbox repository.
type Querier = outboxrepo.Querier

// EmailStatusRepository tracks deliverability and engagement per address.
type EmailStatusRepository interface {
	// MarkUndeliverable flags an address so no further mail is sent to it.
	MarkUndeliverable(ctx context.Context, q Querier, email, reason string, at time.Time) error
	// StampEngagement records the latest open/click for an address.
	StampEngagement(ctx context.Context, q Querier, email, event string, at time.Time) error
}
