package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trainerbase/taskengine/internal/billing/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Querier is re-exported from the outbox repository so billing repositories
// run inside the same transactional scopes.
type Querier = outboxrepo.Querier

// ReminderCandidate is one overdue installment joined with the identities the
// reminder handler needs to notify.
type ReminderCandidate struct {
	PaymentID     uuid.UUID
	PaymentPlanID uuid.UUID
	TrainerUserID uuid.UUID
	ClientEmail   string
	Amount        decimal.Decimal
	Currency      string
	DueDate       time.Time
}

// PaymentPlanRepository persists plans, installments and charge records.
// Methods taking a Querier participate in the caller's transaction.
type PaymentPlanRepository interface {
	GetPlan(ctx context.Context, q Querier, id uuid.UUID) (*domain.PaymentPlan, error)

	// SelectOutstandingForUpdate returns the installments eligible for a
	// charge attempt, locked FOR UPDATE for the duration of the caller's
	// transaction. forScheduledTask tightens rejected-row eligibility to the
	// retry window (cooldown elapsed, retry count under the cap).
	SelectOutstandingForUpdate(ctx context.Context, q Querier, planID uuid.UUID, now time.Time, forScheduledTask bool) ([]*domain.PaymentPlanPayment, error)

	// MarkBatchPaid flips the covered rows to paid with zero outstanding and
	// bumps their retry bookkeeping, in the caller's transaction.
	MarkBatchPaid(ctx context.Context, q Querier, paymentIDs []uuid.UUID, now time.Time) error

	// CreateCharge records the external charge intent and its join rows to the
	// covered installments.
	CreateCharge(ctx context.Context, q Querier, charge *domain.Charge, coveredPaymentIDs []uuid.UUID) error

	// SelectOverdueForReminder returns unpaid overdue installments whose last
	// reminder is older than the cooldown (or never sent).
	SelectOverdueForReminder(ctx context.Context, q Querier, now time.Time, cooldown time.Duration) ([]*ReminderCandidate, error)

	StampReminder(ctx context.Context, q Querier, paymentIDs []uuid.UUID, now time.Time) error
}

// TrainerRepository reads and provisions trainer payment configuration.
type TrainerRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Trainer, error)
	GetByUserID(ctx context.Context, q Querier, userID uuid.UUID) (*domain.Trainer, error)
	SetStripeAccount(ctx context.Context, q Querier, trainerID uuid.UUID, accountID, accountType string) error
}

// ClientRepository reads client payment configuration.
type ClientRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Client, error)
}
