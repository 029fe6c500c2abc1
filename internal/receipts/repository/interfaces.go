package repository

import (
	"context"

	"github.com/google/uuid"

	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
	"github.com/trainerbase/taskengine/internal/receipts/domain"
)

// Querier is re-exported from the outbox repository.
type Querier = outboxrepo.Querier

// ReceiptHolder is a trainer who has at least one stored receipt, paired with
// the most recently stored encoded receipt for refresh.
type ReceiptHolder struct {
	TrainerID      uuid.UUID
	EncodedReceipt string
}

// TransactionRepository stores verified App Store transactions and renewal state.
type TransactionRepository interface {
	// Upsert inserts or updates a transaction keyed (transaction_id, trainer_id).
	// When the transaction id already exists under a different trainer it
	// returns domain.ErrReceiptUserConflict without touching the stored row.
	Upsert(ctx context.Context, q Querier, txn *domain.AppStoreTransaction) error
	// UpsertPendingRenewal inserts or updates renewal state keyed
	// (trainer_id, product_id).
	UpsertPendingRenewal(ctx context.Context, q Querier, r *domain.PendingRenewal) error
	// ListReceiptHolders lists every trainer with a stored receipt, one row
	// per trainer carrying the latest encoded receipt.
	ListReceiptHolders(ctx context.Context, q Querier) ([]ReceiptHolder, error)
}
