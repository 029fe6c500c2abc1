package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/receipts/domain"
	"github.com/trainerbase/taskengine/internal/receipts/repository"
)

// ReceiptRefresher re-verifies the stored receipt of every trainer who has
// one. It is the body of the recurring refresh task: per-trainer failures are
// logged and skipped so one bad receipt never starves the rest, and temporary
// verification failures simply wait for the next scheduled run.
type ReceiptRefresher struct {
	db        repository.Querier
	store     repository.TransactionRepository
	processor *ReceiptProcessor
	logger    *slog.Logger
}

func NewReceiptRefresher(
	db repository.Querier,
	store repository.TransactionRepository,
	processor *ReceiptProcessor,
	logger *slog.Logger,
) *ReceiptRefresher {
	return &ReceiptRefresher{
		db:        db,
		store:     store,
		processor: processor,
		logger:    logger.With("component", "receipt_refresher"),
	}
}

func (r *ReceiptRefresher) Run(ctx context.Context, scheduledAt time.Time) error {
	holders, err := r.store.ListReceiptHolders(ctx, r.db)
	if err != nil {
		return fmt.Errorf("listing receipt holders: %w", err)
	}
	r.logger.InfoContext(ctx, "refreshing app store receipts",
		"trainers", len(holders), "scheduled_at", scheduledAt)

	var refreshed, failed int
	for _, h := range holders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processor.Process(ctx, h.TrainerID, h.EncodedReceipt); err != nil {
			failed++
			var verr *domain.VerificationError
			if errors.As(err, &verr) && verr.Temporary() {
				r.logger.WarnContext(ctx, "receipt refresh hit a temporary failure, will retry next run",
					"trainer_id", h.TrainerID, "error", err)
				continue
			}
			r.logger.ErrorContext(ctx, "receipt refresh failed",
				"trainer_id", h.TrainerID, "error", err)
			continue
		}
		refreshed++
	}

	r.logger.InfoContext(ctx, "receipt refresh finished",
		"refreshed", refreshed, "failed", failed)
	return nil
}
