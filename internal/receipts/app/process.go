package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	billingrepo "github.com/trainerbase/taskengine/internal/billing/repository"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
	"github.com/trainerbase/taskengine/internal/receipts/adapters/appstore"
	"github.com/trainerbase/taskengine/internal/receipts/domain"
	"github.com/trainerbase/taskengine/internal/receipts/repository"
)

// DB begins transactions; satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Mailing-list tags toggled when a trainer turns auto-renew off.
const (
	tagAutoRenewOff = "auto-renew-off"
	tagAutoRenewOn  = "auto-renew-on"
)

// ReceiptProcessor verifies an encoded receipt and records its transactions
// and renewal state for a trainer.
type ReceiptProcessor struct {
	db           DB
	verifier     appstore.Verifier
	transactions repository.TransactionRepository
	trainers     billingrepo.TrainerRepository
	tasks        outboxrepo.TaskRepository
	sharedSecret string
	logger       *slog.Logger
}

func NewReceiptProcessor(
	db DB,
	verifier appstore.Verifier,
	transactions repository.TransactionRepository,
	trainers billingrepo.TrainerRepository,
	tasks outboxrepo.TaskRepository,
	sharedSecret string,
	logger *slog.Logger,
) *ReceiptProcessor {
	return &ReceiptProcessor{
		db:           db,
		verifier:     verifier,
		transactions: transactions,
		trainers:     trainers,
		tasks:        tasks,
		sharedSecret: sharedSecret,
		logger:       logger.With("component", "receipt_processor"),
	}
}

// Process verifies the receipt and stores every line item under the trainer.
// Line items are applied oldest first so the stored state converges on the
// newest renewal. When any renewal record shows auto-renew turned off, a
// mailing-list tag update is enqueued in the same transaction as the upserts.
func (p *ReceiptProcessor) Process(ctx context.Context, trainerID uuid.UUID, encodedReceipt string) error {
	resp, err := p.verifier.Verify(ctx, encodedReceipt, p.sharedSecret)
	if err != nil {
		return err
	}

	items := make([]appstore.ReceiptInfo, len(resp.LatestReceiptInfo))
	copy(items, resp.LatestReceiptInfo)
	sort.SliceStable(items, func(i, j int) bool {
		return parseMS(items[i].PurchaseDateMS).Before(parseMS(items[j].PurchaseDateMS))
	})

	encoded := resp.LatestReceipt
	if encoded == "" {
		encoded = encodedReceipt
	}

	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		for _, item := range items {
			txn := &domain.AppStoreTransaction{
				TransactionID:         item.TransactionID,
				TrainerID:             trainerID,
				OriginalTransactionID: item.OriginalTransactionID,
				ProductID:             item.ProductID,
				PurchaseDate:          parseMS(item.PurchaseDateMS),
				ExpiresDate:           parseMS(item.ExpiresDateMS),
				IsTrialPeriod:         item.IsTrialPeriod == "true",
				IsInIntroOfferPeriod:  item.IsInIntroOfferPeriod == "true",
				EncodedReceipt:        encoded,
			}
			if err := p.transactions.Upsert(ctx, tx, txn); err != nil {
				return err
			}
		}

		autoRenewOff := false
		for _, info := range resp.PendingRenewalInfo {
			renewal := &domain.PendingRenewal{
				TrainerID:          trainerID,
				ProductID:          info.ProductID,
				AutoRenewProductID: info.AutoRenewProductID,
				AutoRenewStatus:    info.AutoRenewStatus == "1",
			}
			if err := p.transactions.UpsertPendingRenewal(ctx, tx, renewal); err != nil {
				return err
			}
			if !renewal.AutoRenewStatus {
				autoRenewOff = true
			}
		}

		if autoRenewOff {
			if err := p.enqueueTagUpdate(ctx, tx, trainerID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *ReceiptProcessor) enqueueTagUpdate(ctx context.Context, tx pgx.Tx, trainerID uuid.UUID) error {
	trainer, err := p.trainers.GetByID(ctx, tx, trainerID)
	if err != nil {
		return fmt.Errorf("loading trainer %s for tag update: %w", trainerID, err)
	}
	_, err = p.tasks.Enqueue(ctx, tx, outboxdomain.KindUpdateMailingListTags, outboxdomain.UpdateMailingListTagsPayload{
		Email:      trainer.Email,
		AddTags:    []string{tagAutoRenewOff},
		RemoveTags: []string{tagAutoRenewOn},
	})
	if err != nil {
		return fmt.Errorf("enqueueing mailing list tag update: %w", err)
	}
	p.logger.InfoContext(ctx, "auto-renew turned off, tag update enqueued", "trainer_id", trainerID)
	return nil
}

// parseMS converts a millisecond epoch string to a UTC time. An empty or
// malformed field yields the zero time.
func parseMS(ms string) time.Time {
	if ms == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
