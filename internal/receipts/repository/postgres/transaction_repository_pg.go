package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/trainerbase/taskengine/internal/receipts/domain"
	"github.com/trainerbase/taskengine/internal/receipts/repository"
)

// PgTransactionRepository implements repository.TransactionRepository on Postgres.
type PgTransactionRepository struct {
	logger *slog.Logger
}

func NewPgTransactionRepository(logger *slog.Logger) *PgTransactionRepository {
	return &PgTransactionRepository{logger: logger.With("component", "receipt_repository")}
}

func (r *PgTransactionRepository) Upsert(ctx context.Context, q repository.Querier, txn *domain.AppStoreTransaction) error {
	// A transaction id already claimed by another trainer must stay untouched;
	// check ownership first, then upsert on the composite key. FOR UPDATE
	// holds the owner row until the caller's transaction ends, so two
	// concurrent processors cannot both pass the check and claim the same
	// transaction id.
	var ownerID string
	err := q.QueryRow(ctx,
		`SELECT trainer_id FROM app_store_transactions WHERE transaction_id = $1 FOR UPDATE`,
		txn.TransactionID,
	).Scan(&ownerID)
	switch {
	case err == nil:
		if ownerID != txn.TrainerID.String() {
			r.logger.WarnContext(ctx, "transaction id claimed by a different trainer",
				"transaction_id", txn.TransactionID,
				"trainer_id", txn.TrainerID,
				"owner_trainer_id", ownerID)
			return domain.ErrReceiptUserConflict
		}
	case errors.Is(err, pgx.ErrNoRows):
		// New transaction, fall through to the insert.
	default:
		return fmt.Errorf("checking transaction ownership: %w", err)
	}

	query := `
		INSERT INTO app_store_transactions (
			transaction_id, trainer_id, original_transaction_id, product_id,
			purchase_date, expires_date, is_trial_period, is_in_intro_offer_period,
			encoded_receipt
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, trainer_id) DO UPDATE SET
			original_transaction_id = EXCLUDED.original_transaction_id,
			product_id = EXCLUDED.product_id,
			purchase_date = EXCLUDED.purchase_date,
			expires_date = EXCLUDED.expires_date,
			is_trial_period = EXCLUDED.is_trial_period,
			is_in_intro_offer_period = EXCLUDED.is_in_intro_offer_period,
			encoded_receipt = EXCLUDED.encoded_receipt`

	_, err = q.Exec(ctx, query,
		txn.TransactionID, txn.TrainerID, txn.OriginalTransactionID, txn.ProductID,
		txn.PurchaseDate, txn.ExpiresDate, txn.IsTrialPeriod, txn.IsInIntroOfferPeriod,
		txn.EncodedReceipt)
	if err != nil {
		return fmt.Errorf("upserting app store transaction %s: %w", txn.TransactionID, err)
	}
	return nil
}

func (r *PgTransactionRepository) UpsertPendingRenewal(ctx context.Context, q repository.Querier, renewal *domain.PendingRenewal) error {
	query := `
		INSERT INTO pending_renewals (trainer_id, product_id, auto_renew_product_id, auto_renew_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trainer_id, product_id) DO UPDATE SET
			auto_renew_product_id = EXCLUDED.auto_renew_product_id,
			auto_renew_status = EXCLUDED.auto_renew_status`

	_, err := q.Exec(ctx, query,
		renewal.TrainerID, renewal.ProductID, renewal.AutoRenewProductID, renewal.AutoRenewStatus)
	if err != nil {
		return fmt.Errorf("upserting pending renewal for product %s: %w", renewal.ProductID, err)
	}
	return nil
}

func (r *PgTransactionRepository) ListReceiptHolders(ctx context.Context, q repository.Querier) ([]repository.ReceiptHolder, error) {
	// One row per trainer: the receipt from their most recent purchase.
	query := `
		SELECT DISTINCT ON (trainer_id) trainer_id, encoded_receipt
		FROM app_store_transactions
		ORDER BY trainer_id, purchase_date DESC`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing receipt holders: %w", err)
	}
	defer rows.Close()

	var holders []repository.ReceiptHolder
	for rows.Next() {
		var h repository.ReceiptHolder
		if err := rows.Scan(&h.TrainerID, &h.EncodedReceipt); err != nil {
			return nil, fmt.Errorf("scanning receipt holder: %w", err)
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipt holders: %w", err)
	}
	return holders, nil
}
