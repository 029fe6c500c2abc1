package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainerbase/taskengine/internal/receipts/domain"
)

func setupReceiptRepoTest(t *testing.T) (*PgTransactionRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgTransactionRepository(logger), mockPool
}

func sampleTransaction(trainerID uuid.UUID) *domain.AppStoreTransaction {
	return &domain.AppStoreTransaction{
		TransactionID:         "txn-100",
		TrainerID:             trainerID,
		OriginalTransactionID: "txn-1",
		ProductID:             "monthly",
		PurchaseDate:          time.Now().UTC().Add(-time.Hour),
		ExpiresDate:           time.Now().UTC().Add(30 * 24 * time.Hour),
		EncodedReceipt:        "encoded",
	}
}

func TestPgTransactionRepository_Upsert(t *testing.T) {
	t.Run("new transaction inserts", func(t *testing.T) {
		repo, mockPool := setupReceiptRepoTest(t)
		defer mockPool.Close()

		trainerID := uuid.New()
		txn := sampleTransaction(trainerID)

		// The ownership check locks the owner row so concurrent processors
		// serialize on the same transaction id.
		mockPool.ExpectQuery(`SELECT trainer_id FROM app_store_transactions WHERE transaction_id = \$1 FOR UPDATE`).
			WithArgs(txn.TransactionID).
			WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectExec(`INSERT INTO app_store_transactions`).
			WithArgs(txn.TransactionID, txn.TrainerID, txn.OriginalTransactionID, txn.ProductID,
				txn.PurchaseDate, txn.ExpiresDate, txn.IsTrialPeriod, txn.IsInIntroOfferPeriod,
				txn.EncodedReceipt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Upsert(context.Background(), mockPool, txn))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("same trainer updates in place", func(t *testing.T) {
		repo, mockPool := setupReceiptRepoTest(t)
		defer mockPool.Close()

		trainerID := uuid.New()
		txn := sampleTransaction(trainerID)

		mockPool.ExpectQuery(`SELECT trainer_id FROM app_store_transactions`).
			WithArgs(txn.TransactionID).
			WillReturnRows(mockPool.NewRows([]string{"trainer_id"}).AddRow(trainerID.String()))
		mockPool.ExpectExec(`INSERT INTO app_store_transactions`).
			WithArgs(txn.TransactionID, txn.TrainerID, txn.OriginalTransactionID, txn.ProductID,
				txn.PurchaseDate, txn.ExpiresDate, txn.IsTrialPeriod, txn.IsInIntroOfferPeriod,
				txn.EncodedReceipt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Upsert(context.Background(), mockPool, txn))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("transaction claimed by another trainer is a user conflict", func(t *testing.T) {
		repo, mockPool := setupReceiptRepoTest(t)
		defer mockPool.Close()

		txn := sampleTransaction(uuid.New())
		otherTrainer := uuid.New()

		mockPool.ExpectQuery(`SELECT trainer_id FROM app_store_transactions`).
			WithArgs(txn.TransactionID).
			WillReturnRows(mockPool.NewRows([]string{"trainer_id"}).AddRow(otherTrainer.String()))

		err := repo.Upsert(context.Background(), mockPool, txn)
		require.ErrorIs(t, err, domain.ErrReceiptUserConflict)
		// No write was attempted: the stored row stays untouched.
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgTransactionRepository_UpsertPendingRenewal(t *testing.T) {
	repo, mockPool := setupReceiptRepoTest(t)
	defer mockPool.Close()

	renewal := &domain.PendingRenewal{
		TrainerID:          uuid.New(),
		ProductID:          "monthly",
		AutoRenewProductID: "monthly",
		AutoRenewStatus:    false,
	}

	mockPool.ExpectExec(`INSERT INTO pending_renewals`).
		WithArgs(renewal.TrainerID, renewal.ProductID, renewal.AutoRenewProductID, renewal.AutoRenewStatus).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertPendingRenewal(context.Background(), mockPool, renewal))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTransactionRepository_ListReceiptHolders(t *testing.T) {
	repo, mockPool := setupReceiptRepoTest(t)
	defer mockPool.Close()

	trainerA := uuid.New()
	trainerB := uuid.New()

	rows := mockPool.NewRows([]string{"trainer_id", "encoded_receipt"}).
		AddRow(trainerA, "receipt-a").
		AddRow(trainerB, "receipt-b")

	mockPool.ExpectQuery(`SELECT DISTINCT ON \(trainer_id\) trainer_id, encoded_receipt`).
		WillReturnRows(rows)

	holders, err := repo.ListReceiptHolders(context.Background(), mockPool)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, trainerA, holders[0].TrainerID)
	assert.Equal(t, "receipt-a", holders[0].EncodedReceipt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
