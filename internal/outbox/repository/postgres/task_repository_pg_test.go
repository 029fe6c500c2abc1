package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainerbase/taskengine/internal/outbox/domain"
	"github.com/trainerbase/taskengine/internal/outbox/repository"
)

func setupTaskRepoTest(t *testing.T) (*PgTaskRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewPgTaskRepository(mockPool, logger)
	return repo, mockPool
}

func TestPgTaskRepository_Enqueue(t *testing.T) {
	repo, mockPool := setupTaskRepoTest(t)
	defer mockPool.Close()

	t.Run("inserts one row with the caller's querier", func(t *testing.T) {
		mockPool.ExpectExec(`INSERT INTO tasks \(id, kind, payload, available_at, created_at\)`).
			WithArgs(pgxmock.AnyArg(), domain.KindUserNotify, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		task, err := repo.Enqueue(context.Background(), mockPool, domain.KindUserNotify, domain.UserNotifyPayload{
			UserID: uuid.New(),
			Title:  "hello",
		})
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, domain.KindUserNotify, task.Kind)
		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.WithinDuration(t, time.Now().UTC(), task.AvailableAt, time.Second)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("WithAvailableAt delays the dispatch time", func(t *testing.T) {
		later := time.Now().UTC().Add(time.Hour)

		mockPool.ExpectExec(`INSERT INTO tasks`).
			WithArgs(pgxmock.AnyArg(), domain.KindUpdateMailingListTags, pgxmock.AnyArg(), later, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		task, err := repo.Enqueue(context.Background(), mockPool, domain.KindUpdateMailingListTags,
			domain.UpdateMailingListTagsPayload{Email: "a@b.test"},
			repository.WithAvailableAt(later))
		require.NoError(t, err)
		assert.Equal(t, later, task.AvailableAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rejects unknown kinds before touching the database", func(t *testing.T) {
		_, err := repo.Enqueue(context.Background(), mockPool, domain.TaskKind("bogus"), nil)
		require.ErrorIs(t, err, domain.ErrUnknownTaskKind)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("propagates insert errors", func(t *testing.T) {
		mockPool.ExpectExec(`INSERT INTO tasks`).
			WithArgs(pgxmock.AnyArg(), domain.KindUserNotify, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.Enqueue(context.Background(), mockPool, domain.KindUserNotify, domain.UserNotifyPayload{})
		require.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgTaskRepository_Enqueue_InsideTransaction(t *testing.T) {
	repo, mockPool := setupTaskRepoTest(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO tasks`).
		WithArgs(pgxmock.AnyArg(), domain.KindChargeOutstanding, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	ctx := context.Background()
	tx, err := mockPool.Begin(ctx)
	require.NoError(t, err)

	_, err = repo.Enqueue(ctx, tx, domain.KindChargeOutstanding, domain.ChargeOutstandingPayload{
		PaymentPlanID: uuid.New(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTaskRepository_EnsureScheduled(t *testing.T) {
	repo, mockPool := setupTaskRepoTest(t)
	defer mockPool.Close()

	scheduledAt := time.Now().UTC()

	t.Run("seeds the kind when no task of it exists", func(t *testing.T) {
		mockPool.ExpectExec(`WHERE NOT EXISTS \(SELECT 1 FROM tasks WHERE kind = \$2\)`).
			WithArgs(pgxmock.AnyArg(), domain.KindSendPaymentReminders, pgxmock.AnyArg(), scheduledAt, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		seeded, err := repo.EnsureScheduled(context.Background(), domain.KindSendPaymentReminders, scheduledAt)
		require.NoError(t, err)
		assert.True(t, seeded)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("is a no-op when the chain is already live", func(t *testing.T) {
		mockPool.ExpectExec(`WHERE NOT EXISTS`).
			WithArgs(pgxmock.AnyArg(), domain.KindRefreshAppStoreReceipts, pgxmock.AnyArg(), scheduledAt, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		seeded, err := repo.EnsureScheduled(context.Background(), domain.KindRefreshAppStoreReceipts, scheduledAt)
		require.NoError(t, err)
		assert.False(t, seeded)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := repo.EnsureScheduled(context.Background(), domain.TaskKind("bogus"), scheduledAt)
		require.ErrorIs(t, err, domain.ErrUnknownTaskKind)
	})
}

func TestPgTaskRepository_ClaimDue(t *testing.T) {
	repo, mockPool := setupTaskRepoTest(t)
	defer mockPool.Close()

	t.Run("returns claimed rows", func(t *testing.T) {
		taskID := uuid.New()
		payload, err := json.Marshal(domain.UserNotifyPayload{Title: "hi"})
		require.NoError(t, err)
		now := time.Now().UTC()

		rows := mockPool.NewRows([]string{"id", "kind", "payload", "available_at", "created_at"}).
			AddRow(taskID, domain.KindUserNotify, payload, now, now)

		mockPool.ExpectQuery(`WITH due_tasks AS`).
			WithArgs(pgxmock.AnyArg(), 5).
			WillReturnRows(rows)

		tasks, err := repo.ClaimDue(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, taskID, tasks[0].ID)
		assert.Equal(t, domain.KindUserNotify, tasks[0].Kind)

		var decoded domain.UserNotifyPayload
		require.NoError(t, tasks[0].DecodePayload(&decoded))
		assert.Equal(t, "hi", decoded.Title)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty claim yields no tasks", func(t *testing.T) {
		mockPool.ExpectQuery(`WITH due_tasks AS`).
			WithArgs(pgxmock.AnyArg(), 10).
			WillReturnRows(mockPool.NewRows([]string{"id", "kind", "payload", "available_at", "created_at"}))

		tasks, err := repo.ClaimDue(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
