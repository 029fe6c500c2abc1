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

	"github.com/trainerbase/taskengine/internal/notification/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPgDeviceRepository_ListForUser(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgDeviceRepository(testLogger())

	userID := uuid.New()
	now := time.Now().UTC()
	rows := mockPool.NewRows([]string{"user_id", "device_token", "created_at"}).
		AddRow(userID, "tok-1", now.Add(-time.Hour)).
		AddRow(userID, "tok-2", now)

	mockPool.ExpectQuery(`SELECT user_id, device_token, created_at`).
		WithArgs(userID).
		WillReturnRows(rows)

	devices, err := repo.ListForUser(context.Background(), mockPool, userID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "tok-1", devices[0].DeviceToken)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgDeviceRepository_DeleteByToken(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgDeviceRepository(testLogger())

	userID := uuid.New()
	mockPool.ExpectExec(`DELETE FROM device_installations`).
		WithArgs(userID, "dead-token").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.DeleteByToken(context.Background(), mockPool, userID, "dead-token"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgNotificationRepository_CreateForUser(t *testing.T) {
	t.Run("resolves the trainer and inserts", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgNotificationRepository(testLogger())

		userID := uuid.New()
		trainerID := uuid.New()

		mockPool.ExpectQuery(`SELECT id FROM trainers WHERE user_id = \$1`).
			WithArgs(userID).
			WillReturnRows(mockPool.NewRows([]string{"id"}).AddRow(trainerID))
		mockPool.ExpectExec(`INSERT INTO notifications`).
			WithArgs(pgxmock.AnyArg(), trainerID, userID, "Title", "Body", "type", "ntype", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		n := &domain.InAppNotification{
			UserID:           userID,
			Title:            "Title",
			Body:             "Body",
			MessageType:      "type",
			NotificationType: "ntype",
			CreatedAt:        time.Now().UTC(),
		}
		require.NoError(t, repo.CreateForUser(context.Background(), mockPool, n))
		assert.Equal(t, trainerID, n.TrainerID)
		assert.NotEqual(t, uuid.Nil, n.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("user without a trainer row yields the sentinel", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgNotificationRepository(testLogger())

		userID := uuid.New()
		mockPool.ExpectQuery(`SELECT id FROM trainers WHERE user_id = \$1`).
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		err = repo.CreateForUser(context.Background(), mockPool, &domain.InAppNotification{UserID: userID})
		require.ErrorIs(t, err, domain.ErrNoTrainerForUser)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
