package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainerbase/taskengine/internal/notification/domain"
	"github.com/trainerbase/taskengine/internal/notification/repository"
)

// PgDeviceRepository implements repository.DeviceRepository on Postgres.
type PgDeviceRepository struct {
	logger *slog.Logger
}

func NewPgDeviceRepository(logger *slog.Logger) *PgDeviceRepository {
	return &PgDeviceRepository{logger: logger.With("component", "device_repository")}
}

func (r *PgDeviceRepository) ListForUser(ctx context.Context, q repository.Querier, userID uuid.UUID) ([]domain.DeviceInstallation, error) {
	query := `
		SELECT user_id, device_token, created_at
		FROM device_installations
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying device installations: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceInstallation
	for rows.Next() {
		var d domain.DeviceInstallation
		if err := rows.Scan(&d.UserID, &d.DeviceToken, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning device installation: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device installations: %w", err)
	}
	return devices, nil
}

func (r *PgDeviceRepository) DeleteByToken(ctx context.Context, q repository.Querier, userID uuid.UUID, deviceToken string) error {
	query := `DELETE FROM device_installations WHERE user_id = $1 AND device_token = $2`
	tag, err := q.Exec(ctx, query, userID, deviceToken)
	if err != nil {
		return fmt.Errorf("deleting device installation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "device installation already gone",
			"user_id", userID, "device_token", deviceToken)
	}
	return nil
}

// PgNotificationRepository implements repository.NotificationRepository on Postgres.
type PgNotificationRepository struct {
	logger *slog.Logger
}

func NewPgNotificationRepository(logger *slog.Logger) *PgNotificationRepository {
	return &PgNotificationRepository{logger: logger.With("component", "notification_repository")}
}

func (r *PgNotificationRepository) CreateForUser(ctx context.Context, q repository.Querier, n *domain.InAppNotification) error {
	// The trainer row is resolved from the user so the notification shows up
	// in the trainer-scoped inbox.
	var trainerID uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM trainers WHERE user_id = $1`, n.UserID).Scan(&trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNoTrainerForUser
		}
		return fmt.Errorf("resolving trainer for user %s: %w", n.UserID, err)
	}
	n.TrainerID = trainerID

	query := `
		INSERT INTO notifications (id, trainer_id, user_id, title, body, message_type, notification_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err = q.Exec(ctx, query,
		n.ID, n.TrainerID, n.UserID, n.Title, n.Body, n.MessageType, n.NotificationType, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}
