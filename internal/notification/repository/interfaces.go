package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/trainerbase/taskengine/internal/notification/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Querier is re-exported from the outbox repository.
type Querier = outboxrepo.Querier

// DeviceRepository persists device installations.
type DeviceRepository interface {
	ListForUser(ctx context.Context, q Querier, userID uuid.UUID) ([]domain.DeviceInstallation, error)
	DeleteByToken(ctx context.Context, q Querier, userID uuid.UUID, deviceToken string) error
}

// NotificationRepository persists the in-app copies of notifications.
type NotificationRepository interface {
	// CreateForUser inserts an in-app notification attached to the trainer the
	// user resolves to; returns domain.ErrNoTrainerForUser when there is none.
	CreateForUser(ctx context.Context, q Querier, n *domain.InAppNotification) error
}
