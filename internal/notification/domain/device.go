package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeviceInstallation binds a user to one push-capable device. Deleted when the
// push provider reports the token permanently invalid.
type DeviceInstallation struct {
	UserID      uuid.UUID
	DeviceToken string
	CreatedAt   time.Time
}

// InAppNotification is the in-app copy of a push notification, attached to the
// trainer the target user belongs to.
type InAppNotification struct {
	ID               uuid.UUID
	TrainerID        uuid.UUID
	UserID           uuid.UUID
	Title            string
	Body             string
	MessageType      string
	NotificationType string
	CreatedAt        time.Time
}

// ErrNoTrainerForUser means the user has no trainer row; the in-app copy is
// silently skipped in that case, push delivery still proceeds.
var ErrNoTrainerForUser = errors.New("no trainer row for user")
