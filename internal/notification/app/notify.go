package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/notification/adapters/pushprovider"
	ndomain "github.com/trainerbase/taskengine/internal/notification/domain"
	"github.com/trainerbase/taskengine/internal/notification/repository"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// retryDelay is how long a narrowed retry task waits before it becomes due.
const retryDelay = time.Minute

// NotifyHandler fans a user.notify task out to the user's devices and drops an
// in-app copy of the message. Delivery failures are handled per device: a
// permanently dead registration is deleted, a transient failure is retried via
// a narrowed re-enqueue carrying only the failed tokens, anything else is
// logged and dropped.
type NotifyHandler struct {
	db            repository.Querier
	devices       repository.DeviceRepository
	notifications repository.NotificationRepository
	provider      pushprovider.Provider
	tasks         outboxrepo.TaskRepository
	logger        *slog.Logger
	now           func() time.Time
}

func NewNotifyHandler(
	db repository.Querier,
	devices repository.DeviceRepository,
	notifications repository.NotificationRepository,
	provider pushprovider.Provider,
	tasks outboxrepo.TaskRepository,
	logger *slog.Logger,
) *NotifyHandler {
	return &NotifyHandler{
		db:            db,
		devices:       devices,
		notifications: notifications,
		provider:      provider,
		tasks:         tasks,
		logger:        logger.With("component", "notify_handler"),
		now:           time.Now,
	}
}

var _ outboxapp.Handler = (*NotifyHandler)(nil)

func (h *NotifyHandler) Handle(ctx context.Context, task *outboxdomain.Task) error {
	var payload outboxdomain.UserNotifyPayload
	if err := task.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding user.notify payload: %w", err)
	}

	tokens := payload.DeviceTokens
	if len(tokens) == 0 {
		installations, err := h.devices.ListForUser(ctx, h.db, payload.UserID)
		if err != nil {
			return fmt.Errorf("listing devices for user %s: %w", payload.UserID, err)
		}
		for _, d := range installations {
			tokens = append(tokens, d.DeviceToken)
		}
	}

	// The in-app copy is best effort: a user without a trainer row just has no
	// inbox, and a failed insert must not block push delivery.
	if !payload.SuppressInApp {
		err := h.notifications.CreateForUser(ctx, h.db, &ndomain.InAppNotification{
			UserID:           payload.UserID,
			Title:            payload.Title,
			Body:             payload.Body,
			MessageType:      payload.MessageType,
			NotificationType: payload.NotificationType,
			CreatedAt:        h.now().UTC(),
		})
		if err != nil && !errors.Is(err, ndomain.ErrNoTrainerForUser) {
			h.logger.ErrorContext(ctx, "storing in-app notification failed",
				"user_id", payload.UserID, "error", err)
		}
	}

	if len(tokens) == 0 || h.provider == nil {
		return nil
	}

	result, err := h.provider.Send(ctx, pushprovider.Payload{
		Title:            payload.Title,
		Body:             payload.Body,
		MessageType:      payload.MessageType,
		NotificationType: payload.NotificationType,
	}, tokens)
	if err != nil {
		// The provider gave us nothing per-device. Retry the whole token set
		// only for transport faults that can heal; a failure that looks the
		// same on every attempt would otherwise spawn an unbounded chain of
		// retry tasks.
		if pushprovider.TransientSendError(err) {
			return h.retryLater(ctx, payload, tokens)
		}
		h.logger.ErrorContext(ctx, "push provider send failed, dropping",
			"user_id", payload.UserID, "devices", len(tokens), "error", err)
		return nil
	}

	var transientTokens []string
	for _, f := range result.Failed {
		switch {
		case f.PermanentlyGone():
			if delErr := h.devices.DeleteByToken(ctx, h.db, payload.UserID, f.DeviceToken); delErr != nil {
				h.logger.ErrorContext(ctx, "deleting dead device installation failed",
					"user_id", payload.UserID, "device_token", f.DeviceToken, "error", delErr)
			} else {
				h.logger.InfoContext(ctx, "deleted dead device installation",
					"user_id", payload.UserID, "reason", f.Reason)
			}
		case f.Transient():
			transientTokens = append(transientTokens, f.DeviceToken)
		default:
			h.logger.WarnContext(ctx, "push delivery failed, dropping",
				"user_id", payload.UserID, "device_token", f.DeviceToken,
				"status", f.Status, "reason", f.Reason, "error", f.Err)
		}
	}

	if len(transientTokens) > 0 {
		return h.retryLater(ctx, payload, transientTokens)
	}
	return nil
}

// retryLater re-enqueues a narrowed user.notify task carrying only the tokens
// still worth retrying. The in-app copy is suppressed so the retry does not
// duplicate it.
func (h *NotifyHandler) retryLater(ctx context.Context, payload outboxdomain.UserNotifyPayload, tokens []string) error {
	retry := payload
	retry.DeviceTokens = tokens
	retry.SuppressInApp = true

	_, err := h.tasks.Enqueue(ctx, h.db, outboxdomain.KindUserNotify, retry,
		outboxrepo.WithAvailableAt(h.now().Add(retryDelay)))
	if err != nil {
		return fmt.Errorf("re-enqueueing user.notify for %d devices: %w", len(tokens), err)
	}
	h.logger.InfoContext(ctx, "scheduled push retry",
		"user_id", payload.UserID, "devices", len(tokens), "delay", retryDelay)
	return nil
}
