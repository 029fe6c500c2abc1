package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/mailing/adapters/mailer"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// tagRetryDelay spaces retries of failed provider calls.
const tagRetryDelay = 5 * time.Minute

// UpdateTagsHandler applies one mailing-list tag update against the provider.
// A failed provider call is retried via a delayed re-enqueue of the same
// payload; the operation is idempotent on the provider side.
type UpdateTagsHandler struct {
	db     outboxrepo.Querier
	list   mailer.MailingList
	tasks  outboxrepo.TaskRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewUpdateTagsHandler(
	db outboxrepo.Querier,
	list mailer.MailingList,
	tasks outboxrepo.TaskRepository,
	logger *slog.Logger,
) *UpdateTagsHandler {
	return &UpdateTagsHandler{
		db:     db,
		list:   list,
		tasks:  tasks,
		logger: logger.With("component", "update_tags_handler"),
		now:    time.Now,
	}
}

var _ outboxapp.Handler = (*UpdateTagsHandler)(nil)

func (h *UpdateTagsHandler) Handle(ctx context.Context, task *outboxdomain.Task) error {
	var payload outboxdomain.UpdateMailingListTagsPayload
	if err := task.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding tag update payload: %w", err)
	}
	if h.list == nil {
		h.logger.WarnContext(ctx, "no mailing list provider configured, dropping tag update",
			"email", payload.Email)
		return nil
	}

	if err := h.list.UpdateTags(ctx, payload.Email, payload.AddTags, payload.RemoveTags); err != nil {
		if _, enqErr := h.tasks.Enqueue(ctx, h.db, outboxdomain.KindUpdateMailingListTags, payload,
			outboxrepo.WithAvailableAt(h.now().Add(tagRetryDelay))); enqErr != nil {
			return fmt.Errorf("re-enqueueing tag update after provider error %v: %w", err, enqErr)
		}
		h.logger.WarnContext(ctx, "mailing list provider call failed, retry scheduled",
			"email", payload.Email, "delay", tagRetryDelay, "error", err)
		return nil
	}

	h.logger.InfoContext(ctx, "mailing list tags updated",
		"email", payload.Email, "added", payload.AddTags, "removed", payload.RemoveTags)
	return nil
}
