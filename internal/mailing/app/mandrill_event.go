package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/mailing/repository"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Mandrill webhook event types.
const (
	EventHardBounce = "hard_bounce"
	EventSpam       = "spam"
	EventReject     = "reject"
	EventOpen       = "open"
	EventClick      = "click"
)

const tagUndeliverable = "undeliverable"

// MandrillEventHandler classifies one mail-provider webhook event. Bounces,
// spam reports and rejects mark the address undeliverable and queue a
// mailing-list tag update; opens and clicks stamp engagement; anything else is
// logged and dropped.
type MandrillEventHandler struct {
	db     repository.Querier
	emails repository.EmailStatusRepository
	tasks  outboxrepo.TaskRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewMandrillEventHandler(
	db repository.Querier,
	emails repository.EmailStatusRepository,
	tasks outboxrepo.TaskRepository,
	logger *slog.Logger,
) *MandrillEventHandler {
	return &MandrillEventHandler{
		db:     db,
		emails: emails,
		tasks:  tasks,
		logger: logger.With("component", "mandrill_event_handler"),
		now:    time.Now,
	}
}

var _ outboxapp.Handler = (*MandrillEventHandler)(nil)

func (h *MandrillEventHandler) Handle(ctx context.Context, task *outboxdomain.Task) error {
	var payload outboxdomain.MandrillEventPayload
	if err := task.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding mandrill event payload: %w", err)
	}
	if payload.Email == "" {
		h.logger.WarnContext(ctx, "mandrill event without email, dropping", "event", payload.Event)
		return nil
	}

	at := h.now().UTC()
	if payload.TS > 0 {
		at = time.Unix(payload.TS, 0).UTC()
	}

	switch payload.Event {
	case EventHardBounce, EventSpam, EventReject:
		if err := h.emails.MarkUndeliverable(ctx, h.db, payload.Email, payload.Event, at); err != nil {
			return err
		}
		_, err := h.tasks.Enqueue(ctx, h.db, outboxdomain.KindUpdateMailingListTags, outboxdomain.UpdateMailingListTagsPayload{
			Email:   payload.Email,
			AddTags: []string{tagUndeliverable},
		})
		if err != nil {
			return fmt.Errorf("enqueueing tag update for %s: %w", payload.Email, err)
		}
		h.logger.InfoContext(ctx, "address marked undeliverable",
			"email", payload.Email, "event", payload.Event)
		return nil

	case EventOpen, EventClick:
		return h.emails.StampEngagement(ctx, h.db, payload.Email, payload.Event, at)

	default:
		h.logger.WarnContext(ctx, "unknown mandrill event type, dropping",
			"event", payload.Event, "email", payload.Email)
		return nil
	}
}
