package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// DB begins transactions; satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// mandrillEvent is one entry of the provider's mandrill_events form field.
type mandrillEvent struct {
	Event string `json:"event"`
	TS    int64  `json:"ts"`
	Msg   struct {
		Email string `json:"email"`
		ID    string `json:"_id"`
	} `json:"msg"`
}

// MandrillHandler accepts the mail provider's webhook batches and turns each
// event into a processMandrillEvent task. All events of one request are
// enqueued in a single transaction so the provider's retry either re-delivers
// the whole batch or none of it.
type MandrillHandler struct {
	db     DB
	tasks  outboxrepo.TaskRepository
	logger *slog.Logger
}

func NewMandrillHandler(db DB, tasks outboxrepo.TaskRepository, logger *slog.Logger) *MandrillHandler {
	return &MandrillHandler{
		db:     db,
		tasks:  tasks,
		logger: logger.With("component", "mandrill_handler"),
	}
}

func (h *MandrillHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := r.ParseForm(); err != nil {
		logger.WarnContext(ctx, "unparseable webhook form", "error", err)
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	raw := r.PostFormValue("mandrill_events")
	if raw == "" {
		// The provider sends an empty ping when the webhook is registered.
		w.WriteHeader(http.StatusOK)
		return
	}

	var events []mandrillEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		logger.WarnContext(ctx, "unparseable mandrill_events payload", "error", err)
		http.Error(w, "invalid mandrill_events payload", http.StatusBadRequest)
		return
	}

	err := pgx.BeginFunc(ctx, h.db, func(tx pgx.Tx) error {
		for _, ev := range events {
			_, err := h.tasks.Enqueue(ctx, tx, outboxdomain.KindProcessMandrillEvent, outboxdomain.MandrillEventPayload{
				Event:     ev.Event,
				Email:     ev.Msg.Email,
				MessageID: ev.Msg.ID,
				TS:        ev.TS,
			})
			if err != nil {
				return fmt.Errorf("enqueueing event %q for %s: %w", ev.Event, ev.Msg.Email, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "enqueueing webhook events failed",
			"events", len(events), "error", err)
		http.Error(w, "failed to record events", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "webhook events enqueued", "events", len(events))
	w.WriteHeader(http.StatusOK)
}
