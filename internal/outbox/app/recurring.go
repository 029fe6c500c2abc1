package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/outbox/domain"
	"github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Recurring wraps a handler body so the kind reschedules its own next
// occurrence. The reschedule is defer-guaranteed: it happens whether or not the
// body errored, and the next occurrence is computed from the original
// scheduledAt, never from "now", so handler latency and transient failures do
// not drift the recurrence interval.
func Recurring(
	repo repository.TaskRepository,
	enqueuer repository.Querier,
	kind domain.TaskKind,
	interval time.Duration,
	logger *slog.Logger,
	body func(ctx context.Context, scheduledAt time.Time) error,
) Handler {
	return HandlerFunc(func(ctx context.Context, task *domain.Task) (err error) {
		var payload domain.RecurringPayload
		if decodeErr := task.DecodePayload(&payload); decodeErr != nil {
			// An undecodable recurring payload would silently kill the
			// schedule; restart the chain from now instead.
			logger.ErrorContext(ctx, "Recurring payload undecodable; restarting schedule from now",
				"kind", kind, "error", decodeErr)
			payload.ScheduledAt = time.Now().UTC()
		}
		scheduledAt := payload.ScheduledAt
		if scheduledAt.IsZero() {
			scheduledAt = time.Now().UTC()
		}

		defer func() {
			next := NextOccurrence(scheduledAt, interval, time.Now().UTC())
			_, enqueueErr := repo.Enqueue(ctx, enqueuer, kind,
				domain.RecurringPayload{ScheduledAt: next},
				repository.WithAvailableAt(next),
			)
			if enqueueErr != nil {
				logger.ErrorContext(ctx, "Failed to reschedule recurring task",
					"kind", kind, "next", next, "error", enqueueErr)
				if err == nil {
					err = enqueueErr
				}
			}
		}()

		return body(ctx, scheduledAt)
	})
}

// NextOccurrence returns the first origin+n*interval strictly after now. Runs
// that finish late skip the occurrences they missed instead of bunching up.
func NextOccurrence(origin time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	next := origin.Add(interval)
	for !next.After(now) {
		elapsed := now.Sub(origin)
		steps := elapsed/interval + 1
		next = origin.Add(steps * interval)
	}
	return next
}
