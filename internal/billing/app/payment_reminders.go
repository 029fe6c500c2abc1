package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainerbase/taskengine/internal/billing/repository"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// ReminderCooldown is the minimum spacing between reminders for one installment.
const ReminderCooldown = 72 * time.Hour

// PaymentReminders scans overdue unpaid installments and notifies the owning
// trainer, at most once per installment per cooldown window. It is the body of
// the sendPaymentReminders recurring task.
type PaymentReminders struct {
	db     DB
	plans  repository.PaymentPlanRepository
	tasks  outboxrepo.TaskRepository
	logger *slog.Logger
}

func NewPaymentReminders(db DB, plans repository.PaymentPlanRepository, tasks outboxrepo.TaskRepository, logger *slog.Logger) *PaymentReminders {
	return &PaymentReminders{
		db:     db,
		plans:  plans,
		tasks:  tasks,
		logger: logger.With("handler", "payment_reminders"),
	}
}

// Run enqueues the notification tasks and stamps the reminded rows in one
// transaction, so a crash cannot notify without stamping or vice versa.
func (h *PaymentReminders) Run(ctx context.Context, scheduledAt time.Time) error {
	now := time.Now().UTC()

	return pgx.BeginFunc(ctx, h.db, func(tx pgx.Tx) error {
		candidates, err := h.plans.SelectOverdueForReminder(ctx, tx, now, ReminderCooldown)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		reminded := make([]uuid.UUID, 0, len(candidates))
		for _, c := range candidates {
			payload := outboxdomain.UserNotifyPayload{
				UserID: c.TrainerUserID,
				Title:  "Overdue payment",
				Body: fmt.Sprintf("A payment of %s %s from %s due on %s is still outstanding.",
					c.Amount.StringFixed(2), c.Currency, c.ClientEmail, c.DueDate.Format("2 Jan 2006")),
				NotificationType: "payments.reminder",
			}
			if _, err := h.tasks.Enqueue(ctx, tx, outboxdomain.KindUserNotify, payload); err != nil {
				return fmt.Errorf("enqueue payment reminder: %w", err)
			}
			reminded = append(reminded, c.PaymentID)
		}

		if err := h.plans.StampReminder(ctx, tx, reminded, now); err != nil {
			return err
		}

		h.logger.InfoContext(ctx, "Sent payment reminders", "count", len(reminded), "scheduled_at", scheduledAt)
		return nil
	})
}
