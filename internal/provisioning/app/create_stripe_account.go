// Package app provisions external payment accounts for trainers.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/trainerbase/taskengine/internal/billing/adapters/paymentgateway"
	billingrepo "github.com/trainerbase/taskengine/internal/billing/repository"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

// CreateStripeAccountHandler provisions a connected payment account for a
// trainer. Provisioning is not retried automatically: a gateway failure is
// terminal for the task and surfaces through the operator log plus a
// notification to the trainer.
type CreateStripeAccountHandler struct {
	db       billingrepo.Querier
	trainers billingrepo.TrainerRepository
	gateway  paymentgateway.Gateway
	tasks    outboxrepo.TaskRepository
	logger   *slog.Logger
}

func NewCreateStripeAccountHandler(
	db billingrepo.Querier,
	trainers billingrepo.TrainerRepository,
	gateway paymentgateway.Gateway,
	tasks outboxrepo.TaskRepository,
	logger *slog.Logger,
) *CreateStripeAccountHandler {
	return &CreateStripeAccountHandler{
		db:       db,
		trainers: trainers,
		gateway:  gateway,
		tasks:    tasks,
		logger:   logger.With("component", "create_stripe_account_handler"),
	}
}

var _ outboxapp.Handler = (*CreateStripeAccountHandler)(nil)

func (h *CreateStripeAccountHandler) Handle(ctx context.Context, task *outboxdomain.Task) error {
	var payload outboxdomain.CreateStripeAccountPayload
	if err := task.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding createStripeAccount payload: %w", err)
	}

	trainer, err := h.trainers.GetByID(ctx, h.db, payload.TrainerID)
	if err != nil {
		return fmt.Errorf("loading trainer %s: %w", payload.TrainerID, err)
	}
	if trainer.StripeAccountID != nil && *trainer.StripeAccountID != "" {
		h.logger.InfoContext(ctx, "trainer already provisioned, nothing to do",
			"trainer_id", trainer.ID, "account_id", *trainer.StripeAccountID)
		return nil
	}

	country := payload.CountryCode
	if country == "" {
		country = trainer.Country
	}

	account, err := h.gateway.CreateConnectedAccount(ctx, trainer.Email, country)
	if err != nil {
		h.notifyFailure(ctx, trainer.UserID)
		return fmt.Errorf("creating connected account for trainer %s: %w", trainer.ID, err)
	}

	if err := h.trainers.SetStripeAccount(ctx, h.db, trainer.ID, account.ID, account.Type); err != nil {
		return fmt.Errorf("storing connected account %s: %w", account.ID, err)
	}
	h.logger.InfoContext(ctx, "connected account provisioned",
		"trainer_id", trainer.ID, "account_id", account.ID, "account_type", account.Type)
	return nil
}

// notifyFailure is the side channel for a terminal provisioning failure: the
// trainer learns their payment setup needs attention even though the task is
// not retried.
func (h *CreateStripeAccountHandler) notifyFailure(ctx context.Context, userID uuid.UUID) {
	_, err := h.tasks.Enqueue(ctx, h.db, outboxdomain.KindUserNotify, outboxdomain.UserNotifyPayload{
		UserID: userID,
		Title:  "Payment account setup failed",
		Body:   "We could not finish setting up your payment account. Please try again from your settings.",
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "enqueueing provisioning failure notification failed",
			"user_id", userID, "error", err)
	}
}
