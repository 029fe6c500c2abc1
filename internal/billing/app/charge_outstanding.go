package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trainerbase/taskengine/internal/billing/adapters/paymentgateway"
	"github.com/trainerbase/taskengine/internal/billing/domain"
	"github.com/trainerbase/taskengine/internal/billing/repository"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"

	"github.com/trainerbase/taskengine/internal/billing/fees"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
)

// DB is the transactional database handle the handlers open scopes on.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ChargeOutstandingHandler charges every eligible outstanding installment of a
// payment plan with one batched external charge.
type ChargeOutstandingHandler struct {
	db       DB
	enqueuer outboxrepo.Querier
	plans    repository.PaymentPlanRepository
	trainers repository.TrainerRepository
	clients  repository.ClientRepository
	gateway  paymentgateway.Gateway
	tasks    outboxrepo.TaskRepository
	logger   *slog.Logger
}

func NewChargeOutstandingHandler(
	db DB,
	enqueuer outboxrepo.Querier,
	plans repository.PaymentPlanRepository,
	trainers repository.TrainerRepository,
	clients repository.ClientRepository,
	gateway paymentgateway.Gateway,
	tasks outboxrepo.TaskRepository,
	logger *slog.Logger,
) *ChargeOutstandingHandler {
	return &ChargeOutstandingHandler{
		db:       db,
		enqueuer: enqueuer,
		plans:    plans,
		trainers: trainers,
		clients:  clients,
		gateway:  gateway,
		tasks:    tasks,
		logger:   logger.With("handler", "charge_outstanding"),
	}
}

func (h *ChargeOutstandingHandler) Handle(ctx context.Context, task *outboxdomain.Task) error {
	var payload outboxdomain.ChargeOutstandingPayload
	if err := task.DecodePayload(&payload); err != nil {
		return err
	}
	return h.ChargeOutstanding(ctx, payload.PaymentPlanID, payload.ForScheduledTask)
}

// ChargeOutstanding runs the whole attempt inside one transaction. The
// eligible rows stay locked FOR UPDATE until commit, so a concurrent attempt
// for the same plan serializes behind this one and then finds nothing to do.
func (h *ChargeOutstandingHandler) ChargeOutstanding(ctx context.Context, planID uuid.UUID, forScheduledTask bool) error {
	now := time.Now().UTC()

	return pgx.BeginFunc(ctx, h.db, func(tx pgx.Tx) error {
		plan, err := h.plans.GetPlan(ctx, tx, planID)
		if err != nil {
			return err
		}

		payments, err := h.plans.SelectOutstandingForUpdate(ctx, tx, planID, now, forScheduledTask)
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			h.logger.InfoContext(ctx, "No eligible outstanding payments", "plan_id", planID)
			return nil
		}

		trainer, err := h.trainers.GetByID(ctx, tx, plan.TrainerID)
		if err != nil {
			return err
		}
		if trainer.PaymentsBlocked {
			h.notifyTrainer(ctx, trainer.UserID,
				"Payments are paused on your account",
				"A client charge was skipped because payments are blocked on your account.",
				"payments.blocked")
			return domain.ErrStripePaymentsBlocked
		}
		if trainer.StripeAccountID == nil || *trainer.StripeAccountID == "" {
			h.notifyTrainer(ctx, trainer.UserID,
				"Connect your payments account",
				"A client charge was skipped because your payments account is not set up.",
				"payments.not-enabled")
			return domain.ErrStripePaymentsNotEnabled
		}

		client, err := h.clients.GetByID(ctx, tx, plan.ClientID)
		if err != nil {
			return err
		}
		if client.StripeCustomerID == nil || *client.StripeCustomerID == "" {
			h.notifyNoPaymentMethod(ctx, trainer.UserID)
			return domain.ErrNoPaymentMethodOnFile
		}

		method, err := h.resolveDefaultPaymentMethod(ctx, *client.StripeCustomerID)
		if err != nil {
			if errors.Is(err, domain.ErrNoPaymentMethodOnFile) {
				h.notifyNoPaymentMethod(ctx, trainer.UserID)
			}
			return err
		}

		cardCountry := method.Country
		if cardCountry == "" {
			cardCountry = client.CardCountry
		}
		quote, err := fees.GetFee(cardCountry, trainer.Country, plan.Currency)
		if err != nil {
			return fmt.Errorf("resolve fee for plan %s: %w", planID, err)
		}

		// One external charge covers the whole batch: summing first keeps the
		// processor's fixed fee to a single hit.
		total := decimal.Zero
		applicationFee := decimal.Zero
		paymentIDs := make([]uuid.UUID, 0, len(payments))
		for _, p := range payments {
			total = total.Add(p.AmountOutstanding)
			applicationFee = applicationFee.Add(
				fees.NetApplicationFee(p.AmountOutstanding, quote, trainer.StripeAccountType))
			paymentIDs = append(paymentIDs, p.ID)
		}

		// Rows flip to paid before the network call. A crash after a
		// successful external charge then cannot leave the rows
		// un-reconciled: either the transaction committed with the charge, or
		// it rolled back and the idempotency key makes the gateway fail
		// loudly on the re-attempt instead of double-charging.
		if err := h.plans.MarkBatchPaid(ctx, tx, paymentIDs, now); err != nil {
			return err
		}

		intent, err := h.gateway.CreatePaymentIntent(ctx, paymentgateway.CreateIntentRequest{
			Amount:           total,
			Currency:         plan.Currency,
			CustomerID:       *client.StripeCustomerID,
			PaymentMethodID:  method.ID,
			ApplicationFee:   applicationFee,
			ConnectedAccount: *trainer.StripeAccountID,
			OffSession:       true,
			IdempotencyKey:   chargeIdempotencyKey(planID, paymentIDs),
			Description:      fmt.Sprintf("Payment plan %s: %d installment(s)", planID, len(paymentIDs)),
		})
		if err != nil {
			return h.classifyGatewayError(ctx, err, trainer)
		}

		charge := &domain.Charge{
			ID:              uuid.New(),
			PaymentPlanID:   planID,
			GatewayIntentID: intent.ID,
			Status:          intent.Status,
			Amount:          total,
			ApplicationFee:  applicationFee,
			Currency:        plan.Currency,
			CreatedAt:       now,
		}
		// Recording the charge is best-effort: the money moved, so a failed
		// insert must not roll back the paid rows.
		if err := h.plans.CreateCharge(ctx, tx, charge, paymentIDs); err != nil {
			h.logger.ErrorContext(ctx, "Charge succeeded but recording it failed",
				"plan_id", planID, "gateway_intent_id", intent.ID, "error", err)
		}

		h.logger.InfoContext(ctx, "Charged outstanding payments",
			"plan_id", planID, "payments", len(paymentIDs),
			"amount", total.String(), "application_fee", applicationFee.String())
		return nil
	})
}

// resolveDefaultPaymentMethod treats the first stored method as the default
// and detaches the rest. Detach failures are swallowed; cleanup is
// best-effort and must not block the charge.
func (h *ChargeOutstandingHandler) resolveDefaultPaymentMethod(ctx context.Context, customerID string) (*paymentgateway.PaymentMethod, error) {
	methods, err := h.gateway.ListPaymentMethods(ctx, customerID)
	if err != nil {
		var missing *paymentgateway.ResourceMissingError
		if errors.As(err, &missing) {
			return nil, domain.ErrNoPaymentMethodOnFile
		}
		return nil, err
	}
	if len(methods) == 0 {
		return nil, domain.ErrNoPaymentMethodOnFile
	}

	for _, extra := range methods[1:] {
		if detachErr := h.gateway.DetachPaymentMethod(ctx, extra.ID); detachErr != nil {
			h.logger.WarnContext(ctx, "Failed to detach extra payment method",
				"payment_method_id", extra.ID, "error", detachErr)
		}
	}
	return &methods[0], nil
}

func (h *ChargeOutstandingHandler) classifyGatewayError(ctx context.Context, err error, trainer *domain.Trainer) error {
	var declined *paymentgateway.CardDeclinedError
	if errors.As(err, &declined) {
		// Rolls back the transaction: the rows stay rejected/pending and the
		// next eligible run retries.
		return fmt.Errorf("charge declined: %w", err)
	}

	var missing *paymentgateway.ResourceMissingError
	if errors.As(err, &missing) {
		h.notifyNoPaymentMethod(ctx, trainer.UserID)
		return domain.ErrNoPaymentMethodOnFile
	}

	var payouts *paymentgateway.PayoutsNotAllowedError
	if errors.As(err, &payouts) {
		h.notifyTrainer(ctx, trainer.UserID,
			"Action required: verify your payments account",
			"A client charge failed because your payments account has not finished verification.",
			"payments.verification-required")
		return domain.ErrChargeFailedNotVerified
	}

	return fmt.Errorf("gateway charge failed: %w", err)
}

// notifyTrainer enqueues a user.notify task on the pool, not the charging
// transaction: that transaction is about to roll back and the trainer still
// has to hear why the charge never went out.
func (h *ChargeOutstandingHandler) notifyTrainer(ctx context.Context, userID uuid.UUID, title, body, notificationType string) {
	_, err := h.tasks.Enqueue(ctx, h.enqueuer, outboxdomain.KindUserNotify, outboxdomain.UserNotifyPayload{
		UserID:           userID,
		Title:            title,
		Body:             body,
		NotificationType: notificationType,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to enqueue charge failure notification",
			"notification_type", notificationType, "error", err)
	}
}

func (h *ChargeOutstandingHandler) notifyNoPaymentMethod(ctx context.Context, userID uuid.UUID) {
	h.notifyTrainer(ctx, userID,
		"Client has no usable payment method",
		"A client charge failed because the client has no payment method on file.",
		"payments.no-payment-method")
}

func chargeIdempotencyKey(planID uuid.UUID, paymentIDs []uuid.UUID) string {
	sorted := make([]string, len(paymentIDs))
	for i, id := range paymentIDs {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)

	hash := sha256.New()
	hash.Write([]byte(planID.String()))
	for _, id := range sorted {
		hash.Write([]byte(id))
	}
	return "charge-" + hex.EncodeToString(hash.Sum(nil))[:32]
}

var _ outboxapp.Handler = (*ChargeOutstandingHandler)(nil)
