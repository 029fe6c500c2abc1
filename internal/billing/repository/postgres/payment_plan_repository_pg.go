package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainerbase/taskengine/internal/billing/domain"
	"github.com/trainerbase/taskengine/internal/billing/repository"
)

type PgPaymentPlanRepository struct {
	logger *slog.Logger
}

// NewPgPaymentPlanRepository creates the PostgreSQL payment-plan repository.
// Every method runs on the caller's Querier; the repository holds no pool of
// its own so row locks always live in the caller's transaction.
func NewPgPaymentPlanRepository(logger *slog.Logger) *PgPaymentPlanRepository {
	return &PgPaymentPlanRepository{logger: logger.With("component", "payment_plan_repository")}
}

func (r *PgPaymentPlanRepository) GetPlan(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PaymentPlan, error) {
	query := `
		SELECT id, trainer_id, client_id, status, currency, end_date, created_at, updated_at
		FROM payment_plans
		WHERE id = $1
	`
	plan := &domain.PaymentPlan{}
	err := q.QueryRow(ctx, query, id).Scan(
		&plan.ID, &plan.TrainerID, &plan.ClientID, &plan.Status, &plan.Currency,
		&plan.EndDate, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting payment plan", "error", err, "plan_id", id)
		return nil, err
	}
	return plan, nil
}

// SelectOutstandingForUpdate locks eligible installment rows FOR UPDATE so two
// concurrent charge attempts on the same plan serialize: the second claimer
// blocks until the first commits, then observes zero eligible rows.
func (r *PgPaymentPlanRepository) SelectOutstandingForUpdate(ctx context.Context, q repository.Querier, planID uuid.UUID, now time.Time, forScheduledTask bool) ([]*domain.PaymentPlanPayment, error) {
	query := `
		SELECT p.id, p.payment_plan_id, p.date, p.status, p.amount_outstanding,
		       p.retry_count, p.last_retry_time, p.fee, p.last_reminder_at
		FROM payment_plan_payments p
		JOIN payment_plans pl ON pl.id = p.payment_plan_id
		WHERE p.payment_plan_id = $1
		  AND p.date <= $2
		  AND p.amount_outstanding > 0
		  AND (
		        (p.status = $3 AND pl.status = $4 AND pl.end_date > $2)
		     OR (p.status = $5 AND (
		            $6 = false
		         OR ((p.last_retry_time IS NULL OR p.last_retry_time < $7) AND p.retry_count < $8)
		        ))
		  )
		ORDER BY p.date ASC
		FOR UPDATE OF p
	`
	cutoff := now.Add(-domain.RetryCooldown)
	rows, err := q.Query(ctx, query,
		planID, now,
		domain.PaymentStatusPending, domain.PlanStatusActive,
		domain.PaymentStatusRejected,
		forScheduledTask, cutoff, domain.MaxChargeRetries,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error selecting outstanding payments", "error", err, "plan_id", planID)
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.PaymentPlanPayment
	for rows.Next() {
		p := &domain.PaymentPlanPayment{}
		if err := rows.Scan(
			&p.ID, &p.PaymentPlanID, &p.Date, &p.Status, &p.AmountOutstanding,
			&p.RetryCount, &p.LastRetryTime, &p.Fee, &p.LastReminderAt,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning outstanding payment row", "error", err)
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PgPaymentPlanRepository) MarkBatchPaid(ctx context.Context, q repository.Querier, paymentIDs []uuid.UUID, now time.Time) error {
	query := `
		UPDATE payment_plan_payments
		SET status = $1, amount_outstanding = 0,
		    retry_count = retry_count + 1, last_retry_time = $2
		WHERE id = ANY($3)
	`
	tag, err := q.Exec(ctx, query, domain.PaymentStatusPaid, now, paymentIDs)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking payments paid", "error", err)
		return err
	}
	if int(tag.RowsAffected()) != len(paymentIDs) {
		r.logger.WarnContext(ctx, "MarkBatchPaid affected unexpected row count",
			"expected", len(paymentIDs), "affected", tag.RowsAffected())
	}
	return nil
}

func (r *PgPaymentPlanRepository) CreateCharge(ctx context.Context, q repository.Querier, charge *domain.Charge, coveredPaymentIDs []uuid.UUID) error {
	query := `
		INSERT INTO charges (id, payment_plan_id, gateway_intent_id, status, amount, application_fee, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := q.Exec(ctx, query,
		charge.ID, charge.PaymentPlanID, charge.GatewayIntentID, charge.Status,
		charge.Amount, charge.ApplicationFee, charge.Currency, charge.CreatedAt,
	); err != nil {
		r.logger.ErrorContext(ctx, "Error creating charge record", "error", err, "charge_id", charge.ID)
		return err
	}

	joinQuery := `
		INSERT INTO charge_payments (charge_id, payment_id)
		VALUES ($1, $2)
	`
	for _, paymentID := range coveredPaymentIDs {
		if _, err := q.Exec(ctx, joinQuery, charge.ID, paymentID); err != nil {
			r.logger.ErrorContext(ctx, "Error linking charge to payment", "error", err,
				"charge_id", charge.ID, "payment_id", paymentID)
			return err
		}
	}
	return nil
}

func (r *PgPaymentPlanRepository) SelectOverdueForReminder(ctx context.Context, q repository.Querier, now time.Time, cooldown time.Duration) ([]*repository.ReminderCandidate, error) {
	query := `
		SELECT p.id, p.payment_plan_id, t.user_id, c.email, p.amount_outstanding, pl.currency, p.date
		FROM payment_plan_payments p
		JOIN payment_plans pl ON pl.id = p.payment_plan_id
		JOIN trainers t ON t.id = pl.trainer_id
		JOIN clients c ON c.id = pl.client_id
		WHERE p.date <= $1
		  AND p.amount_outstanding > 0
		  AND p.status <> $2
		  AND pl.status = $3
		  AND (p.last_reminder_at IS NULL OR p.last_reminder_at < $4)
		ORDER BY p.date ASC
	`
	cutoff := now.Add(-cooldown)
	rows, err := q.Query(ctx, query, now, domain.PaymentStatusPaid, domain.PlanStatusActive, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error selecting overdue payments for reminders", "error", err)
		return nil, err
	}
	defer rows.Close()

	var candidates []*repository.ReminderCandidate
	for rows.Next() {
		c := &repository.ReminderCandidate{}
		if err := rows.Scan(
			&c.PaymentID, &c.PaymentPlanID, &c.TrainerUserID, &c.ClientEmail,
			&c.Amount, &c.Currency, &c.DueDate,
		); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *PgPaymentPlanRepository) StampReminder(ctx context.Context, q repository.Querier, paymentIDs []uuid.UUID, now time.Time) error {
	query := `
		UPDATE payment_plan_payments
		SET last_reminder_at = $1
		WHERE id = ANY($2)
	`
	if _, err := q.Exec(ctx, query, now, paymentIDs); err != nil {
		r.logger.ErrorContext(ctx, "Error stamping reminder time", "error", err)
		return err
	}
	return nil
}

var _ repository.PaymentPlanRepository = (*PgPaymentPlanRepository)(nil)
