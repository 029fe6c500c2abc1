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

const trainerColumns = `id, user_id, email, country, currency, stripe_account_id, stripe_account_type, payments_blocked`

type PgTrainerRepository struct {
	logger *slog.Logger
}

func NewPgTrainerRepository(logger *slog.Logger) *PgTrainerRepository {
	return &PgTrainerRepository{logger: logger.With("component", "trainer_repository")}
}

func (r *PgTrainerRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Trainer, error) {
	return r.getOne(ctx, q, `SELECT `+trainerColumns+` FROM trainers WHERE id = $1`, id)
}

func (r *PgTrainerRepository) GetByUserID(ctx context.Context, q repository.Querier, userID uuid.UUID) (*domain.Trainer, error) {
	return r.getOne(ctx, q, `SELECT `+trainerColumns+` FROM trainers WHERE user_id = $1`, userID)
}

func (r *PgTrainerRepository) getOne(ctx context.Context, q repository.Querier, query string, arg any) (*domain.Trainer, error) {
	t := &domain.Trainer{}
	var accountType *string
	err := q.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.UserID, &t.Email, &t.Country, &t.Currency,
		&t.StripeAccountID, &accountType, &t.PaymentsBlocked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTrainerNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting trainer", "error", err)
		return nil, err
	}
	if accountType != nil {
		t.StripeAccountType = *accountType
	}
	return t, nil
}

func (r *PgTrainerRepository) SetStripeAccount(ctx context.Context, q repository.Querier, trainerID uuid.UUID, accountID, accountType string) error {
	query := `
		UPDATE trainers
		SET stripe_account_id = $1, stripe_account_type = $2, updated_at = $3
		WHERE id = $4
	`
	tag, err := q.Exec(ctx, query, accountID, accountType, time.Now().UTC(), trainerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error setting trainer stripe account", "error", err, "trainer_id", trainerID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTrainerNotFound
	}
	return nil
}

type PgClientRepository struct {
	logger *slog.Logger
}

func NewPgClientRepository(logger *slog.Logger) *PgClientRepository {
	return &PgClientRepository{logger: logger.With("component", "client_repository")}
}

func (r *PgClientRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Client, error) {
	query := `
		SELECT id, trainer_id, email, stripe_customer_id, card_country
		FROM clients
		WHERE id = $1
	`
	c := &domain.Client{}
	err := q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TrainerID, &c.Email, &c.StripeCustomerID, &c.CardCountry,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClientNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting client", "error", err, "client_id", id)
		return nil, err
	}
	return c, nil
}

var (
	_ repository.TrainerRepository = (*PgTrainerRepository)(nil)
	_ repository.ClientRepository  = (*PgClientRepository)(nil)
)
