package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainerbase/taskengine/internal/mailing/repository"
)

// PgEmailStatusRepository implements repository.EmailStatusRepository on Postgres.
type PgEmailStatusRepository struct {
	logger *slog.Logger
}

func NewPgEmailStatusRepository(logger *slog.Logger) *PgEmailStatusRepository {
	return &PgEmailStatusRepository{logger: logger.With("component", "email_status_repository")}
}

func (r *PgEmailStatusRepository) MarkUndeliverable(ctx context.Context, q repository.Querier, email, reason string, at time.Time) error {
	query := `
		INSERT INTO email_statuses (email, undeliverable, undeliverable_reason, updated_at)
		VALUES ($1, TRUE, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			undeliverable = TRUE,
			undeliverable_reason = EXCLUDED.undeliverable_reason,
			updated_at = EXCLUDED.updated_at`

	if _, err := q.Exec(ctx, query, email, reason, at); err != nil {
		return fmt.Errorf("marking %s undeliverable: %w", email, err)
	}
	return nil
}

func (r *PgEmailStatusRepository) StampEngagement(ctx context.Context, q repository.Querier, email, event string, at time.Time) error {
	query := `
		INSERT INTO email_statuses (email, last_engagement_event, last_engaged_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (email) DO UPDATE SET
			last_engagement_event = EXCLUDED.last_engagement_event,
			last_engaged_at = EXCLUDED.last_engaged_at,
			updated_at = EXCLUDED.updated_at`

	if _, err := q.Exec(ctx, query, email, event, at); err != nil {
		return fmt.Errorf("stamping engagement for %s: %w", email, err)
	}
	return nil
}
