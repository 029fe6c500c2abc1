package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trainerbase/taskengine/internal/outbox/domain"
)

// Querier abstracts over *pgxpool.Pool, pgx.Tx and test doubles so enqueue can
// run inside whatever transactional scope the caller already holds.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnqueueOption adjusts how a task is enqueued.
type EnqueueOption func(*EnqueueOptions)

// EnqueueOptions carries optional enqueue parameters.
type EnqueueOptions struct {
	AvailableAt time.Time
}

// WithAvailableAt delays the earliest dispatch time; handlers use this for backoff.
func WithAvailableAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) { o.AvailableAt = t }
}

// TaskRepository is the outbox store. Enqueue runs on the caller's Querier so
// the task commits (or rolls back) with the business write that caused it;
// ClaimDue is concurrency-safe under N claimers.
type TaskRepository interface {
	Enqueue(ctx context.Context, q Querier, kind domain.TaskKind, payload any, opts ...EnqueueOption) (*domain.Task, error)
	ClaimDue(ctx context.Context, limit int) ([]*domain.Task, error)
}
