package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trainerbase/taskengine/internal/outbox/domain"
	"github.com/trainerbase/taskengine/internal/outbox/repository"
)

type PgTaskRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgTaskRepository creates the PostgreSQL-backed outbox store. db is
// normally a *pgxpool.Pool; claims run against it directly.
func NewPgTaskRepository(db repository.Querier, logger *slog.Logger) *PgTaskRepository {
	return &PgTaskRepository{db: db, logger: logger.With("component", "task_repository")}
}

// Enqueue inserts one task row using the caller-supplied querier. When q is a
// transaction, the task becomes visible to claimers iff that transaction
// commits; that equivalence is the outbox guarantee.
func (r *PgTaskRepository) Enqueue(ctx context.Context, q repository.Querier, kind domain.TaskKind, payload any, opts ...repository.EnqueueOption) (*domain.Task, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTaskKind, kind)
	}

	options := repository.EnqueueOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	now := time.Now().UTC()
	availableAt := options.AvailableAt
	if availableAt.IsZero() {
		availableAt = now
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	task := &domain.Task{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     raw,
		AvailableAt: availableAt,
		CreatedAt:   now,
	}

	query := `
		INSERT INTO tasks (id, kind, payload, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, query, task.ID, task.Kind, task.Payload, task.AvailableAt, task.CreatedAt); err != nil {
		r.logger.ErrorContext(ctx, "Error enqueueing task", "error", err, "kind", kind)
		return nil, err
	}

	return task, nil
}

// EnsureScheduled seeds a recurring chain: it inserts a task of the given
// kind only when no task of that kind exists in the store. Calling it on
// every worker start is idempotent and restarts a chain that died between a
// claim and its re-enqueue. The existence check and the insert run as one
// statement so both see the same snapshot. Returns whether a row was seeded.
func (r *PgTaskRepository) EnsureScheduled(ctx context.Context, kind domain.TaskKind, scheduledAt time.Time) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownTaskKind, kind)
	}

	raw, err := json.Marshal(domain.RecurringPayload{ScheduledAt: scheduledAt})
	if err != nil {
		return false, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	query := `
		INSERT INTO tasks (id, kind, payload, available_at, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (SELECT 1 FROM tasks WHERE kind = $2)
	`
	tag, err := r.db.Exec(ctx, query, uuid.New(), kind, raw, scheduledAt.UTC(), time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error seeding recurring task", "error", err, "kind", kind)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDue atomically claims up to limit ready tasks. The CTE locks candidate
// rows with SKIP LOCKED so concurrent claimers never block on each other or
// claim the same task; the DELETE ... RETURNING makes the claim final.
func (r *PgTaskRepository) ClaimDue(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `
		WITH due_tasks AS (
			SELECT id
			FROM tasks
			WHERE available_at <= $1
			ORDER BY available_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM tasks t
		USING due_tasks d
		WHERE t.id = d.id
		RETURNING t.id, t.kind, t.payload, t.available_at, t.created_at
	`
	rows, err := r.db.Query(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming due tasks", "error", err)
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task := &domain.Task{}
		var payloadJSON []byte
		if err := rows.Scan(&task.ID, &task.Kind, &payloadJSON, &task.AvailableAt, &task.CreatedAt); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning claimed task row", "error", err)
			return nil, err
		}
		task.Payload = json.RawMessage(payloadJSON)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating claimed task rows", "error", err)
		return nil, err
	}

	return tasks, nil
}
