package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

type fakeTaskRepo struct {
	enqueued []any
	err      error
}

func (f *fakeTaskRepo) Enqueue(ctx context.Context, q outboxrepo.Querier, kind outboxdomain.TaskKind, payload any, opts ...outboxrepo.EnqueueOption) (*outboxdomain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, payload)
	raw, _ := json.Marshal(payload)
	return &outboxdomain.Task{ID: uuid.New(), Kind: kind, Payload: raw}, nil
}

func (f *fakeTaskRepo) ClaimDue(ctx context.Context, limit int) ([]*outboxdomain.Task, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postForm(t *testing.T, handler *MandrillHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mandrill", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)
	return rec
}

func TestMandrillHandler_HandleWebhook(t *testing.T) {
	t.Run("enqueues one task per event in one transaction", func(t *testing.T) {
		pool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer pool.Close()

		tasks := &fakeTaskRepo{}
		handler := NewMandrillHandler(pool, tasks, testLogger())

		pool.ExpectBegin()
		pool.ExpectCommit()
		// pgx.BeginFunc always issues a deferred Rollback after Commit.
		pool.ExpectRollback()

		events := `[
			{"event":"hard_bounce","ts":1700000000,"msg":{"email":"bounced@example.test","_id":"msg-1"}},
			{"event":"open","ts":1700000100,"msg":{"email":"reader@example.test","_id":"msg-2"}}
		]`
		rec := postForm(t, handler, url.Values{"mandrill_events": {events}})

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, tasks.enqueued, 2)

		first, ok := tasks.enqueued[0].(outboxdomain.MandrillEventPayload)
		require.True(t, ok)
		assert.Equal(t, "hard_bounce", first.Event)
		assert.Equal(t, "bounced@example.test", first.Email)
		assert.Equal(t, "msg-1", first.MessageID)
		assert.Equal(t, int64(1700000000), first.TS)

		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("registration ping with no events is accepted", func(t *testing.T) {
		tasks := &fakeTaskRepo{}
		handler := NewMandrillHandler(nil, tasks, testLogger())

		rec := postForm(t, handler, url.Values{})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, tasks.enqueued)
	})

	t.Run("malformed events payload is rejected", func(t *testing.T) {
		tasks := &fakeTaskRepo{}
		handler := NewMandrillHandler(nil, tasks, testLogger())

		rec := postForm(t, handler, url.Values{"mandrill_events": {"not-json"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, tasks.enqueued)
	})

	t.Run("enqueue failure rolls the batch back with a 500", func(t *testing.T) {
		pool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer pool.Close()

		tasks := &fakeTaskRepo{err: assert.AnError}
		handler := NewMandrillHandler(pool, tasks, testLogger())

		pool.ExpectBegin()
		// Explicit rollback on the enqueue error, then the deferred one.
		pool.ExpectRollback()
		pool.ExpectRollback()

		events := `[{"event":"open","msg":{"email":"reader@example.test"}}]`
		rec := postForm(t, handler, url.Values{"mandrill_events": {events}})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}
