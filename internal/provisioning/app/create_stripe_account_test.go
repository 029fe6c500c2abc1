package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainerbase/taskengine/internal/billing/adapters/paymentgateway"
	billingdomain "github.com/trainerbase/taskengine/internal/billing/domain"
	billingrepo "github.com/trainerbase/taskengine/internal/billing/repository"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxrepo "github.com/trainerbase/taskengine/internal/outbox/repository"
)

type fakeTrainerRepo struct {
	trainer  *billingdomain.Trainer
	getErr   error
	accounts []string
	setErr   error
}

func (f *fakeTrainerRepo) GetByID(ctx context.Context, q billingrepo.Querier, id uuid.UUID) (*billingdomain.Trainer, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.trainer, nil
}

func (f *fakeTrainerRepo) GetByUserID(ctx context.Context, q billingrepo.Querier, userID uuid.UUID) (*billingdomain.Trainer, error) {
	return f.GetByID(ctx, q, userID)
}

func (f *fakeTrainerRepo) SetStripeAccount(ctx context.Context, q billingrepo.Querier, trainerID uuid.UUID, accountID, accountType string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.accounts = append(f.accounts, accountID+"/"+accountType)
	return nil
}

type fakeTaskRepo struct {
	enqueued []outboxdomain.TaskKind
	payloads []any
}

func (f *fakeTaskRepo) Enqueue(ctx context.Context, q outboxrepo.Querier, kind outboxdomain.TaskKind, payload any, opts ...outboxrepo.EnqueueOption) (*outboxdomain.Task, error) {
	f.enqueued = append(f.enqueued, kind)
	f.payloads = append(f.payloads, payload)
	raw, _ := json.Marshal(payload)
	return &outboxdomain.Task{ID: uuid.New(), Kind: kind, Payload: raw}, nil
}

func (f *fakeTaskRepo) ClaimDue(ctx context.Context, limit int) ([]*outboxdomain.Task, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func provisionTask(t *testing.T, payload outboxdomain.CreateStripeAccountPayload) *outboxdomain.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &outboxdomain.Task{ID: uuid.New(), Kind: outboxdomain.KindCreateStripeAccount, Payload: raw}
}

func strPtr(s string) *string { return &s }

func TestCreateStripeAccountHandler(t *testing.T) {
	trainerID := uuid.New()
	userID := uuid.New()

	newTrainer := func() *billingdomain.Trainer {
		return &billingdomain.Trainer{
			ID:      trainerID,
			UserID:  userID,
			Email:   "trainer@example.test",
			Country: "GB",
		}
	}

	t.Run("provisions and stores the connected account", func(t *testing.T) {
		trainers := &fakeTrainerRepo{trainer: newTrainer()}
		gateway := paymentgateway.NewMockGateway(testLogger())
		h := NewCreateStripeAccountHandler(nil, trainers, gateway, &fakeTaskRepo{}, testLogger())

		err := h.Handle(context.Background(), provisionTask(t, outboxdomain.CreateStripeAccountPayload{
			TrainerID:   trainerID,
			CountryCode: "GB",
		}))
		require.NoError(t, err)
		require.Len(t, trainers.accounts, 1)
		assert.Contains(t, trainers.accounts[0], "acct_mock_")
		assert.Contains(t, trainers.accounts[0], "/standard")
	})

	t.Run("already provisioned is a no-op success", func(t *testing.T) {
		trainer := newTrainer()
		trainer.StripeAccountID = strPtr("acct_existing")
		trainers := &fakeTrainerRepo{trainer: trainer}
		gateway := paymentgateway.NewMockGateway(testLogger())
		h := NewCreateStripeAccountHandler(nil, trainers, gateway, &fakeTaskRepo{}, testLogger())

		err := h.Handle(context.Background(), provisionTask(t, outboxdomain.CreateStripeAccountPayload{
			TrainerID: trainerID,
		}))
		require.NoError(t, err)
		assert.Empty(t, trainers.accounts)
	})

	t.Run("gateway failure is terminal and notifies the trainer", func(t *testing.T) {
		trainers := &fakeTrainerRepo{trainer: newTrainer()}
		gateway := paymentgateway.NewMockGateway(testLogger())
		gateway.SimulateCreateAccountErr = errors.New("account creation rejected")
		tasks := &fakeTaskRepo{}
		h := NewCreateStripeAccountHandler(nil, trainers, gateway, tasks, testLogger())

		err := h.Handle(context.Background(), provisionTask(t, outboxdomain.CreateStripeAccountPayload{
			TrainerID: trainerID,
		}))
		require.Error(t, err)
		assert.Empty(t, trainers.accounts)

		require.Len(t, tasks.enqueued, 1)
		assert.Equal(t, outboxdomain.KindUserNotify, tasks.enqueued[0])
		payload, ok := tasks.payloads[0].(outboxdomain.UserNotifyPayload)
		require.True(t, ok)
		assert.Equal(t, userID, payload.UserID)
	})
}
