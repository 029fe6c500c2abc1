package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies the handler responsible for a task. The set is closed:
// adding a kind means adding a payload type and registering a handler, not
// touching the dispatcher.
type TaskKind string

const (
	KindUserNotify              TaskKind = "user.notify"
	KindChargeOutstanding       TaskKind = "payment-plan.charge-outstanding"
	KindProcessMandrillEvent    TaskKind = "processMandrillEvent"
	KindRefreshAppStoreReceipts TaskKind = "refreshAppStoreReceipts"
	KindSendPaymentReminders    TaskKind = "sendPaymentReminders"
	KindCreateStripeAccount     TaskKind = "createStripeAccount"
	KindUpdateMailingListTags   TaskKind = "mailingList.updateTags"
)

// Valid reports whether k is one of the known task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case KindUserNotify, KindChargeOutstanding, KindProcessMandrillEvent,
		KindRefreshAppStoreReceipts, KindSendPaymentReminders,
		KindCreateStripeAccount, KindUpdateMailingListTags:
		return true
	}
	return false
}

// Task is one durable unit of asynchronous work. It is created only inside the
// transaction of the business write that caused it, and is never mutated after
// creation; a successful claim deletes the row.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Kind        TaskKind        `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	AvailableAt time.Time       `json:"available_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DecodePayload unmarshals the task payload into dst, reporting the task kind
// on failure so dispatcher logs stay useful.
func (t *Task) DecodePayload(dst any) error {
	if err := json.Unmarshal(t.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Kind, err)
	}
	return nil
}

// UserNotifyPayload fans a notification out to a user's devices. When
// DeviceTokens is empty the handler resolves every installation for the user.
type UserNotifyPayload struct {
	UserID           uuid.UUID `json:"userId"`
	DeviceTokens     []string  `json:"deviceTokens,omitempty"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	MessageType      string    `json:"messageType,omitempty"`
	NotificationType string    `json:"notificationType,omitempty"`
	SuppressInApp    bool      `json:"suppressInApp,omitempty"`
}

// ChargeOutstandingPayload triggers a batched charge attempt for one payment plan.
type ChargeOutstandingPayload struct {
	PaymentPlanID    uuid.UUID `json:"paymentPlanId"`
	ForScheduledTask bool      `json:"forScheduledTask"`
}

// MandrillEventPayload carries one raw mail-provider webhook event.
type MandrillEventPayload struct {
	Event     string `json:"event"`
	Email     string `json:"email"`
	MessageID string `json:"messageId,omitempty"`
	TS        int64  `json:"ts,omitempty"`
}

// RecurringPayload is shared by self-rescheduling kinds; ScheduledAt is the
// fixed origin the next occurrence is computed from.
type RecurringPayload struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

// CreateStripeAccountPayload provisions an external payment account for a trainer.
type CreateStripeAccountPayload struct {
	TrainerID   uuid.UUID `json:"trainerId"`
	CountryCode string    `json:"countryCode"`
}

// UpdateMailingListTagsPayload syncs mailing-list tags for one address.
type UpdateMailingListTagsPayload struct {
	Email      string   `json:"email"`
	AddTags    []string `json:"addTags,omitempty"`
	RemoveTags []string `json:"removeTags,omitempty"`
}
