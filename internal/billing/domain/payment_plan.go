package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanStatus is the lifecycle state of a payment plan.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPaused    PlanStatus = "paused"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// PaymentStatus is the state of one scheduled installment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Retry eligibility bounds for rejected installments picked up by the
// recurring scheduler.
const (
	MaxChargeRetries = 10
	RetryCooldown    = 16 * time.Hour
)

// PaymentPlan is a client's recurring payment agreement with a trainer.
type PaymentPlan struct {
	ID        uuid.UUID
	TrainerID uuid.UUID
	ClientID  uuid.UUID
	Status    PlanStatus
	Currency  string
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentPlanPayment is one scheduled installment. Invariant:
// Status == paid implies AmountOutstanding == 0. Rows are mutated only by the
// charge-outstanding handler, under a row lock, inside a single transaction.
type PaymentPlanPayment struct {
	ID                uuid.UUID
	PaymentPlanID     uuid.UUID
	Date              time.Time
	Status            PaymentStatus
	AmountOutstanding decimal.Decimal
	RetryCount        int
	LastRetryTime     *time.Time
	Fee               decimal.Decimal
	LastReminderAt    *time.Time
}

// Charge is the persisted record of one external charge intent covering a
// batch of installments.
type Charge struct {
	ID              uuid.UUID
	PaymentPlanID   uuid.UUID
	GatewayIntentID string
	Status          string
	Amount          decimal.Decimal
	ApplicationFee  decimal.Decimal
	Currency        string
	CreatedAt       time.Time
}

// Trainer carries the payment-relevant slice of a trainer row.
type Trainer struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Email             string
	Country           string
	Currency          string
	StripeAccountID   *string
	StripeAccountType string
	PaymentsBlocked   bool
}

// Client carries the payment-relevant slice of a client row.
type Client struct {
	ID               uuid.UUID
	TrainerID        uuid.UUID
	Email            string
	StripeCustomerID *string
	CardCountry      string
}
