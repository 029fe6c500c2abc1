// Package paymentgateway defines the narrow, replaceable capability interface
// the billing handlers use to move money. The concrete provider lives behind
// it; handlers depend only on the contract and the error taxonomy.
package paymentgateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentMethod is one stored payment instrument on a customer.
type PaymentMethod struct {
	ID      string
	Brand   string
	Last4   string
	Country string
}

// CreateIntentRequest describes one off-session charge. IdempotencyKey is
// stable across retries of the same logical charge so a crash mid-call cannot
// silently duplicate: the gateway fails loudly on key reuse with different
// parameters.
type CreateIntentRequest struct {
	Amount           decimal.Decimal
	Currency         string
	CustomerID       string
	PaymentMethodID  string
	ApplicationFee   decimal.Decimal
	ConnectedAccount string
	OffSession       bool
	IdempotencyKey   string
	Description      string
}

// Intent is the gateway's record of a charge attempt.
type Intent struct {
	ID     string
	Status string
}

// ConnectedAccount is a provisioned payment-receiving account.
type ConnectedAccount struct {
	ID             string
	Type           string
	PayoutsEnabled bool
}

// Balance is a connected account's available balance.
type Balance struct {
	Available decimal.Decimal
	Currency  string
}

// Gateway is the payment-processor capability. All calls are network calls and
// may fail with the typed errors below.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	RetrieveBalance(ctx context.Context, connectedAccount string) (*Balance, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) error
	CreateConnectedAccount(ctx context.Context, email, countryCode string) (*ConnectedAccount, error)
}

// CardDeclinedError: the customer's card was declined. Surfaced to the
// trainer; the payment remains outstanding and may be retried later under the
// handler's eligibility rules.
type CardDeclinedError struct {
	Code    string
	Message string
}

func (e *CardDeclinedError) Error() string {
	return fmt.Sprintf("card declined (%s): %s", e.Code, e.Message)
}

// ResourceMissingError: a referenced gateway object (customer, payment method)
// does not exist server-side.
type ResourceMissingError struct {
	Resource string
}

func (e *ResourceMissingError) Error() string {
	return fmt.Sprintf("gateway resource missing: %s", e.Resource)
}

// PayoutsNotAllowedError: the connected account has not completed verification
// and may not receive charges yet.
type PayoutsNotAllowedError struct {
	Account string
}

func (e *PayoutsNotAllowedError) Error() string {
	return fmt.Sprintf("payouts not allowed for account %s", e.Account)
}

// APIError is any other gateway failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error (%d): %s", e.StatusCode, e.Message)
}
