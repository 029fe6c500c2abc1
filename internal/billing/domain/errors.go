package domain

import "errors"

// Business-precondition errors: terminal for this attempt, surfaced to the
// trainer, re-evaluated on the next scheduled run. Never retried automatically
// by the charge handler itself.
var (
	ErrNoPaymentMethodOnFile    = errors.New("no payment method on file for client")
	ErrStripePaymentsBlocked    = errors.New("trainer payments are administratively blocked")
	ErrStripePaymentsNotEnabled = errors.New("trainer has no payment-receiving account configured")

	// ErrChargeFailedNotVerified is raised when the processor reports payouts
	// not yet allowed; the trainer is notified that verification is required.
	ErrChargeFailedNotVerified = errors.New("charge failed: connected account not verified")

	ErrPlanNotFound    = errors.New("payment plan not found")
	ErrTrainerNotFound = errors.New("trainer not found")
	ErrClientNotFound  = errors.New("client not found")
)
