package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppStoreTransaction is one verified purchase or renewal, keyed by
// (TransactionID, TrainerID). The same Apple transaction recorded under a
// different trainer is a user conflict, never an overwrite.
type AppStoreTransaction struct {
	TransactionID         string
	TrainerID             uuid.UUID
	OriginalTransactionID string
	ProductID             string
	PurchaseDate          time.Time
	ExpiresDate           time.Time
	IsTrialPeriod         bool
	IsInIntroOfferPeriod  bool
	EncodedReceipt        string
}

// PendingRenewal is the renewal state for one product of one trainer.
type PendingRenewal struct {
	TrainerID          uuid.UUID
	ProductID          string
	AutoRenewProductID string
	AutoRenewStatus    bool
}

// ErrReceiptUserConflict means a transaction id is already stored under a
// different trainer. The stored row stays untouched.
var ErrReceiptUserConflict = errors.New("receipt transaction belongs to a different trainer")

// StatusDisposition is the closed classification of a verification response.
// Every status code the endpoint can return maps to exactly one disposition,
// so a new code has to be classified deliberately.
type StatusDisposition int

const (
	// DispositionOK is status 0: the receipt verified cleanly.
	DispositionOK StatusDisposition = iota
	// DispositionTemporary covers network failures and processor-side errors;
	// safe to retry on the next scheduled refresh.
	DispositionTemporary
	// DispositionInvalidParameters means the submitted receipt payload is
	// malformed. Retrying the same payload cannot succeed.
	DispositionInvalidParameters
	// DispositionUnexpected covers authentication and status mismatches that
	// need investigation, not retries.
	DispositionUnexpected
)

func (d StatusDisposition) String() string {
	switch d {
	case DispositionOK:
		return "ok"
	case DispositionTemporary:
		return "temporary"
	case DispositionInvalidParameters:
		return "invalid-parameters"
	case DispositionUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// VerificationError carries the disposition alongside the raw status code.
type VerificationError struct {
	Disposition StatusDisposition
	StatusCode  int
	Cause       error
}

func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("receipt verification failed (%s, status %d): %v", e.Disposition, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("receipt verification failed (%s, status %d)", e.Disposition, e.StatusCode)
}

func (e *VerificationError) Unwrap() error { return e.Cause }

// Temporary reports whether the failure is safe to retry later.
func (e *VerificationError) Temporary() bool { return e.Disposition == DispositionTemporary }
