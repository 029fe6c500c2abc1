// Package pushprovider defines the narrow push-delivery capability. The
// concrete provider (APNs, FCM, a relay) lives behind the interface; handlers
// only see per-device failure records.
package pushprovider

import (
	"context"
	"strings"
)

// Payload is the notification content fanned out to devices.
type Payload struct {
	Title            string
	Body             string
	MessageType      string
	NotificationType string
}

// Failure is one device's delivery failure. Status is the provider's HTTP-ish
// status for the device, Reason its machine-readable rejection reason; Err is
// set for transport-level failures where no response exists.
type Failure struct {
	DeviceToken string
	Status      int
	Reason      string
	Err         error
}

// Result reports the devices that failed; devices absent from Failed were
// accepted by the provider.
type Result struct {
	Failed []Failure
}

// Provider sends one payload to many devices.
type Provider interface {
	Send(ctx context.Context, payload Payload, deviceTokens []string) (*Result, error)
}

// Rejection reasons indicating the device registration is permanently gone.
const (
	ReasonUnregistered           = "Unregistered"
	ReasonBadDeviceToken         = "BadDeviceToken"
	ReasonDeviceTokenNotForTopic = "DeviceTokenNotForTopic"
	ReasonInternalServerError    = "InternalServerError"
)

// PermanentlyGone reports whether a failure means the token will never work
// again and the installation should be removed.
func (f Failure) PermanentlyGone() bool {
	switch f.Reason {
	case ReasonUnregistered, ReasonBadDeviceToken, ReasonDeviceTokenNotForTopic:
		return true
	}
	return false
}

// Transient reports whether a failure looks like a provider-side fault worth
// retrying: a 5xx status, an internal-error reason, or the known stream-reset
// transport symptom.
func (f Failure) Transient() bool {
	if f.Status >= 500 {
		return true
	}
	if f.Reason == ReasonInternalServerError {
		return true
	}
	if f.Err != nil && isStreamReset(f.Err) {
		return true
	}
	return false
}

// TransientSendError reports whether a whole-batch transport failure from
// Send looks retryable. Anything else (bad credentials, a rejected
// certificate, a malformed request) will fail the same way on every attempt.
func TransientSendError(err error) bool {
	return err != nil && isStreamReset(err)
}

func isStreamReset(err error) bool {
	// http2 stream resets surface as error text; there is no typed error to
	// match against from the provider client.
	msg := err.Error()
	return strings.Contains(msg, "stream error") ||
		strings.Contains(msg, "INTERNAL_ERROR") ||
		strings.Contains(msg, "connection reset")
}
