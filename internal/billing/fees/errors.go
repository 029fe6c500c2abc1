package fees

import "fmt"

// CountryNotSupportedError indicates a charge country with no fee table entry.
// This is a configuration error: never retried, surfaced to an operator.
type CountryNotSupportedError struct {
	Country string
}

func (e *CountryNotSupportedError) Error() string {
	return fmt.Sprintf("charge country not supported: %s", e.Country)
}

// CurrencyNotSupportedError indicates a mismatch between the requested currency
// and the charge country's canonical currency. Also a configuration error.
type CurrencyNotSupportedError struct {
	Country  string
	Currency string
}

func (e *CurrencyNotSupportedError) Error() string {
	return fmt.Sprintf("currency %s not supported for charge country %s", e.Currency, e.Country)
}
