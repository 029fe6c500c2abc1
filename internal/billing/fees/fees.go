// Package fees computes country and currency specific transaction fees.
// It is a pure function library: no I/O, no state, and all monetary math on
// arbitrary-precision decimals. Floating point is forbidden for money.
package fees

import (
	"github.com/shopspring/decimal"
)

// FeeType names the tier a quote was resolved from.
type FeeType string

const (
	FeeTypeDomestic      FeeType = "domestic"
	FeeTypeInternational FeeType = "international"
	FeeTypeEuropean      FeeType = "european"
	FeeTypeNonEuropean   FeeType = "nonEuropean"
)

// FeeQuote is the resolved fee schedule for one (cardCountry, chargeCountry,
// currency) triple. The merchant-facing tier and the processor's own tier are
// carried side by side so the net application fee can be derived.
type FeeQuote struct {
	Currency            string
	FeeType             FeeType
	PercentageFee       decimal.Decimal
	FixedFee            decimal.Decimal
	StripePercentageFee decimal.Decimal
	StripeFixedFee      decimal.Decimal
}

type tier struct {
	percentageFee       decimal.Decimal
	fixedFee            decimal.Decimal
	stripePercentageFee decimal.Decimal
	stripeFixedFee      decimal.Decimal
}

type countryFees struct {
	currency           string
	domesticIsEuropean bool
	domestic           tier
	international      tier
}

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// europeanCountries is the fixed set deciding "domestic" for charge countries
// flagged domesticIsEuropean: membership of the card's issuing country, not
// equality with the charge country.
var europeanCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true, "GB": true, "NO": true, "CH": true,
}

var euroTier = countryFees{
	currency:           "EUR",
	domesticIsEuropean: true,
	domestic: tier{
		percentageFee: pct("0.030"), fixedFee: pct("0.35"),
		stripePercentageFee: pct("0.014"), stripeFixedFee: pct("0.25"),
	},
	international: tier{
		percentageFee: pct("0.040"), fixedFee: pct("0.35"),
		stripePercentageFee: pct("0.029"), stripeFixedFee: pct("0.25"),
	},
}

var countryFeeTable = map[string]countryFees{
	"US": {
		currency: "USD",
		domestic: tier{
			percentageFee: pct("0.035"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.029"), stripeFixedFee: pct("0.30"),
		},
		international: tier{
			percentageFee: pct("0.045"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.039"), stripeFixedFee: pct("0.30"),
		},
	},
	"CA": {
		currency: "CAD",
		domestic: tier{
			percentageFee: pct("0.035"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.029"), stripeFixedFee: pct("0.30"),
		},
		international: tier{
			percentageFee: pct("0.045"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.039"), stripeFixedFee: pct("0.30"),
		},
	},
	"AU": {
		currency: "AUD",
		domestic: tier{
			percentageFee: pct("0.035"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.0175"), stripeFixedFee: pct("0.30"),
		},
		international: tier{
			percentageFee: pct("0.045"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.029"), stripeFixedFee: pct("0.30"),
		},
	},
	"NZ": {
		currency: "NZD",
		domestic: tier{
			percentageFee: pct("0.035"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.027"), stripeFixedFee: pct("0.30"),
		},
		international: tier{
			percentageFee: pct("0.045"), fixedFee: pct("0.50"),
			stripePercentageFee: pct("0.037"), stripeFixedFee: pct("0.30"),
		},
	},
	"GB": {
		currency:           "GBP",
		domesticIsEuropean: true,
		domestic: tier{
			percentageFee: pct("0.030"), fixedFee: pct("0.30"),
			stripePercentageFee: pct("0.014"), stripeFixedFee: pct("0.20"),
		},
		international: tier{
			percentageFee: pct("0.040"), fixedFee: pct("0.30"),
			stripePercentageFee: pct("0.029"), stripeFixedFee: pct("0.20"),
		},
	},
	"IE": euroTier,
	"FR": euroTier,
	"DE": euroTier,
	"ES": euroTier,
	"IT": euroTier,
	"NL": euroTier,
	"BE": euroTier,
	"AT": euroTier,
	"PT": euroTier,
	"FI": euroTier,
}

// currencyExponents maps a currency to its canonical smallest-unit decimal
// count. Currencies absent from the map round to 2.
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"BIF": 0,
	"XAF": 0,
	"XOF": 0,
}

// CurrencyExponent returns the canonical decimal count for a currency.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return 2
}

// GetFee resolves the fee schedule for a charge. When the charge country's
// entry is flagged domesticIsEuropean, "domestic" means the card's issuing
// country is in the European set; otherwise it is a direct equality test.
func GetFee(cardCountry, chargeCountry, currency string) (FeeQuote, error) {
	entry, ok := countryFeeTable[chargeCountry]
	if !ok {
		return FeeQuote{}, &CountryNotSupportedError{Country: chargeCountry}
	}
	if entry.currency != currency {
		return FeeQuote{}, &CurrencyNotSupportedError{Country: chargeCountry, Currency: currency}
	}

	var selected tier
	var feeType FeeType
	if entry.domesticIsEuropean {
		if europeanCountries[cardCountry] {
			selected = entry.domestic
			feeType = FeeTypeEuropean
		} else {
			selected = entry.international
			feeType = FeeTypeNonEuropean
		}
	} else {
		if cardCountry == chargeCountry {
			selected = entry.domestic
			feeType = FeeTypeDomestic
		} else {
			selected = entry.international
			feeType = FeeTypeInternational
		}
	}

	return FeeQuote{
		Currency:            currency,
		FeeType:             feeType,
		PercentageFee:       selected.percentageFee,
		FixedFee:            selected.fixedFee,
		StripePercentageFee: selected.stripePercentageFee,
		StripeFixedFee:      selected.stripeFixedFee,
	}, nil
}

// CalculateFee computes the merchant-facing fee for an amount:
// amount × percentage + fixed, rounded to the currency's canonical exponent.
func CalculateFee(amount decimal.Decimal, quote FeeQuote) decimal.Decimal {
	fee := amount.Mul(quote.PercentageFee).Add(quote.FixedFee)
	return fee.Round(CurrencyExponent(quote.Currency))
}

// CalculateStripeFee computes the processor's own fee for an amount.
func CalculateStripeFee(amount decimal.Decimal, quote FeeQuote) decimal.Decimal {
	fee := amount.Mul(quote.StripePercentageFee).Add(quote.StripeFixedFee)
	return fee.Round(CurrencyExponent(quote.Currency))
}

// AccountTypeStandard is the connected-account type whose application fee is
// net of the processor's own fee.
const AccountTypeStandard = "standard"

// NetApplicationFee returns the application fee to request from the processor.
// For "standard" connected accounts the processor bills its own fee to the
// connected account, so the application fee is merchant fee minus processor
// fee; for any other account type the gross merchant fee is used.
func NetApplicationFee(amount decimal.Decimal, quote FeeQuote, accountType string) decimal.Decimal {
	merchantFee := CalculateFee(amount, quote)
	if accountType != AccountTypeStandard {
		return merchantFee
	}
	net := merchantFee.Sub(CalculateStripeFee(amount, quote))
	if net.IsNegative() {
		return decimal.Zero.Round(CurrencyExponent(quote.Currency))
	}
	return net
}
