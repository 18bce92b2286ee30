// Package money provides currency-safe amount handling for imported statement rows.
// Amounts are carried as shopspring/decimal values and rendered through go-money.
package money

import (
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	INR = "INR"
)

var (
	// ErrEmptyAmount is returned when the amount cell is blank.
	ErrEmptyAmount = errors.New("empty amount")
	// ErrInvalidAmount is returned when the cleaned text is not a number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNonPositiveAmount is returned for zero and negative amounts.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// Tolerance is the maximum difference at which two amounts are treated as the same charge.
var Tolerance = decimal.New(1, -2)

// currencySymbols are stripped before parsing
var currencySymbols = []string{"$", "€", "£", "₹"}

// Clean strips currency symbols, thousands separators and whitespace from raw amount text.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// ParseAmount parses statement amount text such as "$1,234.56" into a strictly positive decimal.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	cleaned := Clean(raw)
	if cleaned == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	return d, nil
}

// WithinTolerance reports whether |a - b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Sum adds up a list of amounts.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ToCents converts a decimal amount to minor units of the given currency.
func ToCents(amount decimal.Decimal, currencyCode string) int64 {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
	}
	multiplier := decimal.New(1, int32(currency.Fraction))
	return amount.Mul(multiplier).Round(0).IntPart()
}

// Display formats an amount for display (e.g. "$1,234.56").
// Unknown currency codes fall back to USD.
func Display(amount decimal.Decimal, currencyCode string) string {
	if money.GetCurrency(currencyCode) == nil {
		currencyCode = USD
	}
	return money.New(ToCents(amount, currencyCode), currencyCode).Display()
}
