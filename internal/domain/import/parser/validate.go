package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/echo-import/pkg/money"
)

// dateFormat is one accepted date layout; groups yields year, month, day from the submatches
type dateFormat struct {
	name   string
	re     *regexp.Regexp
	groups func(m []string) (y, mo, d string)
}

// dateFormats are tried in order; the first structural match that forms a real calendar date wins.
var dateFormats = []dateFormat{
	{"YYYY-MM-DD", regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`), func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
	{"DD/MM/YYYY", regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`), func(m []string) (string, string, string) { return m[3], m[2], m[1] }},
	{"DD-MM-YYYY", regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`), func(m []string) (string, string, string) { return m[3], m[2], m[1] }},
	{"MM/DD/YYYY", regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), func(m []string) (string, string, string) { return m[3], m[1], m[2] }},
	{"YYYY/MM/DD", regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})$`), func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
}

// ParseDate parses s with the first matching accepted format. Dates are returned at UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, f := range dateFormats {
		m := f.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, mo, d := f.groups(m)
		if t, ok := calendarDate(y, mo, d); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDate builds a date and rejects values time.Date would normalize (month 13, Feb 30).
func calendarDate(ys, ms, ds string) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// Validation is the outcome of ValidateTransaction
type Validation struct {
	Valid        bool
	Errors       []string
	ParsedDate   *time.Time
	ParsedAmount *decimal.Decimal
}

// ValidateTransaction checks the date, amount and description of tx.
// Every failing field contributes exactly one row-numbered message.
func ValidateTransaction(tx RawTransaction) Validation {
	var v Validation

	date := strings.TrimSpace(tx.Date)
	if date == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Missing date", tx.SourceRow))
	} else if t, ok := ParseDate(date); ok {
		v.ParsedDate = &t
	} else {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Invalid date format %q", tx.SourceRow, date))
	}

	amount, err := money.ParseAmount(tx.Amount)
	switch {
	case err == nil:
		v.ParsedAmount = &amount
	case errors.Is(err, money.ErrEmptyAmount):
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Missing amount", tx.SourceRow))
	case errors.Is(err, money.ErrNonPositiveAmount):
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Amount must be positive (got %q)", tx.SourceRow, strings.TrimSpace(tx.Amount)))
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Invalid amount %q", tx.SourceRow, strings.TrimSpace(tx.Amount)))
	}

	if strings.TrimSpace(tx.Description) == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Missing description", tx.SourceRow))
	}

	v.Valid = len(v.Errors) == 0
	return v
}
