// Package duplicates finds candidate transactions that already exist in the ledger.
package duplicates

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/echo-import/pkg/money"
)

// Entry is the comparable shape of a candidate or an existing ledger record.
// Index identifies the entry in the caller's slice.
type Entry struct {
	Index       int
	Date        time.Time
	Amount      decimal.Decimal
	Description string
}

// Match pairs a duplicate candidate with the ledger entry it collides with
type Match struct {
	Candidate Entry
	Existing  Entry
}

// Result splits candidates into duplicates and unique entries, preserving input order
type Result struct {
	Duplicates []Match
	Unique     []Entry
}

// dayKey is the calendar date used for exact date equality.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsDuplicate reports whether a and b are the same charge: equal calendar date,
// amounts within money.Tolerance and case-insensitively equal descriptions.
func IsDuplicate(a, b Entry) bool {
	return dayKey(a.Date) == dayKey(b.Date) &&
		money.WithinTolerance(a.Amount, b.Amount) &&
		strings.EqualFold(strings.TrimSpace(a.Description), strings.TrimSpace(b.Description))
}

// Check compares every candidate against the existing entries. Existing entries
// are indexed by date so only same-day records are compared.
func Check(candidates, existing []Entry) Result {
	byDay := make(map[string][]Entry, len(existing))
	for _, e := range existing {
		k := dayKey(e.Date)
		byDay[k] = append(byDay[k], e)
	}

	var result Result
	for _, c := range candidates {
		matched := false
		for _, e := range byDay[dayKey(c.Date)] {
			if IsDuplicate(c, e) {
				result.Duplicates = append(result.Duplicates, Match{Candidate: c, Existing: e})
				matched = true
				break
			}
		}
		if !matched {
			result.Unique = append(result.Unique, c)
		}
	}
	return result
}
