// Package repository provides ledger persistence for imported transactions.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerRecord is one transaction in an owner's ledger
type LedgerRecord struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Category    string
	SourceRow   int // row in the uploaded file, 0 when unknown
}

// FailedRecord is a record the store refused, with the reason
type FailedRecord struct {
	Record LedgerRecord
	Reason string
}

// InsertResult reports per-record outcomes of InsertBatch
type InsertResult struct {
	InsertedCount int
	FailedRecords []FailedRecord
	Errors        []string
}

// ImportRepository is the persistence collaborator used by the import flow.
// Every call is scoped to a single owner.
type ImportRepository interface {
	// FindPotentialDuplicates returns existing ledger records that could match the candidates.
	// Implementations may over-return; exact matching is done by the caller.
	FindPotentialDuplicates(ctx context.Context, ownerID uuid.UUID, candidates []LedgerRecord) ([]LedgerRecord, error)

	// InsertBatch inserts records and reports which ones failed. When it stops early
	// with an error, a non-nil result still counts the records saved before the
	// failure and lists the rest as failed. A nil result with an error means nothing
	// was saved.
	InsertBatch(ctx context.Context, ownerID uuid.UUID, records []LedgerRecord) (*InsertResult, error)
}

// dateRange returns the earliest and latest record dates.
func dateRange(records []LedgerRecord) (time.Time, time.Time) {
	var from, to time.Time
	for i, r := range records {
		if i == 0 || r.Date.Before(from) {
			from = r.Date
		}
		if i == 0 || r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}
