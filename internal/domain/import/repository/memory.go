package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryImportRepository is an in-process ImportRepository. It enforces the same
// constraints as the ledger_transactions table.
type MemoryImportRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]LedgerRecord
	ids     map[uuid.UUID]struct{}
}

// NewMemoryImportRepository creates an empty repository
func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{
		records: make(map[uuid.UUID][]LedgerRecord),
		ids:     make(map[uuid.UUID]struct{}),
	}
}

// FindPotentialDuplicates returns the owner's records within the candidates' date range
func (m *MemoryImportRepository) FindPotentialDuplicates(ctx context.Context, ownerID uuid.UUID, candidates []LedgerRecord) ([]LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	from, to := dateRange(candidates)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []LedgerRecord
	for _, r := range m.records[ownerID] {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// InsertBatch stores valid records and reports constraint violations per record
func (m *MemoryImportRepository) InsertBatch(ctx context.Context, ownerID uuid.UUID, records []LedgerRecord) (*InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := &InsertResult{}
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.OwnerID = ownerID

		if reason := m.violation(rec); reason != "" {
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Record: rec, Reason: reason})
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", rec.SourceRow, reason))
			continue
		}

		m.ids[rec.ID] = struct{}{}
		m.records[ownerID] = append(m.records[ownerID], rec)
		result.InsertedCount++
	}
	return result, nil
}

// Records returns a copy of the owner's ledger
func (m *MemoryImportRepository) Records(ownerID uuid.UUID) []LedgerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LedgerRecord, len(m.records[ownerID]))
	copy(out, m.records[ownerID])
	return out
}

func (m *MemoryImportRepository) violation(rec LedgerRecord) string {
	switch {
	case rec.Date.IsZero():
		return "date is required"
	case !rec.Amount.IsPositive():
		return "amount must be positive"
	case strings.TrimSpace(rec.Description) == "":
		return "description is required"
	}
	if _, exists := m.ids[rec.ID]; exists {
		return "duplicate id " + rec.ID.String()
	}
	return ""
}
