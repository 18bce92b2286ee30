package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool used by the Postgres repository
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// FindPotentialDuplicates returns the owner's records dated within the candidates' date range
func (r *PostgresImportRepository) FindPotentialDuplicates(ctx context.Context, ownerID uuid.UUID, candidates []LedgerRecord) ([]LedgerRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	from, to := dateRange(candidates)

	query := `
		SELECT id, user_id, txn_date, amount::text, description, category, source_row
		FROM ledger_transactions
		WHERE user_id = $1 AND txn_date BETWEEN $2 AND $3
		ORDER BY txn_date`

	rows, err := r.db.Query(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing transactions: %w", err)
	}
	defer rows.Close()

	var records []LedgerRecord
	for rows.Next() {
		var (
			rec    LedgerRecord
			amount string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Date, &amount, &rec.Description, &rec.Category, &rec.SourceRow); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return records, nil
}

// InsertBatch inserts each record independently so one rejected row does not roll back the rest
func (r *PostgresImportRepository) InsertBatch(ctx context.Context, ownerID uuid.UUID, records []LedgerRecord) (*InsertResult, error) {
	query := `
		INSERT INTO ledger_transactions (id, user_id, txn_date, amount, description, category, source_row)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	result := &InsertResult{}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			result.abandon(records[i:], err)
			return result, fmt.Errorf("insert stopped after %d records: %w", result.InsertedCount, err)
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.OwnerID = ownerID

		_, err := r.db.Exec(ctx, query,
			rec.ID,
			ownerID,
			rec.Date,
			rec.Amount.String(),
			rec.Description,
			rec.Category,
			rec.SourceRow,
		)
		if err != nil && ctx.Err() != nil {
			result.abandon(records[i:], ctx.Err())
			return result, fmt.Errorf("insert stopped after %d records: %w", result.InsertedCount, ctx.Err())
		}
		if err != nil {
			reason := err.Error()
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Record: rec, Reason: reason})
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", rec.SourceRow, reason))
			continue
		}
		result.InsertedCount++
	}
	return result, nil
}

// abandon marks records that were not saved because the insert stopped early
func (r *InsertResult) abandon(records []LedgerRecord, cause error) {
	for _, rec := range records {
		reason := "not saved: " + cause.Error()
		r.FailedRecords = append(r.FailedRecords, FailedRecord{Record: rec, Reason: reason})
		r.Errors = append(r.Errors, fmt.Sprintf("row %d: %s", rec.SourceRow, reason))
	}
}
