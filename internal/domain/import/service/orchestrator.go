// Package service drives a statement import from file selection to commit.
//
// An Orchestrator owns one Session at a time and moves it through
// collecting, parsing, previewing, committing and completed or failed.
// Network calls to the repository are made without holding the session
// lock; each call is tagged with the session generation so results that
// arrive after Close are discarded.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	"github.com/FACorreiaa/echo-import/internal/domain/import/duplicates"
	"github.com/FACorreiaa/echo-import/internal/domain/import/gate"
	"github.com/FACorreiaa/echo-import/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-import/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/echo-import/pkg/money"
)

var (
	ErrInvalidFile      = errors.New("invalid file")
	ErrReadFailed       = errors.New("failed to read file")
	ErrNoTransactions   = errors.New("no transactions found")
	ErrMissingColumns   = errors.New("missing required columns")
	ErrCommitInProgress = errors.New("import already in progress")
	ErrNotEditable      = errors.New("no preview to edit")
	ErrRowOutOfRange    = errors.New("row index out of range")
	ErrSessionReset     = errors.New("session was closed")
)

const (
	msgCommitInProgress = "Import already in progress"
	msgNothingToCommit  = "Nothing to import. Upload a statement file first."
	msgNoneSelected     = "No transactions selected. Select at least one valid row to import."
	msgCancelled        = "Import was cancelled because the dialog was closed."
)

// Classifier is the categorization the orchestrator depends on
type Classifier interface {
	ClassifyBatch(descriptions []string) []categorization.Classification
	RecordCorrection(ctx context.Context, description, category string) error
}

// Upload is a file chosen by the user
type Upload struct {
	Name      string
	Size      int64
	Extension string
	Content   io.Reader
}

// Orchestrator runs the import flow for one owner
type Orchestrator struct {
	ownerID    uuid.UUID
	repo       repository.ImportRepository
	classifier Classifier
	logger     *slog.Logger
	metrics    *Metrics
	currency   string

	mu          sync.Mutex
	session     Session
	generation  uint64
	failedStage Phase // phase that was active when the session failed
}

// NewOrchestrator creates an orchestrator with an empty session
func NewOrchestrator(ownerID uuid.UUID, repo repository.ImportRepository, classifier Classifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ownerID:    ownerID,
		repo:       repo,
		classifier: classifier,
		logger:     logger.With(slog.String("owner_id", ownerID.String())),
		currency:   money.USD,
		session:    newSession(),
	}
}

// WithMetrics records import metrics on m
func (o *Orchestrator) WithMetrics(m *Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithCurrency sets the currency used for the selected amount display
func (o *Orchestrator) WithCurrency(code string) *Orchestrator {
	if code != "" {
		o.currency = code
	}
	return o
}

// OwnerID returns the owner every persistence call is scoped to
func (o *Orchestrator) OwnerID() uuid.UUID {
	return o.ownerID
}

// Snapshot returns a copy of the current session
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.clone()
}

// SelectFile validates upload, reads it and builds the preview. Any previous
// preview in the open session is replaced. The returned error is nil only when
// the session reached previewing.
func (o *Orchestrator) SelectFile(ctx context.Context, upload *Upload) (Session, error) {
	o.mu.Lock()
	if o.session.Phase == PhaseCommitting {
		snap := o.session.clone()
		o.mu.Unlock()
		return snap, ErrCommitInProgress
	}

	id := o.session.ID
	o.session = newSession()
	o.session.ID = id
	o.failedStage = ""
	o.generation++
	gen := o.generation

	var file *gate.File
	if upload != nil {
		file = &gate.File{Name: upload.Name, Size: upload.Size, Extension: upload.Extension}
	}
	check := gate.Validate(file)
	if !check.Valid {
		o.failLocked(PhaseCollecting, check.Message)
		snap := o.session.clone()
		o.mu.Unlock()
		return snap, fmt.Errorf("%w: %s", ErrInvalidFile, check.Error)
	}

	o.session.FileName = upload.Name
	o.session.FileType = check.FileType
	o.session.ProgressPercent = 10
	o.mu.Unlock()

	data, readErr := readUpload(ctx, upload.Content)

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		return o.session.clone(), ErrSessionReset
	}
	if readErr != nil {
		o.failLocked(PhaseCollecting, "Could not read the selected file. Choose the file again and retry.")
		return o.session.clone(), fmt.Errorf("%w: %w", ErrReadFailed, readErr)
	}

	// the declared size may not match what was actually read
	actual := gate.Validate(&gate.File{Name: upload.Name, Size: int64(len(data)), Extension: upload.Extension})
	if !actual.Valid {
		o.failLocked(PhaseCollecting, actual.Message)
		return o.session.clone(), fmt.Errorf("%w: %s", ErrInvalidFile, actual.Error)
	}

	if err := o.parseLocked(data, check.FileType); err != nil {
		return o.session.clone(), err
	}
	return o.session.clone(), nil
}

// readUpload reads at most one byte past the size limit so oversized content is detectable.
func readUpload(ctx context.Context, r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, errors.New("upload has no content")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(r, gate.MaxFileSize+1))
}

// parseLocked runs parsing, column mapping, validation and classification. Caller holds mu.
func (o *Orchestrator) parseLocked(data []byte, fileType gate.FileType) error {
	o.setPhaseLocked(PhaseParsing)

	if err := parser.CheckSupported(fileType); err != nil {
		o.failLocked(PhaseParsing, parser.UnsupportedMessage(fileType))
		return err
	}

	text := strings.ToValidUTF8(string(data), "\uFFFD")
	table := parser.Parse(text, parser.DefaultParseOptions())
	o.session.Diagnostics = table.Diagnostics

	if len(table.Rows) == 0 {
		o.failLocked(PhaseParsing, "No transactions found in the file. Make sure it has a header row followed by at least one transaction.")
		return ErrNoTransactions
	}

	mapping := sniffer.DetectColumnMapping(table.Header)
	if mapping.IsComplete {
		table.MergeSplitAmounts(mapping.AmountIndex)
	}
	extracted := parser.ExtractTransactions(table.Rows, mapping, table.HasHeader())
	if len(extracted.Errors) > 0 {
		missing := mapping.MissingNames()
		o.failLocked(PhaseParsing, fmt.Sprintf(
			"Could not find the %s column in the header. Rename the header so date, amount and description each have a column, then upload the file again.",
			missing))
		return fmt.Errorf("%w: %s", ErrMissingColumns, missing)
	}
	if len(extracted.Transactions) == 0 {
		o.failLocked(PhaseParsing, "No transactions found in the file.")
		return ErrNoTransactions
	}
	o.session.ProgressPercent = 50

	candidates := o.buildCandidates(extracted.Transactions)
	sortByDateDesc(candidates)

	o.session.Candidates = candidates
	o.session.Summary = summarize(candidates, o.currency)
	o.session.ProgressPercent = 100
	o.setPhaseLocked(PhasePreviewing)
	o.metrics.fileParsed("parsed")

	o.logger.Info("statement parsed",
		slog.String("session_id", o.session.ID.String()),
		slog.String("delimiter", string(table.Delimiter)),
		slog.Int("rows", o.session.Summary.Total),
		slog.Int("valid", o.session.Summary.ValidCount),
		slog.Int("invalid", o.session.Summary.InvalidCount),
		slog.Int("diagnostics", len(table.Diagnostics)),
	)
	return nil
}

func (o *Orchestrator) buildCandidates(txs []parser.RawTransaction) []Candidate {
	descriptions := make([]string, len(txs))
	for i, tx := range txs {
		descriptions[i] = tx.Description
	}
	classes := o.classifier.ClassifyBatch(descriptions)

	candidates := make([]Candidate, len(txs))
	for i, tx := range txs {
		v := parser.ValidateTransaction(tx)
		candidates[i] = Candidate{
			Date:             tx.Date,
			Amount:           tx.Amount,
			Description:      tx.Description,
			SourceRow:        tx.SourceRow,
			ParsedDate:       v.ParsedDate,
			ParsedAmount:     v.ParsedAmount,
			IsValid:          v.Valid,
			ValidationErrors: v.Errors,
			Category:         classes[i].Category,
			Confidence:       classes[i].Confidence,
			Method:           classes[i].Method,
			IsSelected:       v.Valid,
		}
	}
	return candidates
}

// ToggleRow flips the selection of the row at index. Invalid rows are left unselected.
func (o *Orchestrator) ToggleRow(index int) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editableLocked(); err != nil {
		return o.session.clone(), err
	}
	if index < 0 || index >= len(o.session.Candidates) {
		return o.session.clone(), ErrRowOutOfRange
	}

	c := &o.session.Candidates[index]
	if c.IsValid {
		c.IsSelected = !c.IsSelected
	}
	o.session.Summary = summarize(o.session.Candidates, o.currency)
	return o.session.clone(), nil
}

// SelectAll selects or deselects every valid row.
func (o *Orchestrator) SelectAll(selected bool) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editableLocked(); err != nil {
		return o.session.clone(), err
	}
	for i := range o.session.Candidates {
		if o.session.Candidates[i].IsValid {
			o.session.Candidates[i].IsSelected = selected
		}
	}
	o.session.Summary = summarize(o.session.Candidates, o.currency)
	return o.session.clone(), nil
}

// SetCategory overrides the category of the row at index and records the
// correction for future classifications. A failure to persist the correction
// is logged and does not undo the edit.
func (o *Orchestrator) SetCategory(ctx context.Context, index int, category string) (Session, error) {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		snap := o.session.clone()
		o.mu.Unlock()
		return snap, err
	}
	if index < 0 || index >= len(o.session.Candidates) {
		snap := o.session.clone()
		o.mu.Unlock()
		return snap, ErrRowOutOfRange
	}
	if !categorization.IsValidCategory(category) {
		snap := o.session.clone()
		o.mu.Unlock()
		return snap, fmt.Errorf("%w: %q", categorization.ErrInvalidCategory, category)
	}

	c := &o.session.Candidates[index]
	c.Category = category
	c.Confidence = 1.0
	c.Method = categorization.MethodCorrection
	description := c.Description
	o.session.Summary = summarize(o.session.Candidates, o.currency)
	snap := o.session.clone()
	o.mu.Unlock()

	if strings.TrimSpace(description) != "" {
		if err := o.classifier.RecordCorrection(ctx, description, category); err != nil {
			o.logger.Warn("failed to record category correction",
				slog.String("category", category),
				slog.Any("error", err),
			)
		}
	}
	return snap, nil
}

// Commit checks the selected rows for duplicates and inserts the rest. A second
// call while a commit is running returns immediately without side effects.
func (o *Orchestrator) Commit(ctx context.Context) CommitResult {
	o.mu.Lock()
	switch {
	case o.session.Phase == PhaseCommitting:
		o.mu.Unlock()
		return CommitResult{Errors: []string{msgCommitInProgress}}
	case o.retryableLocked():
		o.setPhaseLocked(PhasePreviewing)
	case o.session.Phase != PhasePreviewing:
		o.mu.Unlock()
		return CommitResult{Errors: []string{msgNothingToCommit}}
	}

	var selected []int // candidate indexes, parallel to records
	var records []repository.LedgerRecord
	for i := range o.session.Candidates {
		c := &o.session.Candidates[i]
		c.IsDuplicate = false
		if !c.IsSelected || c.ParsedDate == nil || c.ParsedAmount == nil {
			continue
		}
		selected = append(selected, i)
		records = append(records, repository.LedgerRecord{
			ID:          uuid.New(),
			OwnerID:     o.ownerID,
			Date:        *c.ParsedDate,
			Amount:      *c.ParsedAmount,
			Description: strings.TrimSpace(c.Description),
			Category:    c.Category,
			SourceRow:   c.SourceRow,
		})
	}
	if len(records) == 0 {
		o.session.Summary = summarize(o.session.Candidates, o.currency)
		o.mu.Unlock()
		return CommitResult{Errors: []string{msgNoneSelected}}
	}

	o.setPhaseLocked(PhaseCommitting)
	o.session.LastError = ""
	o.session.ProgressPercent = 0
	gen := o.generation
	o.mu.Unlock()

	existing, err := o.repo.FindPotentialDuplicates(ctx, o.ownerID, records)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return CommitResult{Errors: []string{msgCancelled}}
	}
	if err != nil {
		msg := "Could not check for existing transactions. Nothing was saved and your selections are kept, so you can retry."
		result := CommitResult{Errors: []string{msg}}
		o.failCommitLocked(result, err)
		o.mu.Unlock()
		return result
	}

	check := duplicates.Check(toEntries(records), toEntries(existing))
	for _, d := range check.Duplicates {
		o.session.Candidates[selected[d.Candidate.Index]].IsDuplicate = true
	}
	unique := make([]repository.LedgerRecord, len(check.Unique))
	for i, u := range check.Unique {
		unique[i] = records[u.Index]
	}
	o.session.Summary = summarize(o.session.Candidates, o.currency)
	o.session.ProgressPercent = 40
	dupCount := len(check.Duplicates)

	if len(unique) == 0 {
		result := CommitResult{Success: true, DuplicateCount: dupCount}
		o.completeLocked(result)
		o.mu.Unlock()
		return result
	}
	o.mu.Unlock()

	inserted, err := o.repo.InsertBatch(ctx, o.ownerID, unique)

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		return CommitResult{Errors: []string{msgCancelled}}
	}
	if err != nil && (inserted == nil || inserted.InsertedCount == 0) {
		msg := fmt.Sprintf("Import failed: %v. No transactions were saved and your selections are kept, so you can retry.", err)
		result := CommitResult{DuplicateCount: dupCount, FailedCount: len(unique), Errors: []string{msg}}
		o.failCommitLocked(result, err)
		return result
	}
	if err != nil {
		// stopped partway; the saved rows are reported so a retry skips them as duplicates
		result := CommitResult{
			InsertedCount:  inserted.InsertedCount,
			DuplicateCount: dupCount,
			FailedCount:    len(unique) - inserted.InsertedCount,
		}
		result.Errors = []string{fmt.Sprintf(
			"Import interrupted: %d of %d transactions were saved before the error (%v). Retry to import the rest; rows already saved will be skipped as duplicates.",
			inserted.InsertedCount, len(unique), err)}
		o.failCommitLocked(result, err)
		return result
	}

	failed := len(inserted.FailedRecords)
	if missing := len(unique) - inserted.InsertedCount; missing > failed {
		failed = missing
	}
	result := CommitResult{
		InsertedCount:  inserted.InsertedCount,
		DuplicateCount: dupCount,
		FailedCount:    failed,
	}

	switch {
	case failed == 0:
		result.Success = true
		o.completeLocked(result)
	case inserted.InsertedCount == 0:
		result.Errors = append([]string{fmt.Sprintf(
			"Import failed: none of the %d transactions could be saved. Your selections are kept, so you can retry.",
			len(unique))}, inserted.Errors...)
		o.failCommitLocked(result, errors.New(strings.Join(inserted.Errors, "; ")))
	default:
		result.Errors = append([]string{fmt.Sprintf(
			"Imported %d of %d transactions; %d failed. Retry to import the rest; rows already saved will be skipped as duplicates.",
			inserted.InsertedCount, len(unique), failed)}, inserted.Errors...)
		o.failCommitLocked(result, errors.New(strings.Join(inserted.Errors, "; ")))
	}
	return result
}

// Close discards the session. Results of calls still in flight are ignored.
func (o *Orchestrator) Close() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	previous := o.session.Phase
	o.generation++
	o.session = newSession()
	o.failedStage = ""

	o.logger.Debug("import session closed", slog.String("phase", string(previous)))
	return o.session.clone()
}

func toEntries(records []repository.LedgerRecord) []duplicates.Entry {
	entries := make([]duplicates.Entry, len(records))
	for i, r := range records {
		entries[i] = duplicates.Entry{Index: i, Date: r.Date, Amount: r.Amount, Description: r.Description}
	}
	return entries
}

func (o *Orchestrator) setPhaseLocked(p Phase) {
	if o.session.Phase == p {
		return
	}
	o.logger.Debug("import phase changed",
		slog.String("session_id", o.session.ID.String()),
		slog.String("from", string(o.session.Phase)),
		slog.String("to", string(p)),
	)
	o.session.Phase = p
}

// retryableLocked reports whether the session failed during a commit and still holds its preview.
func (o *Orchestrator) retryableLocked() bool {
	return o.session.Phase == PhaseFailed && o.failedStage == PhaseCommitting && len(o.session.Candidates) > 0
}

// editableLocked allows edits while previewing and after a failed commit, which
// returns the session to previewing.
func (o *Orchestrator) editableLocked() error {
	switch {
	case o.session.Phase == PhasePreviewing:
		return nil
	case o.retryableLocked():
		o.setPhaseLocked(PhasePreviewing)
		o.session.LastError = ""
		o.session.ProgressPercent = 100
		return nil
	case o.session.Phase == PhaseCommitting:
		return ErrCommitInProgress
	default:
		return ErrNotEditable
	}
}

// failLocked ends a collecting or parsing phase. No partial preview is kept.
func (o *Orchestrator) failLocked(stage Phase, msg string) {
	o.session.Candidates = []Candidate{}
	o.session.Summary = summarize(nil, o.currency)
	o.session.LastError = msg
	o.failedStage = stage
	o.setPhaseLocked(PhaseFailed)
	o.metrics.fileParsed("rejected")

	o.logger.Info("import file rejected",
		slog.String("session_id", o.session.ID.String()),
		slog.String("stage", string(stage)),
		slog.String("reason", msg),
	)
}

// failCommitLocked ends a commit with the candidate list, selections and edits intact.
func (o *Orchestrator) failCommitLocked(result CommitResult, cause error) {
	o.session.LastError = result.Errors[0]
	o.session.LastCommit = &result
	o.failedStage = PhaseCommitting
	o.setPhaseLocked(PhaseFailed)
	o.metrics.commitFinished("failed", result.InsertedCount, result.DuplicateCount, result.FailedCount)

	o.logger.Warn("import commit failed",
		slog.String("session_id", o.session.ID.String()),
		slog.Int("inserted", result.InsertedCount),
		slog.Int("failed", result.FailedCount),
		slog.Any("error", cause),
	)
}

func (o *Orchestrator) completeLocked(result CommitResult) {
	o.session.LastCommit = &result
	o.session.ProgressPercent = 100
	o.setPhaseLocked(PhaseCompleted)
	o.metrics.commitFinished("completed", result.InsertedCount, result.DuplicateCount, result.FailedCount)

	o.logger.Info("import committed",
		slog.String("session_id", o.session.ID.String()),
		slog.Int("inserted", result.InsertedCount),
		slog.Int("duplicates", result.DuplicateCount),
	)
}
