package service

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	"github.com/FACorreiaa/echo-import/internal/domain/import/gate"
	"github.com/FACorreiaa/echo-import/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-import/pkg/money"
)

// Phase is the state of an import session
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseParsing    Phase = "parsing"
	PhasePreviewing Phase = "previewing"
	PhaseCommitting Phase = "committing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Candidate is a parsed statement row awaiting confirmation.
// IsSelected is only ever true when IsValid is true.
type Candidate struct {
	Date             string                `json:"date"`
	Amount           string                `json:"amount"`
	Description      string                `json:"description"`
	SourceRow        int                   `json:"sourceRow"`
	ParsedDate       *time.Time            `json:"parsedDate,omitempty"`
	ParsedAmount     *decimal.Decimal      `json:"parsedAmount,omitempty"`
	IsValid          bool                  `json:"isValid"`
	ValidationErrors []string              `json:"validationErrors,omitempty"`
	Category         string                `json:"category"`
	Confidence       float64               `json:"classificationConfidence"`
	Method           categorization.Method `json:"classificationMethod"`
	IsSelected       bool                  `json:"isSelected"`
	IsDuplicate      bool                  `json:"isDuplicate"`
}

// Summary aggregates the candidate list
type Summary struct {
	Total                 int             `json:"total"`
	ValidCount            int             `json:"validCount"`
	InvalidCount          int             `json:"invalidCount"`
	SelectedCount         int             `json:"selectedCount"`
	DuplicateCount        int             `json:"duplicateCount"`
	SelectedAmountSum     decimal.Decimal `json:"selectedAmountSum"`
	SelectedAmountDisplay string          `json:"selectedAmountDisplay"`
}

// CommitResult is the outcome of a commit attempt
type CommitResult struct {
	Success        bool     `json:"success"`
	InsertedCount  int      `json:"insertedCount"`
	DuplicateCount int      `json:"duplicateCount"`
	FailedCount    int      `json:"failedCount"`
	Errors         []string `json:"errors,omitempty"`
}

// Session is a snapshot of one import dialog
type Session struct {
	ID              uuid.UUID           `json:"sessionId"`
	Phase           Phase               `json:"phase"`
	FileName        string              `json:"fileName,omitempty"`
	FileType        gate.FileType       `json:"fileType,omitempty"`
	Candidates      []Candidate         `json:"candidates"`
	Summary         Summary             `json:"summary"`
	ProgressPercent int                 `json:"progressPercent"`
	LastError       string              `json:"lastError,omitempty"`
	Diagnostics     []parser.Diagnostic `json:"diagnostics,omitempty"`
	LastCommit      *CommitResult       `json:"lastCommit,omitempty"`
}

func newSession() Session {
	return Session{
		ID:         uuid.New(),
		Phase:      PhaseCollecting,
		Candidates: []Candidate{},
	}
}

// clone returns a deep copy safe to hand to callers.
func (s Session) clone() Session {
	out := s
	out.Candidates = make([]Candidate, len(s.Candidates))
	for i, c := range s.Candidates {
		if c.ParsedDate != nil {
			d := *c.ParsedDate
			c.ParsedDate = &d
		}
		if c.ParsedAmount != nil {
			a := *c.ParsedAmount
			c.ParsedAmount = &a
		}
		c.ValidationErrors = append([]string(nil), c.ValidationErrors...)
		out.Candidates[i] = c
	}
	out.Diagnostics = append([]parser.Diagnostic(nil), s.Diagnostics...)
	if s.LastCommit != nil {
		lc := *s.LastCommit
		lc.Errors = append([]string(nil), s.LastCommit.Errors...)
		out.LastCommit = &lc
	}
	return out
}

// summarize recomputes the summary from candidates.
func summarize(candidates []Candidate, currency string) Summary {
	s := Summary{Total: len(candidates), SelectedAmountSum: decimal.Zero}
	for _, c := range candidates {
		if c.IsValid {
			s.ValidCount++
		} else {
			s.InvalidCount++
		}
		if c.IsDuplicate {
			s.DuplicateCount++
		}
		if c.IsSelected && c.ParsedAmount != nil {
			s.SelectedCount++
			s.SelectedAmountSum = s.SelectedAmountSum.Add(*c.ParsedAmount)
		}
	}
	s.SelectedAmountDisplay = money.Display(s.SelectedAmountSum, currency)
	return s
}

// sortByDateDesc orders candidates newest first. Equal dates keep input order
// and rows without a parsed date go last.
func sortByDateDesc(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].ParsedDate, candidates[j].ParsedDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
