package service

import (
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// rejectedRow is one invalid candidate in the rejected-rows export
type rejectedRow struct {
	Row         int    `csv:"row"`
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Errors      string `csv:"errors"`
}

// RejectedRowsCSV returns the invalid rows of the current session as CSV, ordered by source row.
func (o *Orchestrator) RejectedRowsCSV() (string, error) {
	o.mu.Lock()
	var rows []*rejectedRow
	for _, c := range o.session.Candidates {
		if c.IsValid {
			continue
		}
		rows = append(rows, &rejectedRow{
			Row:         c.SourceRow,
			Date:        c.Date,
			Amount:      c.Amount,
			Description: c.Description,
			Errors:      strings.Join(c.ValidationErrors, "; "),
		})
	}
	o.mu.Unlock()

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Row < rows[j].Row })
	return gocsv.MarshalString(&rows)
}
