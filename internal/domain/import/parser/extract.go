package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/echo-import/internal/domain/import/sniffer"
)

// RawTransaction is the verbatim text extracted for one data row
type RawTransaction struct {
	Date        string
	Amount      string
	Description string
	SourceRow   int // 1-based, counts the header row when present
}

// ParseError represents a parsing error for a specific row
type ParseError struct {
	Row     int
	Column  string
	Message string
}

func (e ParseError) Error() string {
	if e.Row == 0 {
		return e.Message
	}
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ExtractResult contains the transactions pulled from a table
type ExtractResult struct {
	Transactions []RawTransaction
	Errors       []ParseError
}

// ExtractTransactions maps each data row to a RawTransaction using the column mapping.
// An incomplete mapping yields no transactions and a single structural error.
// Cells past the end of a short row are read as empty strings.
func ExtractTransactions(rows [][]string, mapping sniffer.ColumnMapping, hasHeader bool) *ExtractResult {
	result := &ExtractResult{}

	if !mapping.IsComplete {
		result.Errors = append(result.Errors, ParseError{
			Row:     0,
			Column:  "mapping",
			Message: fmt.Sprintf("missing required columns: %s", mapping.MissingNames()),
		})
		return result
	}

	offset := 1
	if hasHeader {
		offset = 2
	}

	result.Transactions = make([]RawTransaction, 0, len(rows))
	for i, row := range rows {
		getValue := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		result.Transactions = append(result.Transactions, RawTransaction{
			Date:        getValue(mapping.DateIndex),
			Amount:      getValue(mapping.AmountIndex),
			Description: getValue(mapping.DescriptionIndex),
			SourceRow:   i + offset,
		})
	}

	return result
}

var (
	// amountHead is the part of an unquoted amount before its first thousands comma
	amountHead = regexp.MustCompile(`^[^.\d]*\d{1,3}$`)
	// thousandsGroup is a later part: three digits, the last one may carry decimals
	thousandsGroup = regexp.MustCompile(`^\d{3}(\.\d+)?$`)
)

// MergeSplitAmounts rejoins amounts such as $1,234.56 that an unquoted comma split
// into several cells. A row is repaired only when it has more cells than the table
// width and the cells after amountIndex are thousands groups. Diagnostics are kept.
// It returns the number of rows repaired.
func (t *ParsedTable) MergeSplitAmounts(amountIndex int) int {
	if t.Delimiter != sniffer.Comma || amountIndex < 0 || len(t.Rows) == 0 {
		return 0
	}
	width := len(t.Header)
	if !t.HasHeader() {
		width = len(t.Rows[0])
	}

	repaired := 0
	for i, row := range t.Rows {
		extra := len(row) - width
		if extra <= 0 || amountIndex >= len(row) || !amountHead.MatchString(row[amountIndex]) {
			continue
		}

		n := 0
		for n < extra && amountIndex+1+n < len(row) {
			group := row[amountIndex+1+n]
			if !thousandsGroup.MatchString(group) {
				break
			}
			n++
			if strings.Contains(group, ".") {
				break
			}
		}
		if n == 0 {
			continue
		}

		merged := make([]string, 0, len(row)-n)
		merged = append(merged, row[:amountIndex]...)
		merged = append(merged, strings.Join(row[amountIndex:amountIndex+1+n], ","))
		merged = append(merged, row[amountIndex+1+n:]...)
		t.Rows[i] = merged
		repaired++
	}
	return repaired
}
