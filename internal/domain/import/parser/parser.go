// Package parser turns delimited statement text into rows and typed transactions.
// It splits lines with a quote-aware scanner, reports column-count mismatches,
// and validates dates, amounts and descriptions row by row.
package parser

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/echo-import/internal/domain/import/sniffer"
)

// Diagnostic describes a structural problem with one row.
// Row 0 refers to the file as a whole.
type Diagnostic struct {
	Row     int
	Message string
}

// ParsedTable is the result of parsing delimited text
type ParsedTable struct {
	Rows        [][]string
	Header      []string // nil when the text has no header row
	Delimiter   rune
	Diagnostics []Diagnostic
}

// HasHeader reports whether the table was parsed with a header row.
func (t *ParsedTable) HasHeader() bool {
	return t.Header != nil
}

// ParseOptions configures Parse
type ParseOptions struct {
	Delimiter rune // 0 = auto-detect from the first line
	HasHeader bool
}

// DefaultParseOptions returns options with delimiter detection and a header row
func DefaultParseOptions() ParseOptions {
	return ParseOptions{HasHeader: true}
}

// ParseLine splits a single line on delim. Fields wrapped in double quotes may contain
// the delimiter, and "" inside a quoted field is a literal quote. Every field is trimmed
// after unquoting. Embedded newlines are not supported.
func ParseLine(line string, delim rune) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))

	return fields
}

// Parse splits text into rows. Line endings \n, \r\n and \r are all accepted.
// Trailing blank lines are dropped and interior blank lines are skipped. Rows whose
// field count differs from the header (or the first data row without a header) are
// kept and reported in Diagnostics.
func Parse(text string, opts ParseOptions) *ParsedTable {
	table := &ParsedTable{Delimiter: opts.Delimiter}

	text = strings.TrimPrefix(text, "\uFEFF")
	if strings.TrimSpace(text) == "" {
		if table.Delimiter == 0 {
			table.Delimiter = sniffer.Comma
		}
		table.Diagnostics = append(table.Diagnostics, Diagnostic{
			Row:     0,
			Message: "file is empty or contains no readable text",
		})
		return table
	}

	lines := splitLines(text)
	if table.Delimiter == 0 {
		table.Delimiter = sniffer.DetectDelimiter(lines[0])
	}

	dataLines := lines
	rowOffset := 1 // 1-based row numbers
	if opts.HasHeader {
		table.Header = ParseLine(lines[0], table.Delimiter)
		dataLines = lines[1:]
		rowOffset = 2 // header occupies row 1
	}

	expected := len(table.Header)
	for _, line := range dataLines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := ParseLine(line, table.Delimiter)
		if !opts.HasHeader && len(table.Rows) == 0 {
			expected = len(fields)
		}

		if len(fields) != expected {
			rowNum := len(table.Rows) + rowOffset
			table.Diagnostics = append(table.Diagnostics, Diagnostic{
				Row:     rowNum,
				Message: fmt.Sprintf("row %d: expected %d columns, found %d", rowNum, expected, len(fields)),
			})
		}
		table.Rows = append(table.Rows, fields)
	}

	if len(table.Rows) == 0 {
		table.Diagnostics = append(table.Diagnostics, Diagnostic{
			Row:     0,
			Message: "no data rows found",
		})
	}

	return table
}

// splitLines normalizes line endings and drops leading and trailing blank lines.
// The result always holds at least one line for non-blank input.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}
