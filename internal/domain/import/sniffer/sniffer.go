// Package sniffer provides automatic detection of delimited statement layouts.
// It identifies the field delimiter and maps header text to column roles.
package sniffer

import (
	"strings"
)

// Supported delimiters
const (
	Comma     rune = ','
	Semicolon rune = ';'
	Tab       rune = '\t'
)

// DetectDelimiter picks the delimiter from the first line of text.
// Semicolon wins when it outnumbers commas and is at least as common as tabs;
// tab wins when it strictly outnumbers both. Comma is the default and wins every tie.
func DetectDelimiter(text string) rune {
	line := firstLine(text)

	commas := strings.Count(line, string(Comma))
	semicolons := strings.Count(line, string(Semicolon))
	tabs := strings.Count(line, string(Tab))

	switch {
	case semicolons > commas && semicolons >= tabs:
		return Semicolon
	case tabs > commas && tabs > semicolons:
		return Tab
	default:
		return Comma
	}
}

// firstLine returns the first line of text with any UTF-8 BOM removed.
func firstLine(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		text = text[:idx]
	}
	return text
}
