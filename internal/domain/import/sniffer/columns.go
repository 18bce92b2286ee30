package sniffer

import (
	"strings"
)

// Role is the semantic meaning of a statement column
type Role string

const (
	RoleDate        Role = "date"
	RoleAmount      Role = "amount"
	RoleDescription Role = "description"
)

// roleOrder is the order in which roles claim header columns
var roleOrder = []Role{RoleDate, RoleAmount, RoleDescription}

// Header synonyms per role, lower-case.
var roleSynonyms = map[Role][]string{
	RoleDate: {
		"date", "transaction date", "txn date", "value date", "posting date", "trans date",
	},
	RoleAmount: {
		"amount", "debit", "credit", "withdrawal", "deposit", "transaction amount", "amt",
	},
	RoleDescription: {
		"description", "narration", "particulars", "details", "remarks", "memo", "payee",
		"merchant", "transaction details",
	},
}

// ColumnMapping holds the detected column index for each role (-1 if not found)
type ColumnMapping struct {
	DateIndex        int
	AmountIndex      int
	DescriptionIndex int
	IsComplete       bool
	MissingRoles     []Role
}

// Index returns the column index assigned to role.
func (m ColumnMapping) Index(role Role) int {
	switch role {
	case RoleDate:
		return m.DateIndex
	case RoleAmount:
		return m.AmountIndex
	case RoleDescription:
		return m.DescriptionIndex
	}
	return -1
}

// MissingNames returns the missing roles as a comma-separated list.
func (m ColumnMapping) MissingNames() string {
	names := make([]string, len(m.MissingRoles))
	for i, r := range m.MissingRoles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// DetectColumnMapping maps header text to the date, amount and description roles.
// A header matches a role when it equals or contains one of the role's synonyms,
// case-insensitively. Roles claim columns in date, amount, description order and
// the leftmost unclaimed matching column wins; a claimed column is never reassigned.
func DetectColumnMapping(headers []string) ColumnMapping {
	mapping := ColumnMapping{
		DateIndex:        -1,
		AmountIndex:      -1,
		DescriptionIndex: -1,
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	claimed := make(map[int]bool, len(roleOrder))
	for _, role := range roleOrder {
		idx := findColumn(normalized, roleSynonyms[role], claimed)
		if idx < 0 {
			mapping.MissingRoles = append(mapping.MissingRoles, role)
			continue
		}
		claimed[idx] = true
		switch role {
		case RoleDate:
			mapping.DateIndex = idx
		case RoleAmount:
			mapping.AmountIndex = idx
		case RoleDescription:
			mapping.DescriptionIndex = idx
		}
	}

	mapping.IsComplete = len(mapping.MissingRoles) == 0
	return mapping
}

func findColumn(headers []string, synonyms []string, claimed map[int]bool) int {
	for i, h := range headers {
		if h == "" || claimed[i] {
			continue
		}
		for _, syn := range synonyms {
			if h == syn || strings.Contains(h, syn) {
				return i
			}
		}
	}
	return -1
}
