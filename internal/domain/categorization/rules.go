package categorization

import (
	"regexp"
	"sort"
)

// CategoryOther is assigned when no correction, rule or keyword score is strong enough.
const CategoryOther = "Other"

// ValidCategories is the fixed set of labels a transaction may carry.
var ValidCategories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Utilities",
	"Housing",
	"Healthcare",
	"Travel",
	"Income",
	"Transfer",
	"Subscriptions",
	"Education",
	"Personal Care",
	CategoryOther,
}

var validCategorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ValidCategories))
	for _, c := range ValidCategories {
		set[c] = struct{}{}
	}
	return set
}()

// IsValidCategory reports whether category is one of ValidCategories (exact, case-sensitive).
func IsValidCategory(category string) bool {
	_, ok := validCategorySet[category]
	return ok
}

// Rule maps a description pattern to a category. Keywords feed the fallback score.
type Rule struct {
	Pattern  *regexp.Regexp
	Category string
	Priority int
	Keywords []string // lower-case
}

// DefaultRules returns the built-in rule set, highest priority first.
func DefaultRules() []Rule {
	rules := []Rule{
		{
			Pattern:  regexp.MustCompile(`(?i)\b(salary|payroll|paycheck|direct deposit)\b`),
			Category: "Income",
			Priority: 100,
			Keywords: []string{"salary", "payroll", "wage", "bonus", "dividend", "interest"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(transfer|zelle|venmo|paypal)\b`),
			Category: "Transfer",
			Priority: 95,
			Keywords: []string{"transfer", "sent", "received", "wire"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(rent|mortgage|landlord)\b`),
			Category: "Housing",
			Priority: 90,
			Keywords: []string{"rent", "mortgage", "lease", "property", "hoa"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(electric|water bill|gas bill|internet|comcast|verizon|at&t)\b`),
			Category: "Utilities",
			Priority: 85,
			Keywords: []string{"electric", "water", "power", "utility", "internet", "phone", "bill"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(netflix|spotify|hulu|disney\+|youtube premium|apple music)`),
			Category: "Subscriptions",
			Priority: 80,
			Keywords: []string{"subscription", "monthly", "membership", "premium", "renewal"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(starbucks|coffee|cafe|restaurant|mcdonald'?s|pizza|burger|doordash|uber eats|grubhub|chipotle)\b`),
			Category: "Food & Dining",
			Priority: 75,
			Keywords: []string{"coffee", "cafe", "restaurant", "dinner", "lunch", "breakfast", "food", "grill", "bistro", "bakery"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(walmart|kroger|safeway|whole foods|trader joe'?s|aldi|lidl|grocery|supermarket)\b`),
			Category: "Groceries",
			Priority: 70,
			Keywords: []string{"grocery", "market", "supermarket", "fresh", "produce", "butcher"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(uber|lyft|shell|chevron|exxon|gas station|parking|metro|transit)\b`),
			Category: "Transportation",
			Priority: 65,
			Keywords: []string{"fuel", "gas", "parking", "taxi", "ride", "toll", "bus", "train"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(airline|airlines|hotel|airbnb|expedia|booking\.com)\b`),
			Category: "Travel",
			Priority: 60,
			Keywords: []string{"flight", "hotel", "travel", "trip", "airport", "resort"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(cinema|movie|theater|theatre|steam|playstation|xbox|ticketmaster)\b`),
			Category: "Entertainment",
			Priority: 55,
			Keywords: []string{"movie", "game", "concert", "ticket", "show", "museum"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(pharmacy|cvs|walgreens|doctor|hospital|clinic|dental)\b`),
			Category: "Healthcare",
			Priority: 50,
			Keywords: []string{"health", "medical", "pharmacy", "clinic", "doctor", "dentist"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(amazon|target|ebay|best buy|ikea|etsy)\b`),
			Category: "Shopping",
			Priority: 45,
			Keywords: []string{"store", "shop", "purchase", "mall", "order", "outlet"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(salon|barber|spa|gym|fitness)\b`),
			Category: "Personal Care",
			Priority: 40,
			Keywords: []string{"salon", "hair", "beauty", "nails", "massage"},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(tuition|university|college|coursera|udemy)\b`),
			Category: "Education",
			Priority: 35,
			Keywords: []string{"course", "class", "school", "tuition", "textbook"},
		},
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules
}
