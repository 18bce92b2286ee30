// Package categorization assigns a category to transaction descriptions.
// Resolution runs learned user corrections first, then the priority-ordered
// rule patterns, then a keyword-score fallback.
package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Method identifies which tier produced a classification.
type Method string

const (
	MethodCorrection Method = "correction"
	MethodRule       Method = "rule"
	MethodFallback   Method = "fallback"
)

// FallbackThreshold is the minimum keyword-score confidence that keeps the winning category.
const FallbackThreshold = 0.5

var (
	ErrInvalidCategory  = errors.New("invalid category")
	ErrEmptyDescription = errors.New("description is required")
)

// Classification is the category assigned to one description
type Classification struct {
	Category   string
	Confidence float64
	Method     Method
}

// CorrectionsKey returns the key prefix under which an owner's corrections are
// stored. Each correction is its own key: the prefix followed by the normalized
// description, with the category as the value.
func CorrectionsKey(ownerID uuid.UUID) string {
	return "corrections:" + ownerID.String() + ":"
}

// Classifier resolves categories and owns the correction map for one owner.
// It is safe for concurrent use.
type Classifier struct {
	rules    []Rule
	keywords *keywordIndex
	store    KeyValueStore
	prefix   string
	logger   *slog.Logger

	mu          sync.RWMutex
	corrections map[string]string
	patterns    []string // correction keys, longest first
}

// NewClassifier creates a classifier with the default rules and loads the
// corrections stored under prefix.
func NewClassifier(ctx context.Context, store KeyValueStore, prefix string, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rules := DefaultRules()
	c := &Classifier{
		rules:       rules,
		keywords:    newKeywordIndex(rules),
		store:       store,
		prefix:      prefix,
		logger:      logger,
		corrections: make(map[string]string),
	}

	if err := c.ReloadCorrections(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// normalize trims and lower-cases a description.
func normalize(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}

// Classify returns the category for a single description.
func (c *Classifier) Classify(description string) Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classifyLocked(normalize(description))
}

// ClassifyBatch classifies descriptions in order against one snapshot of the corrections.
func (c *Classifier) ClassifyBatch(descriptions []string) []Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]Classification, len(descriptions))
	for i, d := range descriptions {
		results[i] = c.classifyLocked(normalize(d))
	}
	return results
}

func (c *Classifier) classifyLocked(normalized string) Classification {
	if category, ok := c.lookupCorrection(normalized); ok {
		return Classification{Category: category, Confidence: 1.0, Method: MethodCorrection}
	}

	for _, rule := range c.rules {
		if rule.Pattern.MatchString(normalized) {
			return Classification{Category: rule.Category, Confidence: 1.0, Method: MethodRule}
		}
	}

	return c.keywordFallback(normalized)
}

// lookupCorrection tries an exact match, then a substring match in either direction.
func (c *Classifier) lookupCorrection(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	if category, ok := c.corrections[normalized]; ok {
		return category, true
	}
	for _, pattern := range c.patterns {
		if strings.Contains(normalized, pattern) || strings.Contains(pattern, normalized) {
			return c.corrections[pattern], true
		}
	}
	return "", false
}

// keywordFallback scores every rule by keyword hits. Ties go to the higher-priority rule.
func (c *Classifier) keywordFallback(normalized string) Classification {
	scores := c.keywords.scores(normalized)

	best, bestScore, total := -1, 0, 0
	for i, s := range scores {
		total += s
		if s > bestScore {
			best, bestScore = i, s
		}
	}

	confidence := float64(bestScore) / float64(total+1)
	if best < 0 || confidence < FallbackThreshold {
		return Classification{Category: CategoryOther, Confidence: confidence, Method: MethodFallback}
	}
	return Classification{Category: c.rules[best].Category, Confidence: confidence, Method: MethodFallback}
}

// RecordCorrection stores category for the normalized description. Only that key is
// written, so the same normalized key is overwritten (last write wins) and other
// keys are untouched.
func (c *Classifier) RecordCorrection(ctx context.Context, description, category string) error {
	if !IsValidCategory(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	key := normalize(description)
	if key == "" {
		return ErrEmptyDescription
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(ctx, c.prefix+key, category); err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}

	next := make(map[string]string, len(c.corrections)+1)
	for k, v := range c.corrections {
		next[k] = v
	}
	next[key] = category
	c.setCorrections(next)

	c.logger.Debug("correction recorded",
		slog.String("pattern", key),
		slog.String("category", category),
	)
	return nil
}

// Corrections returns a copy of the correction map.
func (c *Classifier) Corrections() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.corrections))
	for k, v := range c.corrections {
		out[k] = v
	}
	return out
}

// Rules returns the rule set in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// ReloadCorrections replaces the in-memory correction map with the stored one.
// Entries with a blank key or an unknown category are dropped.
func (c *Classifier) ReloadCorrections(ctx context.Context) error {
	stored, err := c.store.List(ctx, c.prefix)
	if err != nil {
		return fmt.Errorf("failed to load corrections: %w", err)
	}

	loaded := make(map[string]string, len(stored))
	for k, v := range stored {
		k = normalize(strings.TrimPrefix(k, c.prefix))
		if k == "" || !IsValidCategory(v) {
			continue
		}
		loaded[k] = v
	}

	c.mu.Lock()
	c.setCorrections(loaded)
	c.mu.Unlock()
	return nil
}

// SuggestCategories ranks valid categories by fuzzy match against query.
// A blank query returns every category.
func (c *Classifier) SuggestCategories(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]string, len(ValidCategories))
		copy(out, ValidCategories)
		return out
	}

	ranks := fuzzy.RankFindNormalizedFold(query, ValidCategories)
	sort.Stable(ranks)

	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Target
	}
	return out
}

// setCorrections swaps the map and rebuilds the substring search order. Caller holds mu.
func (c *Classifier) setCorrections(corrections map[string]string) {
	patterns := make([]string, 0, len(corrections))
	for k := range corrections {
		patterns = append(patterns, k)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	c.corrections = corrections
	c.patterns = patterns
}
