package categorization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	listErr error
	setErr  error
}

func (s *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (s *failingStore) Set(context.Context, string, string) error {
	return s.setErr
}

func (s *failingStore) List(context.Context, string) (map[string]string, error) {
	return nil, s.listErr
}

func newTestClassifier(t *testing.T) (*Classifier, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	c, err := NewClassifier(context.Background(), store, CorrectionsKey(uuid.New()), nil)
	require.NoError(t, err)
	return c, store
}

func TestClassify_Rules(t *testing.T) {
	c, _ := newTestClassifier(t)

	tests := []struct {
		description string
		category    string
	}{
		{"Coffee at Starbucks", "Food & Dining"},
		{"UBER EATS order 1234", "Food & Dining"}, // outranks Transportation
		{"Uber trip downtown", "Transportation"},
		{"ACME Corp Payroll", "Income"},
		{"Zelle to Jane", "Transfer"},
		{"NETFLIX.COM", "Subscriptions"},
		{"Whole Foods Market #102", "Groceries"},
		{"Amazon Marketplace", "Shopping"},
		{"  CVS Pharmacy  ", "Healthcare"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got := c.Classify(tt.description)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, MethodRule, got.Method)
			assert.Equal(t, 1.0, got.Confidence)
		})
	}
}

func TestClassify_KeywordFallback(t *testing.T) {
	c, _ := newTestClassifier(t)

	t.Run("clear winner", func(t *testing.T) {
		got := c.Classify("Fresh produce stand")
		assert.Equal(t, "Groceries", got.Category)
		assert.Equal(t, MethodFallback, got.Method)
		assert.InDelta(t, 2.0/3.0, got.Confidence, 1e-9)
	})

	t.Run("single keyword reaches threshold", func(t *testing.T) {
		got := c.Classify("Weekly bakery")
		assert.Equal(t, "Food & Dining", got.Category)
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	})

	t.Run("split score falls below threshold", func(t *testing.T) {
		got := c.Classify("lunch ticket")
		assert.Equal(t, CategoryOther, got.Category)
		assert.Equal(t, MethodFallback, got.Method)
		assert.InDelta(t, 1.0/3.0, got.Confidence, 1e-9)
	})

	t.Run("no keywords", func(t *testing.T) {
		got := c.Classify("QWZX 000")
		assert.Equal(t, Classification{Category: CategoryOther, Confidence: 0, Method: MethodFallback}, got)
	})

	t.Run("blank description", func(t *testing.T) {
		got := c.Classify("   ")
		assert.Equal(t, CategoryOther, got.Category)
	})
}

func TestKeywordIndex_TieGoesToHigherPriority(t *testing.T) {
	rules := []Rule{
		{Category: "A", Priority: 10, Keywords: []string{"alpha"}},
		{Category: "B", Priority: 5, Keywords: []string{"beta"}},
	}
	idx := newKeywordIndex(rules)
	assert.Equal(t, []int{1, 1}, idx.scores("alpha beta"))

	shared := newKeywordIndex([]Rule{
		{Category: "A", Keywords: []string{"gas"}},
		{Category: "B", Keywords: []string{"gas", "bill"}},
	})
	assert.Equal(t, []int{1, 2}, shared.scores("gas bill gas"))
}

func TestRecordCorrection(t *testing.T) {
	ctx := context.Background()

	t.Run("substring of description", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "xyz mart", "Shopping"))

		got := c.Classify("XYZ Mart Purchase")
		assert.Equal(t, Classification{Category: "Shopping", Confidence: 1.0, Method: MethodCorrection}, got)
	})

	t.Run("description contained in pattern", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "Corner Deli Downtown", "Food & Dining"))
		assert.Equal(t, MethodCorrection, c.Classify("corner deli").Method)
	})

	t.Run("takes precedence over rules", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "  NETFLIX  ", "Entertainment"))
		got := c.Classify("Netflix")
		assert.Equal(t, "Entertainment", got.Category)
		assert.Equal(t, MethodCorrection, got.Method)
	})

	t.Run("longest pattern wins", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "star", "Entertainment"))
		require.NoError(t, c.RecordCorrection(ctx, "starbucks reserve", "Food & Dining"))
		assert.Equal(t, "Food & Dining", c.Classify("Starbucks Reserve Roastery").Category)
	})

	t.Run("last write wins", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "gym", "Personal Care"))
		require.NoError(t, c.RecordCorrection(ctx, "GYM", "Healthcare"))
		assert.Equal(t, map[string]string{"gym": "Healthcare"}, c.Corrections())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		assert.ErrorIs(t, c.RecordCorrection(ctx, "xyz", "Gadgets"), ErrInvalidCategory)
		assert.ErrorIs(t, c.RecordCorrection(ctx, "xyz", "shopping"), ErrInvalidCategory)
		assert.ErrorIs(t, c.RecordCorrection(ctx, "   ", "Shopping"), ErrEmptyDescription)
		assert.Empty(t, c.Corrections())
	})

	t.Run("persists to the store", func(t *testing.T) {
		c, store := newTestClassifier(t)
		require.NoError(t, c.RecordCorrection(ctx, "xyz mart", "Shopping"))

		value, ok, err := store.Get(ctx, c.prefix+"xyz mart")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Shopping", value)
	})

	t.Run("instances sharing a store keep each other's keys", func(t *testing.T) {
		store := NewMemoryStore()
		prefix := CorrectionsKey(uuid.New())
		a, err := NewClassifier(ctx, store, prefix, nil)
		require.NoError(t, err)
		b, err := NewClassifier(ctx, store, prefix, nil)
		require.NoError(t, err)

		require.NoError(t, a.RecordCorrection(ctx, "alpha shop", "Shopping"))
		require.NoError(t, b.RecordCorrection(ctx, "beta gym", "Personal Care"))

		want := map[string]string{"alpha shop": "Shopping", "beta gym": "Personal Care"}
		require.NoError(t, a.ReloadCorrections(ctx))
		assert.Equal(t, want, a.Corrections())

		fresh, err := NewClassifier(ctx, store, prefix, nil)
		require.NoError(t, err)
		assert.Equal(t, want, fresh.Corrections())
	})

	t.Run("store failure leaves map unchanged", func(t *testing.T) {
		store := &failingStore{setErr: errors.New("disk full")}
		c, err := NewClassifier(ctx, store, "k", nil)
		require.NoError(t, err)

		err = c.RecordCorrection(ctx, "xyz mart", "Shopping")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Empty(t, c.Corrections())
	})

	t.Run("concurrent writes", func(t *testing.T) {
		c, _ := newTestClassifier(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = c.RecordCorrection(ctx, fmt.Sprintf("merchant %d", i), "Shopping")
				_ = c.Classify("merchant")
			}(i)
		}
		wg.Wait()
		assert.Len(t, c.Corrections(), 20)
	})
}

func TestReloadCorrections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for k, v := range map[string]string{
		"k:xyz mart":     "Shopping",
		"k:  Bad Key ":   "Groceries",
		"k:junk":         "Gadgets",
		"k:":             "Other",
		"other:xyz mart": "Travel",
	} {
		require.NoError(t, store.Set(ctx, k, v))
	}

	c, err := NewClassifier(ctx, store, "k:", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"xyz mart": "Shopping", "bad key": "Groceries"}, c.Corrections())

	require.NoError(t, store.Set(ctx, "k:abc", "Travel"))
	require.NoError(t, c.ReloadCorrections(ctx))
	assert.Equal(t, map[string]string{"xyz mart": "Shopping", "bad key": "Groceries", "abc": "Travel"}, c.Corrections())

	failing := &failingStore{}
	c, err = NewClassifier(ctx, failing, "k:", nil)
	require.NoError(t, err)
	require.NoError(t, c.RecordCorrection(ctx, "abc", "Travel"))
	failing.listErr = errors.New("down")
	assert.Error(t, c.ReloadCorrections(ctx))
	assert.Equal(t, map[string]string{"abc": "Travel"}, c.Corrections())

	_, err = NewClassifier(ctx, &failingStore{listErr: errors.New("down")}, "k:", nil)
	assert.Error(t, err)
}

func TestClassifyBatch(t *testing.T) {
	c, _ := newTestClassifier(t)
	got := c.ClassifyBatch([]string{"Coffee at Starbucks", "QWZX", "Rent March"})
	require.Len(t, got, 3)
	assert.Equal(t, "Food & Dining", got[0].Category)
	assert.Equal(t, CategoryOther, got[1].Category)
	assert.Equal(t, "Housing", got[2].Category)
}

func TestRules(t *testing.T) {
	c, _ := newTestClassifier(t)
	rules := c.Rules()
	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
	for _, r := range rules {
		assert.True(t, IsValidCategory(r.Category), r.Category)
	}
}

func TestSuggestCategories(t *testing.T) {
	c, _ := newTestClassifier(t)

	assert.Equal(t, ValidCategories, c.SuggestCategories(""))
	assert.Equal(t, []string{"Food & Dining"}, c.SuggestCategories("food"))

	trans := c.SuggestCategories("TRANS")
	assert.Contains(t, trans, "Transportation")
	assert.Contains(t, trans, "Transfer")

	assert.Empty(t, c.SuggestCategories("qqq"))
}
