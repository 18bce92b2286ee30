package categorization

import (
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// keywordIndex scores a description against every rule's keywords in a single pass.
// Keywords shared by several rules are stored once and credit each owner.
type keywordIndex struct {
	matcher *ahocorasick.Matcher
	owners  [][]int // dictionary index -> rule indexes
	rules   int

	// Matcher.Match mutates per-call state, so matches are serialized.
	mu sync.Mutex
}

func newKeywordIndex(rules []Rule) *keywordIndex {
	idx := &keywordIndex{rules: len(rules)}

	position := make(map[string]int)
	var dictionary []string
	for ri, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			p, ok := position[kw]
			if !ok {
				p = len(dictionary)
				position[kw] = p
				dictionary = append(dictionary, kw)
				idx.owners = append(idx.owners, nil)
			}
			idx.owners[p] = append(idx.owners[p], ri)
		}
	}

	if len(dictionary) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(dictionary)
	}
	return idx
}

// scores returns one point per distinct keyword found in normalized, per rule index.
func (k *keywordIndex) scores(normalized string) []int {
	scores := make([]int, k.rules)
	if k.matcher == nil || normalized == "" {
		return scores
	}

	k.mu.Lock()
	hits := k.matcher.Match([]byte(normalized))
	k.mu.Unlock()

	for _, hit := range hits {
		for _, ri := range k.owners[hit] {
			scores[ri]++
		}
	}
	return scores
}
