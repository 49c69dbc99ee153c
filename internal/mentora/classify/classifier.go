package classify

import (
	"strings"
	"sync/atomic"

	"github.com/mentora-bot/mentora/internal/mentora/rules"
)

// Confidence scoring constants for the pattern classifier.
//
// A matched rule starts at baseConfidence and gains perKeywordBonus for each
// keyword hit, capped at maxConfidence. Two keyword hits therefore reach the
// cap — keyword lists are written so an unambiguous utterance (verb + object)
// hits at least twice.
const (
	baseConfidence  = 0.35
	perKeywordBonus = 0.30
	maxConfidence   = 0.95
)

// PatternClassifier matches normalized text against the rule table and
// returns the best-scoring rule as a Result.
//
// The classifier is safe for concurrent use; the table may be swapped at
// runtime (hot reload) via SetTable without blocking readers.
type PatternClassifier struct {
	table atomic.Pointer[rules.Table]
}

// NewPatternClassifier returns a classifier over the given table.
func NewPatternClassifier(table *rules.Table) *PatternClassifier {
	c := &PatternClassifier{}
	c.table.Store(table)
	return c
}

// SetTable atomically replaces the rule table. In-flight classifications
// finish against the table they started with.
func (c *PatternClassifier) SetTable(table *rules.Table) {
	c.table.Store(table)
}

// Table returns the currently active rule table.
func (c *PatternClassifier) Table() *rules.Table {
	return c.table.Load()
}

// Classify scores every rule against text and returns the winner by
// (priority, confidence) lexicographic order. When no rule scores above
// zero, the unknown/0 result is returned.
//
// Classify is pure and idempotent: no state is read besides the rule table,
// and nothing is written.
func (c *PatternClassifier) Classify(text string) Result {
	normalized := Normalize(text)
	if normalized == "" {
		return Unknown()
	}

	var (
		best     Result
		bestRule *rules.Rule
		bestPrio int
	)

	table := c.table.Load()
	for i := range table.Rules() {
		rule := &table.Rules()[i]
		conf := scoreRule(rule, normalized)
		if conf <= 0 {
			continue
		}
		if bestRule == nil || rule.Priority > bestPrio ||
			(rule.Priority == bestPrio && conf > best.Confidence) {
			best = Result{
				Intent:        rule.Intent,
				Confidence:    conf,
				RuleID:        rule.ID,
				Mutating:      rule.Mutating,
				TemporalBlind: rule.TemporalBlind,
			}
			bestRule = rule
			bestPrio = rule.Priority
		}
	}

	if bestRule == nil {
		return Unknown()
	}

	return best.WithEntities(extractEntities(text, normalized))
}

// scoreRule computes the bounded confidence of a single rule against
// normalized text. Returns 0 when the rule is rejected or nothing matches.
func scoreRule(rule *rules.Rule, normalized string) float64 {
	for _, term := range rule.Exclusions {
		if strings.Contains(normalized, strings.ToLower(term)) {
			return 0
		}
	}

	if len(rule.RequiredKeywords) > 0 {
		found := false
		for _, term := range rule.RequiredKeywords {
			if strings.Contains(normalized, strings.ToLower(term)) {
				found = true
				break
			}
		}
		if !found {
			return 0
		}
	}

	hits := 0
	for _, kw := range rule.Keywords {
		if strings.Contains(normalized, strings.ToLower(kw)) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	conf := baseConfidence + perKeywordBonus*float64(hits)
	if conf > maxConfidence {
		conf = maxConfidence
	}
	return conf
}

// Normalize lower-cases and whitespace-collapses an utterance for matching.
// Entity extraction receives the original text, since proper nouns need case.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
