// Package rules defines the pattern-classifier rule table: a typed list of
// keyword rules loaded once at startup, optionally hot-reloaded when the
// rules file changes on disk.
//
// A rule matches when at least one of its keywords occurs in the utterance,
// none of its exclusion terms occur, and (when required keywords are listed)
// at least one required keyword occurs. Rule selection and scoring live in
// the classify package; this package only owns loading and validation.
package rules

import (
	"fmt"
	"strings"
)

// Rule is a single entry in the pattern-classifier rule table.
type Rule struct {
	// ID uniquely identifies the rule, e.g. "cancel-course".
	ID string `yaml:"id" json:"id"`

	// Intent is the classification produced when this rule wins.
	Intent string `yaml:"intent" json:"intent"`

	// Priority orders rules when several score; higher wins. Ties fall back
	// to confidence.
	Priority int `yaml:"priority" json:"priority"`

	// Keywords are the terms that score this rule. Matching is case-folded
	// substring containment; multi-word keywords are allowed.
	Keywords []string `yaml:"keywords" json:"keywords"`

	// RequiredKeywords gates the rule: when non-empty, at least one must be
	// present or the rule is rejected outright.
	RequiredKeywords []string `yaml:"required_keywords,omitempty" json:"required_keywords,omitempty"`

	// Exclusions reject the rule when any of them is present.
	Exclusions []string `yaml:"exclusions,omitempty" json:"exclusions,omitempty"`

	// Mutating marks intents that add or record durable facts. The decision
	// engine refuses to infer these from ambiguous question-like input.
	Mutating bool `yaml:"mutating,omitempty" json:"mutating,omitempty"`

	// TemporalBlind marks rules that cannot account for temporal references
	// in the utterance; the decision engine defers to the model when
	// temporal evidence is present.
	TemporalBlind bool `yaml:"temporal_blind,omitempty" json:"temporal_blind,omitempty"`
}

// Table is an immutable, validated rule table. Construct via Parse, LoadFile,
// or Default; never mutate a Table after it has been shared.
type Table struct {
	rules []Rule
	byID  map[string]*Rule
}

// Rules returns the rules in file order. Callers must not mutate the slice.
func (t *Table) Rules() []Rule {
	return t.rules
}

// ByID returns the rule with the given ID, or nil.
func (t *Table) ByID(id string) *Rule {
	return t.byID[id]
}

// Len returns the number of rules in the table.
func (t *Table) Len() int {
	return len(t.rules)
}

// newTable builds the lookup index and applies semantic validation that the
// JSON Schema cannot express (duplicate IDs, blank terms).
func newTable(rs []Rule) (*Table, error) {
	byID := make(map[string]*Rule, len(rs))
	for i := range rs {
		r := &rs[i]
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("rules[%d]: id must not be empty", i)
		}
		if strings.TrimSpace(r.Intent) == "" {
			return nil, fmt.Errorf("rules[%d] (%q): intent must not be empty", i, r.ID)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("rules[%d]: duplicate rule id %q", i, r.ID)
		}
		for j, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("rules[%d] (%q): keywords[%d] must not be blank", i, r.ID, j)
			}
		}
		byID[r.ID] = r
	}
	return &Table{rules: rs, byID: byID}, nil
}
