// Package decision implements the evidence-driven arbitration between the
// deterministic rule classification and the model classification.
//
// The engine is a strict-order cascade: a fallback guard followed by five
// prioritised rules (P1–P5). The first rule whose predicate holds resolves
// the cycle. The cascade is expressed as an ordered list of
// (predicate, resolver) pairs so each arm can be unit-tested in isolation,
// and it is re-evaluated fresh on every call — no state survives between
// decisions.
package decision

import (
	"github.com/mentora-bot/mentora/internal/mentora/classify"
	"github.com/mentora-bot/mentora/internal/mentora/nlp"
)

// Source identifies which classifier a decision was resolved from.
type Source string

const (
	// SourceRule means the deterministic pattern classification won.
	SourceRule Source = "rule"
	// SourceModel means the external model classification won.
	SourceModel Source = "model"
	// SourceFallback means neither signal met its threshold.
	SourceFallback Source = "fallback"
)

// RuleID names the cascade arm that resolved a cycle.
type RuleID string

const (
	P1       RuleID = "P1"
	P2       RuleID = "P2"
	P3       RuleID = "P3"
	P4       RuleID = "P4"
	P5       RuleID = "P5"
	Fallback RuleID = "FALLBACK"
)

// Confidence thresholds governing the cascade.
const (
	// fallbackModelFloor and fallbackRuleFloor gate the whole cascade:
	// when both signals are below their floor, the cycle short-circuits to
	// FALLBACK before P1 is even considered.
	fallbackModelFloor = 0.6
	fallbackRuleFloor  = 0.5

	// p3ModelBar is the model confidence that wins outright.
	p3ModelBar = 0.85
	// p3ReasonedBar is the lower bar accepted when the model shows a
	// reasoning chain of at least p3MinReasoningSteps steps.
	p3ReasonedBar       = 0.8
	p3MinReasoningSteps = 3

	// p4RuleBar is the rule confidence required for the rule to win, and
	// p4ModelCeiling the model confidence it must stay under.
	p4RuleBar      = 0.9
	p4ModelCeiling = 0.7
)

// Input carries the three signals one cascade evaluation consumes.
type Input struct {
	// Rule is the pattern-classifier result (possibly unknown/0).
	Rule classify.Result

	// Model is the external classification, or nil when the model was not
	// invoked or failed. A nil model reads as confidence 0 everywhere.
	Model *nlp.ClassifyResponse

	// Evidence is the profile extracted from the utterance.
	Evidence classify.EvidenceProfile
}

// modelConfidence reads the model confidence, treating absence as 0.
func (in Input) modelConfidence() float64 {
	if in.Model == nil {
		return 0
	}
	return in.Model.Confidence
}

// Decision is the terminal output of one resolution cycle. It is never
// persisted itself; only its side effects (memory updates) persist.
type Decision struct {
	// FinalIntent is the resolved intent, or "unknown".
	FinalIntent string `json:"final_intent"`

	// Source names the winning classifier.
	Source Source `json:"source"`

	// RuleID is the cascade arm that resolved the cycle.
	RuleID RuleID `json:"rule_id"`

	// Confidence is the winning signal's confidence.
	Confidence float64 `json:"confidence"`

	// Entities are the winning signal's extracted entities.
	Entities map[string]string `json:"entities,omitempty"`

	// Reason is a human-readable account of why this arm fired.
	Reason string `json:"reason"`

	// Suggestion is a user-facing clarification prompt, set only on
	// fallback decisions.
	Suggestion string `json:"suggestion,omitempty"`
}
