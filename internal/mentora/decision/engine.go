package decision

import "fmt"

// cascadeRule is one arm of the cascade: a predicate deciding whether the
// arm applies, and a resolver producing the terminal Decision when it does.
type cascadeRule struct {
	id      RuleID
	when    func(in Input) bool
	resolve func(in Input) Decision
}

// Engine evaluates the fallback guard and the P1–P5 cascade. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cascade []cascadeRule
}

// NewEngine builds the cascade in its fixed priority order.
func NewEngine() *Engine {
	return &Engine{cascade: []cascadeRule{
		// P1 — mutating intents must not be inferred from question-like
		// input; when the utterance reads tentative or interrogative and
		// the rule proposes an add/record action, the model decides.
		{
			id: P1,
			when: func(in Input) bool {
				return in.Evidence.HasMoodOrQuestion() && in.Rule.Mutating
			},
			resolve: func(in Input) Decision {
				return preferModel(in, P1, fmt.Sprintf(
					"utterance is question-like (%d markers) but rule %s proposes mutating intent %q; deferring to model",
					len(in.Evidence.MoodMarkers)+len(in.Evidence.QuestionMarkers),
					in.Rule.RuleID, in.Rule.Intent))
			},
		},

		// P2 — temporal references beat temporal-blind rules.
		{
			id: P2,
			when: func(in Input) bool {
				return in.Evidence.HasTemporal() && in.Rule.TemporalBlind
			},
			resolve: func(in Input) Decision {
				return preferModel(in, P2, fmt.Sprintf(
					"temporal clues %v present but rule %s is temporal-blind; deferring to model",
					in.Evidence.TemporalClues, in.Rule.RuleID))
			},
		},

		// P3 — a sufficiently confident model wins outright; a reasoned
		// chain of ≥3 steps lowers the bar.
		{
			id: P3,
			when: func(in Input) bool {
				if in.modelConfidence() > p3ModelBar {
					return true
				}
				return in.Model != nil &&
					len(in.Model.Reasoning) >= p3MinReasoningSteps &&
					in.Model.Confidence > p3ReasonedBar
			},
			resolve: func(in Input) Decision {
				reason := fmt.Sprintf("model confidence %.2f exceeds %.2f", in.modelConfidence(), p3ModelBar)
				if in.modelConfidence() <= p3ModelBar {
					reason = fmt.Sprintf("model reasoned through %d steps with confidence %.2f (> %.2f)",
						len(in.Model.Reasoning), in.Model.Confidence, p3ReasonedBar)
				}
				return preferModel(in, P3, reason)
			},
		},

		// P4 — an unambiguous, high-confidence rule beats a lukewarm model.
		{
			id: P4,
			when: func(in Input) bool {
				return in.Rule.Confidence > p4RuleBar &&
					!in.Evidence.HasAmbiguity() &&
					in.modelConfidence() < p4ModelCeiling
			},
			resolve: func(in Input) Decision {
				return Decision{
					FinalIntent: in.Rule.Intent,
					Source:      SourceRule,
					RuleID:      P4,
					Confidence:  in.Rule.Confidence,
					Entities:    in.Rule.Entities,
					Reason: fmt.Sprintf(
						"rule %s confidence %.2f > %.2f with no ambiguous terms; model at %.2f",
						in.Rule.RuleID, in.Rule.Confidence, p4RuleBar, in.modelConfidence()),
				}
			},
		},

		// P5 — default: model if available, else rule, else unknown.
		// Always succeeds.
		{
			id:   P5,
			when: func(in Input) bool { return true },
			resolve: func(in Input) Decision {
				switch {
				case in.Model != nil && in.Model.Intent != "" && in.Model.Intent != "unknown":
					return preferModel(in, P5, fmt.Sprintf(
						"default arm: model result available at confidence %.2f", in.Model.Confidence))
				case in.Rule.Intent != "" && in.Rule.Intent != "unknown":
					return Decision{
						FinalIntent: in.Rule.Intent,
						Source:      SourceRule,
						RuleID:      P5,
						Confidence:  in.Rule.Confidence,
						Entities:    in.Rule.Entities,
						Reason:      "default arm: no usable model result, rule result available",
					}
				default:
					return Decision{
						FinalIntent: "unknown",
						Source:      SourceFallback,
						RuleID:      P5,
						Reason:      "default arm: neither classifier produced a usable intent",
						Suggestion:  clarificationPrompt,
					}
				}
			},
		},
	}}
}

// clarificationPrompt is the user-facing suggestion attached to decisions
// that cannot name an intent.
const clarificationPrompt = "I didn't quite catch that. Try something like " +
	"\"add a math class for Emma on Friday 3pm\" or \"what's the schedule tomorrow?\""

// Decide runs the fallback guard and the cascade against in and returns the
// terminal Decision. Evaluation is deterministic and stateless: the same
// input always resolves through the same arm.
func (e *Engine) Decide(in Input) Decision {
	// Fallback guard — checked before P1. When both signals are weak the
	// cycle surfaces a clarification instead of a coin-flip classification.
	if in.modelConfidence() < fallbackModelFloor && in.Rule.Confidence < fallbackRuleFloor {
		return Decision{
			FinalIntent: "unknown",
			Source:      SourceFallback,
			RuleID:      Fallback,
			Reason: fmt.Sprintf(
				"model confidence %.2f < %.2f and rule confidence %.2f < %.2f",
				in.modelConfidence(), fallbackModelFloor, in.Rule.Confidence, fallbackRuleFloor),
			Suggestion: clarificationPrompt,
		}
	}

	for _, arm := range e.cascade {
		if arm.when(in) {
			return arm.resolve(in)
		}
	}

	// Unreachable: P5 always matches. Kept so the compiler sees a return.
	return Decision{FinalIntent: "unknown", Source: SourceFallback, RuleID: P5}
}

// preferModel builds a model-sourced decision for the given arm, degrading
// to the rule result when the model is absent (e.g. P1 firing on a cycle
// where the model call failed).
func preferModel(in Input, id RuleID, reason string) Decision {
	if in.Model == nil || in.Model.Intent == "" {
		return Decision{
			FinalIntent: in.Rule.Intent,
			Source:      SourceRule,
			RuleID:      id,
			Confidence:  in.Rule.Confidence,
			Entities:    in.Rule.Entities,
			Reason:      reason + " (model unavailable, using rule result)",
		}
	}
	return Decision{
		FinalIntent: in.Model.Intent,
		Source:      SourceModel,
		RuleID:      id,
		Confidence:  in.Model.Confidence,
		Entities:    in.Model.Entities,
		Reason:      reason,
	}
}
