// Package classify implements the deterministic half of intent resolution:
// the rule-table pattern classifier and the evidence extractor. Both are pure
// functions of the input text — identical input always produces identical
// output, and neither performs I/O.
package classify

// Entity keys shared across the classifiers, the memory tiers, and the
// decision engine.
const (
	EntityCourse   = "course"
	EntityStudent  = "student"
	EntityTeacher  = "teacher"
	EntityTime     = "time"
	EntityLocation = "location"
)

// Result is a single classification produced by the pattern classifier or by
// the external model. A Result is never mutated after creation — enrichment
// happens by constructing a new value (see WithEntities).
type Result struct {
	// Intent is the classified category, or "unknown".
	Intent string

	// Confidence is the classifier-reported certainty in [0,1].
	Confidence float64

	// Entities are the named values extracted from the text.
	Entities map[string]string

	// RuleID is the id of the winning rule. Empty for model results.
	RuleID string

	// Mutating is true when the winning rule's intent adds or records
	// durable facts. Meaningful only for rule results.
	Mutating bool

	// TemporalBlind is true when the winning rule cannot account for
	// temporal references. Meaningful only for rule results.
	TemporalBlind bool
}

// Unknown is the zero-signal result returned when no rule scores.
func Unknown() Result {
	return Result{Intent: "unknown", Confidence: 0}
}

// WithEntities returns a copy of r with the given entities merged in.
// Existing entities win on key collision; r itself is left untouched.
func (r Result) WithEntities(extra map[string]string) Result {
	if len(extra) == 0 {
		return r
	}
	merged := make(map[string]string, len(r.Entities)+len(extra))
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range r.Entities {
		merged[k] = v
	}
	out := r
	out.Entities = merged
	return out
}

// Entity returns the named entity value, or "" when absent.
func (r Result) Entity(key string) string {
	return r.Entities[key]
}
