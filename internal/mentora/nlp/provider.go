// Package nlp provides the external natural-language classification layer
// for Mentora.
//
// The NLP layer is a collaborator, not a decision maker: it supplies a
// model-based (intent, entities, confidence) guess which the decision engine
// weighs against the deterministic rule classification. Its failures are
// absorbed locally — a provider error is treated as confidence 0 by callers
// and never propagates out of the resolver.
package nlp

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by a Provider when the upstream model API reports
// a rate-limiting condition (e.g. HTTP 429 Too Many Requests). Callers fall
// back to the rule-only path.
var ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")

// ErrMalformedOutput is returned by a Provider when the model returns a
// structurally valid HTTP response whose body cannot be interpreted as a
// ClassifyResponse (JSON parse failure, unexpected schema). Callers treat
// this the same as any other provider failure: confidence 0.
var ErrMalformedOutput = errors.New("nlp: malformed response from model")

// ClassifyRequest is the input to a single model classification call.
type ClassifyRequest struct {
	// Text is the raw utterance sent by the user.
	Text string

	// UserID identifies the sender; present for traceability only. The
	// system prompt instructs the model to ignore it.
	UserID string

	// MemoryHint is a compact textual summary of the user's long-term
	// memory (known students, recurring courses), injected as context so
	// the model can resolve elliptical references.
	MemoryHint string

	// KnownIntents is the closed set of intents the model may produce.
	// Anything outside this set is rejected by the caller.
	KnownIntents []string
}

// ClassifyResponse is the structured output of a model classification call.
// It is never mutated after creation.
type ClassifyResponse struct {
	// Intent is the model's classification, or "unknown".
	Intent string `json:"intent"`

	// Confidence is the model-reported certainty in [0,1]. Values outside
	// the range are clamped by the provider.
	Confidence float64 `json:"confidence"`

	// Entities are the named values the model extracted from the text.
	Entities map[string]string `json:"entities,omitempty"`

	// Reasoning is the model's optional step-by-step justification. A chain
	// of three or more steps marks the classification as deliberate rather
	// than pattern-completed, which the decision engine rewards with a
	// lower confidence bar.
	Reasoning []string `json:"reasoning,omitempty"`
}

// Provider classifies free-form utterances using an external model.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// When the upstream is unavailable, implementations return a descriptive
// error; callers degrade to the rule-only classification.
type Provider interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
}
