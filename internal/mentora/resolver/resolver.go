// Package resolver orchestrates one resolution cycle per incoming utterance:
// query bypass, memory load, classification, decision cascade, and memory
// write-back. The resolver never returns an error to its caller; the worst
// case output is a well-formed fallback decision.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mentora-bot/mentora/common/trace"
	"github.com/mentora-bot/mentora/internal/mentora/classify"
	"github.com/mentora-bot/mentora/internal/mentora/decision"
	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/nlp"
	"github.com/mentora-bot/mentora/internal/mentora/observability"
	"github.com/mentora-bot/mentora/internal/mentora/query"
)

// completionBar is the rule confidence above which the resolver attempts
// memory-assisted entity completion and, when successful, skips the
// external classifier entirely.
const completionBar = 0.8

// Config tunes the orchestration pipeline.
type Config struct {
	// ClassifyTimeout bounds the external classifier call. On expiry the
	// cycle continues with the rule-only signal.
	ClassifyTimeout time.Duration

	// ContextTriggers are the intents that refresh short-term context.
	ContextTriggers []string

	// DurableIntents are the intents written through to long-term memory.
	DurableIntents []string
}

// Options collects the resolver's collaborators.
type Options struct {
	Patterns *classify.PatternClassifier
	Engine   *decision.Engine
	Provider nlp.Provider // nil disables the external classifier
	Limiter  *nlp.RateLimiter
	Contexts *memory.ContextStore
	Memories *memory.Manager
	Queries  *query.Router // nil disables the bypass path
	Config   Config
}

// Outcome is the result of one resolution cycle: either a bypassed query
// result or a decision from the cascade, never both.
type Outcome struct {
	TraceID  string             `json:"trace_id"`
	Bypassed bool               `json:"bypassed"`
	Query    *query.Result      `json:"query,omitempty"`
	Decision *decision.Decision `json:"decision,omitempty"`
}

// Resolver sequences the resolution pipeline. Safe for concurrent use;
// cycles for different users never block each other.
type Resolver struct {
	patterns *classify.PatternClassifier
	engine   *decision.Engine
	provider nlp.Provider
	limiter  *nlp.RateLimiter
	contexts *memory.ContextStore
	memories *memory.Manager
	queries  *query.Router

	timeout  time.Duration
	triggers map[string]bool
	durable  map[string]bool
	now      func() time.Time
}

// New creates a resolver from its collaborators.
func New(opts Options) *Resolver {
	timeout := opts.Config.ClassifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		patterns: opts.Patterns,
		engine:   opts.Engine,
		provider: opts.Provider,
		limiter:  opts.Limiter,
		contexts: opts.Contexts,
		memories: opts.Memories,
		queries:  opts.Queries,
		timeout:  timeout,
		triggers: toSet(opts.Config.ContextTriggers),
		durable:  toSet(opts.Config.DurableIntents),
		now:      time.Now,
	}
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

// Resolve runs one full resolution cycle for the given user utterance.
func (r *Resolver) Resolve(ctx context.Context, userID, text string) *Outcome {
	traceID := trace.NewID()
	ctx = trace.WithID(ctx, traceID)
	log := observability.WithTrace(ctx)

	// 1. Explicit read-only queries skip the classifiers entirely.
	if r.queries != nil {
		if qtype, ok := query.DetectQueryType(text); ok {
			res, err := r.queries.Execute(ctx, qtype, userID, text)
			if err == nil {
				log.Info("query bypass", "user_id", userID, "query_type", qtype)
				r.memories.RecordQueryActivity(ctx, userID, memory.Activity{
					Intent: "query:" + string(qtype),
					At:     r.now(),
				})
				return &Outcome{TraceID: traceID, Bypassed: true, Query: res}
			}
			log.Warn("query bypass failed, running full pipeline",
				"user_id", userID, "query_type", qtype, "error", err)
		}
	}

	// 2. Load short-term context and cached long-term memory. Both reads
	// degrade to empty rather than failing.
	sctx := r.contexts.Get(userID)
	mem := r.memories.GetUserMemory(ctx, userID)

	// 3. Deterministic signals.
	ruleRes := r.patterns.Classify(text)
	evidence := classify.ExtractEvidence(text)

	// 4. Memory-assisted completion. When the rule signal is strong and the
	// utterance is elliptical, fill missing salient entities from recent
	// context, then from long-term memory when exactly one candidate
	// exists. A completed result makes the external call unnecessary.
	skipModel := false
	if ruleRes.Confidence >= completionBar {
		ruleRes = r.completeEntities(ruleRes, sctx, mem)
		if ruleRes.Entity(classify.EntityCourse) != "" {
			skipModel = true
			log.Debug("entities complete, skipping external classifier",
				"user_id", userID, "intent", ruleRes.Intent)
		}
	}

	// 5. External classifier, bounded by ClassifyTimeout. Any failure reads
	// as confidence 0 and the cascade continues on the rule signal alone.
	var model *nlp.ClassifyResponse
	if r.provider != nil && !skipModel {
		model = r.classifyExternal(ctx, userID, text, mem, log)
	}

	// 6. Decision cascade.
	dec := r.engine.Decide(decision.Input{
		Rule:     ruleRes,
		Model:    model,
		Evidence: evidence,
	})
	log.Info("decision",
		"user_id", userID,
		"intent", dec.FinalIntent,
		"source", dec.Source,
		"rule_id", dec.RuleID,
		"confidence", dec.Confidence,
	)

	// 7. Write-back. Failures here are logged, never surfaced.
	r.writeBack(ctx, userID, dec, log)

	return &Outcome{TraceID: traceID, Decision: &dec}
}

// completeEntities fills missing course/student slots, preferring the
// short-term context over long-term memory. Long-term values are only used
// when unambiguous.
func (r *Resolver) completeEntities(res classify.Result, sctx *memory.ShortTermContext, mem *memory.UserMemory) classify.Result {
	extra := make(map[string]string)

	if sctx != nil {
		for _, key := range []string{classify.EntityCourse, classify.EntityStudent, classify.EntityTeacher} {
			if res.Entity(key) == "" && sctx.LastEntities[key] != "" {
				extra[key] = sctx.LastEntities[key]
			}
		}
	}

	student := res.Entity(classify.EntityStudent)
	if student == "" {
		student = extra[classify.EntityStudent]
	}
	if student == "" {
		if name, ok := mem.UniqueStudent(); ok {
			extra[classify.EntityStudent] = name
			student = name
		}
	}

	if res.Entity(classify.EntityCourse) == "" && extra[classify.EntityCourse] == "" {
		if rec, ok := mem.UniqueCourseFor(student); ok {
			extra[classify.EntityCourse] = rec.Course
			if rec.Teacher != "" && res.Entity(classify.EntityTeacher) == "" {
				extra[classify.EntityTeacher] = rec.Teacher
			}
		}
	}

	if len(extra) == 0 {
		return res
	}
	return res.WithEntities(extra)
}

// classifyExternal calls the model provider with a memory summary hint.
// Returns nil on rate limit, timeout, or provider failure.
func (r *Resolver) classifyExternal(ctx context.Context, userID, text string, mem *memory.UserMemory, log *slog.Logger) *nlp.ClassifyResponse {
	if r.limiter != nil && !r.limiter.Allow(userID) {
		log.Warn("classifier rate limit reached, using rule signal only", "user_id", userID)
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.provider.Classify(cctx, nlp.ClassifyRequest{
		Text:         text,
		UserID:       userID,
		MemoryHint:   memory.Summarize(mem),
		KnownIntents: r.knownIntents(),
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("external classifier timed out", "user_id", userID, "timeout", r.timeout)
		case errors.Is(err, nlp.ErrRateLimit):
			log.Warn("external classifier rate limited upstream", "user_id", userID)
		default:
			log.Warn("external classifier failed", "user_id", userID, "error", err)
		}
		return nil
	}
	return resp
}

func (r *Resolver) knownIntents() []string {
	table := r.patterns.Table()
	if table == nil {
		return nil
	}
	seen := make(map[string]bool)
	var intents []string
	for _, rule := range table.Rules() {
		if !seen[rule.Intent] {
			seen[rule.Intent] = true
			intents = append(intents, rule.Intent)
		}
	}
	return intents
}

// writeBack updates the short-term context and, for durable intents, the
// long-term memory store.
func (r *Resolver) writeBack(ctx context.Context, userID string, dec decision.Decision, log *slog.Logger) {
	if r.triggers[dec.FinalIntent] && hasSalientEntity(dec.Entities) {
		r.contexts.Update(userID, dec.FinalIntent, dec.Entities)
	}

	if !r.durable[dec.FinalIntent] {
		return
	}

	rec := memory.MemoryRecord{
		Student:  dec.Entities[classify.EntityStudent],
		Course:   dec.Entities[classify.EntityCourse],
		Schedule: dec.Entities[classify.EntityTime],
		Teacher:  dec.Entities[classify.EntityTeacher],
		Location: dec.Entities[classify.EntityLocation],
	}
	if dec.FinalIntent == "set_recurring" {
		rec.Recurring = true
	}
	if rec.Course == "" {
		log.Debug("durable intent without a course entity, skipping memory write",
			"user_id", userID, "intent", dec.FinalIntent)
		return
	}
	if rec.Student == "" {
		rec.Student = "self"
	}

	if err := r.memories.UpdateUserMemory(ctx, userID, rec); err != nil {
		log.Warn("memory write-back failed",
			"user_id", userID, "intent", dec.FinalIntent, "error", err)
	}
}

// hasSalientEntity reports whether entities carry at least one identifier
// worth remembering. Pure queries with no entity never overwrite context.
func hasSalientEntity(entities map[string]string) bool {
	return entities[classify.EntityCourse] != "" ||
		entities[classify.EntityStudent] != "" ||
		entities[classify.EntityTeacher] != ""
}
