package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mentora-bot/mentora/internal/mentora/classify"
	"github.com/mentora-bot/mentora/internal/mentora/decision"
	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/nlp"
	"github.com/mentora-bot/mentora/internal/mentora/query"
	"github.com/mentora-bot/mentora/internal/mentora/rules"
	"github.com/mentora-bot/mentora/internal/mentora/store"
)

// stubProvider is a scripted nlp.Provider that records whether it was
// called.
type stubProvider struct {
	mu     sync.Mutex
	resp   *nlp.ClassifyResponse
	err    error
	calls  int
	gotReq nlp.ClassifyRequest
}

func (p *stubProvider) Classify(_ context.Context, req nlp.ClassifyRequest) (*nlp.ClassifyResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.gotReq = req
	return p.resp, p.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	resolver *Resolver
	provider *stubProvider
	store    store.Store
	memories *memory.Manager
	contexts *memory.ContextStore
}

func newFixture(t *testing.T, provider *stubProvider, opts ...func(*Options)) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	memories := memory.NewManager(st, memory.ManagerConfig{ImmediateWrites: true})
	t.Cleanup(memories.Close)
	contexts := memory.NewContextStore(time.Hour)

	o := Options{
		Patterns: classify.NewPatternClassifier(rules.Default()),
		Engine:   decision.NewEngine(),
		Provider: provider,
		Contexts: contexts,
		Memories: memories,
		Queries:  query.NewRouter(st, memories),
		Config: Config{
			ClassifyTimeout: time.Second,
			ContextTriggers: []string{"add_course", "cancel_course", "reschedule_course"},
			DurableIntents:  []string{"add_course", "set_recurring"},
		},
	}
	for _, fn := range opts {
		fn(&o)
	}

	return &fixture{
		resolver: New(o),
		provider: provider,
		store:    st,
		memories: memories,
		contexts: contexts,
	}
}

func TestResolveQueryBypass(t *testing.T) {
	f := newFixture(t, &stubProvider{})
	ctx := context.Background()

	out := f.resolver.Resolve(ctx, "u1", "list all my courses")
	if !out.Bypassed {
		t.Fatal("explicit query should bypass the pipeline")
	}
	if out.Query == nil || out.Query.Type != query.TypeListAll {
		t.Errorf("Query = %+v", out.Query)
	}
	if out.Decision != nil {
		t.Error("bypassed outcome carries no decision")
	}
	if out.TraceID == "" {
		t.Error("TraceID not set")
	}
	if f.provider.callCount() != 0 {
		t.Error("bypass must not call the external classifier")
	}

	// The bypass leaves an activity trail in memory.
	mem := f.memories.GetUserMemory(ctx, "u1")
	if len(mem.RecentActivities) != 1 || mem.RecentActivities[0].Intent != "query:list_all" {
		t.Errorf("RecentActivities = %+v", mem.RecentActivities)
	}
}

func TestResolveRuleOnlySkipsModel(t *testing.T) {
	f := newFixture(t, &stubProvider{
		resp: &nlp.ClassifyResponse{Intent: "unknown", Confidence: 0.99},
	})

	out := f.resolver.Resolve(context.Background(), "u1", "cancel math course")
	if out.Bypassed || out.Decision == nil {
		t.Fatalf("Outcome = %+v", out)
	}
	dec := out.Decision
	if dec.FinalIntent != "cancel_course" {
		t.Errorf("FinalIntent = %q", dec.FinalIntent)
	}
	if dec.Source != decision.SourceRule {
		t.Errorf("Source = %q", dec.Source)
	}
	if dec.Entities[classify.EntityCourse] != "math" {
		t.Errorf("Entities = %v", dec.Entities)
	}
	if f.provider.callCount() != 0 {
		t.Error("strong rule signal with a course entity must skip the model")
	}
}

func TestResolveModelWins(t *testing.T) {
	f := newFixture(t, &stubProvider{
		resp: &nlp.ClassifyResponse{
			Intent:     "reschedule_course",
			Confidence: 0.9,
			Entities:   map[string]string{"course": "piano"},
		},
	})

	// No rule keyword scores, so the decision rests on the model signal.
	out := f.resolver.Resolve(context.Background(), "u1", "can you sort out the usual for her")
	dec := out.Decision
	if dec == nil {
		t.Fatal("no decision")
	}
	if dec.Source != decision.SourceModel || dec.FinalIntent != "reschedule_course" {
		t.Errorf("Source = %q, FinalIntent = %q", dec.Source, dec.FinalIntent)
	}
	if f.provider.callCount() != 1 {
		t.Fatalf("provider calls = %d", f.provider.callCount())
	}

	// The call carried the closed intent set from the rule table.
	if len(f.provider.gotReq.KnownIntents) == 0 {
		t.Error("KnownIntents not populated")
	}
}

func TestResolveProviderFailureFallsBack(t *testing.T) {
	f := newFixture(t, &stubProvider{err: errors.New("upstream down")})

	out := f.resolver.Resolve(context.Background(), "u1", "can you sort out the usual for her")
	dec := out.Decision
	if dec == nil {
		t.Fatal("no decision")
	}
	if dec.Source != decision.SourceFallback || dec.FinalIntent != "unknown" {
		t.Errorf("Source = %q, FinalIntent = %q", dec.Source, dec.FinalIntent)
	}
	if dec.Suggestion == "" {
		t.Error("fallback decision should carry a clarification suggestion")
	}
}

func TestResolveRateLimitedUserStaysOnRulePath(t *testing.T) {
	limiter := nlp.NewRateLimiter(1, time.Minute)
	limiter.Allow("u1") // exhaust the quota

	f := newFixture(t, &stubProvider{
		resp: &nlp.ClassifyResponse{Intent: "add_course", Confidence: 0.95},
	}, func(o *Options) { o.Limiter = limiter })

	out := f.resolver.Resolve(context.Background(), "u1", "can you sort out the usual for her")
	if f.provider.callCount() != 0 {
		t.Error("rate-limited user must not reach the provider")
	}
	if out.Decision.Source != decision.SourceFallback {
		t.Errorf("Source = %q, want fallback with both signals gone", out.Decision.Source)
	}
}

func TestResolveNilProvider(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.Provider = nil })

	out := f.resolver.Resolve(context.Background(), "u1", "cancel math course")
	if out.Decision == nil || out.Decision.FinalIntent != "cancel_course" {
		t.Errorf("Decision = %+v", out.Decision)
	}
}

func TestResolveWriteBack(t *testing.T) {
	f := newFixture(t, &stubProvider{})
	ctx := context.Background()

	out := f.resolver.Resolve(ctx, "u1", "add math course for Emma on friday")
	dec := out.Decision
	if dec == nil || dec.FinalIntent != "add_course" {
		t.Fatalf("Decision = %+v", dec)
	}

	// Durable intent lands in long-term memory.
	mem := f.memories.GetUserMemory(ctx, "u1")
	st, ok := mem.Students["Emma"]
	if !ok {
		t.Fatalf("Students = %v", mem.Students)
	}
	found := false
	for _, c := range st.Courses {
		if c.Course == "math" {
			found = true
		}
	}
	if !found {
		t.Errorf("math course not recorded: %+v", st.Courses)
	}

	// Context trigger refreshes short-term context.
	sctx := f.contexts.Get("u1")
	if sctx == nil || sctx.LastEntities[classify.EntityCourse] != "math" {
		t.Errorf("short-term context = %+v", sctx)
	}
}

func TestResolveNoWriteBackWithoutCourse(t *testing.T) {
	f := newFixture(t, &stubProvider{
		resp: &nlp.ClassifyResponse{Intent: "add_course", Confidence: 0.95},
	})
	ctx := context.Background()

	// Model resolves the intent but supplies no course entity, so nothing
	// durable is recorded.
	f.resolver.Resolve(ctx, "u1", "can you sort out the usual for her")
	mem := f.memories.GetUserMemory(ctx, "u1")
	if len(mem.Students) != 0 {
		t.Errorf("Students = %v, want empty", mem.Students)
	}
}

func TestResolveEntityCompletionFromMemory(t *testing.T) {
	f := newFixture(t, &stubProvider{})
	ctx := context.Background()

	if err := f.memories.UpdateUserMemory(ctx, "u1", memory.MemoryRecord{
		Student: "Emma", Course: "piano", Teacher: "Mrs Chen",
	}); err != nil {
		t.Fatal(err)
	}

	// Elliptical but high-confidence: the single known student and course
	// fill the gaps and the model is never consulted.
	out := f.resolver.Resolve(ctx, "u1", "cancel the lesson")
	dec := out.Decision
	if dec == nil || dec.FinalIntent != "cancel_course" {
		t.Fatalf("Decision = %+v", dec)
	}
	if dec.Entities[classify.EntityCourse] != "piano" {
		t.Errorf("course = %q, want completed from memory", dec.Entities[classify.EntityCourse])
	}
	if dec.Entities[classify.EntityStudent] != "Emma" {
		t.Errorf("student = %q", dec.Entities[classify.EntityStudent])
	}
	if f.provider.callCount() != 0 {
		t.Error("completed entities must skip the model")
	}
}

func TestResolveEntityCompletionPrefersContext(t *testing.T) {
	f := newFixture(t, &stubProvider{})
	ctx := context.Background()

	if err := f.memories.UpdateUserMemory(ctx, "u1", memory.MemoryRecord{
		Student: "Emma", Course: "piano",
	}); err != nil {
		t.Fatal(err)
	}
	f.contexts.Update("u1", "add_course", map[string]string{
		classify.EntityCourse:  "chess",
		classify.EntityStudent: "Jake",
	})

	out := f.resolver.Resolve(ctx, "u1", "cancel the lesson")
	dec := out.Decision
	if dec.Entities[classify.EntityCourse] != "chess" {
		t.Errorf("course = %q, want the short-term context value", dec.Entities[classify.EntityCourse])
	}
	if dec.Entities[classify.EntityStudent] != "Jake" {
		t.Errorf("student = %q", dec.Entities[classify.EntityStudent])
	}
}

func TestResolveConcurrentUsers(t *testing.T) {
	f := newFixture(t, &stubProvider{
		resp: &nlp.ClassifyResponse{Intent: "unknown", Confidence: 0.7},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := []string{"u1", "u2"}[n%2]
			out := f.resolver.Resolve(context.Background(), user, "cancel math course")
			if out.Decision == nil {
				t.Error("no decision")
			}
		}(i)
	}
	wg.Wait()
}
