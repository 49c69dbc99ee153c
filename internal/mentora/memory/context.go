package memory

import (
	"sync"
	"time"
)

// DefaultContextTTL is the lifetime of a short-term context record when no
// TTL is configured.
const DefaultContextTTL = 10 * time.Minute

// ShortTermContext is the per-user record of the last resolved interaction,
// used to complete elliptical follow-ups ("move it to Friday"). The record
// is invisible once now > ExpiresAt regardless of presence in the map —
// expiry is checked lazily on read, never swept.
type ShortTermContext struct {
	// LastIntent is the intent of the last qualifying interaction.
	LastIntent string

	// LastEntities holds the salient entities of that interaction
	// (course/student/teacher/time/location).
	LastEntities map[string]string

	// Timestamp is when the record was written.
	Timestamp time.Time

	// ExpiresAt is always Timestamp + the store's TTL.
	ExpiresAt time.Time
}

// ContextStore holds one ShortTermContext per user. It is safe for
// concurrent use; same-user writes are last-write-wins.
type ContextStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	byUser map[string]ShortTermContext
}

// NewContextStore creates a ContextStore with the given TTL.
// A non-positive TTL uses DefaultContextTTL.
func NewContextStore(ttl time.Duration) *ContextStore {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	return &ContextStore{
		ttl:    ttl,
		byUser: make(map[string]ShortTermContext),
	}
}

// Get returns the user's context, or nil when absent or expired. An expired
// record is deleted on the way out.
func (s *ContextStore) Get(user string) *ShortTermContext {
	return s.getAt(user, time.Now())
}

// getAt is the time-injectable core of Get (for testing).
func (s *ContextStore) getAt(user string, now time.Time) *ShortTermContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byUser[user]
	if !ok {
		return nil
	}
	if now.After(rec.ExpiresAt) {
		delete(s.byUser, user)
		return nil
	}

	cp := rec
	cp.LastEntities = make(map[string]string, len(rec.LastEntities))
	for k, v := range rec.LastEntities {
		cp.LastEntities[k] = v
	}
	return &cp
}

// Update overwrites the user's context and resets its expiry. The caller is
// responsible for the qualification rules (trigger intent + salient entity);
// the store itself accepts any write.
func (s *ContextStore) Update(user, intent string, entities map[string]string) {
	s.updateAt(user, intent, entities, time.Now())
}

// updateAt is the time-injectable core of Update (for testing).
func (s *ContextStore) updateAt(user, intent string, entities map[string]string, now time.Time) {
	cp := make(map[string]string, len(entities))
	for k, v := range entities {
		cp[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[user] = ShortTermContext{
		LastIntent:   intent,
		LastEntities: cp,
		Timestamp:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
}

// Len returns the number of stored records, expired or not. Used by the
// status endpoint; the count is advisory.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}
