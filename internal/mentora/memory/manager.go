package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mentora-bot/mentora/common/retry"
	"github.com/mentora-bot/mentora/internal/mentora/store"
)

// DefaultMaxRecords bounds the long-term records kept per user when no
// limit is configured.
const DefaultMaxRecords = 20

// ErrInvalidRecord is returned by UpdateUserMemory when the record is
// missing a required field. No partial write happens.
var ErrInvalidRecord = errors.New("memory: invalid record")

// ManagerConfig configures the long-term memory manager.
type ManagerConfig struct {
	// MaxRecords bounds the records kept per user (priority eviction).
	MaxRecords int
	// Cache bounds the read cache.
	Cache CacheConfig
	// FlushInterval is the debounce window for batched durable writes.
	FlushInterval time.Duration
	// MaxFlushDelay caps how long a pending snapshot may wait.
	MaxFlushDelay time.Duration
	// ImmediateWrites disables batching: every update writes through
	// (with retry) before returning.
	ImmediateWrites bool
}

// Manager owns the long-term memory tier: the bounded per-user record store,
// the LRU+TTL cache fronting durable reads, and the batched persistence of
// dirty snapshots.
//
// Failure semantics: durable-store trouble never reaches the caller. A
// failed read degrades to an empty snapshot; a failed write is logged and
// the dirty snapshot stays cached for the next flush. Only validation
// errors (ErrInvalidRecord) are returned.
type Manager struct {
	store      store.Store
	maxRecords int
	immediate  bool

	mu     sync.Mutex // guards cache and userMu
	cache  *Cache
	userMu map[string]*sync.Mutex

	flusher *flusher
	now     func() time.Time
}

// NewManager creates a Manager over the given durable store.
func NewManager(st store.Store, cfg ManagerConfig) *Manager {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxFlushDelay <= 0 {
		cfg.MaxFlushDelay = 30 * time.Second
	}

	m := &Manager{
		store:      st,
		maxRecords: cfg.MaxRecords,
		immediate:  cfg.ImmediateWrites,
		cache:      NewCache(cfg.Cache),
		userMu:     make(map[string]*sync.Mutex),
		now:        time.Now,
	}
	m.flusher = newFlusher(cfg.FlushInterval, cfg.MaxFlushDelay, m.writeDurable)
	return m
}

// GetUserMemory returns a snapshot of the user's long-term memory. The
// cache is consulted first (LRU touch + TTL check); on miss the durable
// store is read and the cache populated. The returned snapshot is a private
// copy — callers may read it freely but must write through UpdateUserMemory.
//
// Never returns an error: durable-read failure degrades to an empty
// snapshot and is logged.
func (m *Manager) GetUserMemory(ctx context.Context, user string) *UserMemory {
	m.mu.Lock()
	if cached, ok := m.cache.Get(user); ok {
		snapshot := cached.Clone()
		m.mu.Unlock()
		return snapshot
	}
	m.mu.Unlock()

	loaded := m.loadDurable(ctx, user)

	m.mu.Lock()
	m.cache.Put(user, loaded)
	snapshot := loaded.Clone()
	m.mu.Unlock()
	return snapshot
}

// UpdateUserMemory validates the record, merges it into the user's memory
// (incrementing frequency on repeat mention), re-applies the record bound,
// updates the cache synchronously, and schedules a durable write.
func (m *Manager) UpdateUserMemory(ctx context.Context, user string, rec MemoryRecord) error {
	if strings.TrimSpace(rec.Student) == "" {
		return fmt.Errorf("%w: student is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(rec.Course) == "" {
		return fmt.Errorf("%w: course is required", ErrInvalidRecord)
	}

	// Per-user mutex serializes the read-modify-write so in-process
	// concurrent updates for the same user do not lose increments.
	// Cross-user updates proceed in parallel.
	userLock := m.lockForUser(user)
	userLock.Lock()
	defer userLock.Unlock()

	mem := m.GetUserMemory(ctx, user)
	now := m.now()

	m.merge(mem, rec, now)
	mem.LastUpdated = now
	if evicted := evictToLimit(mem, m.maxRecords, now); evicted > 0 {
		slog.Debug("memory: evicted low-priority records",
			"user", user, "evicted", evicted, "limit", m.maxRecords)
	}

	m.mu.Lock()
	m.cache.Put(user, mem)
	m.mu.Unlock()

	if m.immediate {
		if err := m.writeDurable(ctx, user, mem); err != nil {
			slog.Warn("memory: immediate durable write failed", "user", user, "err", err)
		}
		return nil
	}

	m.flusher.enqueue(user, mem.Clone())
	return nil
}

// RecordQueryActivity appends a read-only interaction to the user's
// recent-activity list without creating a course record.
func (m *Manager) RecordQueryActivity(ctx context.Context, user string, activity Activity) {
	userLock := m.lockForUser(user)
	userLock.Lock()
	defer userLock.Unlock()

	mem := m.GetUserMemory(ctx, user)
	activity.At = m.now()
	mem.RecordActivity(activity)
	mem.LastUpdated = activity.At

	m.mu.Lock()
	m.cache.Put(user, mem)
	m.mu.Unlock()

	m.flusher.enqueue(user, mem.Clone())
}

// FlushAll synchronously persists every pending snapshot. Called on
// graceful shutdown.
func (m *Manager) FlushAll() {
	m.flusher.FlushAll()
}

// Close flushes pending snapshots and stops the flusher.
func (m *Manager) Close() {
	m.flusher.Close()
}

// CacheStats reports the cache entry count and approximate size, for the
// status endpoint.
func (m *Manager) CacheStats() (entries int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len(), m.cache.SizeBytes()
}

// merge folds rec into mem: an existing (student, course) record gets its
// frequency incremented, its recency refreshed, and empty attributes filled
// in; otherwise a new record is inserted with frequency 1.
func (m *Manager) merge(mem *UserMemory, rec MemoryRecord, now time.Time) {
	if mem.Students == nil {
		mem.Students = make(map[string]*StudentMemory)
	}
	student := mem.Students[rec.Student]
	if student == nil {
		student = &StudentMemory{}
		mem.Students[rec.Student] = student
	}

	for i := range student.Courses {
		existing := &student.Courses[i]
		if !strings.EqualFold(existing.Course, rec.Course) {
			continue
		}
		existing.Frequency++
		existing.LastMentioned = now
		if existing.Schedule == "" {
			existing.Schedule = rec.Schedule
		}
		if existing.Teacher == "" {
			existing.Teacher = rec.Teacher
		}
		if existing.Location == "" {
			existing.Location = rec.Location
		}
		if existing.Notes == "" {
			existing.Notes = rec.Notes
		}
		if rec.Recurring {
			existing.Recurring = true
			m.notePattern(mem, *existing)
		}
		m.noteActivity(mem, *existing, now)
		return
	}

	rec.Frequency = 1
	rec.LastMentioned = now
	student.Courses = append(student.Courses, rec)
	if rec.Recurring {
		m.notePattern(mem, rec)
	}
	m.noteActivity(mem, rec, now)
}

func (m *Manager) noteActivity(mem *UserMemory, rec MemoryRecord, now time.Time) {
	mem.RecordActivity(Activity{
		Intent:  "mention",
		Student: rec.Student,
		Course:  rec.Course,
		At:      now,
	})
}

// notePattern records a recurring course as a pattern string, once.
func (m *Manager) notePattern(mem *UserMemory, rec MemoryRecord) {
	pattern := fmt.Sprintf("%s: %s (%s)", rec.Student, rec.Course, rec.Schedule)
	for _, existing := range mem.RecurringPatterns {
		if existing == pattern {
			return
		}
	}
	mem.RecurringPatterns = append(mem.RecurringPatterns, pattern)
}

// loadDurable reads the user's blob from the durable store, degrading to an
// empty snapshot on any failure.
func (m *Manager) loadDurable(ctx context.Context, user string) *UserMemory {
	doc, err := m.store.Get(ctx, store.CollectionUserMemories, user)
	if errors.Is(err, store.ErrNotFound) {
		return NewUserMemory()
	}
	if err != nil {
		slog.Warn("memory: durable read failed, using empty memory", "user", user, "err", err)
		return NewUserMemory()
	}

	mem := NewUserMemory()
	if err := json.Unmarshal(doc.Data, mem); err != nil {
		slog.Warn("memory: malformed durable blob, using empty memory", "user", user, "err", err)
		return NewUserMemory()
	}
	if mem.Students == nil {
		mem.Students = make(map[string]*StudentMemory)
	}
	return mem
}

// writeDurable persists one user's snapshot with retry.
func (m *Manager) writeDurable(ctx context.Context, user string, mem *UserMemory) error {
	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("memory: marshal snapshot: %w", err)
	}
	return retry.Do(ctx, retry.DefaultConfig, func() error {
		return m.store.Update(ctx, store.CollectionUserMemories, user, data)
	})
}

// lockForUser returns the mutex serializing updates for one user.
func (m *Manager) lockForUser(user string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userMu[user]
	if !ok {
		lock = &sync.Mutex{}
		m.userMu[user] = lock
	}
	return lock
}
