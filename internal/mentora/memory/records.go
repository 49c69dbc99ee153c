// Package memory implements the layered per-user memory of the resolver:
// a TTL-bounded short-term context for ellipsis completion, a bounded
// long-term record store with priority eviction, and an LRU+TTL cache with
// debounced batch persistence fronting the durable document store.
package memory

import (
	"encoding/json"
	"time"
)

// MaxRecentActivities bounds the recent-activity list in a user's blob.
const MaxRecentActivities = 10

// MemoryRecord is one durable fact: a course associated with a student,
// with frequency/recency metadata driving eviction priority. Records are
// keyed by (user, student, course); repeat mentions increment Frequency and
// refresh LastMentioned.
type MemoryRecord struct {
	// Student is the person the course belongs to. Required.
	Student string `json:"student"`

	// Course is the course name. Required.
	Course string `json:"course"`

	// Schedule is a free-form schedule description ("friday 3pm").
	Schedule string `json:"schedule,omitempty"`

	// Teacher, Location, Notes are optional attributes.
	Teacher  string `json:"teacher,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	// Recurring marks a weekly/repeating course.
	Recurring bool `json:"recurring,omitempty"`

	// Frequency counts how often this record has been mentioned. ≥ 1.
	Frequency int `json:"frequency"`

	// LastMentioned is refreshed on every repeat mention.
	LastMentioned time.Time `json:"last_mentioned"`
}

// completeness returns how many of the optional descriptive fields are set,
// out of 3. Fuller records survive eviction longer.
func (r MemoryRecord) completeness() int {
	n := 0
	if r.Teacher != "" {
		n++
	}
	if r.Location != "" {
		n++
	}
	if r.Schedule != "" {
		n++
	}
	return n
}

// StudentMemory groups the records and preferences for one student.
type StudentMemory struct {
	Courses     []MemoryRecord    `json:"courses,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Activity is one entry of the recent-activity list.
type Activity struct {
	Intent  string    `json:"intent"`
	Student string    `json:"student,omitempty"`
	Course  string    `json:"course,omitempty"`
	At      time.Time `json:"at"`
}

// UserMemory is the full long-term memory snapshot for one user — the unit
// of caching and of durable persistence (one JSON blob per user).
type UserMemory struct {
	Students          map[string]*StudentMemory `json:"students,omitempty"`
	RecentActivities  []Activity                `json:"recent_activities,omitempty"`
	RecurringPatterns []string                  `json:"recurring_patterns,omitempty"`
	LastUpdated       time.Time                 `json:"last_updated"`
}

// NewUserMemory returns an empty snapshot.
func NewUserMemory() *UserMemory {
	return &UserMemory{Students: make(map[string]*StudentMemory)}
}

// TotalRecords counts records across all students.
func (m *UserMemory) TotalRecords() int {
	n := 0
	for _, s := range m.Students {
		n += len(s.Courses)
	}
	return n
}

// Clone returns a deep copy. Snapshots handed to callers are always clones,
// so concurrent resolution cycles never alias each other's memory.
func (m *UserMemory) Clone() *UserMemory {
	cp := &UserMemory{
		Students:    make(map[string]*StudentMemory, len(m.Students)),
		LastUpdated: m.LastUpdated,
	}
	for name, s := range m.Students {
		sc := &StudentMemory{}
		if len(s.Courses) > 0 {
			sc.Courses = append([]MemoryRecord(nil), s.Courses...)
		}
		if len(s.Preferences) > 0 {
			sc.Preferences = make(map[string]string, len(s.Preferences))
			for k, v := range s.Preferences {
				sc.Preferences[k] = v
			}
		}
		cp.Students[name] = sc
	}
	if len(m.RecentActivities) > 0 {
		cp.RecentActivities = append([]Activity(nil), m.RecentActivities...)
	}
	if len(m.RecurringPatterns) > 0 {
		cp.RecurringPatterns = append([]string(nil), m.RecurringPatterns...)
	}
	return cp
}

// ApproxSize estimates the snapshot's in-memory footprint in bytes. The
// JSON encoding length is a good proxy and is what the cache's size ceiling
// accounts against.
func (m *UserMemory) ApproxSize() int64 {
	data, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// RecordActivity prepends an activity entry, trimming to MaxRecentActivities.
func (m *UserMemory) RecordActivity(a Activity) {
	m.RecentActivities = append([]Activity{a}, m.RecentActivities...)
	if len(m.RecentActivities) > MaxRecentActivities {
		m.RecentActivities = m.RecentActivities[:MaxRecentActivities]
	}
}
