package memory

import (
	"math"
	"sort"
	"time"
)

// Eviction priority weights. Frequency dominates, then recency; recurring
// courses and well-described records get a survival bonus. The lowest-scoring
// records are dropped first when a user exceeds the record bound.
const (
	weightFrequency = 2.0
	weightRecency   = 1.0
	bonusRecurring  = 0.75
	bonusPerField   = 0.25
	recencyHalfLife = 14 * 24 * time.Hour
)

// evictionScore computes the keep-priority of a record at time now.
// Recency decays exponentially with a two-week half-life, so a record
// mentioned daily outlives one mentioned once a month at equal frequency.
func evictionScore(r MemoryRecord, now time.Time) float64 {
	freq := float64(r.Frequency)
	if freq < 1 {
		freq = 1
	}

	age := now.Sub(r.LastMentioned)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(recencyHalfLife))

	score := weightFrequency*freq + weightRecency*recency
	if r.Recurring {
		score += bonusRecurring
	}
	score += bonusPerField * float64(r.completeness())
	return score
}

// evictToLimit drops the lowest-priority records until the snapshot holds at
// most maxRecords. Students left without courses are removed entirely.
// Returns the number of evicted records.
func evictToLimit(m *UserMemory, maxRecords int, now time.Time) int {
	excess := m.TotalRecords() - maxRecords
	if excess <= 0 {
		return 0
	}

	type scored struct {
		student string
		index   int
		score   float64
	}
	var all []scored
	for name, s := range m.Students {
		for i, rec := range s.Courses {
			all = append(all, scored{student: name, index: i, score: evictionScore(rec, now)})
		}
	}

	// Lowest score first; ties broken by student/index for determinism.
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score < all[j].score
		}
		if all[i].student != all[j].student {
			return all[i].student < all[j].student
		}
		return all[i].index < all[j].index
	})

	// Collect the doomed (student, index) pairs, then rebuild each affected
	// student's course list in one pass.
	doomed := make(map[string]map[int]bool)
	for _, sc := range all[:excess] {
		if doomed[sc.student] == nil {
			doomed[sc.student] = make(map[int]bool)
		}
		doomed[sc.student][sc.index] = true
	}

	for name, indices := range doomed {
		s := m.Students[name]
		kept := s.Courses[:0]
		for i, rec := range s.Courses {
			if !indices[i] {
				kept = append(kept, rec)
			}
		}
		s.Courses = kept
		if len(s.Courses) == 0 && len(s.Preferences) == 0 {
			delete(m.Students, name)
		}
	}
	return excess
}
