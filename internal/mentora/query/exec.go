package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/store"
)

// Course is the stored shape of one scheduled course document.
type Course struct {
	UserID    string    `json:"user_id"`
	Student   string    `json:"student,omitempty"`
	Name      string    `json:"course"`
	Teacher   string    `json:"teacher,omitempty"`
	Location  string    `json:"location,omitempty"`
	Schedule  string    `json:"schedule,omitempty"`
	NextTime  time.Time `json:"next_time,omitempty"`
	Recurring bool      `json:"recurring,omitempty"`
}

// TimeRange is a half-open [From, To) window parsed from the utterance.
type TimeRange struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Label string    `json:"label"`
}

// Result is the tagged outcome of a bypassed query.
type Result struct {
	Bypass     bool              `json:"bypass"`
	Type       Type              `json:"type"`
	Courses    []Course          `json:"courses,omitempty"`
	Activities []memory.Activity `json:"activities,omitempty"`
	TimeRange  *TimeRange        `json:"time_range,omitempty"`
}

// Router answers bypassed queries from the document store and the user's
// long-term memory. It never calls a classifier.
type Router struct {
	store    store.Store
	memories *memory.Manager
	now      func() time.Time
}

// NewRouter creates a query router backed by the given store and memory
// manager.
func NewRouter(st store.Store, memories *memory.Manager) *Router {
	return &Router{
		store:    st,
		memories: memories,
		now:      time.Now,
	}
}

// Execute runs a detected query against stored data.
func (r *Router) Execute(ctx context.Context, qtype Type, userID, text string) (*Result, error) {
	res := &Result{Bypass: true, Type: qtype}

	switch qtype {
	case TypeRecentActivity:
		mem := r.memories.GetUserMemory(ctx, userID)
		res.Activities = mem.RecentActivities
		return res, nil

	case TypeScheduleByDate:
		rng := parseTimeRange(text, r.now())
		res.TimeRange = rng
		courses, err := r.queryCourses(ctx, store.Filter{"user_id": userID})
		if err != nil {
			return nil, err
		}
		for _, c := range courses {
			if rng == nil || inRange(c.NextTime, rng) {
				res.Courses = append(res.Courses, c)
			}
		}
		return res, nil

	case TypeByTeacher:
		filter := store.Filter{"user_id": userID}
		if teacher := extractTeacher(text); teacher != "" {
			filter["teacher"] = teacher
		}
		courses, err := r.queryCourses(ctx, filter)
		if err != nil {
			return nil, err
		}
		res.Courses = courses
		return res, nil

	case TypeByStudent:
		filter := store.Filter{"user_id": userID}
		if student := extractStudent(text); student != "" {
			filter["student"] = student
		}
		courses, err := r.queryCourses(ctx, filter)
		if err != nil {
			return nil, err
		}
		res.Courses = courses
		return res, nil

	case TypeListAll:
		courses, err := r.queryCourses(ctx, store.Filter{"user_id": userID})
		if err != nil {
			return nil, err
		}
		res.Courses = courses
		return res, nil
	}

	return nil, fmt.Errorf("unsupported query type %q", qtype)
}

func (r *Router) queryCourses(ctx context.Context, filter store.Filter) ([]Course, error) {
	docs, err := r.store.Query(ctx, store.CollectionCourses, filter)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	courses := make([]Course, 0, len(docs))
	for _, doc := range docs {
		var c Course
		if err := json.Unmarshal(doc.Data, &c); err != nil {
			slog.Warn("skipping malformed course document", "id", doc.ID, "error", err)
			continue
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func inRange(t time.Time, rng *TimeRange) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(rng.From) && t.Before(rng.To)
}

// --- lexical parsing ---

var (
	teacherRef = regexp.MustCompile(`(?i)\b(?:with|by)\s+((?:mr|mrs|ms|dr|prof(?:essor)?)\.?\s+\w+)`)
	studentRef = regexp.MustCompile(`(?i)\b(?:does|is|for)\s+([A-Z]\w+)\b`)
)

func extractTeacher(text string) string {
	m := teacherRef.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractStudent(text string) string {
	for _, m := range studentRef.FindAllStringSubmatch(text, -1) {
		name := m[1]
		// Require original capitalization, so "does tomorrow" never binds.
		if name[0] >= 'A' && name[0] <= 'Z' && !isDayWord(name) {
			return name
		}
	}
	return ""
}

var weekdayOrder = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func isDayWord(word string) bool {
	w := strings.ToLower(word)
	if w == "today" || w == "tomorrow" {
		return true
	}
	_, ok := weekdays[w]
	return ok
}

// parseTimeRange resolves simple relative phrases to a concrete window.
// Returns nil when no phrase is recognized, meaning no date filter applies.
func parseTimeRange(text string, now time.Time) *TimeRange {
	lower := strings.ToLower(text)
	day := now.Truncate(24 * time.Hour)

	switch {
	case strings.Contains(lower, "today"):
		return &TimeRange{From: day, To: day.AddDate(0, 0, 1), Label: "today"}
	case strings.Contains(lower, "tomorrow"):
		from := day.AddDate(0, 0, 1)
		return &TimeRange{From: from, To: from.AddDate(0, 0, 1), Label: "tomorrow"}
	case strings.Contains(lower, "next week"):
		from := startOfWeek(day).AddDate(0, 0, 7)
		return &TimeRange{From: from, To: from.AddDate(0, 0, 7), Label: "next week"}
	case strings.Contains(lower, "this week"):
		from := startOfWeek(day)
		return &TimeRange{From: from, To: from.AddDate(0, 0, 7), Label: "this week"}
	}

	for _, name := range weekdayOrder {
		if strings.Contains(lower, name) {
			from := nextWeekday(day, weekdays[name])
			return &TimeRange{From: from, To: from.AddDate(0, 0, 1), Label: name}
		}
	}
	return nil
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7 // Monday-based week
	return day.AddDate(0, 0, -offset)
}

// nextWeekday returns the upcoming occurrence of wd, today included.
func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, delta)
}
