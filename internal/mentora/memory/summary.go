package memory

import (
	"fmt"
	"sort"
	"strings"
)

// Summarize renders a compact textual digest of a user's long-term memory,
// suitable as the contextual hint passed to the external classifier. The
// output is deterministic (students sorted by name) so identical memory
// always produces an identical hint.
func Summarize(mem *UserMemory) string {
	if mem == nil || (len(mem.Students) == 0 && len(mem.RecentActivities) == 0) {
		return ""
	}

	var b strings.Builder

	names := make([]string, 0, len(mem.Students))
	for name := range mem.Students {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		student := mem.Students[name]
		if len(student.Courses) == 0 {
			continue
		}
		var courses []string
		for _, rec := range student.Courses {
			courses = append(courses, describeCourse(rec))
		}
		fmt.Fprintf(&b, "%s takes %s.\n", name, strings.Join(courses, ", "))
	}

	if len(mem.RecurringPatterns) > 0 {
		fmt.Fprintf(&b, "Recurring: %s.\n", strings.Join(mem.RecurringPatterns, "; "))
	}

	if len(mem.RecentActivities) > 0 {
		latest := mem.RecentActivities[0]
		fmt.Fprintf(&b, "Most recent interaction: %s %s for %s.\n",
			latest.Intent, latest.Course, latest.Student)
	}

	return strings.TrimRight(b.String(), "\n")
}

// describeCourse renders one record for the hint.
func describeCourse(rec MemoryRecord) string {
	desc := rec.Course
	if rec.Schedule != "" {
		desc += " (" + rec.Schedule
		if rec.Teacher != "" {
			desc += ", with " + rec.Teacher
		}
		desc += ")"
	} else if rec.Teacher != "" {
		desc += " (with " + rec.Teacher + ")"
	}
	return desc
}

// UniqueStudent returns the single student name in mem, when exactly one
// exists. Used by the resolver's memory-assisted entity completion.
func (m *UserMemory) UniqueStudent() (string, bool) {
	if len(m.Students) != 1 {
		return "", false
	}
	for name := range m.Students {
		return name, true
	}
	return "", false
}

// UniqueCourseFor returns the single course record for the given student
// (or across all students when student is ""), when exactly one candidate
// exists. Completion only fires on an unambiguous candidate.
func (m *UserMemory) UniqueCourseFor(student string) (MemoryRecord, bool) {
	var (
		found MemoryRecord
		count int
	)
	for name, s := range m.Students {
		if student != "" && !strings.EqualFold(name, student) {
			continue
		}
		for _, rec := range s.Courses {
			found = rec
			count++
			if count > 1 {
				return MemoryRecord{}, false
			}
		}
	}
	return found, count == 1
}
