// Package query implements the fast path for explicit read-only questions.
// Utterances that unambiguously ask for stored schedule data are answered
// straight from the document store, without ever invoking a classifier.
package query

import (
	"regexp"
)

// Type identifies a query category.
type Type string

const (
	TypeScheduleByDate Type = "schedule_by_date"
	TypeListAll        Type = "list_all"
	TypeByTeacher      Type = "by_teacher"
	TypeByStudent      Type = "by_student"
	TypeRecentActivity Type = "recent_activity"
)

// family groups the patterns for one query category. Families are evaluated
// in declaration order; the first match wins.
type family struct {
	qtype    Type
	patterns []*regexp.Regexp
}

var families = []family{
	{
		qtype: TypeScheduleByDate,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:what(?:'s| is)?|show(?: me)?|list)\b.*\b(?:schedule|classes|lessons|courses)\b.*\b(?:today|tomorrow|this week|next week|on \w+day)\b`),
			regexp.MustCompile(`(?i)\b(?:schedule|classes|lessons)\b\s+(?:for|on)\s+(?:today|tomorrow|\w+day)\b`),
			regexp.MustCompile(`(?i)\bwhat(?:'s| is)? (?:on|happening)\b.*\b(?:today|tomorrow|this week|next week)\b`),
		},
	},
	{
		qtype: TypeListAll,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:list|show(?: me)?)\b.*\ball\b.*\b(?:courses|classes|lessons)\b`),
			regexp.MustCompile(`(?i)\bwhat\s+(?:courses|classes|lessons)\s+do\s+(?:i|we)\s+(?:take|have|attend)\b`),
			regexp.MustCompile(`(?i)\ball\s+(?:of\s+)?(?:my|our)\s+(?:courses|classes|lessons)\b`),
		},
	},
	{
		qtype: TypeByTeacher,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:which|what)\s+(?:courses|classes|lessons)\b.*\bwith\s+(?:mr|mrs|ms|dr|prof(?:essor)?)\.?\s+\w+`),
			regexp.MustCompile(`(?i)\b(?:courses|classes|lessons)\s+(?:taught|given)\s+by\b`),
			regexp.MustCompile(`(?i)\bwho\s+teaches\b`),
		},
	},
	{
		qtype: TypeByStudent,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwhat\s+(?:courses|classes|lessons)\s+(?:does|is)\s+\w+\s+(?:take|taking|have|attending)\b`),
			regexp.MustCompile(`(?i)\b(?:show(?: me)?|list)\b.*\b(?:courses|classes|lessons)\s+for\s+[A-Z]\w+`),
		},
	},
	{
		qtype: TypeRecentActivity,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:recent|latest|last)\b.*\b(?:activity|activities|changes|updates)\b`),
			regexp.MustCompile(`(?i)\bwhat\s+(?:did\s+(?:i|we)|have\s+(?:i|we))\s+(?:do|done|change|changed)\b`),
		},
	},
}

// IsExplicitQuery reports whether text matches any bypass family.
func IsExplicitQuery(text string) bool {
	_, ok := DetectQueryType(text)
	return ok
}

// DetectQueryType returns the first matching category in priority order.
func DetectQueryType(text string) (Type, bool) {
	for _, f := range families {
		for _, p := range f.patterns {
			if p.MatchString(text) {
				return f.qtype, true
			}
		}
	}
	return "", false
}
