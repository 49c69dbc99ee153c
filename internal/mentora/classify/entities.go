package classify

import (
	"regexp"
	"strings"
)

// courseSubjects is the lexicon of course names the rule path can extract
// without help from the model. The model remains responsible for anything
// outside this list.
var courseSubjects = []string{
	"math", "maths", "mathematics", "physics", "chemistry", "biology",
	"english", "history", "geography", "spanish", "french", "german",
	"piano", "violin", "guitar", "drums", "art", "coding", "swimming",
}

var (
	// "for Emma", "with Lucas" — the person the course is about.
	studentPattern = regexp.MustCompile(`\b(?:for|with)\s+([A-Z][a-z]+)\b`)

	// "teacher Chen", "Mr Adams", "Ms. Rivera".
	teacherPattern = regexp.MustCompile(`\b(?:teacher|[Mm]r|[Mm]rs|[Mm]s|[Mm]iss|[Pp]rof(?:essor)?)\.?\s+([A-Z][a-z]+)\b`)

	// "3pm", "10:30 am", "at 16:00".
	clockPattern = regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)

	// "room 12", "at the library", "online".
	locationPattern = regexp.MustCompile(`\b(?:room\s+\w+|online|at the \w+)\b`)
)

// honourifics are titles the student pattern must not capture as names.
var honourifics = map[string]bool{
	"Mr": true, "Mrs": true, "Ms": true, "Miss": true,
	"Dr": true, "Prof": true, "Professor": true, "Teacher": true,
}

// dayWords are the temporal anchors picked up for the time entity.
var dayWords = []string{
	"today", "tomorrow", "tonight",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// extractEntities derives salient entities from an utterance using simple
// lexical rules. raw keeps the original casing (proper nouns); normalized is
// the lower-cased form used for lexicon hits.
func extractEntities(raw, normalized string) map[string]string {
	entities := make(map[string]string)

	for _, subject := range courseSubjects {
		if containsWord(normalized, subject) {
			entities[EntityCourse] = subject
			break
		}
	}

	for _, m := range studentPattern.FindAllStringSubmatch(raw, -1) {
		// "with Mr Adams" captures "Mr"; honourifics are never students.
		if !honourifics[m[1]] {
			entities[EntityStudent] = m[1]
			break
		}
	}
	if m := teacherPattern.FindStringSubmatch(raw); m != nil {
		entities[EntityTeacher] = m[1]
		// "with Chen" also matches the student pattern; the teacher
		// honourific is the stronger signal.
		if entities[EntityStudent] == m[1] {
			delete(entities, EntityStudent)
		}
	}

	var timeParts []string
	for _, day := range dayWords {
		if containsWord(normalized, day) {
			timeParts = append(timeParts, day)
			break
		}
	}
	if m := clockPattern.FindString(normalized); m != "" {
		timeParts = append(timeParts, m)
	}
	if len(timeParts) > 0 {
		entities[EntityTime] = strings.Join(timeParts, " ")
	}

	if m := locationPattern.FindString(normalized); m != "" {
		entities[EntityLocation] = m
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

// containsWord reports whether normalized contains term on word boundaries.
// Plain substring containment would make "art" match "start".
func containsWord(normalized, term string) bool {
	idx := 0
	for {
		i := strings.Index(normalized[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(normalized[start-1])
		afterOK := end == len(normalized) || !isWordChar(normalized[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
