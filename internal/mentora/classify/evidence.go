package classify

import (
	"sort"
	"strings"
)

// EvidenceProfile is the set of textual signals the decision engine uses to
// arbitrate between the rule and model classifications. It is a pure function
// of the input text; the detectors never fail — garbage input simply yields
// empty sets.
type EvidenceProfile struct {
	// TemporalClues are time references found in the text ("tomorrow",
	// weekday names, clock times).
	TemporalClues []string

	// MoodMarkers signal tentativeness ("maybe", "I think", "not sure").
	MoodMarkers []string

	// QuestionMarkers signal interrogative phrasing ("?", "what", "when").
	QuestionMarkers []string

	// AmbiguousTerms are known context-dependent tokens ("it", "that one",
	// "move") whose meaning needs prior context to pin down.
	AmbiguousTerms []string
}

// HasTemporal reports whether any temporal clue was detected.
func (p EvidenceProfile) HasTemporal() bool { return len(p.TemporalClues) > 0 }

// HasMoodOrQuestion reports whether the text reads as tentative or
// interrogative rather than imperative.
func (p EvidenceProfile) HasMoodOrQuestion() bool {
	return len(p.MoodMarkers) > 0 || len(p.QuestionMarkers) > 0
}

// HasAmbiguity reports whether any known ambiguous term was detected.
func (p EvidenceProfile) HasAmbiguity() bool { return len(p.AmbiguousTerms) > 0 }

// Marker lexicons. Each detector is independent; a token may legitimately
// appear in more than one category.
var (
	temporalWords = append([]string{
		"today", "tomorrow", "tonight", "yesterday", "later", "soon",
		"next week", "this week", "next month", "morning", "afternoon",
		"evening", "weekend",
	}, dayWords[3:]...) // weekday names

	moodWords = []string{
		"maybe", "perhaps", "might", "possibly", "i think", "i guess",
		"not sure", "wondering", "i'd like", "would like",
	}

	questionWords = []string{
		"what", "when", "where", "who", "why", "how", "which",
		"can i", "can you", "could", "should", "would it", "is there",
		"do i", "does", "right?",
	}

	ambiguousWords = []string{
		"it", "that", "this one", "them", "the same", "move", "change",
		"thing", "other", "again",
	}
)

// ExtractEvidence runs the fixed marker detectors against text and returns
// the union of matches per category, sorted for deterministic output.
func ExtractEvidence(text string) EvidenceProfile {
	normalized := Normalize(text)
	if normalized == "" {
		return EvidenceProfile{}
	}

	profile := EvidenceProfile{
		TemporalClues:   detect(normalized, temporalWords),
		MoodMarkers:     detect(normalized, moodWords),
		QuestionMarkers: detect(normalized, questionWords),
		AmbiguousTerms:  detect(normalized, ambiguousWords),
	}

	if m := clockPattern.FindString(normalized); m != "" {
		profile.TemporalClues = appendUnique(profile.TemporalClues, m)
	}
	if strings.Contains(text, "?") {
		profile.QuestionMarkers = appendUnique(profile.QuestionMarkers, "?")
	}
	return profile
}

// detect returns the lexicon terms present in normalized, sorted and
// de-duplicated. Single-word terms match on word boundaries; multi-word
// terms by substring.
func detect(normalized string, lexicon []string) []string {
	var found []string
	for _, term := range lexicon {
		matched := false
		if strings.ContainsAny(term, " ?") {
			matched = strings.Contains(normalized, term)
		} else {
			matched = containsWord(normalized, term)
		}
		if matched {
			found = appendUnique(found, term)
		}
	}
	sort.Strings(found)
	return found
}

func appendUnique(list []string, term string) []string {
	for _, existing := range list {
		if existing == term {
			return list
		}
	}
	return append(list, term)
}
