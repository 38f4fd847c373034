// Package scoring grades a dictation attempt against the reference text
// of a segment.
//
// Both strings are normalized (lowercased, punctuation stripped,
// whitespace collapsed) and compared as bags of words. Every reference
// word may claim one matching attempt word; surplus attempt words cost
// a small penalty so that typing every word you can think of does not
// earn full marks.
package scoring

import (
	"math"
	"regexp"
	"strings"
)

// ExtraWordPenalty is the number of points deducted per surplus attempt
// word, scaled by reference length: one extra word on a ten-word
// reference costs one point.
const ExtraWordPenalty = 10.0

// Whitespace is the ASCII \s set plus vertical tab, every Unicode
// separator (no-break, em and ideographic spaces, line and paragraph
// separators) and the byte order mark. RE2's \s alone is ASCII only.
var (
	nonWordRe    = regexp.MustCompile(`[^\w\s\p{Z}\x{0B}\x{FEFF}]`)
	whitespaceRe = regexp.MustCompile(`[\s\p{Z}\x{0B}\x{FEFF}]+`)
)

// Evaluation is the detailed outcome of grading one attempt.
type Evaluation struct {
	Score          int      `json:"score"`
	ReferenceWords int      `json:"reference_words"`
	AttemptWords   int      `json:"attempt_words"`
	Matched        int      `json:"matched"`
	Extra          int      `json:"extra"`
	Missing        []string `json:"missing,omitempty"`
}

// Normalize lowercases s, removes every character that is neither a
// word character nor whitespace, collapses whitespace runs to a single
// space, and trims the result.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Score returns the accuracy of attempt against reference as an integer
// percentage in [0, 100].
func Score(reference, attempt string) int {
	return Evaluate(reference, attempt).Score
}

// Evaluate grades attempt against reference. Rounding is half away from
// zero, so a raw 97.5 scores 98.
func Evaluate(reference, attempt string) Evaluation {
	ref := Normalize(reference)
	att := Normalize(attempt)

	refWords := splitWords(ref)
	attWords := splitWords(att)

	ev := Evaluation{
		ReferenceWords: len(refWords),
		AttemptWords:   len(attWords),
	}

	if att == "" {
		ev.Missing = refWords
		return ev
	}
	if att == ref {
		ev.Score = 100
		ev.Matched = len(refWords)
		return ev
	}
	if len(refWords) == 0 {
		ev.Extra = len(attWords)
		return ev
	}

	claimed := make([]bool, len(attWords))
	for _, rw := range refWords {
		found := false
		for i, aw := range attWords {
			if !claimed[i] && aw == rw {
				claimed[i] = true
				found = true
				break
			}
		}
		if found {
			ev.Matched++
		} else {
			ev.Missing = append(ev.Missing, rw)
		}
	}

	ev.Extra = max(0, len(attWords)-len(refWords))

	refCount := float64(len(refWords))
	base := float64(ev.Matched) / refCount * 100
	penalty := float64(ev.Extra) / refCount * ExtraWordPenalty
	ev.Score = int(math.Round(math.Max(0, base-penalty)))
	return ev
}

func splitWords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}
