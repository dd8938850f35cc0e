// Package wakeword decides whether a transcript contains the user's activation
// phrase and extracts the command that follows it.
//
// Both functions are pure and safe for concurrent use.
package wakeword

import (
	"math"
	"strings"
	"unicode/utf8"
)

// minTokenLen is the length a wake token must exceed to count towards a
// partial match. Short words ("hey", "ok") are too common to be evidence.
const minTokenLen = 3

// partialThreshold is the sensitivity above which partial matching is enabled.
const partialThreshold = 0.5

// Detect reports whether transcript contains wakeWord.
//
// A case-insensitive verbatim occurrence always matches, whatever the
// sensitivity. Otherwise a multi-word wake phrase matches partially when
// sensitivity > 0.5 and at least ceil(n × sensitivity) of its n tokens appear
// somewhere in the transcript, where only tokens longer than three characters
// can be found. Single-word wake phrases never match partially.
//
// A blank wake word never matches. Settings reject one on update, so it only
// reaches Detect from a corrupt stored record, and failing closed keeps such
// a user's commands from bypassing the check.
func Detect(transcript, wakeWord string, sensitivity float64) bool {
	if strings.TrimSpace(wakeWord) == "" {
		return false
	}
	if indexFold(transcript, wakeWord) >= 0 {
		return true
	}

	tokens := strings.Split(strings.ToLower(wakeWord), " ")
	if len(tokens) <= 1 || sensitivity <= partialThreshold {
		return false
	}

	lower := strings.ToLower(transcript)
	matched := 0
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) > minTokenLen && strings.Contains(lower, tok) {
			matched++
		}
	}
	required := int(math.Ceil(float64(len(tokens)) * sensitivity))
	return matched >= required
}

// ExtractCommand returns the trimmed text after the first verbatim
// (case-insensitive) occurrence of wakeWord, keeping the transcript's original
// casing. When the phrase is absent the whole trimmed transcript is returned.
func ExtractCommand(transcript, wakeWord string) string {
	if wakeWord == "" {
		return strings.TrimSpace(transcript)
	}
	i := indexFold(transcript, wakeWord)
	if i < 0 {
		return strings.TrimSpace(transcript)
	}
	return strings.TrimSpace(transcript[i+foldLen(transcript[i:], wakeWord):])
}

// indexFold returns the byte offset of the first case-insensitive occurrence
// of substr in s, or -1. It works on s directly so the offset is valid for the
// original string even when lower-casing would change byte lengths.
func indexFold(s, substr string) int {
	n := utf8.RuneCountInString(substr)
	for i := range s {
		if end := advance(s[i:], n); end >= 0 && strings.EqualFold(s[i:i+end], substr) {
			return i
		}
	}
	return -1
}

// foldLen returns the byte length of the prefix of s that case-folds to
// substr. The caller guarantees such a prefix exists.
func foldLen(s, substr string) int {
	return advance(s, utf8.RuneCountInString(substr))
}

// advance returns the byte offset after n runes of s, or -1 if s is shorter.
func advance(s string, n int) int {
	off := 0
	for range n {
		if off >= len(s) {
			return -1
		}
		_, size := utf8.DecodeRuneInString(s[off:])
		off += size
	}
	return off
}
