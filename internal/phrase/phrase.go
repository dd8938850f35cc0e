// Package phrase recognises user-defined command phrases in a transcript.
//
// Transcription rarely reproduces a phrase letter for letter ("show critical
// bucks" for "show critical bugs"), so a phrase is compared token by token:
// identical tokens score 1, other token pairs score their Jaro-Winkler
// similarity, penalised when their Double Metaphone codes do not overlap.
// The phrase score is the mean token score. Utterances whose token count
// differs from the phrase (split or merged words) are compared as a single
// token made of their concatenated letters.
package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultThreshold      = 0.88
	defaultNonPhoneticPen = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum phrase score for a match. Default: 0.88.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithNonPhoneticPenalty sets the factor applied to the Jaro-Winkler score of
// a token pair that shares no Double Metaphone code. Default: 0.85.
func WithNonPhoneticPenalty(f float64) Option {
	return func(m *Matcher) { m.penalty = f }
}

// Matcher scores utterances against phrases. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	threshold float64
	penalty   float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultThreshold, penalty: defaultNonPhoneticPen}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the index of the phrase that best matches utterance and its
// score. ok is false (and index -1) when no phrase reaches the threshold.
// Ties keep the earliest phrase.
func (m *Matcher) Match(utterance string, phrases []string) (index int, score float64, ok bool) {
	index = -1
	in := tokens(utterance)
	if len(in) == 0 {
		return -1, 0, false
	}
	for i, p := range phrases {
		s := m.Score(in, tokens(p))
		if s >= m.threshold && s > score {
			index, score = i, s
		}
	}
	if index < 0 {
		return -1, 0, false
	}
	return index, score, true
}

// Score compares two tokenised strings and returns a value in [0, 1].
func (m *Matcher) Score(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) == len(b) {
		total := 0.0
		for i := range a {
			total += m.tokenScore(a[i], b[i])
		}
		return total / float64(len(a))
	}
	return m.tokenScore(strings.Join(a, ""), strings.Join(b, ""))
}

func (m *Matcher) tokenScore(a, b string) float64 {
	if a == b {
		return 1
	}
	jw := matchr.JaroWinkler(a, b, false)
	if !codesOverlap(codesFor([]string{a}), codesFor([]string{b})) {
		jw *= m.penalty
	}
	return jw
}

// tokens lowercases s, drops punctuation and splits on whitespace.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// codesFor returns the union of the Double Metaphone codes of toks.
func codesFor(toks []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(toks)*2)
	for _, t := range toks {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
