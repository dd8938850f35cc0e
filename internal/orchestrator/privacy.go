package orchestrator

import (
	"regexp"
	"strings"

	"github.com/MrWong99/tickvox/internal/settings"
)

// Redacted replaces stored content when a user disabled history storage.
const Redacted = "[redacted]"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// digitRunRe matches digit groups joined by spaces, dots, dashes or
	// parentheses. The replacement decides by digit count.
	digitRunRe = regexp.MustCompile(`\+?\(?\d[\d ().\-]{5,}\d`)
)

// RedactSensitive masks e-mail addresses, card-like numbers (13 to 19
// digits) and phone-like numbers (7 to 12 digits). Shorter numbers such as
// ticket IDs are kept.
func RedactSensitive(s string) string {
	s = emailRe.ReplaceAllString(s, "[email]")
	return digitRunRe.ReplaceAllStringFunc(s, func(m string) string {
		n := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		switch {
		case n >= 13 && n <= 19:
			return "[card]"
		case n >= 7 && n <= 12:
			return "[phone]"
		default:
			return m
		}
	})
}

// privacyFilter applies a user's privacy settings to what is persisted.
type privacyFilter struct {
	store  bool
	filter bool
}

func newPrivacyFilter(p settings.Privacy) privacyFilter {
	return privacyFilter{store: p.StoreHistory, filter: p.FilterSensitiveInfo}
}

func (f privacyFilter) text(s string) string {
	switch {
	case !f.store:
		return Redacted
	case f.filter:
		return RedactSensitive(s)
	default:
		return s
	}
}

func (f privacyFilter) entities(e map[string]any) map[string]any {
	if !f.store {
		return nil
	}
	if !f.filter || e == nil {
		return e
	}
	out := make(map[string]any, len(e))
	for k, v := range e {
		if s, ok := v.(string); ok {
			v = RedactSensitive(s)
		}
		out[k] = v
	}
	return out
}

func (f privacyFilter) response(r map[string]any) map[string]any {
	if f.store || r == nil {
		return r
	}
	return map[string]any{"message": Redacted}
}

// blank reports whether s only holds whitespace.
func blank(s string) bool { return strings.TrimSpace(s) == "" }
