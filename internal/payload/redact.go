package payload

import (
	"regexp"
	"strings"
)

const (
	redactedEmail  = "[REDACTED_EMAIL]"
	redactedNumber = "[REDACTED_NUMBER]"
	redactedHost   = "[REDACTED_HOST]"
)

var (
	emailPattern     = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	intlPhonePattern = regexp.MustCompile(`\+\d{8,15}`)
	digitRunPattern  = regexp.MustCompile(`\d+`)
	// RE2 has no lookbehind, so the digit boundaries are captured and put back.
	nanpPattern = regexp.MustCompile(`(^|\D)((?:\(\d{3}\)|\d{3})[-. ]?\d{3}[-. ]?\d{4})(\D|$)`)
	hostPattern = regexp.MustCompile(`\b[A-Za-z0-9._-]+\.local\b`)
	slugPattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// RedactText masks email addresses, phone-number shapes, long digit runs and
// .local hostnames in s.
func RedactText(s string) string {
	s = emailPattern.ReplaceAllString(s, redactedEmail)
	s = intlPhonePattern.ReplaceAllString(s, redactedNumber)
	s = digitRunPattern.ReplaceAllStringFunc(s, func(run string) string {
		if len(run) >= 10 && len(run) <= 16 {
			return redactedNumber
		}
		return run
	})
	// Adjacent matches share a boundary character; repeat until stable.
	for range 4 {
		next := nanpPattern.ReplaceAllString(s, "${1}"+redactedNumber+"${3}")
		if next == s {
			break
		}
		s = next
	}
	return hostPattern.ReplaceAllString(s, redactedHost)
}

// Redact returns a copy of v with every string value passed through
// RedactText. Map keys are kept.
func Redact(v any) any {
	switch t := v.(type) {
	case string:
		return RedactText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return t
	}
}

// Slugify turns a server name into a filesystem-safe directory name.
func Slugify(name string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(name, "_"), "_")
	if slug == "" {
		return "server"
	}
	return slug
}
