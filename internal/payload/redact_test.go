package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mail jane.doe+x@example.co.uk now", "mail [REDACTED_EMAIL] now"},
		{"call +15551234567", "call [REDACTED_NUMBER]"},
		{"id 12345678901", "id [REDACTED_NUMBER]"},
		{"short 123456 stays", "short 123456 stays"},
		{"seventeen 12345678901234567 stays", "seventeen 12345678901234567 stays"},
		{"(555) 123-4567 and 555.123.4568", "[REDACTED_NUMBER] and [REDACTED_NUMBER]"},
		{"555-123-4567 555-123-4568", "[REDACTED_NUMBER] [REDACTED_NUMBER]"},
		{"host my-mac.local up", "host [REDACTED_HOST] up"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactText(tt.in), tt.in)
	}
}

func TestRedactWalksValues(t *testing.T) {
	in := map[string]any{
		"from@example.com": []any{"a@b.io", 5, true},
		"nested":           map[string]any{"phone": "+4915112345678"},
	}
	out := Redact(in).(map[string]any)
	assert.Equal(t, []any{"[REDACTED_EMAIL]", 5, true}, out["from@example.com"])
	assert.Equal(t, map[string]any{"phone": "[REDACTED_NUMBER]"}, out["nested"])
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "brew_MCP_cardmagic_messages", Slugify("brew MCP: cardmagic/messages"))
	assert.Equal(t, "a.b-c", Slugify("  a.b-c  "))
	assert.Equal(t, "server", Slugify("///"))
}
