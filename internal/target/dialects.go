/*
PURPOSE:
  Extracts a concrete target (contact, chat id, sender, phone number) from the
  response of a server's target-selector tool.

REQUIREMENTS:
  User-specified:
  - The dialect set is closed; unknown kinds are configuration errors.
  - Strategies: structural field lookup, line-pattern scanning, deep search
    by key name.

  Implementation-discovered:
  - Servers disagree on key casing (chatId / chat_id, hasPart / haspart).
  - Keys such as "@id" collide with gjson path syntax, so object fields are
    looked up by iterating instead of by path.

ARCHITECTURE INTEGRATION:
  - Called by: internal/target/resolver.go
  - Validated by: internal/config (ParseKind)

ERROR HANDLING:
  - No candidate is reported as ("", false), never as an error.

RELATED FILES:
  - internal/payload/canonical.go
*/

package target

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/daryltucker/workload-bench/internal/payload"
)

// Kind names an extraction dialect.
type Kind string

const (
	KindContactLine  Kind = "contact_line"
	KindChatGUID     Kind = "chat_guid"
	KindPhotonChatID Kind = "photon_chat_id"
	KindChatID       Kind = "chat_id"
	KindSenderID     Kind = "sender_id"
	KindPhoneNumber  Kind = "phone_number"
)

// Kinds lists every supported dialect.
var Kinds = []Kind{KindContactLine, KindChatGUID, KindPhotonChatID, KindChatID, KindSenderID, KindPhoneNumber}

var aliases = map[string]Kind{
	"cardmagic_contact": KindContactLine,
	"imcp_sender":       KindSenderID,
}

// ParseKind resolves a configured dialect name, including legacy aliases.
func ParseKind(name string) (Kind, error) {
	if k, ok := aliases[name]; ok {
		return k, nil
	}
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown target kind %q", name)
}

var (
	emailPattern  = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	numberPattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// Extract pulls a target out of a raw tools/call response line.
func Extract(kind Kind, response []byte) (string, bool) {
	data := payload.ExtractJSON(response)
	texts := payload.TextBlocks(response)

	switch kind {
	case KindContactLine:
		return contactLine(texts)
	case KindChatGUID:
		if v, ok := firstInList(data, "chats", "guid", "chatGuid", "chat_guid"); ok {
			return v, true
		}
		return deepString(data, "chatGuid", "chat_guid", "guid")
	case KindPhotonChatID:
		if v, ok := prefixedLine(texts, "chat id:"); ok {
			return v, true
		}
		if v, ok := firstInList(data, "conversations", "chatId", "chat_id", "id"); ok {
			return v, true
		}
		return deepString(data, "chatId", "chat_id")
	case KindChatID:
		if v, ok := firstPresentInList(data, "conversations", "chat_id", "chatId"); ok {
			return v, true
		}
		return deepString(data, "chat_id", "chatId")
	case KindSenderID:
		return sender(data)
	case KindPhoneNumber:
		return phoneNumber(data, texts)
	}
	return "", false
}

func contactLine(texts []string) (string, bool) {
	for _, text := range texts {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(strings.ToLower(line), "top ") || strings.HasPrefix(line, "└─") {
				continue
			}
			if name, _, found := strings.Cut(line, " ("); found {
				if name = strings.TrimSpace(name); name != "" {
					return name, true
				}
			}
		}
	}
	return "", false
}

func prefixedLine(texts []string, prefix string) (string, bool) {
	for _, text := range texts {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(strings.ToLower(line), prefix) {
				continue
			}
			_, rest, _ := strings.Cut(line, ":")
			if v := strings.TrimSpace(rest); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// firstInList scans data[list] and returns the first truthy value among keys.
func firstInList(data gjson.Result, list string, keys ...string) (string, bool) {
	var out string
	found := false
	items := field(data, list)
	if !data.IsObject() || !items.IsArray() {
		return "", false
	}
	items.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		for _, key := range keys {
			if v := field(item, key); truthy(v) {
				out, found = v.String(), true
				return false
			}
		}
		return true
	})
	return out, found
}

// firstPresentInList is firstInList with presence instead of truthiness, so
// a chat id of 0 still counts.
func firstPresentInList(data gjson.Result, list string, keys ...string) (string, bool) {
	var out string
	found := false
	items := field(data, list)
	if !data.IsObject() || !items.IsArray() {
		return "", false
	}
	items.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		for _, key := range keys {
			if v := field(item, key); v.Exists() && v.Type != gjson.Null {
				out, found = v.String(), true
				return false
			}
		}
		return true
	})
	return out, found
}

func sender(data gjson.Result) (string, bool) {
	if !data.IsObject() {
		return "", false
	}
	parts := field(data, "hasPart")
	if !truthy(parts) {
		parts = field(data, "haspart")
	}
	if !parts.IsArray() {
		return "", false
	}
	var out string
	found := false
	parts.ForEach(func(_, msg gjson.Result) bool {
		if !msg.IsObject() {
			return true
		}
		s := field(msg, "sender")
		if s.IsObject() {
			id := field(s, "@id")
			if !truthy(id) {
				id = field(s, "id")
			}
			s = id
		}
		if s.Type != gjson.String {
			return true
		}
		v := strings.TrimSpace(s.String())
		switch strings.ToLower(v) {
		case "", "me", "unknown":
			return true
		}
		out, found = v, true
		return false
	})
	return out, found
}

func phoneNumber(data gjson.Result, texts []string) (string, bool) {
	if data.IsObject() {
		if v, ok := deepFind(data, "phone", "phoneNumber", "number", "contact"); ok && v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s, true
			}
		}
	}
	joined := strings.Join(texts, "\n")
	if m := emailPattern.FindString(joined); m != "" {
		return m, true
	}
	if m := numberPattern.FindString(joined); m != "" {
		return strings.TrimSpace(m), true
	}
	return "", false
}

func deepString(data gjson.Result, keys ...string) (string, bool) {
	v, ok := deepFind(data, keys...)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// deepFind does a depth-first search for the first non-null value stored
// under any of keys. Within one object the keys are tried in order before
// descending into its values.
func deepFind(node gjson.Result, keys ...string) (gjson.Result, bool) {
	switch {
	case node.IsObject():
		for _, key := range keys {
			if v := field(node, key); v.Exists() {
				return v, v.Type != gjson.Null
			}
		}
		var out gjson.Result
		found := false
		node.ForEach(func(_, v gjson.Result) bool {
			out, found = deepFind(v, keys...)
			return !found
		})
		return out, found
	case node.IsArray():
		var out gjson.Result
		found := false
		node.ForEach(func(_, v gjson.Result) bool {
			out, found = deepFind(v, keys...)
			return !found
		})
		return out, found
	}
	return gjson.Result{}, false
}

// field returns obj[key] without interpreting key as a gjson path.
func field(obj gjson.Result, key string) gjson.Result {
	var out gjson.Result
	if !obj.IsObject() {
		return out
	}
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	return out
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.String() != ""
	case gjson.JSON:
		nonEmpty := false
		v.ForEach(func(_, _ gjson.Result) bool {
			nonEmpty = true
			return false
		})
		return nonEmpty
	}
	return false
}
