/*
PURPOSE:
  Canonical serialization of tool-call payloads and the metrics derived from it:
  payload bytes, token estimate, content fingerprint and max nested item count.

REQUIREMENTS:
  User-specified:
  - Fingerprints must be equal for structurally equal JSON regardless of key order.
  - Byte size and fingerprint must be a defined contract, not an encoder accident.

  Implementation-discovered:
  - Numbers are decoded with UseNumber so re-serialization keeps the literal text
    (1.0 stays 1.0, large ints keep precision).
  - encoding/json already sorts map keys; Canonicalize makes sure everything
    reaching the encoder is a map, slice or scalar.
  - gjson is used for extraction because it walks objects in document order.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (per call), internal/target (payload lookup)

ERROR HANDLING:
  - Undecodable payloads fall back to their raw string form, never an error.

RELATED FILES:
  - internal/payload/validate.go
*/

package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Canonicalize maps v onto JSON-native values. Maps become map[string]any,
// slices become []any, and anything without a JSON form (NaN, Inf, structs,
// channels, funcs) becomes a deterministic string.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case string:
		return validText(t)
	case json.Number:
		if _, err := strconv.ParseFloat(t.String(), 64); err != nil {
			return t.String()
		}
		return t
	case json.RawMessage:
		decoded, err := Decode(t)
		if err != nil {
			return validText(string(t))
		}
		return Canonicalize(decoded)
	case float64:
		return canonicalFloat(t)
	case float32:
		return canonicalFloat(float64(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[validText(k)] = Canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Canonicalize(val)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[validText(fmt.Sprint(iter.Key().Interface()))] = Canonicalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = Canonicalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Canonicalize(rv.Elem().Interface())
	}
	return validText(fmt.Sprint(v))
}

// validText replaces invalid UTF-8 with U+FFFD, the same text a decoder
// produces from the encoded form.
func validText(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func canonicalFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

// CanonicalJSON returns the compact, key-sorted, non-HTML-escaped encoding of v.
func CanonicalJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Canonicalize(v)); err != nil {
		// Canonicalize only yields encodable values; keep a stable form anyway.
		return []byte(strconv.Quote(fmt.Sprint(v)))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// Decode parses raw JSON keeping numbers as json.Number.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Fingerprint is the SHA-256 hex digest of the canonical serialization of v.
func Fingerprint(v any) string {
	sum := sha256.Sum256(CanonicalJSON(v))
	return hex.EncodeToString(sum[:])
}

// ApproxTokens estimates tokens as ceil(bytes/4).
func ApproxTokens(byteCount int) int {
	return int(math.Ceil(float64(byteCount) / 4.0))
}

// Metrics are the payload-derived numbers recorded on every call.
type Metrics struct {
	Bytes       *int
	TokensEst   *int
	Fingerprint *string
	ItemCount   *int
}

// Measure derives payload metrics from one raw JSON-RPC response line. A
// missing or null result leaves bytes, tokens and fingerprint unset.
func Measure(response []byte) Metrics {
	var m Metrics
	if len(response) == 0 {
		return m
	}
	m.ItemCount = CountItems(ExtractJSON(response))

	result := gjson.GetBytes(response, "result")
	if !result.Exists() || result.Type == gjson.Null {
		return m
	}
	value, err := Decode([]byte(result.Raw))
	if err != nil {
		value = result.Raw
	}
	canonical := CanonicalJSON(value)
	if len(canonical) > 0 {
		m.Bytes = ptr(len(canonical))
		m.TokensEst = ptr(ApproxTokens(len(canonical)))
	}
	sum := sha256.Sum256(canonical)
	m.Fingerprint = ptr(hex.EncodeToString(sum[:]))
	return m
}

// ExtractJSON returns the structured payload carried by a tools/call response.
// Content blocks are scanned in order; the first one that has a "json" field
// or whose text parses as a JSON object or array wins. Without such a block
// the result itself is returned, and a response whose result is not an object
// yields the whole response.
func ExtractJSON(response []byte) gjson.Result {
	resp := gjson.ParseBytes(response)
	if !resp.IsObject() {
		return gjson.Result{}
	}
	result := resp.Get("result")
	if !result.IsObject() {
		return resp
	}
	content := result.Get("content")
	if content.IsArray() {
		var found gjson.Result
		ok := false
		content.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			if j := item.Get("json"); j.Exists() {
				found, ok = j, true
				return false
			}
			text := item.Get("text")
			if text.Type != gjson.String {
				return true
			}
			s := strings.TrimSpace(text.String())
			if (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) && gjson.Valid(s) {
				found, ok = gjson.Parse(s), true
				return false
			}
			return true
		})
		if ok {
			return found
		}
	}
	return result
}

// TextBlocks returns the non-blank text content blocks of a tools/call response.
func TextBlocks(response []byte) []string {
	content := gjson.GetBytes(response, "result.content")
	if !content.IsArray() {
		return nil
	}
	var texts []string
	content.ForEach(func(_, item gjson.Result) bool {
		text := item.Get("text")
		if item.IsObject() && text.Type == gjson.String && strings.TrimSpace(text.String()) != "" {
			texts = append(texts, text.String())
		}
		return true
	})
	return texts
}

// CountItems returns the longest array found at any depth of r (a depth-first
// max, not a total). Nil when r is absent or contains no arrays.
func CountItems(r gjson.Result) *int {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	best := -1
	var visit func(n gjson.Result)
	visit = func(n gjson.Result) {
		switch {
		case n.IsArray():
			items := n.Array()
			best = max(best, len(items))
			for _, item := range items {
				visit(item)
			}
		case n.IsObject():
			n.ForEach(func(_, v gjson.Result) bool {
				visit(v)
				return true
			})
		}
	}
	visit(r)
	if best < 0 {
		return nil
	}
	return ptr(best)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr[T any](v T) *T {
	return &v
}
