package payload

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCanonicalJSONSortsKeysAndKeepsNumbers(t *testing.T) {
	a, err := Decode([]byte(`{"b": 1.0, "a": [3, {"z": "<x>", "y": 12345678901234567890}]}`))
	require.NoError(t, err)
	b, err := Decode([]byte(`{"a":[3,{"y":12345678901234567890,"z":"<x>"}],"b":1.0}`))
	require.NoError(t, err)

	assert.Equal(t, `{"a":[3,{"y":12345678901234567890,"z":"<x>"}],"b":1.0}`, string(CanonicalJSON(a)))
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintSurvivesRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"s": "ok\xffbad", "n": 1.5, "list": []any{"a", nil, true}},
		map[string]any{"bad\xfekey": "x", "nested": map[string]any{"t": "caf\xc3"}},
		[]any{"plain", "\u00e9t\u00e9", math.NaN()},
	}
	for _, v := range values {
		dumped := CanonicalJSON(v)
		parsed, err := Decode(dumped)
		require.NoError(t, err)
		assert.Equal(t, string(dumped), string(CanonicalJSON(parsed)))
		assert.Equal(t, Fingerprint(v), Fingerprint(parsed))
	}
	assert.Equal(t, "{\"s\":\"ok\ufffdbad\"}", string(CanonicalJSON(map[string]any{"s": "ok\xffbad"})))
}

func TestCanonicalizeNonNativeValues(t *testing.T) {
	type point struct{ X, Y int }
	v := map[string]any{
		"nan":   math.NaN(),
		"inf":   math.Inf(1),
		"strs":  []string{"a", "b"},
		"point": point{1, 2},
		"ints":  map[int]string{2: "two"},
	}
	out := string(CanonicalJSON(v))
	assert.Equal(t, `{"inf":"+Inf","ints":{"2":"two"},"nan":"NaN","point":"{1 2}","strs":["a","b"]}`, out)
	assert.Equal(t, out, string(CanonicalJSON(v)))
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(0))
	assert.Equal(t, 1, ApproxTokens(1))
	assert.Equal(t, 1, ApproxTokens(4))
	assert.Equal(t, 2, ApproxTokens(5))
	assert.Equal(t, 125, ApproxTokens(500))
}

func TestMeasure(t *testing.T) {
	resp := []byte(`{"jsonrpc":"2.0","id":1001,"result":{"content":[{"type":"text","text":"[1,2,3]"}]}}`)
	m := Measure(resp)

	canonical := `{"content":[{"text":"[1,2,3]","type":"text"}]}`
	require.NotNil(t, m.Bytes)
	assert.Equal(t, len(canonical), *m.Bytes)
	require.NotNil(t, m.TokensEst)
	assert.Equal(t, ApproxTokens(len(canonical)), *m.TokensEst)
	require.NotNil(t, m.Fingerprint)
	assert.Len(t, *m.Fingerprint, 64)
	require.NotNil(t, m.ItemCount)
	assert.Equal(t, 3, *m.ItemCount)
}

func TestMeasureWithoutResult(t *testing.T) {
	m := Measure([]byte(`{"jsonrpc":"2.0","id":1001,"error":{"code":-32601,"message":"nope"}}`))
	assert.Nil(t, m.Bytes)
	assert.Nil(t, m.TokensEst)
	assert.Nil(t, m.Fingerprint)

	assert.Equal(t, Metrics{}, Measure(nil))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want string
	}{
		{
			name: "json block",
			resp: `{"result":{"content":[{"type":"text","text":"plain"},{"json":{"items":[1,2]}},{"type":"text","text":"[9]"}]}}`,
			want: `{"items":[1,2]}`,
		},
		{
			name: "earlier text block wins over later json block",
			resp: `{"result":{"content":[{"type":"text","text":"[9]"},{"json":{"items":[1,2]}}]}}`,
			want: `[9]`,
		},
		{
			name: "text block parsing as array",
			resp: `{"result":{"content":[{"type":"text","text":"hello"},{"type":"text","text":" [1, 2] "}]}}`,
			want: `[1, 2]`,
		},
		{
			name: "plain text falls back to result",
			resp: `{"result":{"content":[{"type":"text","text":"no json here"}]}}`,
			want: `{"content":[{"type":"text","text":"no json here"}]}`,
		},
		{
			name: "non-object result yields the response",
			resp: `{"id":3,"result":[1]}`,
			want: `{"id":3,"result":[1]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON([]byte(tt.resp))
			require.True(t, got.Exists())
			assert.JSONEq(t, tt.want, got.Raw)
		})
	}

	assert.False(t, ExtractJSON([]byte(`[1,2]`)).Exists())
}

func TestCountItems(t *testing.T) {
	count := func(raw string) *int { return CountItems(gjson.Parse(raw)) }

	got := count(`{"a":[1,2],"b":{"c":[1,2,3,4]},"d":[[1,2,3,4,5]]}`)
	require.NotNil(t, got)
	assert.Equal(t, 5, *got)

	got = count(`{"a":[]}`)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)

	assert.Nil(t, count(`{"a":1}`))
	assert.Nil(t, count(`null`))
	assert.Nil(t, CountItems(gjson.Result{}))
}

func TestTextBlocks(t *testing.T) {
	resp := []byte(`{"result":{"content":[{"type":"text","text":"one"},{"type":"image"},{"type":"text","text":"  "},{"type":"text","text":"two"}]}}`)
	assert.Equal(t, []string{"one", "two"}, TextBlocks(resp))
	assert.Nil(t, TextBlocks([]byte(`{"result":{}}`)))
}

func TestCanonicalizeRawMessage(t *testing.T) {
	raw := json.RawMessage(`{"b":2,"a":1}`)
	assert.Equal(t, `{"a":1,"b":2}`, string(CanonicalJSON(raw)))
	assert.Equal(t, `"not json"`, string(CanonicalJSON(json.RawMessage(`not json`))))
}
