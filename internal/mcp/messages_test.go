package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEncoding(t *testing.T) {
	b, err := json.Marshal(NewRequest(7, MethodToolsCall, map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"x"}}`, string(b))

	b, err = json.Marshal(NewNotification(MethodInitialized))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(b))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		match    bool
		hasError bool
		message  string
	}{
		{"result", `{"jsonrpc":"2.0","id":3,"result":{"ok":true}}`, true, false, ""},
		{"float id", `{"jsonrpc":"2.0","id":3.0,"result":{}}`, true, false, ""},
		{"error", `{"jsonrpc":"2.0","id":3,"error":{"code":-1,"message":"bad"}}`, true, true, "bad"},
		{"null error still counts", `{"jsonrpc":"2.0","id":3,"error":null}`, true, true, ""},
		{"other id", `{"jsonrpc":"2.0","id":4,"result":{}}`, false, false, ""},
		{"string id", `{"jsonrpc":"2.0","id":"3","result":{}}`, false, false, ""},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/message"}`, false, false, ""},
		{"array", `[1,2,3]`, false, false, ""},
		{"junk", `server starting...`, false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := parseResponse([]byte(tt.line), 3)
			assert.Equal(t, tt.match, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.hasError, resp.HasError)
			assert.Equal(t, tt.message, resp.ErrorMessage())
			assert.Equal(t, tt.line, string(resp.Raw))
		})
	}
}

func TestDecodeTools(t *testing.T) {
	tools := decodeTools(json.RawMessage(`{"tools":[{"name":"a","description":"d"},"bogus",{"name":"b"}]}`))
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "b", tools[1].Name)
	assert.Nil(t, decodeTools(nil))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, ToolNames(tools))
}
