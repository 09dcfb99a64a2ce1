package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// JSON-RPC methods used against a tool server.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Fixed request ids of a session. Tool calls count up from FirstCallID.
const (
	InitializeID = 1
	ListToolsID  = 2
	FirstCallID  = 1001
)

// Request is an outgoing JSON-RPC message. A nil ID makes it a notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request with the given id.
func NewRequest(id int, method string, params any) Request {
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// NewNotification builds a message without an id.
func NewNotification(method string) Request {
	return Request{JSONRPC: "2.0", Method: method}
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is a matched JSON-RPC response line.
type Response struct {
	ID     int
	Result json.RawMessage
	// HasError is true when the "error" key is present at all, even if null.
	HasError bool
	Error    *RPCError
	// Raw is the full response line as received.
	Raw []byte
}

// ErrorMessage returns error.message, or "" when there is none.
func (r *Response) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// parseResponse decodes line when it is a JSON object whose numeric id equals
// expectedID. Anything else is reported as not matching.
func parseResponse(line []byte, expectedID int) (*Response, bool) {
	if !gjson.ValidBytes(line) {
		return nil, false
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, false
	}
	id := doc.Get("id")
	if id.Type != gjson.Number || id.Float() != float64(expectedID) {
		return nil, false
	}
	resp := &Response{ID: expectedID, Raw: line}
	if result := doc.Get("result"); result.Exists() {
		resp.Result = json.RawMessage(result.Raw)
	}
	if errVal := doc.Get("error"); errVal.Exists() {
		resp.HasError = true
		var rpcErr RPCError
		if errVal.IsObject() && json.Unmarshal([]byte(errVal.Raw), &rpcErr) == nil {
			resp.Error = &rpcErr
		}
	}
	return resp, true
}

// Tool is one entry of a tools/list result.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type toolsListResult struct {
	Tools []json.RawMessage `json:"tools"`
}

// decodeTools reads the tools of a tools/list result, skipping entries that
// are not objects.
func decodeTools(result json.RawMessage) []Tool {
	var list toolsListResult
	if len(result) == 0 || json.Unmarshal(result, &list) != nil {
		return nil
	}
	tools := make([]Tool, 0, len(list.Tools))
	for _, raw := range list.Tools {
		var tool Tool
		if json.Unmarshal(raw, &tool) != nil {
			continue
		}
		tools = append(tools, tool)
	}
	return tools
}
