package config

import (
	"os"
	"path/filepath"

	"github.com/daryltucker/workload-bench/internal/model"
)

type args = map[string]any

// DefaultServers is the built-in catalog of iMessage MCP servers. Paths of
// vendored servers live under vendorDir, made absolute so they do not depend
// on each server's working directory.
func DefaultServers(vendorDir string) []model.ServerSpec {
	if abs, err := filepath.Abs(vendorDir); err == nil {
		vendorDir = abs
	}
	vendor := func(parts ...string) string {
		return filepath.Join(append([]string{vendorDir}, parts...)...)
	}
	home, _ := os.UserHomeDir()

	return []model.ServerSpec{
		{
			Name:    "brew MCP: cardmagic/messages (messages --mcp)",
			Command: "messages",
			Args:    []string{"--mcp"},
			Workloads: map[string]model.ToolCall{
				WorkloadRecent: {Name: "recent_messages", Args: args{"limit": 1}},
				WorkloadSearch: {Name: "search_messages", Args: args{"query": "http", "limit": 1}},
				WorkloadThread: {Name: "get_thread", Args: args{"contact": model.Placeholder, "limit": 1}},
			},
			Target: &model.TargetSelector{Tool: "list_conversations", Args: args{"limit": 1}, Kind: "contact_line"},
		},
		{
			Name:    "github MCP: wyattjoh/imessage-mcp (deno stdio)",
			Command: "deno",
			Args:    []string{"run", "--allow-read", "--allow-env", "--allow-sys", "--allow-run", "--allow-ffi", "packages/imessage-mcp/mod.ts"},
			Cwd:     vendor("imessage-mcp"),
			Workloads: map[string]model.ToolCall{
				WorkloadRecent: {Name: "get_recent_messages", Args: args{"limit": 1}},
				WorkloadSearch: {Name: "search_messages", Args: args{"query": "http", "limit": 1}},
				WorkloadThread: {Name: "get_messages_from_chat", Args: args{"chatGuid": model.Placeholder, "limit": 1, "offset": 0}},
			},
			Target: &model.TargetSelector{Tool: "get_chats", Args: args{"limit": 1, "offset": 0}, Kind: "chat_guid"},
		},
		{
			Name:    "github MCP: jonmmease/jons-mcp-imessage (python fastmcp stdio)",
			Command: vendor("jons-mcp-imessage", ".venv", "bin", "jons-mcp-imessage"),
			Cwd:     vendor("jons-mcp-imessage"),
			Workloads: map[string]model.ToolCall{
				WorkloadRecent: {Name: "get_recent_messages", Args: args{"limit": 1}},
				WorkloadSearch: {Name: "search_messages", Args: args{"query": "http", "limit": 1}},
				WorkloadThread: {Name: "get_conversation_messages", Args: args{"chat_id": model.Placeholder, "limit": 1}},
			},
			Target: &model.TargetSelector{Tool: "list_conversations", Args: args{"limit": 1, "offset": 0}, Kind: "chat_id"},
		},
		{
			Name:        "github MCP: mattt/iMCP (swift stdio proxy)",
			Command:     vendor("iMCP", ".derived", "Build", "Products", "Release", "iMCP.app", "Contents", "MacOS", "imcp-server"),
			Cwd:         vendor("iMCP"),
			InstallHint: "Ensure iMCP.app is running with MCP Server enabled and Messages service activated.",
			Workloads: map[string]model.ToolCall{
				WorkloadRecent: {Name: "messages_fetch", Args: args{"limit": 1}},
				WorkloadSearch: {Name: "messages_fetch", Args: args{"query": "http", "limit": 1}},
				WorkloadThread: {Name: "messages_fetch", Args: args{"participants": []any{model.Placeholder}, "limit": 1}},
			},
			Target: &model.TargetSelector{Tool: "messages_fetch", Args: args{"limit": 1}, Kind: "sender_id"},
		},
		{
			Name:    "github MCP: TextFly/photon-imsg-mcp (node stdio)",
			Command: "node",
			Args:    []string{vendor("photon-imsg-mcp", "dist", "index.js")},
			Cwd:     vendor("photon-imsg-mcp"),
			Workloads: map[string]model.ToolCall{
				WorkloadUnread: {Name: "photon_read_messages", Args: args{"limit": 1, "unreadOnly": true}},
				WorkloadRecent: {Name: "photon_get_conversations", Args: args{"limit": 1}},
				WorkloadThread: {Name: "photon_read_messages", Args: args{"chatId": model.Placeholder, "limit": 1}},
			},
			Target: &model.TargetSelector{Tool: "photon_get_conversations", Args: args{"limit": 1}, Kind: "photon_chat_id"},
		},
		{
			Name:    "github MCP: sameelarif/imessage-mcp (node tsx)",
			Command: vendor("sameelarif-imessage-mcp", "node_modules", ".bin", "tsx"),
			Args:    []string{"src/index.ts"},
			Cwd:     vendor("sameelarif-imessage-mcp"),
			Workloads: map[string]model.ToolCall{
				WorkloadUnread: {Name: "get-unread-messages", Args: args{}},
				WorkloadRecent: {Name: "get-messages", Args: args{"limit": 1}},
				WorkloadSearch: {Name: "search-messages", Args: args{"query": "http", "limit": 1}},
				WorkloadThread: {Name: "get-conversation", Args: args{"contact": model.Placeholder, "limit": 1}},
			},
			Target: &model.TargetSelector{Tool: "list-contacts", Args: args{"limit": 1}, Kind: "phone_number"},
		},
		{
			Name:    "github MCP: imessage-query-fastmcp-mcp-server (uv script)",
			Command: "uv",
			Args:    []string{"run", "--script", "imessage-query-server.py"},
			Cwd:     vendor("imessage-query-fastmcp-mcp-server"),
			Workloads: map[string]model.ToolCall{
				WorkloadThread: {Name: "get_chat_transcript", Args: args{"phone_number": model.Placeholder}},
			},
		},
		{
			Name:    "github MCP: mcp-imessage (node stdio)",
			Command: "node",
			Args:    []string{vendor("mcp-imessage", "build", "index.js")},
			Cwd:     vendor("mcp-imessage"),
			Env:     map[string]string{"DATABASE_URL": filepath.Join(home, "Library", "Messages", "chat.db")},
			Workloads: map[string]model.ToolCall{
				WorkloadThread: {Name: "get-recent-chat-messages", Args: args{"phoneNumber": model.Placeholder, "limit": 1}},
			},
		},
		{
			Name:    "github MCP: imessage-mcp-improved (node stdio)",
			Command: "node",
			Args:    []string{vendor("imessage-mcp-improved", "server", "index.js")},
			Cwd:     vendor("imessage-mcp-improved"),
			Workloads: map[string]model.ToolCall{
				WorkloadUnread: {Name: "get_unread_imessages", Args: args{"limit": 1}},
			},
		},
	}
}
