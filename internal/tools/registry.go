package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	// Ping tool - health check
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Health check - responds with pong or echoes input",
	}, NewPingHandler(deps))

	// Converse tool - one gated conversation turn
	mcp.AddTool(server, &mcp.Tool{
		Name:        "converse",
		Description: "Send one user message through the full safety pipeline and get the gated reply",
	}, NewConverseHandler(deps))

	// Session reset tool - explicit new conversation
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_reset",
		Description: "Start a new conversation: clears crisis state, conversation state, and memory for a session",
	}, NewSessionResetHandler(deps))

	// Memory stats tool - tier sizes and patient profile
	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Inspect a session's memory tier sizes, patient profile, and runtime metrics",
	}, NewMemoryStatsHandler(deps))

	// Crisis history tool - recorded crisis events
	mcp.AddTool(server, &mcp.Tool{
		Name:        "crisis_history",
		Description: "List recorded crisis events for a session, newest first",
	}, NewCrisisHistoryHandler(deps))
}
