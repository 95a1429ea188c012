package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CrisisHistoryInput defines the input schema for the crisis_history tool.
type CrisisHistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session whose crisis events to list"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Max events 1-100, default all"`
}

// NewCrisisHistoryHandler creates the crisis_history tool handler.
// Store-backed; unavailable when the server runs without storage.
func NewCrisisHistoryHandler(deps *Dependencies) mcp.ToolHandlerFor[CrisisHistoryInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CrisisHistoryInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.SessionID == "" {
			return ErrorResult("Session ID cannot be empty", "Provide the session to inspect"), nil, nil
		}
		if deps.Events == nil {
			return ErrorResult("Crisis history unavailable", "The server is running without durable storage"), nil, nil
		}
		if input.Limit < 0 || input.Limit > 100 {
			return ErrorResult("Limit must be 1-100", "Reduce limit value"), nil, nil
		}

		events, err := deps.Events.ListCrisisEvents(ctx, input.SessionID, input.Limit)
		if err != nil {
			deps.Logger.Error("crisis history lookup failed", "session_id", input.SessionID, "error", err)
			return ErrorResult("Failed to list crisis events", "Storage may be unavailable"), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(events, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
