package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionResetInput defines the input schema for the session_reset tool.
type SessionResetInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session to reset"`
}

// NewSessionResetHandler creates the session_reset tool handler. This is
// the explicit new-conversation operation: it clears crisis state,
// conversation state, the session's memory bank, and the in-flight guard.
func NewSessionResetHandler(deps *Dependencies) mcp.ToolHandlerFor[SessionResetInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SessionResetInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.SessionID == "" {
			return ErrorResult("Session ID cannot be empty", "Provide the session to reset"), nil, nil
		}

		deps.Assembler.Reset(input.SessionID)
		return TextResult("session reset: " + input.SessionID), nil, nil
	}
}
