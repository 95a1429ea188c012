package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/rogercare/roger-go/internal/pipeline"
)

// ConverseInput defines the input schema for the converse tool.
type ConverseInput struct {
	Message   string `json:"message" jsonschema:"required,The user's message for this turn"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Conversation session identifier, default 'default'"`
	UserAgent string `json:"user_agent,omitempty" jsonschema:"Optional client identifier carried into crisis alerts"`
}

// NewConverseHandler creates the converse tool handler. Runs one full
// pipeline turn and returns the gated TurnOutput as JSON.
func NewConverseHandler(deps *Dependencies) mcp.ToolHandlerFor[ConverseInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ConverseInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Message == "" {
			return ErrorResult("Message cannot be empty", "Provide the user's message"), nil, nil
		}

		sessionID := input.SessionID
		if sessionID == "" {
			sessionID = "default"
		}

		out, err := deps.Assembler.Process(ctx, models.TurnInput{
			Text:      input.Message,
			SessionID: sessionID,
			UserAgent: input.UserAgent,
		})
		if errors.Is(err, pipeline.ErrTurnInFlight) {
			return ErrorResult("A turn is already in flight for this session", "Wait for the current reply before sending another message"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("converse failed", "session_id", sessionID, "error", err)
			return ErrorResult("Turn processing failed", "Retry the message"), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(out, "", "  ")
		deps.Logger.Info("converse completed",
			"session_id", sessionID,
			"crisis_flag", out.CrisisFlag,
			"systems", out.Metadata.SystemsEngaged,
		)
		return TextResult(string(jsonBytes)), nil, nil
	}
}
