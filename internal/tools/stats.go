package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rogercare/roger-go/internal/metrics"
	"github.com/rogercare/roger-go/internal/models"
)

// MemoryStatsInput defines the input schema for the memory_stats tool.
type MemoryStatsInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session to inspect"`
}

// memoryStatsOutput is the JSON shape returned by memory_stats.
type memoryStatsOutput struct {
	SessionID      string                `json:"session_id"`
	ShortTermCount int                   `json:"short_term_count"`
	WorkingCount   int                   `json:"working_count"`
	LongTermCount  int                   `json:"long_term_count"`
	PatientProfile models.PatientProfile `json:"patient_profile"`
	Metrics        metrics.Snapshot      `json:"metrics"`
}

// NewMemoryStatsHandler creates the memory_stats tool handler.
func NewMemoryStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[MemoryStatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input MemoryStatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.SessionID == "" {
			return ErrorResult("Session ID cannot be empty", "Provide the session to inspect"), nil, nil
		}

		shortTerm, working, longTerm, profile, ok := deps.Assembler.MemoryStats(input.SessionID)
		if !ok {
			return ErrorResult("Unknown session", "The session has no recorded turns"), nil, nil
		}

		out := memoryStatsOutput{
			SessionID:      input.SessionID,
			ShortTermCount: shortTerm,
			WorkingCount:   working,
			LongTermCount:  longTerm,
			PatientProfile: profile,
			Metrics:        deps.Assembler.Metrics().Snapshot(),
		}
		jsonBytes, _ := json.MarshalIndent(out, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
