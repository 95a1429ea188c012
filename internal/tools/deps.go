// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/rogercare/roger-go/internal/pipeline"
)

// CrisisEventLister reads back recorded crisis events. Satisfied by the
// SurrealDB store client; nil when the server runs without storage.
type CrisisEventLister interface {
	ListCrisisEvents(ctx context.Context, sessionID string, limit int) ([]models.CrisisEvent, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Assembler *pipeline.Assembler
	Events    CrisisEventLister
	Logger    *slog.Logger
}
