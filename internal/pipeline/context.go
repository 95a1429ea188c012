// Package pipeline assembles one conversation turn through an ordered
// list of stage functions sharing a TurnContext.
package pipeline

import (
	"github.com/rogercare/roger-go/internal/models"
)

// TurnContext is the shared state one turn's stages read and write.
// Stages mutate named fields only; a stage that fails leaves the
// pre-stage response intact.
type TurnContext struct {
	Input   models.TurnInput
	History []string

	Severity   models.Severity
	CrisisType models.CrisisType
	Location   models.LocationInfo

	Response    string
	CrisisFlag  bool
	ConcernType string
	Confidence  float64

	Retrieved []models.MemoryPiece
	Flags     []models.HallucinationFlag
	Systems   []string

	session      *session
	shortCircuit bool
}

// engage records a stage in the turn's SystemsEngaged metadata.
func (tc *TurnContext) engage(name string) {
	tc.Systems = append(tc.Systems, name)
}

// ShortCircuit stops all later stages; the current response is final.
func (tc *TurnContext) ShortCircuit() {
	tc.shortCircuit = true
}
