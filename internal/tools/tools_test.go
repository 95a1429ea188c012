package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogercare/roger-go/internal/crisis"
	"github.com/rogercare/roger-go/internal/models"
	"github.com/rogercare/roger-go/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEvents struct {
	events []models.CrisisEvent
	err    error
}

func (f *fakeEvents) ListCrisisEvents(_ context.Context, sessionID string, limit int) ([]models.CrisisEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.events
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestDeps(events CrisisEventLister) *Dependencies {
	logger := testLogger()
	classifier := crisis.NewClassifier(logger)
	templates := crisis.NewTemplates(rand.New(rand.NewSource(42)))
	escalator := crisis.NewEscalator(classifier, templates, nil, nil, logger, nil)

	asm := pipeline.NewAssembler(pipeline.Options{
		Classifier: classifier,
		Escalator:  escalator,
		Logger:     logger,
		NewRNG:     func() *rand.Rand { return rand.New(rand.NewSource(7)) },
	})
	return &Dependencies{Assembler: asm, Events: events, Logger: logger}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestPingHandler(t *testing.T) {
	handler := NewPingHandler(newTestDeps(nil))

	result, _, err := handler(context.Background(), nil, PingInput{})
	require.NoError(t, err)
	assert.Equal(t, "pong", textOf(t, result))

	result, _, err = handler(context.Background(), nil, PingInput{Echo: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", textOf(t, result))
}

func TestConverseHandler(t *testing.T) {
	handler := NewConverseHandler(newTestDeps(nil))

	result, _, err := handler(context.Background(), nil, ConverseInput{
		Message:   "I planted tomatoes this morning",
		SessionID: "s1",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out models.TurnOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &out))
	assert.False(t, out.CrisisFlag)
	assert.NotEmpty(t, out.Text)
}

func TestConverseHandlerCrisisTurn(t *testing.T) {
	handler := NewConverseHandler(newTestDeps(nil))

	result, _, err := handler(context.Background(), nil, ConverseInput{
		Message:   "I want to kill myself tonight",
		SessionID: "s1",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out models.TurnOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &out))
	assert.True(t, out.CrisisFlag)
	assert.Contains(t, out.Text, "988")
	assert.Contains(t, out.Text, "911")
}

func TestConverseHandlerEmptyMessage(t *testing.T) {
	handler := NewConverseHandler(newTestDeps(nil))

	result, _, err := handler(context.Background(), nil, ConverseInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSessionResetHandler(t *testing.T) {
	deps := newTestDeps(nil)
	converse := NewConverseHandler(deps)
	reset := NewSessionResetHandler(deps)

	_, _, err := converse(context.Background(), nil, ConverseInput{Message: "hello", SessionID: "s1"})
	require.NoError(t, err)

	result, _, err := reset(context.Background(), nil, SessionResetInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "s1")

	// Stats for a reset session report unknown.
	stats := NewMemoryStatsHandler(deps)
	statsResult, _, err := stats(context.Background(), nil, MemoryStatsInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, statsResult.IsError)
}

func TestMemoryStatsHandler(t *testing.T) {
	deps := newTestDeps(nil)
	converse := NewConverseHandler(deps)
	stats := NewMemoryStatsHandler(deps)

	_, _, err := converse(context.Background(), nil, ConverseInput{
		Message:   "my dog max is getting old and I am so sad",
		SessionID: "s1",
	})
	require.NoError(t, err)

	result, _, err := stats(context.Background(), nil, MemoryStatsInput{SessionID: "s1"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out memoryStatsOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &out))
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, 2, out.ShortTermCount)
	assert.Equal(t, 1, out.PatientProfile.TopicFrequency["pets"])
	require.NotNil(t, out.Metrics.Turn)
	assert.Equal(t, int64(1), out.Metrics.Turn.Count)
}

func TestCrisisHistoryHandler(t *testing.T) {
	events := &fakeEvents{events: []models.CrisisEvent{
		{
			Timestamp:  time.Now(),
			SessionID:  "s1",
			CrisisType: models.CrisisSuicide,
			Severity:   models.SeverityCritical,
		},
	}}
	handler := NewCrisisHistoryHandler(newTestDeps(events))

	result, _, err := handler(context.Background(), nil, CrisisHistoryInput{SessionID: "s1"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []models.CrisisEvent
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, models.CrisisSuicide, out[0].CrisisType)
}

func TestCrisisHistoryHandlerWithoutStore(t *testing.T) {
	handler := NewCrisisHistoryHandler(newTestDeps(nil))

	result, _, err := handler(context.Background(), nil, CrisisHistoryInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCrisisHistoryHandlerStoreFailure(t *testing.T) {
	handler := NewCrisisHistoryHandler(newTestDeps(&fakeEvents{err: errors.New("down")}))

	result, _, err := handler(context.Background(), nil, CrisisHistoryInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
