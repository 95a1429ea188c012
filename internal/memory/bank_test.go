package memory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory Store for tests.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]models.MemorySnapshot
	fail  bool
	saves int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]models.MemorySnapshot)}
}

func (s *memStore) SaveSnapshot(_ context.Context, sessionID string, snap models.MemorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("storage unavailable")
	}
	s.snaps[sessionID] = snap
	s.saves++
	return nil
}

func (s *memStore) LoadSnapshot(_ context.Context, sessionID string) (*models.MemorySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("storage unavailable")
	}
	snap, ok := s.snaps[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// testClock is a mutable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAddMemoryTierRouting(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()

	// Low importance, neutral emotion: short-term only.
	bank.AddMemory(ctx, "talked about the weather", models.RolePatient, nil, []string{"weather"}, 0.2)
	st, w, lt := bank.TierSizes()
	assert.Equal(t, 1, st)
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, lt)

	// Working via emotion gate.
	bank.AddMemory(ctx, "argument with my boss", models.RolePatient, []string{"angry"}, []string{"work"}, 0.4)
	_, w, lt = bank.TierSizes()
	assert.Equal(t, 1, w)
	assert.Equal(t, 0, lt)

	// Working via importance gate.
	bank.AddMemory(ctx, "lost my job today", models.RolePatient, nil, []string{"work"}, 0.75)
	_, w, _ = bank.TierSizes()
	assert.Equal(t, 2, w)

	// Long-term via emotion gate (and working via importance).
	bank.AddMemory(ctx, "my sister died last year", models.RolePatient, []string{"grief"}, []string{"family"}, 0.75)
	_, _, lt = bank.TierSizes()
	assert.Equal(t, 1, lt)

	// Long-term via importance gate.
	bank.AddMemory(ctx, "diagnosed with diabetes", models.RolePatient, nil, []string{"health"}, 0.9)
	_, _, lt = bank.TierSizes()
	assert.Equal(t, 2, lt)
}

func TestPieceSharedAcrossTiers(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()

	piece := bank.AddMemory(ctx, "my sister died last year", models.RolePatient,
		[]string{"grief", "sad"}, []string{"family"}, 0.9)

	// The same piece sits in short-term, working, and long-term.
	snap := bank.Snapshot()
	assert.Equal(t, piece.ID, snap.ShortTermMemory[0].ID)
	assert.Equal(t, piece.ID, snap.WorkingMemory[0].ID)
	assert.Equal(t, piece.ID, snap.LongTermMemory[0].ID)

	// Reinforcement through retrieval is visible in every tier.
	results := bank.Retrieve("tell me about my sister", RetrieveOptions{})
	require.NotEmpty(t, results)

	snap = bank.Snapshot()
	assert.Equal(t, 2, snap.ShortTermMemory[0].AccessCount)
	assert.Equal(t, 2, snap.WorkingMemory[0].AccessCount)
	assert.Equal(t, 2, snap.LongTermMemory[0].AccessCount)
}

func TestShortTermFIFOEviction(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()

	for i := 0; i < ShortTermCap+10; i++ {
		bank.AddMemory(ctx, fmt.Sprintf("memory %d", i), models.RolePatient, nil, nil, 0.1)
	}

	snap := bank.Snapshot()
	require.Len(t, snap.ShortTermMemory, ShortTermCap)
	// Oldest entries were evicted first.
	assert.Equal(t, "memory 10", snap.ShortTermMemory[0].Content)
}

func TestWorkingEvictsLowestImportance(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()

	for i := 0; i <= WorkingCap; i++ {
		importance := 0.71 + float64(i)*0.01
		bank.AddMemory(ctx, fmt.Sprintf("working %d", i), models.RolePatient, nil, nil, importance)
	}

	snap := bank.Snapshot()
	require.Len(t, snap.WorkingMemory, WorkingCap)
	for _, p := range snap.WorkingMemory {
		assert.NotEqual(t, "working 0", p.Content, "lowest-importance piece should have been evicted")
	}
}

func TestPatientProfileCounters(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()

	bank.AddMemory(ctx, "worried about money", models.RolePatient, []string{"anxious"}, []string{"finances"}, 0.5)
	bank.AddMemory(ctx, "still worried about money", models.RolePatient, []string{"anxious"}, []string{"finances"}, 0.5)
	// Assistant turns do not touch the profile.
	bank.AddMemory(ctx, "that sounds stressful", models.RoleAssistant, []string{"anxious"}, []string{"finances"}, 0.5)

	profile := bank.Profile()
	assert.Equal(t, 2, profile.TopicFrequency["finances"])
	assert.Equal(t, 2, profile.EmotionFrequency["anxious"])
}

func TestPersistBestEffort(t *testing.T) {
	store := newMemStore()
	store.fail = true
	bank := NewBank("s1", store, testLogger(), nil)

	// Persist failure must not surface: the bank stays usable.
	bank.AddMemory(context.Background(), "hello", models.RolePatient, nil, nil, 0.5)
	st, _, _ := bank.TierSizes()
	assert.Equal(t, 1, st)
}

func TestInitializeRestoresSnapshot(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	original := NewBank("s1", store, testLogger(), nil)
	original.AddMemory(ctx, "my sister died last year", models.RolePatient,
		[]string{"grief"}, []string{"family"}, 0.9)

	restored := NewBank("s1", store, testLogger(), nil)
	require.True(t, restored.Initialize(ctx))

	st, w, lt := restored.TierSizes()
	assert.Equal(t, 1, st)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, lt)

	// Shared identity is rebuilt: reinforcement reaches all tiers.
	restored.Retrieve("my sister", RetrieveOptions{})
	snap := restored.Snapshot()
	assert.Equal(t, snap.ShortTermMemory[0].AccessCount, snap.LongTermMemory[0].AccessCount)
}

func TestInitializeRejectsInvalidSnapshot(t *testing.T) {
	store := newMemStore()
	store.snaps["s1"] = models.MemorySnapshot{
		ShortTermMemory: []models.MemoryPiece{{ID: "", Importance: 2.0}},
	}

	bank := NewBank("s1", store, testLogger(), nil)
	assert.False(t, bank.Initialize(context.Background()))

	st, _, _ := bank.TierSizes()
	assert.Equal(t, 0, st)
}

func TestInitializeWithoutStore(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	assert.False(t, bank.Initialize(context.Background()))
}

func TestInitializeMissingSnapshotIsQuiet(t *testing.T) {
	// A session with no snapshot yet is the normal first-run case, not a
	// schema rejection.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	bank := NewBank("s1", newMemStore(), logger, nil)
	assert.False(t, bank.Initialize(context.Background()))

	logs := buf.String()
	assert.Contains(t, logs, "no snapshot recorded")
	assert.NotContains(t, logs, "schema-invalid")
}

func TestConsolidatePromotesAndEvicts(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	bank.AddMemory(ctx, "important old memory", models.RolePatient, nil, []string{"family"}, 0.65)
	bank.AddMemory(ctx, "trivial old memory", models.RolePatient, nil, nil, 0.2)

	clock.Advance(25 * time.Hour)
	bank.AddMemory(ctx, "fresh memory", models.RolePatient, nil, nil, 0.3)

	bank.Consolidate(ctx)

	snap := bank.Snapshot()
	// Old entries left short-term; only the fresh one remains.
	require.Len(t, snap.ShortTermMemory, 1)
	assert.Equal(t, "fresh memory", snap.ShortTermMemory[0].Content)

	// The important old memory was promoted, the trivial one dropped.
	require.Len(t, snap.LongTermMemory, 1)
	assert.Equal(t, "important old memory", snap.LongTermMemory[0].Content)

	// No aged important short-term item remains outside long-term.
	for _, p := range snap.ShortTermMemory {
		old := clock.Now().Sub(p.Timestamp) >= 24*time.Hour
		assert.False(t, old && p.Importance > 0.6)
	}
}

func TestConsolidateIdempotentByID(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	// Already long-term via importance, also short-term.
	bank.AddMemory(ctx, "diagnosed with diabetes", models.RolePatient, nil, []string{"health"}, 0.9)

	clock.Advance(25 * time.Hour)
	bank.Consolidate(ctx)
	bank.Consolidate(ctx)

	snap := bank.Snapshot()
	assert.Len(t, snap.LongTermMemory, 1)
}

func TestConsolidateRecomputesForgetFactor(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	bank.AddMemory(ctx, "diagnosed with diabetes", models.RolePatient, nil, []string{"health"}, 0.9)

	clock.Advance(48 * time.Hour)
	bank.Consolidate(ctx)

	snap := bank.Snapshot()
	require.Len(t, snap.LongTermMemory, 1)
	got := snap.LongTermMemory[0].ForgetFactor
	want := RetentionFactor(48, 0.9, 1)
	assert.InDelta(t, want, got, 0.0001)
	assert.Less(t, got, 1.0)
}

func TestConsolidatorRunWithTicks(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bank.AddMemory(ctx, "old trivial memory", models.RolePatient, nil, nil, 0.2)
	clock.Advance(25 * time.Hour)

	ticks := make(chan time.Time)
	job := NewConsolidator(time.Hour, func() []*Bank { return []*Bank{bank} }, testLogger())

	done := make(chan struct{})
	go func() {
		job.RunWithTicks(ctx, ticks)
		close(done)
	}()

	ticks <- clock.Now()
	// A second tick proves the loop keeps running after one pass.
	ticks <- clock.Now()
	cancel()
	<-done

	st, _, _ := bank.TierSizes()
	assert.Equal(t, 0, st)
}
