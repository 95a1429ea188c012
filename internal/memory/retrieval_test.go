package memory

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededBank(t *testing.T) (*Bank, *testClock) {
	t.Helper()
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	bank.AddMemory(ctx, "my dog Max died last month", models.RolePatient,
		[]string{"grief", "sad"}, []string{"pets", "loss"}, 0.9)
	bank.AddMemory(ctx, "I love hiking on weekends", models.RolePatient,
		nil, []string{"hobbies"}, 0.4)
	bank.AddMemory(ctx, "work has been stressful lately", models.RolePatient,
		[]string{"anxious"}, []string{"work"}, 0.6)
	bank.AddMemory(ctx, "my sister visits on sundays", models.RolePatient,
		nil, []string{"family"}, 0.5)
	return bank, clock
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	bank, _ := seededBank(t)

	results := bank.Retrieve("I miss my dog so much", RetrieveOptions{})
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "dog")
}

func TestRetrieveDeterministicOrdering(t *testing.T) {
	// Two identically seeded banks return the same ordered top-k for the
	// same input.
	a, _ := seededBank(t)
	b, _ := seededBank(t)

	resA := a.Retrieve("stressful week at work", RetrieveOptions{})
	resB := b.Retrieve("stressful week at work", RetrieveOptions{})

	require.Equal(t, len(resA), len(resB))
	for i := range resA {
		assert.Equal(t, resA[i].Content, resB[i].Content, "position %d", i)
	}
}

func TestRetrieveTopKBound(t *testing.T) {
	bank := NewBank("s1", nil, testLogger(), nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		bank.AddMemory(ctx, fmt.Sprintf("note about topic %d", i), models.RolePatient, nil, nil, 0.5)
	}

	results := bank.Retrieve("topic note", RetrieveOptions{})
	assert.Len(t, results, DefaultTopK)

	results = bank.Retrieve("topic note", RetrieveOptions{K: 2})
	assert.Len(t, results, 2)
}

func TestRetrieveReinforcement(t *testing.T) {
	bank, _ := seededBank(t)

	first := bank.Retrieve("my dog", RetrieveOptions{K: 1})
	require.Len(t, first, 1)
	assert.Equal(t, 2, first[0].AccessCount)

	second := bank.Retrieve("my dog", RetrieveOptions{K: 1})
	require.Len(t, second, 1)
	assert.Equal(t, 3, second[0].AccessCount)
}

func TestRetrieveTieBreaksToNewer(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	bank.AddMemory(ctx, "identical relevance entry", models.RolePatient, nil, nil, 0.5)
	clock.Advance(time.Minute)
	bank.AddMemory(ctx, "identical relevance entry", models.RolePatient, nil, nil, 0.5)

	results := bank.Retrieve("unrelated query", RetrieveOptions{K: 2})
	require.Len(t, results, 2)
	assert.True(t, results[0].Timestamp.After(results[1].Timestamp) ||
		results[0].Timestamp.Equal(results[1].Timestamp))
}

func TestRetrieveFilters(t *testing.T) {
	bank, _ := seededBank(t)

	results := bank.Retrieve("anything", RetrieveOptions{TopicFilter: []string{"pets"}})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "dog")

	results = bank.Retrieve("anything", RetrieveOptions{EmotionFilter: []string{"anxious"}})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "work")
}

func TestRetrieveLongTermImportanceFloor(t *testing.T) {
	clock := newTestClock()
	bank := NewBank("s1", nil, testLogger(), clock.Now)
	ctx := context.Background()

	// Long-term via emotion gate but below the retrieval floor.
	bank.AddMemory(ctx, "a difficult anniversary", models.RolePatient, []string{"grief"}, nil, 0.5)
	// Push it out of the recent short-term window and the working tier
	// never held it (importance too low, grief not a working emotion).
	for i := 0; i < recentShortTermWindow; i++ {
		bank.AddMemory(ctx, fmt.Sprintf("filler %d", i), models.RolePatient, nil, nil, 0.1)
	}

	results := bank.Retrieve("anniversary", RetrieveOptions{K: 20})
	for _, r := range results {
		assert.NotContains(t, r.Content, "anniversary")
	}
}

func TestExtractKeywords(t *testing.T) {
	kws := extractKeywords("I really miss my dog, and the house feels empty!")
	assert.Contains(t, kws, "miss")
	assert.Contains(t, kws, "dog")
	assert.Contains(t, kws, "empty")
	assert.NotContains(t, kws, "the")
	assert.NotContains(t, kws, "my")
}

func TestGroundPrependsMemoryReference(t *testing.T) {
	g := NewGrounder(rand.New(rand.NewSource(3)))
	top := models.MemoryPiece{Content: "your dog Max died last month"}

	out := g.Ground("That kind of sadness can come in waves.", top)
	assert.NotEqual(t, "That kind of sadness can come in waves.", out)
	assert.Contains(t, out, "dog Max")
	assert.Contains(t, out, "That kind of sadness can come in waves.")
}

func TestGroundSkipsWhenMarkerPresent(t *testing.T) {
	g := NewGrounder(rand.New(rand.NewSource(3)))
	top := models.MemoryPiece{Content: "your dog Max died last month"}

	response := "I remember you mentioned how hard this has been."
	assert.Equal(t, response, g.Ground(response, top))
}

func TestGroundSkipsWhenContentAlreadyPresent(t *testing.T) {
	g := NewGrounder(rand.New(rand.NewSource(3)))
	top := models.MemoryPiece{Content: "hiking on weekends"}

	response := "Maybe getting back to hiking on weekends could help."
	assert.Equal(t, response, g.Ground(response, top))
}

func TestGroundSeededVariety(t *testing.T) {
	a := NewGrounder(rand.New(rand.NewSource(5)))
	b := NewGrounder(rand.New(rand.NewSource(5)))
	top := models.MemoryPiece{Content: "work has been stressful"}

	assert.Equal(t,
		a.Ground("Be kind to yourself today.", top),
		b.Ground("Be kind to yourself today.", top),
	)
}
