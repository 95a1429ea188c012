package memory

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/rogercare/roger-go/internal/models"
)

// memoryMarkers are phrases that already reference a remembered fact.
// A response carrying one is left alone.
var memoryMarkers = []string{
	"you mentioned",
	"you told me",
	"i remember",
	"earlier you said",
	"last time we talked",
	"you shared",
}

// groundingPhrases is the varied phrasing pool for prepended memory
// references. %s receives the remembered content.
var groundingPhrases = []string{
	"I remember you mentioned %s.",
	"Earlier you told me about %s.",
	"You shared with me that %s.",
	"Thinking back to what you said about %s -",
}

// maxGroundingSnippet bounds the remembered content quoted into a
// response.
const maxGroundingSnippet = 90

// Grounder weaves retrieved memories into candidate responses, with a
// seeded random source for phrase variety.
type Grounder struct {
	rng *rand.Rand
}

// NewGrounder creates a grounder with the given random source.
func NewGrounder(rng *rand.Rand) *Grounder {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Grounder{rng: rng}
}

// Ground prepends a natural memory reference when the top retrieved
// memory is not already reflected in the response. Responses that already
// carry a memory-reference marker are returned unchanged.
func (g *Grounder) Ground(response string, top models.MemoryPiece) string {
	if top.Content == "" {
		return response
	}

	lower := strings.ToLower(response)
	for _, marker := range memoryMarkers {
		if strings.Contains(lower, marker) {
			return response
		}
	}

	if strings.Contains(lower, strings.ToLower(strings.TrimSpace(top.Content))) {
		return response
	}

	phrase := groundingPhrases[g.rng.Intn(len(groundingPhrases))]
	reference := fmt.Sprintf(phrase, snippet(top.Content))
	return reference + " " + response
}

// snippet trims remembered content to a quotable length.
func snippet(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimRight(content, ".!?")
	if len(content) <= maxGroundingSnippet {
		return content
	}
	cut := content[:maxGroundingSnippet]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
