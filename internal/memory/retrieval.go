package memory

import (
	"sort"
	"strings"

	"github.com/rogercare/roger-go/internal/models"
)

// DefaultTopK is the default retrieval result count.
const DefaultTopK = 5

// recentShortTermWindow is how many short-term items join the candidate
// pool.
const recentShortTermWindow = 10

// longTermRetrievalFloor is the importance above which long-term items
// join the candidate pool.
const longTermRetrievalFloor = 0.7

// Attention score weights.
const (
	keywordWeight   = 0.5
	contextWeight   = 0.3
	retentionWeight = 0.2
)

// stopwords excluded from keyword matching.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "was": true, "are": true, "you": true, "your": true,
	"have": true, "had": true, "has": true, "but": true, "not": true,
	"just": true, "about": true, "what": true, "when": true, "how": true,
	"its": true, "it's": true, "i'm": true, "im": true, "they": true,
}

// RetrieveOptions filter retrieval candidates.
type RetrieveOptions struct {
	TopicFilter   []string
	EmotionFilter []string
	K             int
}

// Retrieve ranks the candidate pool against the input and returns the
// top-k pieces by attention score. Retrieval reinforces: every returned
// piece has its LastAccessed and AccessCount updated.
//
// Candidate pool: working tier, the 10 most recent short-term items, and
// long-term items with importance above 0.7.
func (b *Bank) Retrieve(input string, opts RetrieveOptions) []models.MemoryPiece {
	if opts.K <= 0 {
		opts.K = DefaultTopK
	}

	keywords := extractKeywords(input)
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := b.candidatePoolLocked()

	type scored struct {
		piece *models.MemoryPiece
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		if !matchesFilters(p, opts.TopicFilter, opts.EmotionFilter) {
			continue
		}
		hours := now.Sub(p.Timestamp).Hours()
		score := keywordWeight*keywordMatchRatio(keywords, p.Content) +
			contextWeight*contextMatchRatio(keywords, p) +
			retentionWeight*RetentionFactor(hours, p.Importance, p.AccessCount)
		ranked = append(ranked, scored{piece: p, score: score * p.Importance})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		// Ties break to the newer memory.
		return ranked[i].piece.Timestamp.After(ranked[j].piece.Timestamp)
	})

	if len(ranked) > opts.K {
		ranked = ranked[:opts.K]
	}

	out := make([]models.MemoryPiece, 0, len(ranked))
	for _, r := range ranked {
		// Reinforcement side effect: reading a memory strengthens it.
		r.piece.LastAccessed = now
		r.piece.AccessCount++
		out = append(out, *r.piece)
	}
	return out
}

// candidatePoolLocked collects the deduplicated candidate pool.
// Caller must hold b.mu.
func (b *Bank) candidatePoolLocked() []*models.MemoryPiece {
	seen := make(map[string]bool)
	var pool []*models.MemoryPiece

	add := func(p *models.MemoryPiece) {
		if !seen[p.ID] {
			seen[p.ID] = true
			pool = append(pool, p)
		}
	}

	for _, p := range b.working {
		add(p)
	}

	recent := b.shortTerm
	if len(recent) > recentShortTermWindow {
		recent = recent[len(recent)-recentShortTermWindow:]
	}
	for _, p := range recent {
		add(p)
	}

	for _, p := range b.longTerm {
		if p.Importance > longTermRetrievalFloor {
			add(p)
		}
	}
	return pool
}

func matchesFilters(p *models.MemoryPiece, topics, emotions []string) bool {
	if len(topics) > 0 && !intersects(p.TopicContext, topics) {
		return false
	}
	if len(emotions) > 0 && !intersects(p.EmotionalContext, emotions) {
		return false
	}
	return true
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// extractKeywords lowercases and drops stopwords and short tokens.
func extractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()-")
		if len(f) <= 2 || stopwords[f] {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

// keywordMatchRatio is the fraction of input keywords present in the
// memory content.
func keywordMatchRatio(keywords []string, content string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// contextMatchRatio is the fraction of input keywords that appear among
// the piece's topic and emotion tags.
func contextMatchRatio(keywords []string, p *models.MemoryPiece) float64 {
	if len(keywords) == 0 {
		return 0
	}
	tags := make(map[string]bool, len(p.TopicContext)+len(p.EmotionalContext))
	for _, t := range p.TopicContext {
		tags[strings.ToLower(t)] = true
	}
	for _, e := range p.EmotionalContext {
		tags[strings.ToLower(e)] = true
	}

	matched := 0
	for _, kw := range keywords {
		if tags[kw] {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
