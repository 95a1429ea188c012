// Package hallucination flags unsupported or fabricated claims in a
// candidate response before it reaches the user.
package hallucination

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rogercare/roger-go/internal/models"
)

// Flag types.
const (
	TypeFalseMemory     = "false-memory-reference"
	TypeFalseContinuity = "false-continuity"
	TypeContradiction   = "logical-contradiction"
	TypeCapability      = "capability-hallucination"
)

// evidenceThreshold is the combined evidence score below which a memory
// reference counts as fabricated.
const evidenceThreshold = 0.6

// substitutionConfidence is the confidence at which a high-severity flag
// forces clause substitution.
const substitutionConfidence = 0.8

// shortHistory is the history length at or below which any memory or
// continuity reference is immediately suspect.
const shortHistory = 2

// sentenceSimilarity is the trigram similarity above which two sentences
// in one response count as internal repetition.
const sentenceSimilarity = 0.8

// memoryRefPattern captures a memory claim and the content claimed.
var memoryRefPattern = regexp.MustCompile(`(?i)\b(you (mentioned|told me|said|shared)|i remember|as you shared)\b[^.!?]*`)

// continuityPhrases suggest shared history that may not exist.
var continuityPhrases = []string{
	"as we discussed",
	"last time",
	"as i said before",
	"like we talked about",
	"when we spoke before",
	"in our previous",
}

// capabilityPattern matches claims of clinical or administrative powers
// this system does not have.
var capabilityPattern = regexp.MustCompile(`(?i)\b(i (can|will|could|'ll| am able to)?\s*(diagnose|prescribe|schedule|book)|your (medical )?records|your (test results|prescription|appointment)|i('ve| have) (reviewed|checked) your (chart|file))\b`)

// emotionAttribution captures emotions the response assigns to the user.
// Intervening adverbs ("you also sound sad") must not break the match.
var emotionAttribution = regexp.MustCompile(`(?i)\byou (?:also |really |still |just )?(?:feel|seem|sound|are|look) (?:really |very |quite |so |a bit )?(\w+)`)

// oppositeEmotions are attribution pairs that cannot both hold.
var oppositeEmotions = [][2]string{
	{"happy", "sad"},
	{"calm", "anxious"},
	{"hopeful", "hopeless"},
	{"relaxed", "stressed"},
	{"better", "worse"},
}

// genericSubstitute replaces a clause removed for an unsupported claim.
const genericSubstitute = "I want to stay with what you've actually shared with me."

// MemorySource exposes a consistent view of stored memories.
type MemorySource interface {
	Snapshot() models.MemorySnapshot
}

// Detector evaluates candidate responses. Pure evaluation: no state, no
// side effects.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect evaluates a response against the conversation history and the
// memory bank and returns all flags found.
func (d *Detector) Detect(response, input string, history []string, mem MemorySource) []models.HallucinationFlag {
	var flags []models.HallucinationFlag

	flags = append(flags, d.checkFalseMemory(response, history, mem)...)
	flags = append(flags, d.checkFalseContinuity(response, history)...)
	flags = append(flags, d.checkContradiction(response)...)
	flags = append(flags, d.checkCapability(response)...)

	for _, f := range flags {
		d.logger.Warn("hallucination flagged",
			"type", f.Type,
			"severity", f.Severity,
			"confidence", f.ConfidenceScore,
		)
	}
	return flags
}

// checkFalseMemory flags memory references whose claimed content is not
// supported by history or the memory bank. With two or fewer history
// turns, a memory reference is flagged high immediately unless it
// directly matches stored memory: the bank outlives any one session's
// history, so a claim it backs is not fabricated.
func (d *Detector) checkFalseMemory(response string, history []string, mem MemorySource) []models.HallucinationFlag {
	matches := memoryRefPattern.FindAllString(response, -1)
	if len(matches) == 0 {
		return nil
	}

	var snap models.MemorySnapshot
	if mem != nil {
		snap = mem.Snapshot()
	}

	if len(history) <= shortHistory {
		for _, claim := range matches {
			if directMemoryMatch(claim, snap) >= evidenceThreshold {
				continue
			}
			return []models.HallucinationFlag{{
				Type:            TypeFalseMemory,
				Severity:        models.FlagHigh,
				Description:     fmt.Sprintf("memory reference with near-empty history: %q", firstClause(claim)),
				ConfidenceScore: 0.95,
			}}
		}
		return nil
	}

	var flags []models.HallucinationFlag
	for _, claim := range matches {
		score := evidenceScore(claim, history, snap)
		if score >= evidenceThreshold {
			continue
		}
		severity := models.FlagMedium
		confidence := 0.6 + (evidenceThreshold-score)/2
		if score < 0.2 {
			severity = models.FlagHigh
			confidence = 0.85
		}
		flags = append(flags, models.HallucinationFlag{
			Type:            TypeFalseMemory,
			Severity:        severity,
			Description:     fmt.Sprintf("unsupported memory claim: %q (evidence %.2f)", firstClause(claim), score),
			ConfidenceScore: confidence,
		})
	}
	return flags
}

// directMemoryMatch is the strongest keyword match of a claim against
// any stored memory's content.
func directMemoryMatch(claim string, snap models.MemorySnapshot) float64 {
	keywords := contentWords(claim)
	if len(keywords) == 0 {
		return 0
	}

	var best float64
	for _, tier := range [][]models.MemoryPiece{snap.ShortTermMemory, snap.WorkingMemory, snap.LongTermMemory} {
		for _, p := range tier {
			best = max(best, wordMatchRatio(keywords, strings.ToLower(p.Content)))
		}
	}
	return best
}

// firstClause trims a matched claim for log and flag descriptions.
func firstClause(claim string) string {
	claim = strings.TrimSpace(claim)
	if len(claim) > 80 {
		claim = claim[:80] + "..."
	}
	return claim
}

// evidenceScore combines four signals: topic overlap with stored memory
// tags, direct match against memory contents, similarity to the full
// history, and match against the most recent turns.
func evidenceScore(claim string, history []string, snap models.MemorySnapshot) float64 {
	keywords := contentWords(claim)
	if len(keywords) == 0 {
		return 0
	}

	all := make([]models.MemoryPiece, 0,
		len(snap.ShortTermMemory)+len(snap.WorkingMemory)+len(snap.LongTermMemory))
	all = append(all, snap.ShortTermMemory...)
	all = append(all, snap.WorkingMemory...)
	all = append(all, snap.LongTermMemory...)

	var topicOverlap, memoryMatch float64
	for _, p := range all {
		tags := strings.ToLower(strings.Join(append(p.TopicContext, p.EmotionalContext...), " "))
		topicOverlap = max(topicOverlap, wordMatchRatio(keywords, tags))
		memoryMatch = max(memoryMatch, wordMatchRatio(keywords, strings.ToLower(p.Content)))
	}

	var historyMatch float64
	for _, h := range history {
		historyMatch = max(historyMatch, wordMatchRatio(keywords, strings.ToLower(h)))
	}

	var recentMatch float64
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, h := range recent {
		recentMatch = max(recentMatch, wordMatchRatio(keywords, strings.ToLower(h)))
	}

	return 0.25*topicOverlap + 0.35*memoryMatch + 0.3*historyMatch + 0.1*recentMatch
}

// checkFalseContinuity flags shared-history phrases when there is no
// shared history to speak of.
func (d *Detector) checkFalseContinuity(response string, history []string) []models.HallucinationFlag {
	if len(history) > shortHistory {
		return nil
	}
	lower := strings.ToLower(response)
	for _, phrase := range continuityPhrases {
		if strings.Contains(lower, phrase) {
			return []models.HallucinationFlag{{
				Type:            TypeFalseContinuity,
				Severity:        models.FlagHigh,
				Description:     fmt.Sprintf("continuity phrase %q with %d history turns", phrase, len(history)),
				ConfidenceScore: 0.9,
			}}
		}
	}
	return nil
}

// checkContradiction flags internal repetition and opposite-emotion
// attributions within one response.
func (d *Detector) checkContradiction(response string) []models.HallucinationFlag {
	var flags []models.HallucinationFlag

	sentences := splitSentences(response)
	for i := 0; i < len(sentences); i++ {
		for j := i + 1; j < len(sentences); j++ {
			if trigramSimilarity(sentences[i], sentences[j]) > sentenceSimilarity {
				flags = append(flags, models.HallucinationFlag{
					Type:            TypeContradiction,
					Severity:        models.FlagMedium,
					Description:     fmt.Sprintf("near-identical sentences: %q / %q", sentences[i], sentences[j]),
					ConfidenceScore: 0.7,
				})
			}
		}
	}

	attributed := make(map[string]bool)
	for _, m := range emotionAttribution.FindAllStringSubmatch(response, -1) {
		attributed[strings.ToLower(m[1])] = true
	}
	for _, pair := range oppositeEmotions {
		if attributed[pair[0]] && attributed[pair[1]] {
			flags = append(flags, models.HallucinationFlag{
				Type:            TypeContradiction,
				Severity:        models.FlagMedium,
				Description:     fmt.Sprintf("opposite emotion attributions: %s vs %s", pair[0], pair[1]),
				ConfidenceScore: 0.75,
			})
		}
	}
	return flags
}

// checkCapability flags clinical and administrative powers the companion
// does not have.
func (d *Detector) checkCapability(response string) []models.HallucinationFlag {
	if m := capabilityPattern.FindString(response); m != "" {
		return []models.HallucinationFlag{{
			Type:            TypeCapability,
			Severity:        models.FlagHigh,
			Description:     fmt.Sprintf("capability claim: %q", m),
			ConfidenceScore: 0.9,
		}}
	}
	return nil
}

// Correct applies the decision policy: any high-severity flag with
// confidence at or above 0.8 forces substitution of the offending
// clause. Medium and low flags are recorded but leave the response
// unchanged.
func (d *Detector) Correct(response string, flags []models.HallucinationFlag) string {
	force := false
	types := make(map[string]bool)
	for _, f := range flags {
		if f.Severity == models.FlagHigh && f.ConfidenceScore >= substitutionConfidence {
			force = true
			types[f.Type] = true
		}
	}
	if !force {
		return response
	}

	sentences := splitSentences(response)
	kept := make([]string, 0, len(sentences))
	substituted := false
	for _, s := range sentences {
		if offending(s, types) {
			if !substituted {
				kept = append(kept, genericSubstitute)
				substituted = true
			}
			continue
		}
		kept = append(kept, s)
	}

	if len(kept) == 0 {
		return genericSubstitute
	}
	return strings.Join(kept, " ")
}

// offending reports whether a sentence matches any flagged claim type.
func offending(sentence string, types map[string]bool) bool {
	lower := strings.ToLower(sentence)
	if types[TypeFalseMemory] && memoryRefPattern.MatchString(sentence) {
		return true
	}
	if types[TypeFalseContinuity] {
		for _, phrase := range continuityPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	if types[TypeCapability] && capabilityPattern.MatchString(sentence) {
		return true
	}
	return false
}

// splitSentences breaks a response on terminal punctuation.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// claimStopwords are pronouns and reference verbs that carry no evidence
// about what was actually said.
var claimStopwords = map[string]bool{
	"you": true, "your": true, "yours": true, "that": true, "this": true,
	"the": true, "was": true, "were": true, "have": true, "had": true,
	"about": true, "with": true, "and": true, "but": true, "for": true,
	"mentioned": true, "told": true, "said": true, "shared": true,
	"remember": true,
}

// contentWords extracts lowercase words of three or more letters,
// dropping reference boilerplate.
func contentWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()-")
		if len(f) >= 3 && !claimStopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// wordMatchRatio is the fraction of words present in the target text.
func wordMatchRatio(words []string, target string) float64 {
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(target, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// trigramSimilarity is the shared 3-word n-gram ratio between two
// sentences, over the smaller trigram set.
func trigramSimilarity(a, b string) float64 {
	ta := wordTrigrams(strings.ToLower(a))
	tb := wordTrigrams(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) && a != "" {
			return 1
		}
		return 0
	}
	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}
	shared := 0
	for gram := range small {
		if _, ok := large[gram]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func wordTrigrams(s string) map[string]struct{} {
	words := strings.Fields(s)
	if len(words) < 3 {
		return nil
	}
	grams := make(map[string]struct{}, len(words)-2)
	for i := 0; i+3 <= len(words); i++ {
		grams[strings.Join(words[i:i+3], " ")] = struct{}{}
	}
	return grams
}
