package pipeline

import (
	"strings"

	"github.com/rogercare/roger-go/internal/models"
)

// taggedLexicon is an ordered list of tags and the words that signal
// them. Order is fixed so tagging is deterministic.
type taggedLexicon struct {
	tag   string
	words []string
}

var emotionLexicon = []taggedLexicon{
	{"grief", []string{"died", "death", "passed away", "funeral", "grieving", "grief", "lost him", "lost her"}},
	{"trauma", []string{"trauma", "abuse", "abused", "assault", "flashback", "nightmare"}},
	{"sad", []string{"sad", "cry", "crying", "tears", "down", "miss", "heartbroken", "hopeless"}},
	{"anxious", []string{"anxious", "anxiety", "worried", "nervous", "panic", "stressed", "overwhelmed"}},
	{"angry", []string{"angry", "furious", "mad", "frustrated", "hate"}},
	{"scared", []string{"scared", "afraid", "terrified", "frightened"}},
}

var topicLexicon = []taggedLexicon{
	{"pets", []string{"dog", "cat", "pet", "puppy", "kitten"}},
	{"family", []string{"mom", "dad", "mother", "father", "sister", "brother", "son", "daughter", "wife", "husband", "family", "grandma", "grandpa"}},
	{"work", []string{"work", "job", "boss", "coworker", "fired", "deadline"}},
	{"health", []string{"doctor", "pain", "sick", "hospital", "medication", "sleep", "tired"}},
	{"loneliness", []string{"alone", "lonely", "isolated", "nobody"}},
	{"hobbies", []string{"garden", "gardening", "music", "book", "reading", "walk", "cooking"}},
}

// annotate tags a message with the emotions and topics its wording
// signals. Tags feed the memory bank's tier gates and the patient
// profile counters.
func annotate(text string) (emotions, topics []string) {
	lower := strings.ToLower(text)
	for _, lex := range emotionLexicon {
		for _, w := range lex.words {
			if strings.Contains(lower, w) {
				emotions = append(emotions, lex.tag)
				break
			}
		}
	}
	for _, lex := range topicLexicon {
		for _, w := range lex.words {
			if strings.Contains(lower, w) {
				topics = append(topics, lex.tag)
				break
			}
		}
	}
	return emotions, topics
}

// importanceOf scores a message for memory storage. Emotional weight
// raises it; crisis severity sets a floor.
func importanceOf(severity models.Severity, emotions []string) float64 {
	score := 0.4 + 0.1*float64(len(emotions))
	if score > 0.8 {
		score = 0.8
	}

	switch {
	case severity >= models.SeverityCritical:
		score = max(score, 0.95)
	case severity >= models.SeverityHigh:
		score = max(score, 0.85)
	case severity >= models.SeverityMedium:
		score = max(score, 0.7)
	}
	return score
}
