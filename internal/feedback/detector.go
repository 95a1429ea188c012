// Package feedback detects repeated near-identical generated responses
// and user complaints about them, and synthesizes recovery replies.
package feedback

import (
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/rogercare/roger-go/internal/models"
)

const (
	// ringSize bounds the tracked-response ring buffer.
	ringSize = 5

	// repetitionThreshold is the count at which a normalized response
	// trips the loop flag.
	repetitionThreshold = 2

	// overlapThreshold is the trigram overlap ratio above which two
	// responses count as near-identical.
	overlapThreshold = 0.7
)

// Complaint lexicons: the user telling us we are stuck.
var explicitComplaints = []string{
	"you already said",
	"you just said",
	"you keep saying",
	"stop repeating",
	"said that already",
	"repeating yourself",
	"not listening",
}

var implicitComplaints = []string{
	"same thing again",
	"that again",
	"you're a broken record",
	"is that all you can say",
}

// Recovery topic patterns, most specific first.
var (
	petLossPattern = regexp.MustCompile(`(?i)\b(dog|cat|pet|puppy|kitten|bird|rabbit)\b.*\b(died|passed|gone|lost|put (down|to sleep))\b`)
	griefPattern   = regexp.MustCompile(`(?i)\b(died|passed away|funeral|grie(f|ving)|lost my (mom|dad|mother|father|brother|sister|friend|husband|wife))\b`)
	emotionPattern = regexp.MustCompile(`(?i)\b(sad|angry|mad|scared|anxious|lonely|hurt|upset|frustrated)\b`)
)

var recoveryReplies = map[string][]string{
	"pet-loss": {
		"Losing an animal who shared your days is a real loss, and I haven't honored that well just now. What do you miss most about them?",
		"I've been going in circles instead of hearing you. Your pet was family - tell me about a moment with them you keep coming back to.",
	},
	"grief": {
		"I realize I've been repeating myself when what you're carrying deserves better. Grief doesn't follow a script - what has today been like for you?",
		"Let me stop and actually be here with you. Losing someone changes everything - what's been the hardest part this week?",
	},
	"general-emotion": {
		"I've been giving you the same words back, and that's not listening. Can you tell me more about what's underneath that feeling?",
		"You're right that I got stuck. Let's start from what you're actually feeling right now - what does it feel like in this moment?",
	},
	"generic": {
		"I notice I've been repeating myself, and you deserve better than that. Let's take this from wherever you are right now.",
		"You caught me going in circles. I'm going to slow down - what's the most important thing you want me to understand?",
	},
}

// Detector tracks generated responses for a single session and flags
// feedback loops. Safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	state  *models.ConversationState
	recent []string // normalized ring, newest last
	rng    *rand.Rand
	logger *slog.Logger
}

// NewDetector creates a detector with an injected random source for
// recovery-phrase selection.
func NewDetector(rng *rand.Rand, logger *slog.Logger) *Detector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		state:  models.NewConversationState(),
		rng:    rng,
		logger: logger,
	}
}

// RecordUserMessage adds a user message to the bounded history.
func (d *Detector) RecordUserMessage(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.RecordUserMessage(text)
}

// TrackResponse normalizes a generated response, appends it to the ring
// buffer, and bumps its repetition counter. Reaching the repetition
// threshold sets the loop flag; three pairwise-dissimilar responses in a
// row clear it.
func (d *Detector) TrackResponse(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.RecordResponse(text)

	norm := normalize(text)
	if norm == "" {
		return
	}

	d.recent = append(d.recent, norm)
	if len(d.recent) > ringSize {
		d.recent = d.recent[len(d.recent)-ringSize:]
	}

	d.state.RepetitionCount[norm]++
	if d.state.RepetitionCount[norm] >= repetitionThreshold {
		d.state.FeedbackLoopDetected = true
		d.logger.Warn("feedback loop flagged by repetition counter", "count", d.state.RepetitionCount[norm])
	}

	// Auto-clear: pairwise dissimilarity across the last three tracked
	// responses means the conversation has moved on.
	if d.state.FeedbackLoopDetected && len(d.recent) >= 3 {
		last := d.recent[len(d.recent)-3:]
		if trigramOverlap(last[0], last[1]) < overlapThreshold &&
			trigramOverlap(last[0], last[2]) < overlapThreshold &&
			trigramOverlap(last[1], last[2]) < overlapThreshold {
			d.state.FeedbackLoopDetected = false
			d.logger.Info("feedback loop auto-cleared")
		}
	}
}

// CheckFeedbackLoop reports whether this turn is stuck in a loop, either
// because the user complained about repetition or because the last two
// tracked responses are near-identical. On detection it synthesizes a
// topic-specific recovery reply and resets the repetition counters.
func (d *Detector) CheckFeedbackLoop(input string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isLoop(input) {
		return "", false
	}

	d.state.FeedbackLoopDetected = true
	d.state.RepetitionCount = make(map[string]int)

	reply := d.recoveryReply(input)
	d.logger.Info("feedback loop recovery issued", "topic", recoveryTopic(d.latestUserInput(input)))
	return reply, true
}

// Detected reports the current loop flag.
func (d *Detector) Detected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.FeedbackLoopDetected
}

// State returns a copy of the conversation state.
func (d *Detector) State() models.ConversationState {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := *d.state
	out.UserMessageHistory = append([]string(nil), d.state.UserMessageHistory...)
	out.RogerResponseHistory = append([]string(nil), d.state.RogerResponseHistory...)
	out.RepetitionCount = make(map[string]int, len(d.state.RepetitionCount))
	for k, v := range d.state.RepetitionCount {
		out.RepetitionCount[k] = v
	}
	return out
}

// Reset clears all tracked state. Called on explicit new-conversation.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = models.NewConversationState()
	d.recent = nil
}

// isLoop evaluates the two loop conditions. Caller must hold d.mu.
func (d *Detector) isLoop(input string) bool {
	lower := strings.ToLower(input)
	for _, phrase := range explicitComplaints {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, phrase := range implicitComplaints {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	if len(d.recent) >= 2 {
		a, b := d.recent[len(d.recent)-2], d.recent[len(d.recent)-1]
		if trigramOverlap(a, b) >= overlapThreshold {
			return true
		}
	}
	return false
}

// recoveryReply picks a reply pool by topic regex over the latest user
// input. Caller must hold d.mu.
func (d *Detector) recoveryReply(input string) string {
	pool := recoveryReplies[recoveryTopic(d.latestUserInput(input))]
	return pool[d.rng.Intn(len(pool))]
}

// latestUserInput prefers the current input, falling back to recorded
// history. Caller must hold d.mu.
func (d *Detector) latestUserInput(input string) string {
	if input != "" {
		return input
	}
	if n := len(d.state.UserMessageHistory); n > 0 {
		return d.state.UserMessageHistory[n-1]
	}
	return ""
}

func recoveryTopic(input string) string {
	switch {
	case petLossPattern.MatchString(input):
		return "pet-loss"
	case griefPattern.MatchString(input):
		return "grief"
	case emotionPattern.MatchString(input):
		return "general-emotion"
	default:
		return "generic"
	}
}

// normalize lowercases and strips punctuation so near-identical phrasings
// compare equal.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// trigramOverlap computes the 3-word n-gram overlap ratio between two
// normalized strings: shared trigrams over the smaller trigram set.
// Strings too short for trigrams compare by equality.
func trigramOverlap(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if a == b && a != "" {
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

func trigrams(s string) map[string]struct{} {
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
