package crisis

import (
	"log/slog"
	"strings"

	"github.com/rogercare/roger-go/internal/models"
)

// Classifier maps message text to a crisis severity and type. Pure rule
// evaluation, no side effects.
type Classifier struct {
	rules  *RuleSet
	logger *slog.Logger

	// failsafe is set when the rule tables could not be loaded. The
	// classifier then degrades to the harm lexicon.
	failsafe bool
}

// NewClassifier compiles the embedded rule tables. A rule-engine fault
// does not fail construction: the classifier falls back to the harm
// lexicon so that a broken table can never silence crisis detection.
func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	rules, err := LoadRules()
	if err != nil {
		logger.Error("rule tables failed to load, running in fail-safe mode", "error", err)
		return &Classifier{
			rules:    &RuleSet{harmLexicon: []string{"kill", "harm", "hurt", "die", "dead"}},
			logger:   logger,
			failsafe: true,
		}
	}
	return &Classifier{rules: rules, logger: logger}
}

// ClassifySeverity evaluates the ordered severity tiers: critical first,
// then high, then medium. First matching tier wins; anything unmatched
// is low.
func (c *Classifier) ClassifySeverity(text string) models.Severity {
	if c.failsafe {
		return c.failsafeSeverity(text)
	}

	label, ok := matchFirst(c.rules.severity, text)
	if !ok {
		return models.SeverityLow
	}
	sev, err := models.ParseSeverity(label)
	if err != nil {
		// Unknown label in the table counts as an engine fault.
		c.logger.Error("severity table produced unknown label", "label", label)
		return c.failsafeSeverity(text)
	}
	return sev
}

// ClassifyType maps text to a crisis type. Suicide patterns are checked
// first and dominate if matched; unmatched text is a general crisis.
func (c *Classifier) ClassifyType(text string) models.CrisisType {
	if c.failsafe {
		return models.CrisisGeneral
	}
	label, ok := matchFirst(c.rules.types, text)
	if !ok {
		return models.CrisisGeneral
	}
	return models.CrisisType(label)
}

// MatchesDeception reports whether the text retracts or minimizes a prior
// crisis statement.
func (c *Classifier) MatchesDeception(text string) bool {
	for _, re := range c.rules.deception {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// failsafeSeverity is the degraded path: high if any harm-lexicon token
// is present, low otherwise.
func (c *Classifier) failsafeSeverity(text string) models.Severity {
	lower := strings.ToLower(text)
	for _, token := range c.rules.harmLexicon {
		if strings.Contains(lower, token) {
			return models.SeverityHigh
		}
	}
	return models.SeverityLow
}
