// Package crisis classifies message risk and drives per-session
// escalation state.
package crisis

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// ruleSpec is one (pattern, label, priority) group as written in rules.yaml.
type ruleSpec struct {
	Label    string   `yaml:"label"`
	Priority int      `yaml:"priority"`
	Patterns []string `yaml:"patterns"`
}

// rulesFile is the on-disk shape of the rule tables.
type rulesFile struct {
	Severity    []ruleSpec `yaml:"severity"`
	Type        []ruleSpec `yaml:"type"`
	Deception   []string   `yaml:"deception"`
	HarmLexicon []string   `yaml:"harm_lexicon"`
}

// compiledRule is a rule group with compiled patterns, evaluated in order.
type compiledRule struct {
	label    string
	priority int
	patterns []*regexp.Regexp
}

// matches reports whether any pattern in the group matches the text.
func (r compiledRule) matches(text string) bool {
	for _, p := range r.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// RuleSet holds compiled severity and type tables plus lexicons.
type RuleSet struct {
	severity    []compiledRule
	types       []compiledRule
	deception   []*regexp.Regexp
	harmLexicon []string
}

// LoadRules parses and compiles the embedded rule tables.
func LoadRules() (*RuleSet, error) {
	return loadRules(rulesYAML)
}

func loadRules(raw []byte) (*RuleSet, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	rs := &RuleSet{harmLexicon: file.HarmLexicon}

	var err error
	if rs.severity, err = compileRules(file.Severity); err != nil {
		return nil, fmt.Errorf("severity rules: %w", err)
	}
	if rs.types, err = compileRules(file.Type); err != nil {
		return nil, fmt.Errorf("type rules: %w", err)
	}
	for _, p := range file.Deception {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("deception pattern %q: %w", p, err)
		}
		rs.deception = append(rs.deception, re)
	}
	return rs, nil
}

func compileRules(specs []ruleSpec) ([]compiledRule, error) {
	rules := make([]compiledRule, 0, len(specs))
	for _, spec := range specs {
		rule := compiledRule{label: spec.Label, priority: spec.Priority}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("pattern %q (%s): %w", p, spec.Label, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// matchFirst evaluates rule groups in order and returns the first matching
// label. Never downgrades within a call: ordering in the table is the
// priority.
func matchFirst(rules []compiledRule, text string) (string, bool) {
	for _, rule := range rules {
		if rule.matches(text) {
			return rule.label, true
		}
	}
	return "", false
}
