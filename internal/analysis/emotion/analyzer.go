package emotion

import (
	"strings"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// Verdict is the outcome a rule assigns when one of its keywords matches.
type Verdict struct {
	Emotion   chatapi.Emotion   `toml:"emotion"`
	Intensity int               `toml:"intensity"`
	RiskLevel chatapi.RiskLevel `toml:"risk_level"`
}

// Escalation raises a rule's verdict when any of its keywords is also present.
type Escalation struct {
	Keywords  []string          `toml:"keywords"`
	Intensity int               `toml:"intensity"`
	RiskLevel chatapi.RiskLevel `toml:"risk_level"`
}

// Rule pairs a keyword set with the verdict it produces.
type Rule struct {
	Name       string      `toml:"name"`
	Keywords   []string    `toml:"keywords"`
	Verdict                `toml:"verdict"`
	Escalation *Escalation `toml:"escalation"`
}

// Classifier evaluates rules in order; the first rule with a matching keyword wins.
type Classifier struct {
	rules    []Rule
	fallback chatapi.EmotionAnalysis
}

// DefaultVerdict is returned when no rule matches.
var DefaultVerdict = chatapi.EmotionAnalysis{
	Emotion:        chatapi.EmotionNeutral,
	Intensity:      5,
	RiskLevel:      chatapi.RiskLow,
	PrimaryFeeling: "neutral",
}

// NewClassifier builds a classifier over the given rule table.
func NewClassifier(rules []Rule) *Classifier {
	normalized := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		rule.Keywords = lowerAll(rule.Keywords)
		if rule.Escalation != nil {
			esc := *rule.Escalation
			esc.Keywords = lowerAll(esc.Keywords)
			rule.Escalation = &esc
		}
		normalized = append(normalized, rule)
	}
	return &Classifier{rules: normalized, fallback: DefaultVerdict}
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return NewClassifier(DefaultRules())
}

// Classify maps a message to its emotion and crisis risk.
func (c *Classifier) Classify(message string) chatapi.EmotionAnalysis {
	text := strings.ToLower(message)

	for _, rule := range c.rules {
		matched := firstMatch(text, rule.Keywords)
		if matched == "" {
			continue
		}

		result := chatapi.EmotionAnalysis{
			Emotion:        rule.Emotion,
			Intensity:      rule.Intensity,
			RiskLevel:      rule.RiskLevel,
			PrimaryFeeling: matched,
		}
		if rule.Escalation != nil {
			if severe := firstMatch(text, rule.Escalation.Keywords); severe != "" {
				result.Intensity = rule.Escalation.Intensity
				result.RiskLevel = rule.Escalation.RiskLevel
				result.PrimaryFeeling = severe
			}
		}
		return result
	}

	return c.fallback
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func firstMatch(text string, keywords []string) string {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(text, keyword) {
			return keyword
		}
	}
	return ""
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, strings.ToLower(strings.TrimSpace(w)))
	}
	return out
}
