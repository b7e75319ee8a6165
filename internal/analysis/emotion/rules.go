package emotion

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

var (
	crisisKeywords = []string{
		"hopeless", "no point", "give up", "can't go on", "end it", "suicide",
		"kill myself", "self-harm", "cutting", "die", "death", "alone forever",
		"tired of life", "no reason to live", "no reason to continue",
		"don't want to live", "end my life", "worthless", "burden",
		"nobody cares", "want to disappear", "can't take it", "better off without me",
	}

	severeKeywords = []string{
		"suicide", "kill myself", "self-harm", "end it", "die",
		"no reason to live", "no reason to continue", "don't want to live", "end my life",
	}

	negativeKeywords = []string{
		"anxious", "anxiety", "sad", "depressed", "angry", "scared", "lonely",
		"stressed", "worried", "hurt", "pain", "crying", "overwhelmed", "exhausted",
		"frustrated", "afraid", "panic", "miserable", "terrible", "awful",
	}

	positiveKeywords = []string{
		"happy", "grateful", "excited", "good", "great", "wonderful", "better",
		"hopeful", "calm", "peaceful", "loved", "joy", "proud", "relaxed", "confident",
	}
)

// DefaultRules returns the built-in crisis, negative and positive rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "crisis",
			Keywords: append([]string(nil), crisisKeywords...),
			Verdict:  Verdict{Emotion: chatapi.EmotionNegative, Intensity: 7, RiskLevel: chatapi.RiskMedium},
			Escalation: &Escalation{
				Keywords:  append([]string(nil), severeKeywords...),
				Intensity: 9,
				RiskLevel: chatapi.RiskHigh,
			},
		},
		{
			Name:     "negative",
			Keywords: append([]string(nil), negativeKeywords...),
			Verdict:  Verdict{Emotion: chatapi.EmotionNegative, Intensity: 6, RiskLevel: chatapi.RiskLow},
		},
		{
			Name:     "positive",
			Keywords: append([]string(nil), positiveKeywords...),
			Verdict:  Verdict{Emotion: chatapi.EmotionPositive, Intensity: 6, RiskLevel: chatapi.RiskLow},
		},
	}
}

// ErrNoRules is returned when a rule file declares no rules.
var ErrNoRules = errors.New("rule file declares no rules")

type ruleFile struct {
	Rules []Rule `toml:"rule"`
}

// LoadRules reads an ordered rule table from a TOML file.
//
//	[[rule]]
//	name = "crisis"
//	keywords = ["hopeless", "suicide"]
//	[rule.verdict]
//	emotion = "negative"
//	intensity = 7
//	risk_level = "medium"
//	[rule.escalation]
//	keywords = ["suicide"]
//	intensity = 9
//	risk_level = "high"
func LoadRules(path string) ([]Rule, error) {
	var file ruleFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode rule file %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, ErrNoRules
	}

	for i, rule := range file.Rules {
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}
	return file.Rules, nil
}

func validateRule(rule Rule) error {
	if len(rule.Keywords) == 0 {
		return errors.New("no keywords")
	}
	if err := validateVerdict(rule.Emotion, rule.Intensity, rule.RiskLevel); err != nil {
		return err
	}
	if rule.Escalation != nil {
		if len(rule.Escalation.Keywords) == 0 {
			return errors.New("escalation has no keywords")
		}
		if err := validateVerdict(rule.Emotion, rule.Escalation.Intensity, rule.Escalation.RiskLevel); err != nil {
			return fmt.Errorf("escalation: %w", err)
		}
	}
	return nil
}

func validateVerdict(emotion chatapi.Emotion, intensity int, risk chatapi.RiskLevel) error {
	switch emotion {
	case chatapi.EmotionPositive, chatapi.EmotionNegative, chatapi.EmotionNeutral:
	default:
		return fmt.Errorf("unknown emotion %q", emotion)
	}
	if intensity < 1 || intensity > 10 {
		return fmt.Errorf("intensity %d out of range 1-10", intensity)
	}
	switch risk {
	case chatapi.RiskLow, chatapi.RiskMedium, chatapi.RiskHigh:
	default:
		return fmt.Errorf("unknown risk level %q", risk)
	}
	return nil
}
