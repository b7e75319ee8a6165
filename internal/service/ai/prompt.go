package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// SystemPrompt sets the assistant's rules for every turn.
const SystemPrompt = `You are EmpathyConnect, a compassionate and safe AI mental health assistant.

Your rules:
1. ALWAYS validate the user's emotions first before offering any suggestions
2. Provide short, supportive, and empathetic responses (2-4 sentences typically)
3. NEVER diagnose mental health conditions or prescribe medications
4. Use warm, gentle language that makes users feel heard and understood
5. When detecting signs of crisis, gently acknowledge their pain and encourage reaching out to crisis resources
6. Ask open-ended follow-up questions to encourage sharing
7. Focus on emotional support, not problem-solving unless explicitly asked
8. CRITICAL: You MUST respond in the SAME language the user speaks. If a language is specified, respond ONLY in that language. Never switch to English unless the user writes in English.

Remember: You are a supportive companion, not a replacement for professional therapy. Be present, be kind, and be safe.`

const crisisNote = "IMPORTANT: The user may be in crisis and is showing high emotional distress. Be extra gentle, validate their feelings, and encourage them to reach out to a crisis helpline or other crisis resources."

var languageNames = map[string]string{
	"en": "English", "en-gb": "English", "en-au": "English",
	"es": "Spanish", "fr": "French", "de": "German", "pt": "Portuguese",
	"it": "Italian", "ja": "Japanese", "ko": "Korean", "zh": "Chinese",
	"hi": "Hindi", "ar": "Arabic", "ru": "Russian", "nl": "Dutch", "pl": "Polish",
	"ta": "Tamil",
}

// LanguageName resolves a language code, falling back to the code itself.
func LanguageName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// Turn is the input of one completion request.
type Turn struct {
	Message  string
	History  []chatapi.ChatMessage
	Language string
	Analysis chatapi.EmotionAnalysis
}

// PromptBuilder renders a turn into the provider message list.
type PromptBuilder struct {
	template     prompt.ChatTemplate
	historyLimit int
}

func NewPromptBuilder(historyLimit int) *PromptBuilder {
	if historyLimit <= 0 {
		historyLimit = chatapi.HistoryLimit
	}
	return &PromptBuilder{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
			schema.MessagesPlaceholder("notes", true),
		),
		historyLimit: historyLimit,
	}
}

// Build composes system prompt, history window, user message and, for high
// risk turns, a trailing crisis note.
func (b *PromptBuilder) Build(ctx context.Context, turn Turn) ([]*schema.Message, error) {
	var notes []*schema.Message
	if turn.Analysis.RiskLevel == chatapi.RiskHigh {
		notes = append(notes, schema.SystemMessage(crisisNote))
	}

	messages, err := b.template.Format(ctx, map[string]any{
		"system":  systemPrompt(turn.Language),
		"history": historyMessages(chatapi.TrimHistory(turn.History, b.historyLimit)),
		"query":   turn.Message,
		"notes":   notes,
	})
	if err != nil {
		return nil, fmt.Errorf("format chat prompt: %w", err)
	}
	return messages, nil
}

func systemPrompt(language string) string {
	code := strings.ToLower(strings.TrimSpace(language))
	if code == "" || code == "en" {
		return SystemPrompt
	}

	name := LanguageName(code)
	var builder strings.Builder
	builder.WriteString(SystemPrompt)
	builder.WriteString("\n\nIMPORTANT: The user's selected language is ")
	builder.WriteString(name)
	builder.WriteString(". You MUST respond ONLY in ")
	builder.WriteString(name)
	builder.WriteString(" for the entire reply. Do NOT respond in English and do NOT mix languages.")
	return builder.String()
}

func historyMessages(history []chatapi.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chatapi.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chatapi.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}
