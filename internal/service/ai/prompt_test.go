package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildComposesSystemHistoryAndUser(t *testing.T) {
	history := []chatapi.ChatMessage{
		{Role: chatapi.RoleUser, Content: "hi"},
		{Role: chatapi.RoleAssistant, Content: "hello, how are you feeling?"},
	}

	msgs, err := NewPromptBuilder(0).Build(context.Background(), Turn{
		Message:  "a bit tired {really}",
		History:  history,
		Analysis: chatapi.EmotionAnalysis{RiskLevel: chatapi.RiskLow},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, schema.User, msgs[3].Role)
	assert.Equal(t, "a bit tired {really}", msgs[3].Content)
}

func TestBuildKeepsTrailingHistoryWindow(t *testing.T) {
	var history []chatapi.ChatMessage
	for i := range 14 {
		history = append(history, chatapi.ChatMessage{Role: chatapi.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	msgs, err := NewPromptBuilder(10).Build(context.Background(), Turn{Message: "now", History: history})
	require.NoError(t, err)
	require.Len(t, msgs, 12)
	assert.Equal(t, "m4", msgs[1].Content)
	assert.Equal(t, "m13", msgs[10].Content)
}

func TestBuildAddsCrisisNoteForHighRisk(t *testing.T) {
	msgs, err := NewPromptBuilder(10).Build(context.Background(), Turn{
		Message:  "I want to end it",
		Analysis: chatapi.EmotionAnalysis{RiskLevel: chatapi.RiskHigh},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	last := msgs[len(msgs)-1]
	assert.Equal(t, schema.System, last.Role)
	assert.Contains(t, last.Content, "extra gentle")

	msgs, err = NewPromptBuilder(10).Build(context.Background(), Turn{
		Message:  "everything is hopeless",
		Analysis: chatapi.EmotionAnalysis{RiskLevel: chatapi.RiskMedium},
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestBuildPinsLanguage(t *testing.T) {
	msgs, err := NewPromptBuilder(10).Build(context.Background(), Turn{Message: "hola", Language: "es"})
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "You MUST respond ONLY in Spanish")

	msgs, err = NewPromptBuilder(10).Build(context.Background(), Turn{Message: "hi", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt, msgs[0].Content)

	assert.Equal(t, "English", LanguageName("en-GB"))
	assert.Equal(t, "sw", LanguageName("sw"))
}
