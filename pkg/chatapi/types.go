// Package chatapi holds the wire types shared by the chat server and its clients.
package chatapi

// HistoryLimit bounds how many prior messages travel with a turn.
const HistoryLimit = 10

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one immutable entry of a conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Emotion is the coarse polarity of a message.
type Emotion string

const (
	EmotionPositive Emotion = "positive"
	EmotionNegative Emotion = "negative"
	EmotionNeutral  Emotion = "neutral"
)

// RiskLevel is the crisis severity of a message.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Alerting reports whether the level requires a human to look at the message.
func (r RiskLevel) Alerting() bool {
	return r == RiskMedium || r == RiskHigh
}

// EmotionAnalysis is the verdict attached to the assistant reply of a turn.
type EmotionAnalysis struct {
	Emotion        Emotion   `json:"emotion"`
	Intensity      int       `json:"intensity"`
	RiskLevel      RiskLevel `json:"risk_level"`
	PrimaryFeeling string    `json:"primary_feeling"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversationHistory"`
	SessionID           string        `json:"sessionId,omitempty"`
	UserID              string        `json:"userId,omitempty"`
	Language            string        `json:"language,omitempty"`
}

// ErrorResponse is the JSON body returned before a stream starts.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TrimHistory returns the trailing window of at most limit messages.
func TrimHistory(history []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
