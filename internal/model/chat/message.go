package chat

import (
	"time"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// Message records one completed side of a turn for audit.
type Message struct {
	ID        string                   `json:"id"`
	SessionID string                   `json:"sessionId"`
	Role      chatapi.Role             `json:"role"`
	Content   string                   `json:"content"`
	Emotion   *chatapi.EmotionAnalysis `json:"emotion,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
}
