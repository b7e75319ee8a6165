package chat

import "time"

// Session captures an anonymous conversation.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId,omitempty"`
	PseudoUserID string    `json:"pseudoUserId"`
	Language     string    `json:"language,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
