package alert

import (
	"strings"
	"time"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// PreviewLimit is the maximum number of characters of a message kept on an alert.
const PreviewLimit = 200

// Status is the review state of a crisis alert.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusAcknowledged, StatusResolved},
	StatusAcknowledged: {StatusResolved},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// CanTransition reports whether an alert in s may move to next.
// Resolved is terminal; acknowledgement is optional before resolution.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// sourcesOf lists the statuses that may move to next.
func sourcesOf(next Status) []Status {
	var out []Status
	for from, targets := range transitions {
		for _, to := range targets {
			if to == next {
				out = append(out, from)
			}
		}
	}
	return out
}

// CrisisAlert is one message that a human reviewer should look at.
type CrisisAlert struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	SessionID      string            `gorm:"size:64;index;not null" json:"session_id"`
	MessageID      *string           `gorm:"size:64" json:"message_id,omitempty"`
	UserID         *string           `gorm:"size:64" json:"user_id,omitempty"`
	PseudoUserID   string            `gorm:"size:32;not null" json:"pseudo_user_id"`
	RiskLevel      chatapi.RiskLevel `gorm:"size:16;index;not null" json:"risk_level"`
	PrimaryFeeling *string           `gorm:"size:128" json:"primary_feeling,omitempty"`
	MessagePreview string            `gorm:"size:1024;not null" json:"message_preview"`
	Status         Status            `gorm:"size:16;index;not null;default:pending" json:"status"`
	AcknowledgedBy *string           `gorm:"size:128" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	ResolvedBy     *string           `gorm:"size:128" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (CrisisAlert) TableName() string {
	return "crisis_alerts"
}

// apply moves the alert to next, stamping the reviewer.
func (a *CrisisAlert) apply(next Status, by string, at time.Time) error {
	if !a.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	a.Status = next
	switch next {
	case StatusAcknowledged:
		a.AcknowledgedBy = Optional(by)
		a.AcknowledgedAt = &at
	case StatusResolved:
		a.ResolvedBy = Optional(by)
		a.ResolvedAt = &at
	}
	return nil
}

// PseudoUserID derives the therapist-facing handle of a session.
func PseudoUserID(sessionID string) string {
	runes := []rune(sessionID)
	if len(runes) > 4 {
		runes = runes[:4]
	}
	return "User_" + strings.ToUpper(string(runes))
}

// Preview hard-truncates a message to PreviewLimit characters.
func Preview(message string) string {
	runes := []rune(message)
	if len(runes) <= PreviewLimit {
		return message
	}
	return string(runes[:PreviewLimit])
}

// Optional returns nil for blank strings.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
