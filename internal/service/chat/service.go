package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/internal/model/chat"
)

const (
	// transcriptLimit caps the audit transcript kept per session.
	transcriptLimit = 200
	// DefaultMaxSessions caps how many sessions are held before the oldest
	// is evicted.
	DefaultMaxSessions = 10000
)

var (
	ErrSessionRequired = errors.New("session id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is required")
)

// Service keeps sessions and their completed turns in memory.
type Service struct {
	mu          sync.RWMutex
	sessions    map[string]chat.Session
	messages    map[string][]chat.Message
	order       []string
	maxSessions int
	now         func() time.Time
}

type Option func(*Service)

// WithMaxSessions bounds the number of sessions kept in memory.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

func NewService(opts ...Option) *Service {
	s := &Service{
		sessions:    make(map[string]chat.Session),
		messages:    make(map[string][]chat.Message),
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a new anonymous session.
func (s *Service) CreateSession(ctx context.Context, userID, language string) (chat.Session, error) {
	return s.EnsureSession(ctx, uuid.NewString(), userID, language)
}

// EnsureSession returns the session with id, registering it first when the
// client generated the id itself.
func (s *Service) EnsureSession(_ context.Context, id, userID, language string) (chat.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return chat.Session{}, ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}

	session := chat.Session{
		ID:           id,
		UserID:       strings.TrimSpace(userID),
		PseudoUserID: alert.PseudoUserID(id),
		Language:     strings.TrimSpace(language),
		CreatedAt:    s.now().UTC(),
	}
	s.sessions[id] = session
	s.messages[id] = make([]chat.Message, 0, 16)
	s.order = append(s.order, id)
	s.evictLocked()
	return session, nil
}

// evictLocked drops the oldest sessions and their transcripts beyond the cap.
func (s *Service) evictLocked() {
	for len(s.order) > s.maxSessions {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.sessions, oldest)
		delete(s.messages, oldest)
	}
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// SaveMessage appends a message to the session transcript and returns it
// with its assigned id.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionRequired
	}
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now().UTC()
	}

	transcript := append(s.messages[message.SessionID], message)
	if len(transcript) > transcriptLimit {
		transcript = append([]chat.Message(nil), transcript[len(transcript)-transcriptLimit:]...)
	}
	s.messages[message.SessionID] = transcript
	return message, nil
}

// LoadTranscript returns a copy of the stored messages for a session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
