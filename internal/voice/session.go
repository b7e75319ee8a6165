// Package voice drives a hands-free conversation: transcripts go to the chat
// service and replies are handed to a speech synthesizer.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
)

const (
	defaultDebounce     = 3 * time.Second
	defaultSpeakTimeout = 45 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("voice session already started")
	ErrStopped        = errors.New("voice session stopped")
)

// State is where the call currently is.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

var transitions = map[State][]State{
	StateIdle:      {StateSpeaking, StateListening},
	StateListening: {StateThinking, StateIdle},
	StateThinking:  {StateSpeaking, StateListening, StateIdle},
	StateSpeaking:  {StateListening, StateIdle},
}

// Sender runs one chat turn and returns the full reply.
type Sender interface {
	Send(ctx context.Context, text string, onEvent func(sse.Event)) (string, error)
}

// Speaker plays text aloud and returns once playback finished.
type Speaker interface {
	Speak(ctx context.Context, text, language string) error
	StopSpeaking()
}

// Notifier receives what a UI needs to render the call.
type Notifier interface {
	StateChanged(State)
	Transcript(role chatapi.Role, text string)
	Failed(err error)
}

type nopNotifier struct{}

func (nopNotifier) StateChanged(State) {}
func (nopNotifier) Transcript(chatapi.Role, string) {}
func (nopNotifier) Failed(error) {}

// Session is one voice call.
type Session struct {
	sender       Sender
	speaker      Speaker
	notify       Notifier
	log          *slog.Logger
	limiter      *rate.Limiter
	now          func() time.Time
	speakTimeout time.Duration

	mu       sync.Mutex
	state    State
	language string
	busy     bool
	stopped  bool
	cancel   context.CancelFunc
	ctx      context.Context

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Session)

// WithDebounce sets the minimum gap between two accepted transcripts.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLanguage(language string) Option {
	return func(s *Session) {
		if language != "" {
			s.language = language
		}
	}
}

func WithSpeakTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.speakTimeout = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notify = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func NewSession(sender Sender, speaker Speaker, opts ...Option) *Session {
	s := &Session{
		sender:       sender,
		speaker:      speaker,
		notify:       nopNotifier{},
		log:          slog.Default(),
		limiter:      rate.NewLimiter(rate.Every(defaultDebounce), 1),
		now:          time.Now,
		speakTimeout: defaultSpeakTimeout,
		state:        StateIdle,
		language:     "en",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "voice")
	return s
}

// State returns the current call state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLanguage changes the language used for the following replies.
func (s *Session) SetLanguage(language string) {
	if language = strings.TrimSpace(language); language == "" {
		return
	}
	s.mu.Lock()
	s.language = language
	s.mu.Unlock()
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Start greets the caller in the background and then starts listening.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.ctx != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	sessionCtx := s.ctx
	greeting := Greeting(s.language)
	s.busy = true
	s.mu.Unlock()

	s.notify.Transcript(chatapi.RoleAssistant, greeting)
	s.transition(StateSpeaking)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.speak(sessionCtx, greeting)
		s.finishTurn()
	}()
	return nil
}

// HandleTranscript submits a final recognizer result. It reports whether the
// text was accepted; empty text, text arriving while a turn is in progress
// and text inside the debounce window are dropped.
func (s *Session) HandleTranscript(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.stopped || s.busy || s.state != StateListening {
		s.mu.Unlock()
		return false
	}
	if !s.limiter.AllowN(s.now(), 1) {
		s.mu.Unlock()
		s.log.Debug("transcript debounced")
		return false
	}
	s.busy = true
	sessionCtx := s.ctx
	s.mu.Unlock()

	s.notify.Transcript(chatapi.RoleUser, text)
	s.transition(StateThinking)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finishTurn()
		s.runTurn(sessionCtx, text)
	}()
	return true
}

func (s *Session) runTurn(ctx context.Context, text string) {
	reply, err := s.sender.Send(ctx, text, nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("voice turn failed", "error", err)
		s.notify.Failed(err)
		return
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	s.notify.Transcript(chatapi.RoleAssistant, reply)
	if s.transition(StateSpeaking) {
		s.speak(ctx, reply)
	}
}

func (s *Session) speak(ctx context.Context, text string) {
	speakCtx, cancel := context.WithTimeout(ctx, s.speakTimeout)
	defer cancel()
	if err := s.speaker.Speak(speakCtx, text, s.Language()); err != nil && ctx.Err() == nil {
		s.log.Warn("speech playback failed", "error", err)
	}
}

// finishTurn returns to listening unless the call ended meanwhile.
func (s *Session) finishTurn() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	s.transition(StateListening)
}

// Stop ends the call: in-flight turns and retries are cancelled and speech
// is interrupted. Calling it again has no effect.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		s.speaker.StopSpeaking()
		s.transition(StateIdle)
		s.wg.Wait()
		s.log.Info("voice session stopped")
	})
}

// transition validates and applies a state change. After Stop only idle is
// reachable.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	if s.stopped && next != StateIdle {
		s.mu.Unlock()
		return false
	}
	if s.state == next {
		s.mu.Unlock()
		return true
	}
	if !slices.Contains(transitions[s.state], next) {
		from := s.state
		s.mu.Unlock()
		s.log.Error("illegal voice state transition", "from", from, "to", next)
		return false
	}
	s.state = next
	s.mu.Unlock()

	s.notify.StateChanged(next)
	return true
}
