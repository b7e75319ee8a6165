package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	model "github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

const defaultWriteTimeout = 10 * time.Second

// Input is what the chat pipeline knows about a risky message.
type Input struct {
	SessionID      string
	UserID         string
	MessageID      string
	RiskLevel      chatapi.RiskLevel
	PrimaryFeeling string
	Message        string
}

// Stats summarises the review queue for dashboards.
type Stats struct {
	Pending         int `json:"pending"`
	HighRiskPending int `json:"highRiskPending"`
	Acknowledged    int `json:"acknowledged"`
	ResolvedToday   int `json:"resolvedToday"`
}

// Service records crisis alerts and exposes the review operations.
type Service struct {
	store        model.Store
	feed         *Feed
	log          *slog.Logger
	writeTimeout time.Duration
	now          func() time.Time
	newID        func() string

	wg sync.WaitGroup
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWriteTimeout bounds each detached insert.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func NewService(store model.Store, feed *Feed, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		feed:         feed,
		log:          log.With("component", "alert"),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordAlert persists an alert in the background. It never blocks on the
// store and never reports failure to the caller; errors are logged.
func (s *Service) RecordAlert(ctx context.Context, in Input) {
	if !in.RiskLevel.Alerting() {
		return
	}
	if strings.TrimSpace(in.SessionID) == "" {
		s.log.Warn("skipping crisis alert without session", "risk", in.RiskLevel)
		return
	}

	a := &model.CrisisAlert{
		ID:             s.newID(),
		SessionID:      in.SessionID,
		MessageID:      model.Optional(in.MessageID),
		UserID:         model.Optional(in.UserID),
		PseudoUserID:   model.PseudoUserID(in.SessionID),
		RiskLevel:      in.RiskLevel,
		PrimaryFeeling: model.Optional(in.PrimaryFeeling),
		MessagePreview: model.Preview(in.Message),
		Status:         model.StatusPending,
		CreatedAt:      s.now().UTC(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("crisis alert writer panicked", "panic", r, "session", a.SessionID)
			}
		}()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		if err := s.store.Insert(writeCtx, a); err != nil {
			s.log.Error("failed to record crisis alert", "error", err, "session", a.SessionID, "risk", a.RiskLevel)
			return
		}
		s.log.Info("crisis alert recorded", "id", a.ID, "pseudo_user", a.PseudoUserID, "risk", a.RiskLevel)
		s.feed.Publish(FeedEvent{Type: EventCreated, Alert: *a})
	}()
}

// Wait blocks until every in-flight alert write has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) List(ctx context.Context, f model.Filter) ([]model.CrisisAlert, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.ErrInvalidStatus
	}
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (model.CrisisAlert, error) {
	return s.store.Get(ctx, id)
}

// Acknowledge marks a pending alert as seen by a reviewer.
func (s *Service) Acknowledge(ctx context.Context, id, by string) (model.CrisisAlert, error) {
	return s.transition(ctx, id, model.StatusAcknowledged, by)
}

// Resolve closes an alert. Resolved alerts cannot change again.
func (s *Service) Resolve(ctx context.Context, id, by string) (model.CrisisAlert, error) {
	return s.transition(ctx, id, model.StatusResolved, by)
}

func (s *Service) transition(ctx context.Context, id string, next model.Status, by string) (model.CrisisAlert, error) {
	a, err := s.store.Transition(ctx, id, next, by, s.now().UTC())
	if err != nil {
		return model.CrisisAlert{}, fmt.Errorf("move alert %s to %s: %w", id, next, err)
	}
	s.log.Info("crisis alert updated", "id", id, "status", next, "by", by)
	s.feed.Publish(FeedEvent{Type: EventUpdated, Alert: a})
	return a, nil
}

// Stats counts the review queue. Resolved-today uses the service clock's day.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.List(ctx, model.Filter{})
	if err != nil {
		return Stats{}, err
	}

	now := s.now()
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var st Stats
	for _, a := range all {
		switch a.Status {
		case model.StatusPending:
			st.Pending++
			if a.RiskLevel == chatapi.RiskHigh {
				st.HighRiskPending++
			}
		case model.StatusAcknowledged:
			st.Acknowledged++
		case model.StatusResolved:
			if a.ResolvedAt != nil && !a.ResolvedAt.Before(startOfDay) {
				st.ResolvedToday++
			}
		}
	}
	return st, nil
}

// Subscribe attaches a live listener to alert changes.
func (s *Service) Subscribe() (<-chan FeedEvent, func()) {
	return s.feed.Subscribe()
}
