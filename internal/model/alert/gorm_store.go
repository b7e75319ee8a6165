package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormStore persists alerts in a SQL table through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the crisis_alerts table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&CrisisAlert{}); err != nil {
		return fmt.Errorf("migrate crisis alerts: %w", err)
	}
	return nil
}

func (s *GormStore) Insert(ctx context.Context, a *CrisisAlert) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("insert crisis alert: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (CrisisAlert, error) {
	var a CrisisAlert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CrisisAlert{}, ErrNotFound
	}
	if err != nil {
		return CrisisAlert{}, fmt.Errorf("get crisis alert: %w", err)
	}
	return a, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]CrisisAlert, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []CrisisAlert
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list crisis alerts: %w", err)
	}
	return out, nil
}

// Transition performs a conditional update so concurrent reviewers cannot
// move an alert along an edge the state machine forbids.
func (s *GormStore) Transition(ctx context.Context, id string, next Status, by string, at time.Time) (CrisisAlert, error) {
	if !next.Valid() {
		return CrisisAlert{}, ErrInvalidStatus
	}
	from := sourcesOf(next)
	if len(from) == 0 {
		return CrisisAlert{}, ErrInvalidTransition
	}

	updates := map[string]any{"status": next}
	switch next {
	case StatusAcknowledged:
		updates["acknowledged_by"] = Optional(by)
		updates["acknowledged_at"] = at
	case StatusResolved:
		updates["resolved_by"] = Optional(by)
		updates["resolved_at"] = at
	}

	res := s.db.WithContext(ctx).
		Model(&CrisisAlert{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return CrisisAlert{}, fmt.Errorf("update crisis alert: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return CrisisAlert{}, err
		}
		return CrisisAlert{}, ErrInvalidTransition
	}
	return s.Get(ctx, id)
}
