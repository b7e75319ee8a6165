package alert_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kaviyashree6/empathyconnect/internal/config"
	"github.com/kaviyashree6/empathyconnect/internal/database"
	"github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]alert.Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.Open(context.Background(), config.AlertConfig{Store: config.AlertStoreSQLite, DSN: dsn}, log)
	require.NoError(t, err)

	gs := alert.NewGormStore(db)
	require.NoError(t, gs.Migrate(context.Background()))

	return map[string]alert.Store{
		"memory": alert.NewMemoryStore(),
		"gorm":   gs,
	}
}

func newAlert(id string, risk chatapi.RiskLevel, created time.Time) *alert.CrisisAlert {
	return &alert.CrisisAlert{
		ID:             id,
		SessionID:      "session-" + id,
		PseudoUserID:   alert.PseudoUserID("session-" + id),
		RiskLevel:      risk,
		MessagePreview: "preview " + id,
		Status:         alert.StatusPending,
		CreatedAt:      created,
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

			require.NoError(t, store.Insert(ctx, newAlert("a1", chatapi.RiskMedium, base)))
			require.NoError(t, store.Insert(ctx, newAlert("a2", chatapi.RiskHigh, base.Add(time.Minute))))

			list, err := store.List(ctx, alert.Filter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a2", list[0].ID, "newest first")

			acked, err := store.Transition(ctx, "a1", alert.StatusAcknowledged, "dr. lee", base.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, alert.StatusAcknowledged, acked.Status)
			require.NotNil(t, acked.AcknowledgedBy)
			assert.Equal(t, "dr. lee", *acked.AcknowledgedBy)
			require.NotNil(t, acked.AcknowledgedAt)

			resolved, err := store.Transition(ctx, "a1", alert.StatusResolved, "dr. lee", base.Add(2*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, alert.StatusResolved, resolved.Status)
			require.NotNil(t, resolved.ResolvedAt)

			pending, err := store.List(ctx, alert.Filter{Status: alert.StatusPending})
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "a2", pending[0].ID)
		})
	}
}

func TestStoreRejectsInvalidTransitions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, store.Insert(ctx, newAlert("b1", chatapi.RiskHigh, now)))

			// Resolution without acknowledgement is allowed.
			_, err := store.Transition(ctx, "b1", alert.StatusResolved, "", now)
			require.NoError(t, err)

			_, err = store.Transition(ctx, "b1", alert.StatusAcknowledged, "x", now)
			assert.ErrorIs(t, err, alert.ErrInvalidTransition, "resolved is terminal")

			_, err = store.Transition(ctx, "b1", alert.StatusPending, "x", now)
			assert.ErrorIs(t, err, alert.ErrInvalidTransition)

			_, err = store.Transition(ctx, "missing", alert.StatusResolved, "x", now)
			assert.ErrorIs(t, err, alert.ErrNotFound)

			_, err = store.Transition(ctx, "b1", alert.Status("archived"), "x", now)
			assert.ErrorIs(t, err, alert.ErrInvalidStatus)
		})
	}
}

func TestPseudoUserIDAndPreview(t *testing.T) {
	assert.Equal(t, "User_AB3F", alert.PseudoUserID("ab3f91c2-0000"))
	assert.Equal(t, "User_XY", alert.PseudoUserID("xy"))

	long := ""
	for range 250 {
		long += "é"
	}
	assert.Len(t, []rune(alert.Preview(long)), alert.PreviewLimit)
	assert.Equal(t, "short", alert.Preview("short"))
}

func TestStatusCanTransition(t *testing.T) {
	assert.True(t, alert.StatusPending.CanTransition(alert.StatusAcknowledged))
	assert.True(t, alert.StatusPending.CanTransition(alert.StatusResolved))
	assert.True(t, alert.StatusAcknowledged.CanTransition(alert.StatusResolved))
	assert.False(t, alert.StatusAcknowledged.CanTransition(alert.StatusPending))
	assert.False(t, alert.StatusResolved.CanTransition(alert.StatusAcknowledged))
}
