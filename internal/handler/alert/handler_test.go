package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/kaviyashree6/empathyconnect/internal/model/alert"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

func setupRouter(t *testing.T) (*chi.Mux, *alertService.Service) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := alertService.NewService(model.NewMemoryStore(), alertService.NewFeed(8), log)

	r := chi.NewRouter()
	New(svc, log).RegisterRoutes(r)
	return r, svc
}

func seed(t *testing.T, svc *alertService.Service, session string, risk chatapi.RiskLevel) model.CrisisAlert {
	t.Helper()
	svc.RecordAlert(context.Background(), alertService.Input{
		SessionID: session,
		RiskLevel: risk,
		Message:   "I can't take it anymore",
	})
	svc.Wait()

	alerts, err := svc.List(context.Background(), model.Filter{})
	require.NoError(t, err)
	for _, a := range alerts {
		if a.SessionID == session {
			return a
		}
	}
	t.Fatalf("alert for %s not stored", session)
	return model.CrisisAlert{}
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListAndStats(t *testing.T) {
	r, svc := setupRouter(t)
	seed(t, svc, "aaaa-1", chatapi.RiskHigh)
	seed(t, svc, "bbbb-2", chatapi.RiskMedium)

	resp := do(r, http.MethodGet, "/alerts", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var alerts []model.CrisisAlert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &alerts))
	assert.Len(t, alerts, 2)

	resp = do(r, http.MethodGet, "/alerts/stats", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var stats alertService.Stats
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.HighRiskPending)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodGet, "/alerts?status=closed", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodGet, "/alerts?status=pending", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())
}

func TestAcknowledgeThenResolve(t *testing.T) {
	r, svc := setupRouter(t)
	a := seed(t, svc, "cccc-3", chatapi.RiskHigh)

	resp := do(r, http.MethodPost, "/alerts/"+a.ID+"/acknowledge", `{"by":"dr.rao"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var updated model.CrisisAlert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, model.StatusAcknowledged, updated.Status)
	require.NotNil(t, updated.AcknowledgedBy)
	assert.Equal(t, "dr.rao", *updated.AcknowledgedBy)

	resp = do(r, http.MethodPost, "/alerts/"+a.ID+"/resolve", `{"by":"dr.rao"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(r, http.MethodPost, "/alerts/"+a.ID+"/acknowledge", `{"by":"dr.rao"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestTransitionErrors(t *testing.T) {
	r, svc := setupRouter(t)
	a := seed(t, svc, "dddd-4", chatapi.RiskMedium)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/alerts/missing/resolve", `{"by":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/alerts/"+a.ID+"/resolve", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/alerts/"+a.ID+"/resolve", `not json`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/alerts/missing", "").Code)
}

func TestStreamPushesCreatedAlerts(t *testing.T) {
	r, svc := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/alerts/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	svc.RecordAlert(context.Background(), alertService.Input{
		SessionID: "eeee-5",
		RiskLevel: chatapi.RiskHigh,
		Message:   "I want to end my life",
	})

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, string(alertService.EventCreated), event)
	var a model.CrisisAlert
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, "eeee-5", a.SessionID)
	assert.Equal(t, "User_EEEE", a.PseudoUserID)
}
