package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/internal/model/chat"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// apiClient calls the JSON endpoints of the server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *apiClient) chatURL() string {
	return c.base + "/api/chat"
}

func (c *apiClient) createSession(ctx context.Context, userID, language string) (chat.Session, error) {
	var session chat.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"userId": userID, "language": language}, &session)
	return session, err
}

func (c *apiClient) listAlerts(ctx context.Context, status string, limit int) ([]alert.CrisisAlert, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/alerts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var alerts []alert.CrisisAlert
	err := c.do(ctx, http.MethodGet, path, nil, &alerts)
	return alerts, err
}

func (c *apiClient) alertStats(ctx context.Context) (alertService.Stats, error) {
	var stats alertService.Stats
	err := c.do(ctx, http.MethodGet, "/api/alerts/stats", nil, &stats)
	return stats, err
}

// transitionAlert posts to /api/alerts/{id}/{action}.
func (c *apiClient) transitionAlert(ctx context.Context, id, action, by string) (alert.CrisisAlert, error) {
	var updated alert.CrisisAlert
	path := "/api/alerts/" + url.PathEscape(id) + "/" + action
	err := c.do(ctx, http.MethodPost, path, map[string]string{"by": by}, &updated)
	return updated, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr chatapi.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
