package apistats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

type dashboard struct {
	userStats  string
	modelStats string
	status     atomic.Int32
	calls      atomic.Int32
	bodies     chan map[string]any
	headers    chan http.Header
}

func newDashboard(t *testing.T, userStats, modelStats string) (*dashboard, *httptest.Server) {
	t.Helper()
	d := &dashboard{
		userStats:  userStats,
		modelStats: modelStats,
		bodies:     make(chan map[string]any, 4),
		headers:    make(chan http.Header, 4),
	}
	d.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.calls.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		d.bodies <- body
		d.headers <- r.Header.Clone()

		if status := int(d.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case UserStatsPath:
			_, _ = w.Write([]byte(d.userStats))
		case ModelStatsPath:
			_, _ = w.Write([]byte(d.modelStats))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return d, srv
}

func TestIdentifier(t *testing.T) {
	id, origin, err := Identifier("https://relay.example.com:6443/admin-next/api-stats?apiId=abc-123&x=1")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "https://relay.example.com:6443", origin)

	for _, raw := range []string{
		"https://relay.example.com/admin-next/api-stats",
		"https://relay.example.com/?apiId=",
		"not a url",
		"",
	} {
		_, _, err := Identifier(raw)
		assert.ErrorIs(t, err, types.ErrNoIdentifier, raw)
	}
}

func TestEndpoints(t *testing.T) {
	stats, models := Endpoints("https://relay.example.com/")
	assert.Equal(t, "https://relay.example.com/apiStats/api/user-stats", stats)
	assert.Equal(t, "https://relay.example.com/apiStats/api/user-model-stats", models)
}

func TestFetchAggregatesModelStats(t *testing.T) {
	d, srv := newDashboard(t,
		`{"limits": {"dailyCostLimit": 10}, "expiresAt": "2025-01-31"}`,
		`[{"requests": 10, "allTokens": 500, "costs": {"total": 0.5}}, {"requests": 5, "inputTokens": 100, "outputTokens": 50}]`,
	)

	c := NewClient(srv.Client(), nil, 5*time.Second)
	rec, err := c.Fetch(context.Background(), srv.URL+"/admin-next/api-stats?apiId=key-1")
	require.NoError(t, err)

	assert.Equal(t, 15, rec.RequestCount)
	assert.Equal(t, 650.0, rec.TokenCount)
	assert.Equal(t, 0.5, rec.TodayCost)
	assert.Equal(t, 10.0, rec.CostLimit)
	require.NotNil(t, rec.CostPercentage)
	assert.Equal(t, 5.0, *rec.CostPercentage)
	assert.Equal(t, "2025-01-31", rec.ExpiryDate)
	assert.True(t, rec.LastUpdate.IsZero(), "the orchestrator stamps lastUpdate")

	assert.EqualValues(t, 2, d.calls.Load())
	seenPeriod := false
	for range 2 {
		body := <-d.bodies
		assert.Equal(t, "key-1", body["apiId"])
		if body["period"] == "daily" {
			seenPeriod = true
		}
	}
	assert.True(t, seenPeriod)

	h := <-d.headers
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, DefaultAcceptLanguage, h.Get("Accept-Language"))
	assert.Equal(t, srv.URL, h.Get("Origin"))
	assert.Contains(t, h.Get("Referer"), "apiId=key-1")
	assert.Contains(t, h.Get("User-Agent"), "ccstatusbar")
}

func TestFetchUnwrapsEnvelopes(t *testing.T) {
	_, srv := newDashboard(t,
		`{"data": {"limits": {"dailyCostLimit": 20}, "keyName": "team", "status": "active"}}`,
		`{"data": {"items": [{"requests": "3", "inputTokens": 1, "cacheReadTokens": 9, "costs": {"total": 4}}]}}`,
	)

	rec, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RequestCount)
	assert.Equal(t, 10.0, rec.TokenCount)
	assert.Equal(t, 4.0, rec.TodayCost)
	assert.Equal(t, "team", rec.APIKeyName)
	assert.Equal(t, "active", rec.APIKeyStatus)
	require.NotNil(t, rec.CostPercentage)
	assert.Equal(t, 20.0, *rec.CostPercentage)
}

func TestFetchListShapeAndNoLimit(t *testing.T) {
	_, srv := newDashboard(t,
		`{"apiKeyName": "primary", "keyName": "ignored", "limits": {"dailyCostLimit": "10"}}`,
		`{"list": [{"requests": 2, "allTokens": -1, "outputTokens": 5}]}`,
	)

	rec, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RequestCount)
	assert.Equal(t, 5.0, rec.TokenCount, "negative allTokens falls back to the granular fields")
	assert.Equal(t, 0.0, rec.CostLimit, "string limits are ignored")
	assert.Nil(t, rec.CostPercentage)
	assert.Equal(t, "primary", rec.APIKeyName)
}

func TestFetchNumericExpiry(t *testing.T) {
	_, srv := newDashboard(t,
		`{"expiresAt": 1735689600000, "apiKeyStatus": 1}`,
		`[]`,
	)

	rec, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)
	assert.Equal(t, "1735689600000", rec.ExpiryDate)
	assert.Equal(t, "1", rec.APIKeyStatus)
}

func TestFetchTotalsRoundOnce(t *testing.T) {
	_, srv := newDashboard(t,
		`{"limits": {}}`,
		`[{"model": "a", "requests": "1.5", "allTokens": 10}, {"model": "b", "requestCount": 1.5, "inputTokens": 4, "outputTokens": 1}]`,
	)

	rec, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RequestCount)
	assert.Equal(t, 15.0, rec.TokenCount)
}

func TestFetchHeaderOverrides(t *testing.T) {
	d, srv := newDashboard(t, `{}`, `[]`)

	c := NewClient(srv.Client(), map[string]string{"User-Agent": "custom/1.0", "X-Token": "t"}, 0)
	_, err := c.Fetch(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)

	h := <-d.headers
	assert.Equal(t, "custom/1.0", h.Get("User-Agent"))
	assert.Equal(t, "t", h.Get("X-Token"))
}

func TestFetchFailures(t *testing.T) {
	t.Run("no identifier makes no request", func(t *testing.T) {
		d, srv := newDashboard(t, `{}`, `[]`)
		_, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"/admin-next/api-stats")
		assert.ErrorIs(t, err, types.ErrNoIdentifier)
		assert.EqualValues(t, 0, d.calls.Load())
	})

	t.Run("non-2xx", func(t *testing.T) {
		d, srv := newDashboard(t, `{}`, `[]`)
		d.status.Store(http.StatusBadGateway)
		_, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=secret")
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrHTTPStatus)
		var httpErr *types.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
		assert.NotContains(t, err.Error(), "secret")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, srv := newDashboard(t, `{not json`, `[]`)
		_, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
		assert.ErrorContains(t, err, "invalid JSON")
	})

	t.Run("user stats not an object", func(t *testing.T) {
		_, srv := newDashboard(t, `[1, 2]`, `[]`)
		_, err := NewClient(srv.Client(), nil, 0).Fetch(context.Background(), srv.URL+"?apiId=k")
		assert.ErrorIs(t, err, types.ErrUnexpectedShape)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		_, err := NewClient(srv.Client(), nil, 50*time.Millisecond).Fetch(context.Background(), srv.URL+"?apiId=k")
		assert.Error(t, err)
	})
}

func TestFetchReportKeepsModelRows(t *testing.T) {
	_, srv := newDashboard(t,
		`{"limits": {"dailyCostLimit": 10}}`,
		`{"list": [
			{"model": "claude-sonnet-4-5-20250929", "requests": 7, "allTokens": 1200, "costs": {"total": 1.25}},
			{"name": "claude-haiku-4-5-20251001", "requests": 3, "tokens": 300},
			"ignored"
		]}`,
	)

	report, err := NewClient(srv.Client(), nil, 0).FetchReport(context.Background(), srv.URL+"?apiId=k")
	require.NoError(t, err)
	require.Len(t, report.Models, 2)

	assert.Equal(t, types.ModelUsage{Model: "claude-sonnet-4-5-20250929", Requests: 7, Tokens: 1200, Cost: 1.25}, report.Models[0])
	assert.Equal(t, types.ModelUsage{Model: "claude-haiku-4-5-20251001", Requests: 3, Tokens: 300}, report.Models[1])
	assert.Equal(t, 10, report.Record.RequestCount)
	assert.Equal(t, 1500.0, report.Record.TokenCount)
	assert.Equal(t, 1.25, report.Record.TodayCost)
}
