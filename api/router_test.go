package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/storage"
)

const eventURL = "https://tickets.example.com/event/E-104"

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth = config.AuthConfig{}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	return cfg
}

func seededStore(t *testing.T) storage.Store {
	t.Helper()
	s := storage.NewJSONFile(filepath.Join(t.TempDir(), "prices.json"))
	at := time.Date(2026, 7, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(context.Background(), []models.PriceRecord{
		{RunID: "r1", TargetName: "Final", TargetURL: eventURL, Category: "Category 1", Price: 4200, Currency: "USD", CapturedAt: at},
		{RunID: "r1", TargetName: "Final", TargetURL: eventURL, Category: "Category 2", Price: 2100, Currency: "USD", CapturedAt: at},
		{RunID: "r2", TargetName: "Final", TargetURL: eventURL, Category: "Category 1", Price: 3900, Currency: "USD", CapturedAt: at.Add(time.Hour)},
	}))
	return s
}

func serve(t *testing.T, cfg *config.Config, store storage.Store) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cc := cache.New[*models.HistoryResponse](10, time.Minute)
	t.Cleanup(cc.Stop)
	return NewRouter(ctx, store, cfg, cc, time.Now())
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := serve(t, testConfig(), seededStore(t))

	w := get(h, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Store)
}

func TestHealth_DegradedStore(t *testing.T) {
	store := storage.NewJSONFile(filepath.Join(t.TempDir(), "missing-dir", "prices.json"))
	h := serve(t, testConfig(), store)

	var resp models.HealthResponse
	w := get(h, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestTargets(t *testing.T) {
	h := serve(t, testConfig(), seededStore(t))

	w := get(h, "/api/v1/targets")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TargetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Targets, 1)
	assert.Equal(t, eventURL, resp.Targets[0].URL)
	assert.Equal(t, 3, resp.Targets[0].Records)
}

func TestHistory(t *testing.T) {
	h := serve(t, testConfig(), seededStore(t))
	path := "/api/v1/history?url=" + url.QueryEscape(eventURL+"?Currency=USD")

	w := get(h, path)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Final", resp.Name)
	assert.Equal(t, "MISS", resp.CacheStatus)
	require.Len(t, resp.Categories["Category 1"], 2)
	assert.Equal(t, 4200.0, resp.Categories["Category 1"][0].Price)
	assert.Equal(t, 3900.0, resp.Categories["Category 1"][1].Price)
	assert.Len(t, resp.Categories["Category 2"], 1)

	w = get(h, path)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HIT", resp.CacheStatus)
}

func TestHistory_MissingURL(t *testing.T) {
	h := serve(t, testConfig(), seededStore(t))

	w := get(h, "/api/v1/history")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k-1"}}
	h := serve(t, cfg, seededStore(t))

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/targets").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/targets", "X-API-Key", "nope").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/targets", "X-API-Key", "k-1").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/targets", "Authorization", "Bearer k-1").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/health").Code, "health must stay open")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}
	h := serve(t, cfg, seededStore(t))

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/targets").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/targets").Code)
	w := get(h, "/api/v1/targets")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestMetrics(t *testing.T) {
	h := serve(t, testConfig(), seededStore(t))
	w := get(h, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
