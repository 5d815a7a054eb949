package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.RequestDuration)
	assert.NotNil(t, m.UpstreamCalls)
	assert.NotNil(t, m.ErrorsTotal)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.TVWakeFailures)
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/api/weather", "200")
	m.RecordRequest("/api/weather", "200")
	m.RecordRequest("/api/tv/wake", "503")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `dashboard_requests_total{route="/api/weather",status="200"} 2`)
	assert.Contains(t, body, `dashboard_requests_total{route="/api/tv/wake",status="503"} 1`)
}

func TestMetrics_RecordError(t *testing.T) {
	m := New()
	m.RecordError("spotify", "upstream_api")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `dashboard_errors_total{kind="upstream_api",service="spotify"} 1`)
}

func TestMetrics_CacheObserver(t *testing.T) {
	m := New()
	obs := m.CacheObserver("weather")
	obs("k", true)
	obs("k", true)
	obs("k", false)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `dashboard_cache_hits_total{cache="weather"} 2`)
	assert.Contains(t, body, `dashboard_cache_misses_total{cache="weather"} 1`)
}

func TestMetrics_SetTVWakeFailures(t *testing.T) {
	m := New()
	m.SetTVWakeFailures(3)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "dashboard_tv_wake_failures 3")
}

func TestMetrics_InstrumentRoundTripper(t *testing.T) {
	m := New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := &http.Client{Transport: m.InstrumentRoundTripper(nil)}
	resp, err := client.Get(srv.URL + "/api/v2/")
	require.NoError(t, err)
	resp.Body.Close()

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `operation="GET"`)
	assert.Contains(t, body, "dashboard_upstream_calls_total")
}
