// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yatra.is/crowdwatch/internal/alerting"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/emergency"
	"yatra.is/crowdwatch/internal/health"
	"yatra.is/crowdwatch/internal/history"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

const (
	viewerKey = "cw_viewer_key"
	configKey = "cw_config_key"
	adminKey  = "cw_admin_key"
)

func testConfig() *config.Config {
	return &config.Config{
		Areas: []config.Area{
			{ID: "main-gate", Name: "Main Gate", Type: "gate", Capacity: 500, Adjacent: []string{"darshan-hall"}},
			{ID: "darshan-hall", Name: "Darshan Hall", Type: "hall", Capacity: 1200, Adjacent: []string{"main-gate"}},
			{ID: "ghat-1", Name: "Ghat 1", Type: "ghat", Capacity: 800},
		},
		APIKeys: []config.APIKey{
			{Name: "viewer", Key: viewerKey, Permissions: []string{config.PermViewOnly}},
			{Name: "operator", Key: configKey, Permissions: []string{config.PermConfigureThresholds}},
			{Name: "admin", Key: adminKey, Permissions: []string{config.PermAdmin}},
		},
	}
}

type testEnv struct {
	server    *Server
	monitor   *monitor.Monitor
	engine    *alerting.Engine
	emergency *emergency.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	mon := monitor.New(cfg.Areas, nil)
	em := emergency.NewManager(cfg.Areas, nil, nil)
	tm := threshold.NewManager(cfg.Areas, config.DefaultThresholds(), nil, nil)
	engine := alerting.NewEngine(tm, em, nil, nil)
	mon.Subscribe(engine.Evaluate)

	srv := NewServer(ServerOptions{
		Config:     cfg,
		Monitor:    mon,
		Thresholds: tm,
		Engine:     engine,
		Emergency:  em,
		Tracker:    health.NewTracker(nil),
	})
	return &testEnv{server: srv, monitor: mon, engine: engine, emergency: em}
}

func (e *testEnv) request(t *testing.T, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "GET", "/api/v1/areas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, "GET", "/api/v1/areas", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// viewer can read but not mutate
	rec = env.request(t, "GET", "/api/v1/config", viewerKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "POST", "/api/v1/config", viewerKey, saveConfigRequest{
		Config: threshold.Config{AreaID: "main-gate", Warning: 40, Critical: 60, Emergency: 80},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// configure_thresholds does not grant emergency control
	rec = env.request(t, "POST", "/api/v1/emergency/activate", configKey,
		map[string]string{"areaId": "main-gate", "adminId": "a1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admin key covers everything
	rec = env.request(t, "GET", "/api/v1/config", adminKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bearer scheme works too
	req := httptest.NewRequest("GET", "/api/v1/areas", nil)
	req.Header.Set("Authorization", "Bearer "+viewerKey)
	rec2 := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestHealth_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "GET", "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, false, body["emergency_active"])
}

func TestConfigCRUD(t *testing.T) {
	env := newTestEnv(t)

	// default config served for unconfigured area
	rec := env.request(t, "GET", "/api/v1/config?areaId=main-gate", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, 50.0, data["warning"])
	assert.Equal(t, true, data["default"])

	rec = env.request(t, "GET", "/api/v1/config?areaId=nowhere", viewerKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// save a custom config
	rec = env.request(t, "POST", "/api/v1/config", configKey, saveConfigRequest{
		Config:  threshold.Config{AreaID: "main-gate", Warning: 40, Critical: 60, Emergency: 80},
		AdminID: "admin-1",
		Reason:  "festival week",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, 1.0, data["version"])

	// non-ascending thresholds rejected
	rec = env.request(t, "POST", "/api/v1/config", configKey, saveConfigRequest{
		Config: threshold.Config{AreaID: "main-gate", Warning: 60, Critical: 60, Emergency: 80},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// delete reverts to default
	rec = env.request(t, "DELETE", "/api/v1/config?areaId=main-gate&adminId=admin-1", configKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// deleting again conflicts with no custom config present
	rec = env.request(t, "DELETE", "/api/v1/config?areaId=main-gate&adminId=admin-1", configKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlerts_Pagination(t *testing.T) {
	env := newTestEnv(t)

	// warning -> normal cycles: one resolved alert each
	for i := 0; i < 5; i++ {
		ts := time.Now().Add(time.Duration(2*i) * time.Second)
		require.NoError(t, env.monitor.Record(monitor.Reading{AreaID: "main-gate", Timestamp: ts, Density: 60}))
		require.NoError(t, env.monitor.Record(monitor.Reading{AreaID: "main-gate", Timestamp: ts.Add(time.Second), Density: 10}))
	}

	rec := env.request(t, "GET", "/api/v1/alerts?limit=2&offset=0", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 2)

	p := body["pagination"].(map[string]interface{})
	assert.Equal(t, 5.0, p["total"])
	assert.Equal(t, true, p["hasMore"])
	assert.Equal(t, 2.0, p["nextOffset"])
	assert.Nil(t, p["prevOffset"])

	rec = env.request(t, "GET", "/api/v1/alerts?limit=2&offset=4", viewerKey, nil)
	p = decodeBody(t, rec)["pagination"].(map[string]interface{})
	assert.Equal(t, false, p["hasMore"])
	assert.Equal(t, 2.0, p["prevOffset"])

	// invalid paging parameters
	rec = env.request(t, "GET", "/api/v1/alerts?limit=101", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.request(t, "GET", "/api/v1/alerts?offset=-1", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// severity filter
	rec = env.request(t, "GET", "/api/v1/alerts?severity=warning", viewerKey, nil)
	body = decodeBody(t, rec)
	assert.Len(t, body["data"], 5)
	rec = env.request(t, "GET", "/api/v1/alerts?severity=apocalyptic", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.monitor.Record(monitor.Reading{AreaID: "main-gate", Density: 60}))
	alerts := env.engine.ActiveAlerts()
	require.Len(t, alerts, 1)

	path := fmt.Sprintf("/api/v1/alerts/%s/ack", alerts[0].ID)
	rec := env.request(t, "POST", path, viewerKey, map[string]string{"authorityId": "authority-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, data["acknowledged"])

	// second acknowledge conflicts
	rec = env.request(t, "POST", path, viewerKey, map[string]string{"authorityId": "authority-2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.request(t, "POST", "/api/v1/alerts/no-such-id/ack", viewerKey, map[string]string{"authorityId": "a"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmergencyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "GET", "/api/v1/emergency", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["active"])

	rec = env.request(t, "POST", "/api/v1/emergency/activate", adminKey,
		map[string]string{"areaId": "main-gate", "adminId": "admin-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"main-gate", "darshan-hall"}, data["affected_areas"])

	// double activation conflicts
	rec = env.request(t, "POST", "/api/v1/emergency/activate", adminKey,
		map[string]string{"areaId": "ghat-1", "adminId": "admin-2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.request(t, "POST", "/api/v1/emergency/deactivate", adminKey, map[string]string{"adminId": "admin-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "POST", "/api/v1/emergency/deactivate", adminKey, map[string]string{"adminId": "admin-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAreas(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.monitor.Record(monitor.Reading{AreaID: "darshan-hall", Density: 80}))

	rec := env.request(t, "GET", "/api/v1/areas", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]interface{})
	require.Len(t, data, 3)

	hall := data[1].(map[string]interface{})
	assert.Equal(t, "darshan-hall", hall["id"])
	assert.Equal(t, "critical", hall["level"])
	require.NotNil(t, hall["reading"])

	rec = env.request(t, "GET", "/api/v1/areas/ghat-1", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/v1/areas/nowhere", viewerKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, "GET", "/api/v1/history", viewerKey, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHistory_PeakAreas(t *testing.T) {
	cfg := testConfig()
	hs, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hs.Close() })

	col := history.NewCollector(hs, time.Minute, nil)
	now := time.Now()
	col.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: now, Density: 88})
	col.Ingest(monitor.Reading{AreaID: "ghat-1", Timestamp: now, Density: 42})
	require.NoError(t, col.Flush())

	mon := monitor.New(cfg.Areas, nil)
	em := emergency.NewManager(cfg.Areas, nil, nil)
	tm := threshold.NewManager(cfg.Areas, config.DefaultThresholds(), nil, nil)
	env := &testEnv{server: NewServer(ServerOptions{
		Config:     cfg,
		Monitor:    mon,
		Thresholds: tm,
		Engine:     alerting.NewEngine(tm, em, nil, nil),
		Emergency:  em,
		Tracker:    health.NewTracker(nil),
		HistoryDB:  hs,
	})}

	rec := env.request(t, "GET", "/api/v1/history?peak=true", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)

	// busiest area first
	first := data[0].(map[string]interface{})
	assert.Equal(t, "main-gate", first["area_id"])
	assert.Equal(t, 88.0, first["max_density"])
}

func TestRateLimit_ConfigEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = &config.RateLimitConfig{ConfigRequestsPerMinute: 2, StreamConnectionsPerMinute: 10}

	mon := monitor.New(cfg.Areas, nil)
	tm := threshold.NewManager(cfg.Areas, config.DefaultThresholds(), nil, nil)
	em := emergency.NewManager(cfg.Areas, nil, nil)
	srv := NewServer(ServerOptions{
		Config:     cfg,
		Monitor:    mon,
		Thresholds: tm,
		Engine:     alerting.NewEngine(tm, em, nil, nil),
		Emergency:  em,
		Tracker:    health.NewTracker(nil),
	})
	env := &testEnv{server: srv}

	body := saveConfigRequest{Config: threshold.Config{AreaID: "main-gate", Warning: 40, Critical: 60, Emergency: 80}}
	for i := 0; i < 2; i++ {
		rec := env.request(t, "POST", "/api/v1/config", configKey, body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := env.request(t, "POST", "/api/v1/config", configKey, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAuthDisabled(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.Server = &config.ServerConfig{RequireAuth: &off}
	cfg.APIKeys = nil

	mon := monitor.New(cfg.Areas, nil)
	tm := threshold.NewManager(cfg.Areas, config.DefaultThresholds(), nil, nil)
	em := emergency.NewManager(cfg.Areas, nil, nil)
	srv := NewServer(ServerOptions{
		Config:     cfg,
		Monitor:    mon,
		Thresholds: tm,
		Engine:     alerting.NewEngine(tm, em, nil, nil),
		Emergency:  em,
		Tracker:    health.NewTracker(nil),
	})
	env := &testEnv{server: srv}

	rec := env.request(t, "GET", "/api/v1/areas", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
