package stats

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vellumhq/vellum-go/lib"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/history"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/store"
	"github.com/vellumhq/vellum-go/lib/ws"
	"go.uber.org/zap"
)

var alice = author.VersionAuthor{ID: "a-alice", Name: "Alice"}

// deadStore answers every query but fails the liveness probe.
type deadStore struct {
	store.VersionStore
}

func (deadStore) Ping() error {
	return errors.New("store gone")
}

func newTestStore(t *testing.T, versionStore store.VersionStore, retrieved *settings.Settings, registry *prometheus.Registry) *lib.InitStore {
	logger := zap.NewNop().Sugar()
	historyManager := history.NewManager(versionStore, logger)
	coordinator := collab.NewCoordinator(historyManager, versionStore, logger)
	t.Cleanup(coordinator.Shutdown)

	initStore := &lib.InitStore{
		C:                 fiber.New(),
		RetrievedSettings: retrieved,
		Store:             versionStore,
		History:           historyManager,
		Coordinator:       coordinator,
		Hub:               ws.NewHub(),
		Validator:         lib.NewValidator(),
		Logger:            logger,
	}
	if registry != nil {
		initStore.Registry = registry
		initStore.Metrics = metrics.NewMetrics(registry)
	}
	Init(initStore)
	return initStore
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	initStore := newTestStore(t, store.NewMemoryVersionStore(), &settings.Displayed, nil)

	_, err := initStore.Coordinator.StartSession("docs/guide", "", alice)
	require.NoError(t, err)

	resp := get(t, initStore.C, "/health")
	require.Equal(t, 200, resp.StatusCode)

	var health HealthResponse
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &health))

	assert.Equal(t, StatusPass, health.Status)
	assert.Equal(t, "vellum-api", health.ServiceID)

	require.Len(t, health.Checks["store"], 1)
	assert.Equal(t, StatusPass, health.Checks["store"][0].Status)

	require.Len(t, health.Checks["sessions"], 1)
	assert.Equal(t, StatusPass, health.Checks["sessions"][0].Status)
	assert.Equal(t, float64(1), health.Checks["sessions"][0].Observed)

	require.Len(t, health.Checks["sockets"], 1)
	assert.Equal(t, float64(0), health.Checks["sockets"][0].Observed)
}

func TestHealthFailsWhenStoreUnreachable(t *testing.T) {
	initStore := newTestStore(t, deadStore{store.NewMemoryVersionStore()}, &settings.Displayed, nil)

	resp := get(t, initStore.C, "/health")
	require.Equal(t, 503, resp.StatusCode)

	var health HealthResponse
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &health))

	assert.Equal(t, StatusFail, health.Status)
	require.Len(t, health.Checks["store"], 1)
	assert.Equal(t, StatusFail, health.Checks["store"][0].Status)
	assert.Contains(t, health.Checks["store"][0].Output, "store gone")

	// The other probes keep reporting.
	require.Len(t, health.Checks["sessions"], 1)
	assert.Equal(t, StatusPass, health.Checks["sessions"][0].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	enabled := settings.Displayed
	enabled.EnableMetrics = true
	initStore := newTestStore(t, store.NewMemoryVersionStore(), &enabled, prometheus.NewRegistry())

	resp := get(t, initStore.C, "/metrics")
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "vellum_open_sessions"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestMetricsDisabled(t *testing.T) {
	disabled := settings.Displayed
	disabled.EnableMetrics = false
	initStore := newTestStore(t, store.NewMemoryVersionStore(), &disabled, prometheus.NewRegistry())

	resp := get(t, initStore.C, "/metrics")
	require.Equal(t, 404, resp.StatusCode)
}
