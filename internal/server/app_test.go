package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lee-tech/analytics/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.AnalyticsConfig {
	return &config.AnalyticsConfig{
		Config: &config.Config{
			ServiceName:    "report-analytics",
			ServiceVersion: "test",
			LogLevel:       "error",
			HTTPAddr:       ":0",
		},
		SourceMode: config.SourceModeHTTP,
		ShiftMode:  config.ShiftModeLegacy,
	}
}

func TestInitializeHTTPAppServesHealth(t *testing.T) {
	app, err := InitializeHTTPApp(testConfig(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestInitializeHTTPAppRequiresConfig(t *testing.T) {
	_, err := InitializeHTTPApp(nil, nil)
	require.Error(t, err)
}

func TestInitialComponentsAndResolve(t *testing.T) {
	app, err := InitializeHTTPApp(testConfig(), &HTTPAppOptions{
		InitialComponents: map[string]any{"config.analytics": "seed"},
	})
	require.NoError(t, err)

	component, ok := app.GetComponent("config.analytics")
	require.True(t, ok)
	assert.Equal(t, "seed", component)

	err = app.resolve([]namedFactory{
		{key: "present", factory: func(*HTTPApp) (interface{}, error) { return 42, nil }},
		{key: "skipped", factory: func(*HTTPApp) (interface{}, error) { return nil, nil }},
	})
	require.NoError(t, err)

	value, ok := app.GetComponent("present")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	_, ok = app.GetComponent("skipped")
	assert.False(t, ok)

	boom := errors.New("boom")
	err = app.resolve([]namedFactory{{key: "broken", factory: func(*HTTPApp) (interface{}, error) { return nil, boom }}})
	require.ErrorIs(t, err, boom)
}

func TestRouteRestrictsMethods(t *testing.T) {
	app, err := InitializeHTTPApp(testConfig(), &HTTPAppOptions{DisableHealthRoutes: true})
	require.NoError(t, err)

	Route(app.Router, "/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, WithMethods(http.MethodPost), WithName("ping"))

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.NotNil(t, app.Router.Get("ping"))

	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	app, err := InitializeHTTPApp(testConfig(), nil)
	require.NoError(t, err)
	app.RegisterMetricsEndpoint()

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
