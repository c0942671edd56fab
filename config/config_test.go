package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "report-analytics", cfg.ServiceName)
	assert.Equal(t, SourceModeHTTP, cfg.SourceMode)
	assert.Equal(t, ShiftModeLegacy, cfg.ShiftMode)
	assert.Equal(t, "/organzation/branch/all", cfg.BranchesPath)
	assert.Equal(t, "/reports/analytics", cfg.StatisticsPath)
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 30*time.Second, cfg.StaleAfter)
}

func TestLoadReadsDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.env")
	require.NoError(t, os.WriteFile(path, []byte("SHIFT_AGGREGATION_MODE=count\nSOURCE_BASE_URL=http://reports.internal\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// godotenv does not override variables that are already present.
	t.Setenv("SHIFT_AGGREGATION_MODE", "")
	os.Unsetenv("SHIFT_AGGREGATION_MODE")
	t.Setenv("SOURCE_BASE_URL", "")
	os.Unsetenv("SOURCE_BASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ShiftModeCount, cfg.ShiftMode)
	assert.Equal(t, "http://reports.internal", cfg.SourceBaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AnalyticsConfig
		wantErr error
	}{
		{
			name: "normalises case",
			cfg:  AnalyticsConfig{Config: &Config{}, SourceMode: " HTTP ", ShiftMode: "Count"},
		},
		{
			name:    "unknown source mode",
			cfg:     AnalyticsConfig{Config: &Config{}, SourceMode: "grpc", ShiftMode: ShiftModeLegacy},
			wantErr: ErrUnknownSourceMode,
		},
		{
			name:    "unknown shift mode",
			cfg:     AnalyticsConfig{Config: &Config{}, SourceMode: SourceModeHTTP, ShiftMode: "sum"},
			wantErr: ErrUnknownShiftMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateDatabaseModeRequiresDSN(t *testing.T) {
	cfg := AnalyticsConfig{Config: &Config{}, SourceMode: SourceModeDatabase, ShiftMode: ShiftModeLegacy}
	require.Error(t, cfg.Validate())

	cfg.DatabaseDSN = "postgres://localhost/reports"
	require.NoError(t, cfg.Validate())
}

func TestPickSecrets(t *testing.T) {
	got := pickSecrets(map[string]interface{}{
		"SOURCE_API_TOKEN": "abc",
		"DATABASE_DSN":     42,
		"UNRELATED":        "x",
	}, []string{"SOURCE_API_TOKEN", "DATABASE_DSN", "MISSING"})

	assert.Equal(t, map[string]string{"SOURCE_API_TOKEN": "abc"}, got)
}

func TestWatcherFiresCallbacksOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=info\n"), 0o600))
	t.Setenv("LOG_LEVEL", "info")

	cfg := &Config{EnvFile: path}
	var lastLevel atomic.Value
	cfg.RegisterOnConfigChange(func(next *Config) {
		lastLevel.Store(next.LogLevel)
	})

	watcher, err := NewWatcher(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })
	watcher.Watch()

	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\n"), 0o600))

	require.Eventually(t, func() bool {
		level, _ := lastLevel.Load().(string)
		return level == "debug"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNotifyRunsCallbacksInOrder(t *testing.T) {
	cfg := &Config{}
	var got []string
	cfg.RegisterOnConfigChange(func(*Config) { got = append(got, "first") })
	cfg.RegisterOnConfigChange(nil)
	cfg.RegisterOnConfigChange(func(next *Config) {
		got = append(got, next.LogLevel)
		cfg.RegisterOnConfigChange(func(*Config) { got = append(got, "late") })
	})

	cfg.notify(&Config{LogLevel: "debug"})
	assert.Equal(t, []string{"first", "debug"}, got)

	got = nil
	cfg.notify(&Config{LogLevel: "warn"})
	assert.Equal(t, []string{"first", "warn", "late"}, got)
}
