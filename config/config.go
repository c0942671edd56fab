package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Source modes supported by the analytics pipeline.
const (
	SourceModeHTTP     = "http"
	SourceModeDatabase = "database"
)

// Shift aggregation modes.
const (
	ShiftModeLegacy = "legacy"
	ShiftModeCount  = "count"
)

var (
	ErrUnknownSourceMode = errors.New("unknown source mode")
	ErrUnknownShiftMode  = errors.New("unknown shift aggregation mode")
)

// Config carries the settings shared by every service binary.
type Config struct {
	ServiceName    string `env:"SERVICE_NAME" envDefault:"report-analytics"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	EnvFile        string `env:"ENV_FILE" envDefault:".env"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	VaultAddr       string `env:"VAULT_ADDR"`
	VaultToken      string `env:"VAULT_TOKEN"`
	VaultMount      string `env:"VAULT_MOUNT" envDefault:"secret"`
	VaultSecretPath string `env:"VAULT_SECRET_PATH" envDefault:"report-analytics"`

	mu        sync.RWMutex
	callbacks []func(*Config)
}

// RegisterOnConfigChange adds a callback fired after the watcher reloads the configuration.
func (c *Config) RegisterOnConfigChange(fn func(*Config)) {
	if c == nil || fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

func (c *Config) notify(newCfg *Config) {
	c.mu.RLock()
	callbacks := append([]func(*Config){}, c.callbacks...)
	c.mu.RUnlock()
	for _, fn := range callbacks {
		fn(newCfg)
	}
}

// AnalyticsConfig extends the core configuration with pipeline settings.
type AnalyticsConfig struct {
	*Config

	SourceMode      string        `env:"SOURCE_MODE" envDefault:"http"`
	SourceBaseURL   string        `env:"SOURCE_BASE_URL" envDefault:"http://localhost:4000"`
	SourceAPIToken  string        `env:"SOURCE_API_TOKEN"`
	SourceTimeout   time.Duration `env:"SOURCE_TIMEOUT" envDefault:"10s"`
	SourceRetryMax  int           `env:"SOURCE_RETRY_MAX" envDefault:"2"`
	BranchesPath    string        `env:"SOURCE_BRANCHES_PATH" envDefault:"/organzation/branch/all"`
	DepartmentsPath string        `env:"SOURCE_DEPARTMENTS_PATH" envDefault:"/organzation/department/all"`
	PositionsPath   string        `env:"SOURCE_POSITIONS_PATH" envDefault:"/organzation/position/all"`
	StatisticsPath  string        `env:"SOURCE_STATISTICS_PATH" envDefault:"/reports/analytics"`
	IncludePosition bool          `env:"INCLUDE_POSITIONS" envDefault:"false"`

	ShiftMode     string        `env:"SHIFT_AGGREGATION_MODE" envDefault:"legacy"`
	StaleAfter    time.Duration `env:"DASHBOARD_STALE_AFTER" envDefault:"30s"`
	RefreshPerMin float64       `env:"REFRESH_RATE_PER_MINUTE" envDefault:"12"`
	RefreshBurst  int           `env:"REFRESH_BURST" envDefault:"3"`

	BootstrapBranchName    string `env:"BOOTSTRAP_BRANCH_NAME" envDefault:"Head Office"`
	BootstrapBranchCity    string `env:"BOOTSTRAP_BRANCH_CITY" envDefault:"Addis Ababa"`
	BootstrapBranchSubCity string `env:"BOOTSTRAP_BRANCH_SUB_CITY"`
	BootstrapBranchWereda  string `env:"BOOTSTRAP_BRANCH_WEREDA"`
}

// Load reads the configuration from the environment, after applying the dotenv file when present.
func Load() (*AnalyticsConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	coreConfig := &Config{}
	if err := env.Parse(coreConfig); err != nil {
		return nil, fmt.Errorf("parse core config: %w", err)
	}

	cfg := &AnalyticsConfig{Config: coreConfig}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse analytics config: %w", err)
	}

	if coreConfig.VaultAddr != "" && coreConfig.VaultToken != "" {
		provider, err := NewVaultProvider(coreConfig.VaultAddr, coreConfig.VaultToken, coreConfig.VaultMount)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			secrets, err := provider.GetSecrets(ctx, coreConfig.VaultSecretPath, []string{
				"SOURCE_API_TOKEN",
				"DATABASE_DSN",
			})
			cancel()
			if err == nil {
				applySecrets(cfg, secrets)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *AnalyticsConfig) Validate() error {
	c.SourceMode = strings.ToLower(strings.TrimSpace(c.SourceMode))
	switch c.SourceMode {
	case SourceModeHTTP, SourceModeDatabase:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSourceMode, c.SourceMode)
	}

	c.ShiftMode = strings.ToLower(strings.TrimSpace(c.ShiftMode))
	switch c.ShiftMode {
	case ShiftModeLegacy, ShiftModeCount:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownShiftMode, c.ShiftMode)
	}

	if c.SourceMode == SourceModeDatabase && c.Config != nil && strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN is required when SOURCE_MODE=%s", SourceModeDatabase)
	}
	return nil
}

func applySecrets(cfg *AnalyticsConfig, secrets map[string]string) {
	if token, ok := secrets["SOURCE_API_TOKEN"]; ok && token != "" {
		cfg.SourceAPIToken = token
	}
	if dsn, ok := secrets["DATABASE_DSN"]; ok && dsn != "" {
		cfg.DatabaseDSN = dsn
	}
}
