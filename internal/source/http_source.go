// Package source implements the upstream data sources the fetcher reads from.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/lee-tech/analytics/internal/models"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 2048
)

// Paths are the upstream endpoints relative to the base URL.
type Paths struct {
	Branches    string
	Departments string
	Positions   string
	Statistics  string
}

// DefaultPaths are the routes served by the admin backend.
var DefaultPaths = Paths{
	Branches:    "/organzation/branch/all",
	Departments: "/organzation/department/all",
	Positions:   "/organzation/position/all",
	Statistics:  "/reports/analytics",
}

// HTTPSourceConfig controls how the HTTP source behaves.
type HTTPSourceConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	RetryMax int
	Paths    Paths
	Logger   *zap.Logger

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTPStatusError is returned for a non-2xx upstream response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// HTTPSource reads the collections from the admin backend over HTTP.
type HTTPSource struct {
	baseURL *url.URL
	token   string
	paths   Paths
	client  *retryablehttp.Client
	logger  *zap.Logger
}

// NewHTTPSource validates cfg and builds a source with retrying transport.
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("source base url is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.Logger = leveledLogger{logger.Sugar()}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPSource{
		baseURL: parsed,
		token:   cfg.Token,
		paths:   withDefaults(cfg.Paths),
		client:  client,
		logger:  logger,
	}, nil
}

func withDefaults(p Paths) Paths {
	if strings.TrimSpace(p.Branches) == "" {
		p.Branches = DefaultPaths.Branches
	}
	if strings.TrimSpace(p.Departments) == "" {
		p.Departments = DefaultPaths.Departments
	}
	if strings.TrimSpace(p.Positions) == "" {
		p.Positions = DefaultPaths.Positions
	}
	if strings.TrimSpace(p.Statistics) == "" {
		p.Statistics = DefaultPaths.Statistics
	}
	return p
}

func (s *HTTPSource) Branches(ctx context.Context) ([]models.Branch, error) {
	var body models.BranchList
	if err := s.get(ctx, s.paths.Branches, &body); err != nil {
		return nil, err
	}
	return body.Branches, nil
}

func (s *HTTPSource) Departments(ctx context.Context) ([]models.Department, error) {
	var body models.DepartmentList
	if err := s.get(ctx, s.paths.Departments, &body); err != nil {
		return nil, err
	}
	return body.Departments, nil
}

func (s *HTTPSource) Positions(ctx context.Context) ([]models.Position, error) {
	var body models.PositionList
	if err := s.get(ctx, s.paths.Positions, &body); err != nil {
		return nil, err
	}
	return body.Positions, nil
}

func (s *HTTPSource) ReportStatistics(ctx context.Context) (*models.ReportStatisticsSnapshot, error) {
	var body models.ReportStatisticsSnapshot
	if err := s.get(ctx, s.paths.Statistics, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (s *HTTPSource) get(ctx context.Context, p string, out any) error {
	endpoint := *s.baseURL
	endpoint.Path = path.Join(endpoint.Path, p)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", p, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("request %s: %w", p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, models.ErrMalformedPayload) {
			return err
		}
		return fmt.Errorf("%w: decode %s: %v", models.ErrMalformedPayload, p, err)
	}

	s.logger.Debug("Source payload decoded", zap.String("path", p))
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
