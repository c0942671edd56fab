package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lee-tech/analytics/internal/apperrors"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/projection"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/lee-tech/analytics/internal/service"
	"github.com/lee-tech/analytics/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AnalyticsProvider serves dashboards and hierarchy views.
type AnalyticsProvider interface {
	Dashboard(ctx context.Context, force bool) (*projection.Dashboard, error)
	Refresh(ctx context.Context) (*projection.Dashboard, error)
	Hierarchy(ctx context.Context) (*service.HierarchyView, error)
}

// AnalyticsHandler exposes the dashboard endpoints.
type AnalyticsHandler struct {
	analytics AnalyticsProvider
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewAnalyticsHandler constructs a handler. A nil limiter disables rate limiting.
func NewAnalyticsHandler(analytics AnalyticsProvider, limiter *rate.Limiter, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{analytics: analytics, limiter: limiter, logger: logger}
}

// NewRefreshLimiter allows perMinute forced refreshes with the given burst.
// A non-positive rate disables limiting.
func NewRefreshLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 || math.IsInf(perMinute, 0) || math.IsNaN(perMinute) {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), max(burst, 1))
}

// RegisterRoutes wires the analytics routes.
func (h *AnalyticsHandler) RegisterRoutes(router *mux.Router) {
	if h.analytics == nil {
		return
	}
	server.Route(router, "/v1/analytics/dashboard", h.GetDashboard,
		server.WithMethods(http.MethodGet),
		server.WithName("analytics.dashboard"),
	)
	server.Route(router, "/v1/analytics/refresh", h.Refresh,
		server.WithMethods(http.MethodPost),
		server.WithName("analytics.refresh"),
	)
	server.Route(router, "/v1/analytics/hierarchy", h.GetHierarchy,
		server.WithMethods(http.MethodGet),
		server.WithName("analytics.hierarchy"),
	)
}

func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			apperrors.BadRequest("refresh must be a boolean").WriteHTTP(w)
			return
		}
		force = parsed
	}
	if force && !h.allow() {
		apperrors.TooManyRequests("refresh rate exceeded").WriteHTTP(w)
		return
	}

	dashboard, err := h.analytics.Dashboard(r.Context(), force)
	if err != nil {
		h.writeError(w, "dashboard", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dashboard)
}

func (h *AnalyticsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.allow() {
		apperrors.TooManyRequests("refresh rate exceeded").WriteHTTP(w)
		return
	}
	dashboard, err := h.analytics.Refresh(r.Context())
	if err != nil {
		h.writeError(w, "refresh", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dashboard)
}

func (h *AnalyticsHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	view, err := h.analytics.Hierarchy(r.Context())
	if err != nil {
		h.writeError(w, "hierarchy", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *AnalyticsHandler) allow() bool {
	return h.limiter == nil || h.limiter.Allow()
}

func (h *AnalyticsHandler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrRefreshSuperseded):
		apperrors.Conflict("a newer refresh replaced this one").WithInternal(err).WriteHTTP(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apperrors.ServiceUnavailable("analytics sources did not respond in time").WithInternal(err).WriteHTTP(w)
	default:
		h.logger.Error("Analytics request failed", zap.String("op", op), zap.Error(err))
		apperrors.Internal("failed to build " + op).WithInternal(err).WriteHTTP(w)
	}
}

func init() {
	server.RegisterHandler(func(app *server.HTTPApp) error {
		component, ok := app.GetComponent(constants.ComponentKey.AnalyticsService)
		if !ok {
			return fmt.Errorf("component %s not found", constants.ComponentKey.AnalyticsService)
		}
		analytics, ok := component.(*service.AnalyticsService)
		if !ok {
			return fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.AnalyticsService, component)
		}

		limiter := NewRefreshLimiter(app.Config.RefreshPerMin, app.Config.RefreshBurst)
		handler := NewAnalyticsHandler(analytics, limiter, app.Logger.Named("http"))
		handler.RegisterRoutes(app.Router)
		return nil
	})
}
