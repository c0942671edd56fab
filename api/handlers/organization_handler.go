package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lee-tech/analytics/internal/apperrors"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/lee-tech/analytics/internal/service"
	"github.com/lee-tech/analytics/internal/source"
	"github.com/lee-tech/analytics/internal/utils"
	"go.uber.org/zap"
)

// Provisioner creates branches with their departments and positions.
type Provisioner interface {
	ProvisionBranch(ctx context.Context, input *models.EnsureBranchInput, structure []models.DepartmentDefinition) (*service.ProvisionResult, error)
	EnsureDepartment(ctx context.Context, input *models.EnsureDepartmentInput) (*models.Department, error)
}

// ProvisionBranchRequest is the body of the provision endpoint. When
// Departments is empty the default structure is used.
type ProvisionBranchRequest struct {
	Branch      models.EnsureBranchInput      `json:"branch"`
	Departments []models.DepartmentDefinition `json:"departments"`
}

// OrganizationHandler serves the hierarchy and report statistics from the
// database in the wire shapes the dashboard consumes.
type OrganizationHandler struct {
	org         source.OrganizationStore
	stats       source.StatisticsStore
	provisioner Provisioner
	logger      *zap.Logger
}

// NewOrganizationHandler constructs a new handler instance.
func NewOrganizationHandler(org source.OrganizationStore, stats source.StatisticsStore, provisioner Provisioner, logger *zap.Logger) *OrganizationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationHandler{org: org, stats: stats, provisioner: provisioner, logger: logger}
}

// RegisterRoutes wires the source-of-truth routes.
func (h *OrganizationHandler) RegisterRoutes(router *mux.Router) {
	if h.org == nil || h.stats == nil {
		return
	}

	server.Route(router, source.DefaultPaths.Branches, h.ListBranches,
		server.WithMethods(http.MethodGet),
		server.WithName("organization.branches"),
	)
	server.Route(router, source.DefaultPaths.Departments, h.ListDepartments,
		server.WithMethods(http.MethodGet),
		server.WithName("organization.departments"),
	)
	server.Route(router, source.DefaultPaths.Positions, h.ListPositions,
		server.WithMethods(http.MethodGet),
		server.WithName("organization.positions"),
	)
	server.Route(router, source.DefaultPaths.Statistics, h.GetStatistics,
		server.WithMethods(http.MethodGet),
		server.WithName("reports.analytics"),
	)

	if h.provisioner == nil {
		return
	}
	server.Route(router, "/organzation/branch/provision", h.ProvisionBranch,
		server.WithMethods(http.MethodPost),
		server.WithName("organization.provision"),
	)
	server.Route(router, "/organzation/department", h.EnsureDepartment,
		server.WithMethods(http.MethodPost),
		server.WithName("organization.department"),
	)
}

func (h *OrganizationHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.org.ListBranches(r.Context())
	if err != nil {
		h.internal(w, "list branches", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, models.BranchList{Branches: nonNil(branches)})
}

func (h *OrganizationHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.org.ListDepartments(r.Context())
	if err != nil {
		h.internal(w, "list departments", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, models.DepartmentList{Departments: nonNil(departments)})
}

func (h *OrganizationHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.org.ListPositions(r.Context())
	if err != nil {
		h.internal(w, "list positions", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, models.PositionList{Positions: nonNil(positions)})
}

func (h *OrganizationHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Statistics(r.Context())
	if err != nil {
		h.internal(w, "compute report statistics", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

func (h *OrganizationHandler) ProvisionBranch(w http.ResponseWriter, r *http.Request) {
	var payload ProvisionBranchRequest
	if err := utils.DecodeJSON(r.Body, &payload); err != nil {
		apperrors.BadRequest("Invalid request body").WriteHTTP(w)
		return
	}
	structure := payload.Departments
	if len(structure) == 0 {
		structure = models.DefaultDepartmentStructure
	}

	result, err := h.provisioner.ProvisionBranch(r.Context(), &payload.Branch, structure)
	if err != nil {
		apperrors.BadRequest(err.Error()).WriteHTTP(w)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"branch":      result.Branch,
		"departments": result.Departments,
		"positions":   result.Positions,
	})
}

func (h *OrganizationHandler) EnsureDepartment(w http.ResponseWriter, r *http.Request) {
	var payload models.EnsureDepartmentInput
	if err := utils.DecodeJSON(r.Body, &payload); err != nil {
		apperrors.BadRequest("Invalid request body").WriteHTTP(w)
		return
	}

	dept, err := h.provisioner.EnsureDepartment(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, service.ErrBranchNotFound) {
			apperrors.NotFound("branch").WriteHTTP(w)
			return
		}
		apperrors.BadRequest(err.Error()).WriteHTTP(w)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dept)
}

func (h *OrganizationHandler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error("Organization request failed", zap.String("op", op), zap.Error(err))
	apperrors.Internal("failed to " + op).WithInternal(err).WriteHTTP(w)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func init() {
	server.RegisterHandler(func(app *server.HTTPApp) error {
		orgComponent, ok := app.GetComponent(constants.ComponentKey.OrganizationRepository)
		if !ok {
			return nil
		}
		org, ok := orgComponent.(source.OrganizationStore)
		if !ok {
			return fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.OrganizationRepository, orgComponent)
		}
		statsComponent, ok := app.GetComponent(constants.ComponentKey.ReportRepository)
		if !ok {
			return fmt.Errorf("component %s not found", constants.ComponentKey.ReportRepository)
		}
		stats, ok := statsComponent.(source.StatisticsStore)
		if !ok {
			return fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.ReportRepository, statsComponent)
		}

		var provisioner Provisioner
		if svcComponent, ok := app.GetComponent(constants.ComponentKey.OrganizationService); ok {
			if svc, ok := svcComponent.(*service.OrganizationService); ok {
				provisioner = svc
			}
		}

		handler := NewOrganizationHandler(org, stats, provisioner, app.Logger.Named("http"))
		handler.RegisterRoutes(app.Router)
		return nil
	})
}
