package source

import (
	"fmt"

	"github.com/lee-tech/analytics/config"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/server"
)

// FromConfig builds the source selected by cfg.SourceMode. In database mode
// the repositories are looked up on app.
func FromConfig(app *server.HTTPApp, cfg *config.AnalyticsConfig) (fetcher.Source, error) {
	switch cfg.SourceMode {
	case config.SourceModeDatabase:
		orgComponent, ok := app.GetComponent(constants.ComponentKey.OrganizationRepository)
		if !ok {
			return nil, fmt.Errorf("%s source needs a database", cfg.SourceMode)
		}
		statsComponent, ok := app.GetComponent(constants.ComponentKey.ReportRepository)
		if !ok {
			return nil, fmt.Errorf("%s source needs a database", cfg.SourceMode)
		}
		org, ok := orgComponent.(OrganizationStore)
		if !ok {
			return nil, fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.OrganizationRepository, orgComponent)
		}
		stats, ok := statsComponent.(StatisticsStore)
		if !ok {
			return nil, fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.ReportRepository, statsComponent)
		}
		src, err := NewStoreSource(org, stats)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceModeHTTP, "":
		src, err := NewHTTPSource(HTTPSourceConfig{
			BaseURL:  cfg.SourceBaseURL,
			Token:    cfg.SourceAPIToken,
			Timeout:  cfg.SourceTimeout,
			RetryMax: cfg.SourceRetryMax,
			Paths: Paths{
				Branches:    cfg.BranchesPath,
				Departments: cfg.DepartmentsPath,
				Positions:   cfg.PositionsPath,
				Statistics:  cfg.StatisticsPath,
			},
			Logger: app.Logger.Named("source"),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownSourceMode, cfg.SourceMode)
}

func init() {
	server.RegisterService(constants.ComponentKey.Source, func(app *server.HTTPApp) (interface{}, error) {
		return FromConfig(app, app.Config)
	})
}
