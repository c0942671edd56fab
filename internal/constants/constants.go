package constants

var ComponentKey = struct {
	AnalyticsConfig        string
	OrganizationRepository string
	ReportRepository       string
	OrganizationService    string
	Source                 string
	DashboardCache         string
	PipelineMetrics        string
	AnalyticsService       string
}{
	AnalyticsConfig:        "config.analytics",
	OrganizationRepository: "analytics.repository.organization",
	ReportRepository:       "analytics.repository.report",
	OrganizationService:    "analytics.service.organization",
	Source:                 "analytics.source",
	DashboardCache:         "analytics.cache.dashboard",
	PipelineMetrics:        "analytics.metrics.pipeline",
	AnalyticsService:       "analytics.service.analytics",
}
