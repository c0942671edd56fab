package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lee-tech/analytics/config"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/repository"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/lee-tech/analytics/internal/service"
)

func main() {
	branchName := flag.String("branch-name", "", "Name of the bootstrap branch")
	branchCity := flag.String("branch-city", "", "City of the bootstrap branch")
	branchSubCity := flag.String("branch-sub-city", "", "Sub-city of the bootstrap branch")
	branchWereda := flag.String("branch-wereda", "", "Wereda of the bootstrap branch")
	departments := flag.String("departments", "", "Comma-separated department names (default: the standard structure)")
	sampleReports := flag.Int("sample-reports", 0, "Number of sample reports to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		log.Fatal("DATABASE_DSN is required to bootstrap the hierarchy")
	}

	input := &models.EnsureBranchInput{
		Name:    choose(*branchName, cfg.BootstrapBranchName),
		City:    choose(*branchCity, cfg.BootstrapBranchCity),
		SubCity: choose(*branchSubCity, cfg.BootstrapBranchSubCity),
		Wereda:  choose(*branchWereda, cfg.BootstrapBranchWereda),
	}

	app, err := server.InitializeHTTPApp(cfg, &server.HTTPAppOptions{
		DisableHealthRoutes: true,
		DisableHandlers:     true,
	})
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer shutdownApp(app)

	svcComponent, ok := app.GetComponent(constants.ComponentKey.OrganizationService)
	if !ok {
		log.Fatal("organization service component not found")
	}
	orgSvc, ok := svcComponent.(*service.OrganizationService)
	if !ok {
		log.Fatalf("unexpected organization service type %T", svcComponent)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := orgSvc.ProvisionBranch(ctx, input, departmentStructure(*departments))
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	fmt.Printf("Bootstrap successful. Branch %s (%s) is active with %d departments and %d positions.\n",
		result.Branch.Name, result.Branch.ID, len(result.Departments), len(result.Positions))

	if *sampleReports <= 0 {
		return
	}
	repoComponent, ok := app.GetComponent(constants.ComponentKey.ReportRepository)
	if !ok {
		log.Fatal("report repository component not found")
	}
	reports, ok := repoComponent.(*repository.ReportRepository)
	if !ok {
		log.Fatalf("unexpected report repository type %T", repoComponent)
	}
	for _, report := range sampleReportSet(*sampleReports, result.Branch.City, time.Now().UTC()) {
		if err := reports.CreateReport(ctx, report); err != nil {
			log.Fatalf("failed to create sample report: %v", err)
		}
	}
	fmt.Printf("Created %d sample reports.\n", *sampleReports)
}

// departmentStructure turns a comma-separated list into definitions, taking
// positions from the default structure for names it knows.
func departmentStructure(list string) []models.DepartmentDefinition {
	if strings.TrimSpace(list) == "" {
		return models.DefaultDepartmentStructure
	}
	known := make(map[string]models.DepartmentDefinition, len(models.DefaultDepartmentStructure))
	for _, def := range models.DefaultDepartmentStructure {
		known[strings.ToLower(def.Name)] = def
	}

	var structure []models.DepartmentDefinition
	seen := map[string]bool{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		if def, ok := known[key]; ok {
			structure = append(structure, def)
			continue
		}
		structure = append(structure, models.DepartmentDefinition{Name: name})
	}
	return structure
}

var (
	sampleMeasurements = []models.ReportMeasurement{models.MeasurementHigh, models.MeasurementMid, models.MeasurementLow}
	sampleShifts       = []string{"08:00 - 16:00", "16:00 - 00:00", "00:00 - 08:00"}
	sampleLocations    = []string{"Main Gate", "Warehouse", "Parking"}
)

// sampleReportSet spreads n reports over the week before now.
func sampleReportSet(n int, city string, now time.Time) []*models.Report {
	day := now.Truncate(24 * time.Hour)
	reports := make([]*models.Report, 0, n)
	for i := 0; i < n; i++ {
		location := sampleLocations[i%len(sampleLocations)]
		if city != "" {
			location = city + " " + location
		}
		reports = append(reports, &models.Report{
			UserID:            "bootstrap",
			Date:              day.AddDate(0, 0, -(i % 7)),
			ShiftTime:         sampleShifts[i%len(sampleShifts)],
			Location:          location,
			Report:            fmt.Sprintf("Sample report %d", i+1),
			ReportMeasurement: sampleMeasurements[i%len(sampleMeasurements)],
			Status:            models.ReportStatusPending,
			Attachments:       []string{},
		})
	}
	return reports
}

func choose(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(fallback)
}

func shutdownApp(app *server.HTTPApp) {
	if app == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Printf("warning: failed to shutdown app cleanly: %v", err)
	}
}
