// Package importer runs every ingestion phase for one owner and audits each phase.
//
// Phases run in a fixed order against a data directory laid out as
// <data>/<user>/apple-health/... and <data>/<user>/macrofactor/. A phase whose
// optional directory is absent succeeds with zero records. A fatal phase error
// stops that phase only; the remaining phases still run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jordangarrison/vitals/internal/batch"
	"github.com/jordangarrison/vitals/internal/clinical"
	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/ecg"
	"github.com/jordangarrison/vitals/internal/healthexport"
	"github.com/jordangarrison/vitals/internal/macrofactor"
	"github.com/jordangarrison/vitals/internal/routes"
)

// ErrUnreadableInput marks an input path that exists but cannot be read.
var ErrUnreadableInput = errors.New("unreadable input")

// Default flush thresholds.
const (
	DefaultRecordBatchSize   = 10000
	DefaultWorkoutBatchSize  = 100
	DefaultClinicalBatchSize = clinical.DefaultBatchSize
)

// Store is everything the phases write to, plus owner resolution and the audit log.
type Store interface {
	GetOrCreateOwner(ctx context.Context, username string) (*domain.Owner, error)
	RecordImport(ctx context.Context, rec domain.ImportRecord) (domain.ImportRecord, error)

	healthexport.Store
	InsertHealthRecords(ctx context.Context, records []domain.HealthRecord) error
	UpsertWorkouts(ctx context.Context, workouts []domain.Workout) error
	UpsertNutrition(ctx context.Context, rows []domain.Nutrition) error
	UpsertBodyMetrics(ctx context.Context, rows []domain.BodyMetrics) error
	clinical.Sink
	ecg.Sink
	routes.Store
}

// Reporter receives fatal phase errors.
type Reporter interface {
	Capture(err error, tags map[string]string)
}

// Request selects the owner, the data directory and the phases to run.
type Request struct {
	Username        string
	DataPath        string
	SkipAppleHealth bool
	SkipMacroFactor bool
	SkipClinical    bool
	SkipECG         bool
	SkipRoutes      bool
	// DeferRoutes leaves route matching to the event consumer: the apple-health
	// event carries the routes directory and the routes phase does not run here.
	DeferRoutes bool
}

// Option configures the Importer.
type Option func(*Importer)

// WithLogger overrides the importer logger. Phase packages share it.
func WithLogger(logger *log.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// WithReporter registers the fatal error reporter.
func WithReporter(r Reporter) Option {
	return func(i *Importer) {
		i.reporter = r
	}
}

// WithBatchSizes overrides the record, workout and clinical flush thresholds.
// Non-positive values keep the default.
func WithBatchSizes(records, workouts, clinicalRecords int) Option {
	return func(i *Importer) {
		if records > 0 {
			i.recordBatch = records
		}
		if workouts > 0 {
			i.workoutBatch = workouts
		}
		if clinicalRecords > 0 {
			i.clinicalBatch = clinicalRecords
		}
	}
}

// WithTolerance overrides the route matching window.
func WithTolerance(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.tolerance = d
		}
	}
}

// Importer orchestrates the phases.
type Importer struct {
	store         Store
	logger        *log.Logger
	reporter      Reporter
	printer       *message.Printer
	recordBatch   int
	workoutBatch  int
	clinicalBatch int
	tolerance     time.Duration
	now           func() time.Time
}

// New constructs an Importer.
func New(store Store, opts ...Option) *Importer {
	i := &Importer{
		store:         store,
		logger:        log.New(log.Writer(), "[importer] ", log.LstdFlags|log.Lshortfile),
		printer:       message.NewPrinter(language.English),
		recordBatch:   DefaultRecordBatchSize,
		workoutBatch:  DefaultWorkoutBatchSize,
		clinicalBatch: DefaultClinicalBatchSize,
		tolerance:     routes.DefaultTolerance,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Paths are the per-phase inputs under one owner's data directory.
type Paths struct {
	ExportXML   string
	MacroFactor string
	Clinical    string
	ECG         string
	Routes      string
}

// PathsFor lays out the inputs for username under dataPath.
func PathsFor(dataPath, username string) Paths {
	root := filepath.Join(dataPath, username)
	apple := filepath.Join(root, "apple-health")
	return Paths{
		ExportXML:   filepath.Join(apple, "export.xml"),
		MacroFactor: filepath.Join(root, "macrofactor"),
		Clinical:    filepath.Join(apple, "clinical-records"),
		ECG:         filepath.Join(apple, "electrocardiograms"),
		Routes:      filepath.Join(apple, "workout-routes"),
	}
}

// Run resolves the owner and executes the requested phases in order. The returned
// error covers owner resolution only; phase outcomes are in the Summary.
func (i *Importer) Run(ctx context.Context, req Request) (Summary, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return Summary{}, domain.ErrInvalidUsername
	}
	owner, err := i.store.GetOrCreateOwner(ctx, username)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve owner: %w", err)
	}

	started := i.now()
	paths := PathsFor(req.DataPath, username)
	summary := Summary{Owner: *owner}
	i.logger.Printf("importing health data for %s (owner %s)", username, owner.ID)

	routesDir := ""
	if req.DeferRoutes && !req.SkipRoutes {
		routesDir = paths.Routes
	}

	phases := []struct {
		skip bool
		run  func() PhaseResult
	}{
		{req.SkipAppleHealth, func() PhaseResult { return i.appleHealth(ctx, owner.ID, paths.ExportXML, routesDir) }},
		{req.SkipMacroFactor, func() PhaseResult { return i.macroFactor(ctx, owner.ID, paths.MacroFactor) }},
		{req.SkipClinical, func() PhaseResult { return i.clinicalRecords(ctx, owner.ID, paths.Clinical) }},
		{req.SkipECG, func() PhaseResult { return i.electrocardiograms(ctx, owner.ID, paths.ECG) }},
		{req.SkipRoutes || req.DeferRoutes, func() PhaseResult { return i.workoutRoutes(ctx, owner.ID, paths.Routes) }},
	}
	for _, phase := range phases {
		if phase.skip {
			continue
		}
		result := phase.run()
		summary.Phases = append(summary.Phases, i.audit(ctx, owner.ID, result))
	}

	summary.Elapsed = i.now().Sub(started)
	i.logSummary(summary)
	return summary, nil
}

// MatchRoutes runs only the route matcher against dir and audits the run.
func (i *Importer) MatchRoutes(ctx context.Context, username, dir string) (PhaseResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return PhaseResult{}, domain.ErrInvalidUsername
	}
	owner, err := i.store.GetOrCreateOwner(ctx, username)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("resolve owner: %w", err)
	}
	return i.audit(ctx, owner.ID, i.workoutRoutes(ctx, owner.ID, dir)), nil
}

func (i *Importer) progress(buffer string, _, committed int) {
	i.logger.Print(i.printer.Sprintf("%s: %d committed", buffer, committed))
}

func (i *Importer) appleHealth(ctx context.Context, ownerID, path, routesDir string) PhaseResult {
	result := PhaseResult{Source: domain.SourceAppleHealth, File: path, RoutesDir: routesDir}
	start := i.now()
	defer func() { result.Duration = i.now().Sub(start) }()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		result.Errors = []string{fmt.Sprintf("export.xml not found at %s", path)}
		return result
	}
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	defer f.Close()

	buffers := healthexport.Buffers{
		Records: batch.New("health_metrics", i.recordBatch, i.store.InsertHealthRecords,
			batch.WithLogger(i.logger), batch.WithProgress(i.progress)),
		Workouts: batch.New("workouts", i.workoutBatch, i.store.UpsertWorkouts,
			batch.WithLogger(i.logger), batch.WithProgress(i.progress)),
	}
	parser := healthexport.NewParser(ownerID, buffers, i.store, healthexport.WithLogger(i.logger))
	stats, err := parser.Parse(ctx, f)

	result.Records = stats.RecordsProcessed + stats.WorkoutsProcessed + stats.ActivitiesProcessed
	result.Skipped = stats.Skipped
	result.Errors = stats.Errors
	result.Err = err
	return result
}

func (i *Importer) macroFactor(ctx context.Context, ownerID, dir string) PhaseResult {
	result := PhaseResult{Source: domain.SourceMacroFactor, File: dir}
	start := i.now()
	defer func() { result.Duration = i.now().Sub(start) }()

	if absent, err := missingDir(dir); absent || err != nil {
		result.Err = err
		return result
	}
	path, err := macrofactor.LatestWorkbook(dir)
	if errors.Is(err, macrofactor.ErrNoWorkbook) {
		result.Errors = []string{"No MacroFactor XLSX files found"}
		return result
	}
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	result.File = path

	res, err := macrofactor.NewImporter(i.store,
		macrofactor.WithLogger(i.logger),
	).ImportFile(ctx, ownerID, path)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	result.Records = res.Records()
	result.Errors = res.Errors
	return result
}

func (i *Importer) clinicalRecords(ctx context.Context, ownerID, dir string) PhaseResult {
	result := PhaseResult{Source: domain.SourceClinical, File: dir}
	start := i.now()
	defer func() { result.Duration = i.now().Sub(start) }()

	if absent, err := missingDir(dir); absent || err != nil {
		result.Err = err
		return result
	}
	res, err := clinical.NewImporter(i.store,
		clinical.WithLogger(i.logger),
		clinical.WithBatchSize(i.clinicalBatch),
		clinical.WithProgress(i.progress),
	).ImportDirectory(ctx, ownerID, dir)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	result.Records = res.RecordsProcessed
	result.Errors = res.Errors
	return result
}

func (i *Importer) electrocardiograms(ctx context.Context, ownerID, dir string) PhaseResult {
	result := PhaseResult{Source: domain.SourceECG, File: dir}
	start := i.now()
	defer func() { result.Duration = i.now().Sub(start) }()

	if absent, err := missingDir(dir); absent || err != nil {
		result.Err = err
		return result
	}
	res, err := ecg.NewImporter(i.store, ecg.WithLogger(i.logger)).ImportDirectory(ctx, ownerID, dir)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	result.Records = res.RecordsProcessed
	result.Errors = res.Errors
	return result
}

func (i *Importer) workoutRoutes(ctx context.Context, ownerID, dir string) PhaseResult {
	result := PhaseResult{Source: domain.SourceRoutes, File: dir}
	start := i.now()
	defer func() { result.Duration = i.now().Sub(start) }()

	if absent, err := missingDir(dir); absent || err != nil {
		result.Err = err
		return result
	}
	matcher := routes.NewMatcher(i.store, routes.WithLogger(i.logger), routes.WithTolerance(i.tolerance))
	stats, err := matcher.MatchDirectory(ctx, ownerID, dir)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		return result
	}
	result.Records = stats.Linked
	result.Skipped = stats.Unlinked
	result.Errors = stats.Errors
	return result
}

// missingDir reports whether dir is absent. Any other stat failure, or a path
// that is not a directory, is unreadable input.
func missingDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%w: %s is not a directory", ErrUnreadableInput, dir)
	}
	return false, nil
}

// audit writes the import_history row for a finished phase and reports fatal
// errors. An audit failure is attached to the result rather than returned.
func (i *Importer) audit(ctx context.Context, ownerID string, result PhaseResult) PhaseResult {
	errs := result.Errors
	if result.Err != nil {
		errs = append(append([]string(nil), errs...), result.Err.Error())
		i.logger.Printf("%s phase failed: %v", result.Source, result.Err)
		if i.reporter != nil {
			i.reporter.Capture(result.Err, map[string]string{
				"phase":    result.Source,
				"owner_id": ownerID,
			})
		}
	}
	result.Status = domain.StatusFor(errs)

	rec, err := i.store.RecordImport(ctx, domain.ImportRecord{
		OwnerID:         ownerID,
		SourceType:      result.Source,
		SourceFile:      result.File,
		RecordsImported: result.Records,
		Status:          result.Status,
		ErrorLog:        strings.Join(errs, "\n"),
		RoutesDir:       result.RoutesDir,
	})
	if err != nil {
		i.logger.Printf("record %s import: %v", result.Source, err)
		result.Err = errors.Join(result.Err, fmt.Errorf("record import: %w", err))
		return result
	}
	result.ImportID = rec.ID
	i.logger.Print(i.printer.Sprintf("%s: %d records, %d errors (%s)",
		result.Source, result.Records, len(errs), result.Status))
	return result
}
