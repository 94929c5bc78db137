// Package macrofactor imports MacroFactor spreadsheet exports.
//
// Each sheet feeds one table: nutrition rows from "Calories & Macros" and
// "Micronutrients", body measurements from "Scale Weight" and "Body Metrics", and
// daily health records from "Weight Trend", "Expenditure" and "Steps". Rows for the
// same day written from different sheets merge in the store.
package macrofactor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jordangarrison/vitals/internal/batch"
	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/units"
)

// SourceName labels every row written by this importer.
const SourceName = "MacroFactor"

// DefaultBatchSize bounds each per-table buffer.
const DefaultBatchSize = 500

// Sheet names in a MacroFactor export.
const (
	SheetCaloriesMacros = "Calories & Macros"
	SheetMicronutrients = "Micronutrients"
	SheetScaleWeight    = "Scale Weight"
	SheetWeightTrend    = "Weight Trend"
	SheetExpenditure    = "Expenditure"
	SheetSteps          = "Steps"
	SheetBodyMetrics    = "Body Metrics"
)

// ErrNoWorkbook is returned when a directory holds no xlsx export.
var ErrNoWorkbook = errors.New("no MacroFactor workbook found")

// Sink persists the rows produced from a workbook.
type Sink interface {
	UpsertNutrition(ctx context.Context, rows []domain.Nutrition) error
	UpsertBodyMetrics(ctx context.Context, rows []domain.BodyMetrics) error
	InsertHealthRecords(ctx context.Context, records []domain.HealthRecord) error
}

// Result summarises one workbook import.
type Result struct {
	File        string
	Nutrition   int
	BodyMetrics int
	Metrics     int
	Errors      []string
}

// Records is the total number of committed rows.
func (r Result) Records() int {
	return r.Nutrition + r.BodyMetrics + r.Metrics
}

// Option configures the Importer.
type Option func(*Importer)

// WithLogger overrides the importer logger.
func WithLogger(logger *log.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// Importer reads MacroFactor workbooks into the store.
type Importer struct {
	sink      Sink
	logger    *log.Logger
	batchSize int
}

// NewImporter constructs an Importer.
func NewImporter(sink Sink, opts ...Option) *Importer {
	i := &Importer{
		sink:      sink,
		logger:    log.New(log.Writer(), "[macrofactor] ", log.LstdFlags|log.Lshortfile),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// LatestWorkbook returns the newest xlsx in dir. Export names embed their date,
// so the lexically greatest name is the newest.
func LatestWorkbook(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", ErrNoWorkbook
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return filepath.Join(dir, names[0]), nil
}

// ImportFile imports every known sheet of one workbook. A workbook that cannot be
// opened is returned as an error; sheet and row problems land in Result.Errors.
func (i *Importer) ImportFile(ctx context.Context, ownerID, path string) (Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{File: path}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	errs := &batch.ErrorLog{}
	run := &sheetRun{
		ownerID: ownerID,
		errs:    errs,
		nutrition: batch.New("nutrition", i.batchSize, i.sink.UpsertNutrition,
			batch.WithLogger(i.logger), batch.WithErrorLog(errs)),
		body: batch.New("body_metrics", i.batchSize, i.sink.UpsertBodyMetrics,
			batch.WithLogger(i.logger), batch.WithErrorLog(errs)),
		metrics: batch.New("health_metrics", i.batchSize, i.sink.InsertHealthRecords,
			batch.WithLogger(i.logger), batch.WithErrorLog(errs)),
	}

	sheets := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		sheets[name] = true
	}
	i.logger.Printf("workbook %s loaded with %d sheets", filepath.Base(path), len(sheets))

	if !sheets[SheetCaloriesMacros] {
		errs.Add("Sheet '%s' not found", SheetCaloriesMacros)
	}
	for _, p := range sheetParsers {
		if !sheets[p.name] {
			continue
		}
		rows, err := f.GetRows(p.name, excelize.Options{RawCellValue: true})
		if err != nil {
			errs.Add("%s: %v", p.name, err)
			continue
		}
		if len(rows) < 2 {
			continue
		}
		p.parse(ctx, run, rows)
	}

	_ = run.nutrition.Flush(ctx)
	_ = run.body.Flush(ctx)
	_ = run.metrics.Flush(ctx)

	res := Result{
		File:        path,
		Nutrition:   run.nutrition.Committed(),
		BodyMetrics: run.body.Committed(),
		Metrics:     run.metrics.Committed(),
		Errors:      errs.Messages(),
	}
	i.logger.Printf("nutrition: %d, body: %d, metrics: %d", res.Nutrition, res.BodyMetrics, res.Metrics)
	return res, nil
}

type sheetRun struct {
	ownerID   string
	errs      *batch.ErrorLog
	nutrition *batch.Buffer[domain.Nutrition]
	body      *batch.Buffer[domain.BodyMetrics]
	metrics   *batch.Buffer[domain.HealthRecord]
}

type sheetParser struct {
	name  string
	parse func(ctx context.Context, run *sheetRun, rows [][]string)
}

var sheetParsers = []sheetParser{
	{SheetCaloriesMacros, parseCaloriesAndMacros},
	{SheetMicronutrients, parseMicronutrients},
	{SheetScaleWeight, parseScaleWeight},
	{SheetWeightTrend, dailyMetric("weight_trend", "lb")},
	{SheetExpenditure, dailyMetric("tdee", "kcal")},
	{SheetSteps, dailyMetric("steps", "count")},
	{SheetBodyMetrics, parseBodyMetrics},
}

func parseCaloriesAndMacros(ctx context.Context, run *sheetRun, rows [][]string) {
	for _, row := range rows[1:] {
		date, ok := parseDate(cell(row, 0))
		if !ok {
			continue
		}
		_ = run.nutrition.Enqueue(ctx, domain.Nutrition{
			OwnerID:    run.ownerID,
			Date:       date,
			Calories:   positive(row, 1),
			FatG:       positive(row, 2),
			CarbsG:     positive(row, 3),
			ProteinG:   positive(row, 4),
			SourceName: SourceName,
		})
	}
}

func parseMicronutrients(ctx context.Context, run *sheetRun, rows [][]string) {
	cols := columnIndex(rows[0], "fiber", "calcium", "iron", "magnesium", "potassium", "sodium", "zinc", "vitamin c", "vitamin d")
	if len(cols) == 0 {
		return
	}
	at := func(row []string, key string) *float64 {
		i, ok := cols[key]
		if !ok {
			return nil
		}
		return number(row, i)
	}

	for _, row := range rows[1:] {
		date, ok := parseDate(cell(row, 0))
		if !ok {
			continue
		}
		n := domain.Nutrition{
			OwnerID:     run.ownerID,
			Date:        date,
			FiberG:      at(row, "fiber"),
			CalciumMg:   at(row, "calcium"),
			IronMg:      at(row, "iron"),
			MagnesiumMg: at(row, "magnesium"),
			PotassiumMg: at(row, "potassium"),
			SodiumMg:    at(row, "sodium"),
			ZincMg:      at(row, "zinc"),
			VitaminCMg:  at(row, "vitamin c"),
			VitaminDMcg: at(row, "vitamin d"),
			SourceName:  SourceName,
		}
		_ = run.nutrition.Enqueue(ctx, n)
	}
}

func parseScaleWeight(ctx context.Context, run *sheetRun, rows [][]string) {
	kilograms := strings.Contains(strings.ToLower(cell(rows[0], 1)), "kg")
	for _, row := range rows[1:] {
		date, ok := parseDate(cell(row, 0))
		if !ok {
			continue
		}
		weight := positive(row, 1)
		if weight != nil && !kilograms {
			kg := units.PoundsToKilograms(*weight)
			weight = &kg
		}
		_ = run.body.Enqueue(ctx, domain.BodyMetrics{
			OwnerID:        run.ownerID,
			Date:           date,
			WeightKg:       weight,
			BodyFatPercent: positive(row, 2),
			SourceName:     SourceName,
		})
	}
}

func parseBodyMetrics(ctx context.Context, run *sheetRun, rows [][]string) {
	cols := columnIndex(rows[0], "chest", "waist", "hips")
	if len(cols) == 0 {
		return
	}
	// Measurements are exported in the unit chosen in the app; the header names it.
	inches := make(map[string]bool)
	for key, i := range cols {
		inches[key] = strings.Contains(strings.ToLower(cell(rows[0], i)), "(in")
	}
	at := func(row []string, key string) *float64 {
		i, ok := cols[key]
		if !ok {
			return nil
		}
		v := number(row, i)
		if v == nil || !inches[key] {
			return v
		}
		_, cm := units.ConvertFrom("in", *v)
		return &cm
	}

	for _, row := range rows[1:] {
		date, ok := parseDate(cell(row, 0))
		if !ok {
			continue
		}
		_ = run.body.Enqueue(ctx, domain.BodyMetrics{
			OwnerID:    run.ownerID,
			Date:       date,
			ChestCm:    at(row, "chest"),
			WaistCm:    at(row, "waist"),
			HipsCm:     at(row, "hips"),
			SourceName: SourceName,
		})
	}
}

// dailyMetric turns a two-column date/value sheet into day-long health records.
func dailyMetric(metric, unit string) func(context.Context, *sheetRun, [][]string) {
	return func(ctx context.Context, run *sheetRun, rows [][]string) {
		for _, row := range rows[1:] {
			date, ok := parseDate(cell(row, 0))
			if !ok {
				continue
			}
			v := positive(row, 1)
			if v == nil {
				continue
			}
			canonicalUnit, value := units.ConvertFrom(unit, *v)
			_ = run.metrics.Enqueue(ctx, domain.HealthRecord{
				OwnerID:    run.ownerID,
				MetricType: metric,
				Value:      value,
				Unit:       canonicalUnit,
				SourceName: SourceName,
				StartTime:  date,
				EndTime:    date,
			})
		}
	}
}
