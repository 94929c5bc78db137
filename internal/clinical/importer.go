// Package clinical imports FHIR clinical records exported one resource per file.
package clinical

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jordangarrison/vitals/internal/batch"
	"github.com/jordangarrison/vitals/internal/domain"
)

// DefaultBatchSize is the flush threshold for clinical records.
const DefaultBatchSize = 100

// Sink persists clinical records.
type Sink interface {
	UpsertClinicalRecords(ctx context.Context, records []domain.ClinicalRecord) error
}

// Result summarises one directory import.
type Result struct {
	FilesFound       int
	RecordsProcessed int
	Errors           []string
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

// WithProgress reports committed batches.
func WithProgress(fn batch.ProgressFunc) Option {
	return func(i *Importer) {
		i.progress = fn
	}
}

// Importer reads a directory of FHIR resources.
type Importer struct {
	sink      Sink
	logger    *log.Logger
	batchSize int
	progress  batch.ProgressFunc
}

// NewImporter constructs an Importer.
func NewImporter(sink Sink, opts ...Option) *Importer {
	i := &Importer{
		sink:      sink,
		logger:    log.New(log.Writer(), "[clinical] ", log.LstdFlags|log.Lshortfile),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportDirectory imports every *.json file in dir. Only an unreadable directory
// is returned as an error.
func (i *Importer) ImportDirectory(ctx context.Context, ownerID, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	i.logger.Printf("found %d clinical record files", len(files))

	errs := &batch.ErrorLog{}
	opts := []batch.Option{batch.WithLogger(i.logger), batch.WithErrorLog(errs)}
	if i.progress != nil {
		opts = append(opts, batch.WithProgress(i.progress))
	}
	buf := batch.New("clinical_records", i.batchSize, i.sink.UpsertClinicalRecords, opts...)

	for _, name := range files {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			errs.Add("Failed to parse %s: %v", name, err)
			continue
		}
		rec, err := ParseResource(ownerID, path, raw)
		if err != nil {
			errs.Add("Failed to parse %s: %v", name, err)
			continue
		}
		_ = buf.Enqueue(ctx, rec)
	}
	_ = buf.Flush(ctx)

	return Result{
		FilesFound:       len(files),
		RecordsProcessed: buf.Committed(),
		Errors:           errs.Messages(),
	}, nil
}
