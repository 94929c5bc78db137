// Package ecg imports single-lead electrocardiogram CSV exports.
package ecg

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jordangarrison/vitals/internal/batch"
	"github.com/jordangarrison/vitals/internal/decimate"
	"github.com/jordangarrison/vitals/internal/domain"
)

// DefaultBatchSize is kept small; a recording carries thousands of samples.
const DefaultBatchSize = 10

// Sink persists recordings.
type Sink interface {
	InsertECGRecordings(ctx context.Context, recordings []domain.ECGRecording) error
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

// Importer reads a directory of ECG exports.
type Importer struct {
	sink      Sink
	logger    *log.Logger
	batchSize int
}

// NewImporter constructs an Importer.
func NewImporter(sink Sink, opts ...Option) *Importer {
	i := &Importer{
		sink:      sink,
		logger:    log.New(log.Writer(), "[ecg] ", log.LstdFlags|log.Lshortfile),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportDirectory imports every *.csv in dir in name order. Only an unreadable
// directory is returned as an error; per-file problems land in Result.Errors.
func (i *Importer) ImportDirectory(ctx context.Context, ownerID, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	i.logger.Printf("found %d ECG files", len(files))

	errs := &batch.ErrorLog{}
	buf := batch.New("ecg_recordings", i.batchSize, i.sink.InsertECGRecordings,
		batch.WithLogger(i.logger), batch.WithErrorLog(errs))

	for _, name := range files {
		recording, err := i.readFile(ownerID, filepath.Join(dir, name))
		if err != nil {
			errs.Add("%s: %v", name, err)
			continue
		}
		_ = buf.Enqueue(ctx, recording)
	}
	_ = buf.Flush(ctx)

	return Result{
		FilesFound:       len(files),
		RecordsProcessed: buf.Committed(),
		Errors:           errs.Messages(),
	}, nil
}

func (i *Importer) readFile(ownerID, path string) (domain.ECGRecording, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ECGRecording{}, err
	}
	defer f.Close()

	header, samples, err := Parse(f)
	if err != nil {
		return domain.ECGRecording{}, fmt.Errorf("parse: %w", err)
	}
	recording, err := header.Recording(ownerID, path, samples)
	if err != nil {
		return domain.ECGRecording{}, err
	}
	recording.Waveform = decimate.Every(samples, decimate.ECGFactor(len(samples)))
	return recording, nil
}
