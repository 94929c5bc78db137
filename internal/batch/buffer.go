// Package batch buffers entities per table and flushes each batch inside one
// transaction supplied by the caller.
//
// A failed flush discards the whole batch: the error is recorded, the buffer is
// cleared, and the run carries on with the next batch. Items are never retried.
package batch

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Writer is the enqueue/flush contract shared by every importer.
type Writer[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Flush(ctx context.Context) error
}

var _ Writer[struct{}] = (*Buffer[struct{}])(nil)

// FlushFunc persists one batch. Implementations must commit every item or none.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// ProgressFunc observes committed batches.
type ProgressFunc func(buffer string, batch, committed int)

// Option configures optional behaviour for a Buffer.
type Option func(*settings)

type settings struct {
	logger   *log.Logger
	progress ProgressFunc
	errs     *ErrorLog
}

// WithLogger overrides the logger used to report failed batches.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithProgress registers a callback invoked after every committed flush.
func WithProgress(fn ProgressFunc) Option {
	return func(s *settings) {
		s.progress = fn
	}
}

// WithErrorLog shares a phase-wide error log with the buffer.
func WithErrorLog(errs *ErrorLog) Option {
	return func(s *settings) {
		s.errs = errs
	}
}

// Buffer accumulates items for one table and flushes them when the threshold is hit.
// It is not safe for concurrent use; a pipeline owns its buffers.
type Buffer[T any] struct {
	name      string
	threshold int
	flush     FlushFunc[T]
	pending   []T
	committed int
	discarded int
	errs      []string
	settings  settings
}

// New constructs a Buffer. A threshold below one flushes on every item.
func New[T any](name string, threshold int, flush FlushFunc[T], opts ...Option) *Buffer[T] {
	if threshold < 1 {
		threshold = 1
	}
	b := &Buffer[T]{
		name:      name,
		threshold: threshold,
		flush:     flush,
		pending:   make([]T, 0, threshold),
		settings: settings{
			logger: log.New(log.Writer(), "[batch] ", log.LstdFlags|log.Lshortfile),
		},
	}
	for _, opt := range opts {
		opt(&b.settings)
	}
	return b
}

// Enqueue adds an item and flushes synchronously once the threshold is reached.
// The returned error is the failed flush, already recorded on the buffer.
func (b *Buffer[T]) Enqueue(ctx context.Context, item T) error {
	b.pending = append(b.pending, item)
	if len(b.pending) >= b.threshold {
		return b.Flush(ctx)
	}
	return nil
}

// Flush persists all pending items in one call to the FlushFunc.
func (b *Buffer[T]) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	items := b.pending
	b.pending = make([]T, 0, b.threshold)

	start := time.Now()
	err := b.flush(ctx, items)
	recordFlush(b.name, len(items), time.Since(start), err)

	if err != nil {
		b.discarded += len(items)
		msg := fmt.Sprintf("%s batch of %d failed: %v", b.name, len(items), err)
		b.errs = append(b.errs, msg)
		if b.settings.errs != nil {
			b.settings.errs.Add("%s", msg)
		}
		b.settings.logger.Print(msg)
		return fmt.Errorf("%s batch: %w", b.name, err)
	}

	b.committed += len(items)
	if b.settings.progress != nil {
		b.settings.progress(b.name, len(items), b.committed)
	}
	return nil
}

// Name returns the buffer label used in logs and metrics.
func (b *Buffer[T]) Name() string { return b.name }

// Len reports the number of pending items.
func (b *Buffer[T]) Len() int { return len(b.pending) }

// Committed reports how many items were persisted by successful flushes.
func (b *Buffer[T]) Committed() int { return b.committed }

// Discarded reports how many items were lost to failed flushes.
func (b *Buffer[T]) Discarded() int { return b.discarded }

// Errors returns the messages recorded for failed flushes.
func (b *Buffer[T]) Errors() []string {
	out := make([]string, len(b.errs))
	copy(out, b.errs)
	return out
}
