// Package errtrack reports fatal ingestion errors to Sentry. Without a DSN every
// call is a no-op.
package errtrack

import (
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config selects the Sentry project and environment.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Tracker forwards errors to Sentry once initialised.
type Tracker struct {
	enabled bool
	logger  *log.Logger
}

// Init configures the Sentry client. An empty DSN yields a disabled Tracker.
func Init(cfg Config, logger *log.Logger) (*Tracker, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[errtrack] ", log.LstdFlags|log.Lshortfile)
	}
	if cfg.DSN == "" {
		logger.Print("sentry DSN not configured; error tracking disabled")
		return &Tracker{logger: logger}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	logger.Printf("sentry initialised (environment=%s)", cfg.Environment)
	return &Tracker{enabled: true, logger: logger}, nil
}

// Enabled reports whether events are sent.
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Capture reports err with the given tags.
func (t *Tracker) Capture(err error, tags map[string]string) {
	if err == nil || !t.Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events.
func (t *Tracker) Flush(timeout time.Duration) bool {
	if !t.Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}
