package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/jordangarrison/vitals/internal/domain"
)

// PhaseResult is the outcome of one audited phase.
type PhaseResult struct {
	Source    string
	File      string
	ImportID  string
	Records   int
	Skipped   int
	Errors    []string
	Status    domain.ImportStatus
	Duration  time.Duration
	RoutesDir string
	// Err is the fatal error that aborted the phase, if any.
	Err error
}

// Summary aggregates a full run.
type Summary struct {
	Owner   domain.Owner
	Phases  []PhaseResult
	Elapsed time.Duration
}

// Records totals committed rows across phases.
func (s Summary) Records() int {
	total := 0
	for _, p := range s.Phases {
		total += p.Records
	}
	return total
}

// Errors returns every phase error message, prefixed with its source.
func (s Summary) Errors() []string {
	var out []string
	for _, p := range s.Phases {
		for _, msg := range p.Errors {
			out = append(out, fmt.Sprintf("%s: %s", p.Source, msg))
		}
		if p.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", p.Source, p.Err))
		}
	}
	return out
}

// Succeeded reports whether every phase finished with status success.
func (s Summary) Succeeded() bool {
	for _, p := range s.Phases {
		if p.Status != domain.ImportStatusSuccess || p.Err != nil {
			return false
		}
	}
	return true
}

// Err joins the fatal phase errors.
func (s Summary) Err() error {
	var errs []error
	for _, p := range s.Phases {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Source, p.Err))
		}
	}
	return errors.Join(errs...)
}

// FormatDuration renders seconds below a minute and "XmYs" above.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

const maxLoggedErrors = 5

func (i *Importer) logSummary(s Summary) {
	i.logger.Print(i.printer.Sprintf("import summary: %d records in %s", s.Records(), FormatDuration(s.Elapsed)))
	errs := s.Errors()
	if len(errs) == 0 {
		i.logger.Print("no errors encountered")
		return
	}
	i.logger.Printf("errors encountered: %d", len(errs))
	for n, msg := range errs {
		if n == maxLoggedErrors {
			i.logger.Printf("... and %d more errors", len(errs)-maxLoggedErrors)
			break
		}
		i.logger.Printf("  %s", msg)
	}
}
