package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jordangarrison/vitals/internal/importer"
)

// ErrImportIncomplete is returned when at least one phase did not succeed.
var ErrImportIncomplete = errors.New("import finished with errors")

const flushTimeout = 5 * time.Second

type importOptions struct {
	request       importer.Request
	recordBatch   int
	workoutBatch  int
	clinicalBatch int
	tolerance     time.Duration
}

func newImportCommand(a *app) *cobra.Command {
	opts := importOptions{
		request:       importer.Request{DataPath: a.cfg.DataPath, DeferRoutes: a.cfg.DeferRoutes},
		recordBatch:   a.cfg.RecordBatchSize,
		workoutBatch:  a.cfg.WorkoutBatchSize,
		clinicalBatch: a.cfg.ClinicalBatchSize,
		tolerance:     a.cfg.RouteMatchTolerance,
	}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run every ingestion phase for one owner",
		Long: `
Imports <data-path>/<user>/apple-health/export.xml, the newest MacroFactor
workbook, clinical records, ECG recordings and workout routes, in that order.
Each phase is audited separately; a failing phase does not stop the others.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			backend, err := a.open(c.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			tracker := a.tracker()
			defer tracker.Flush(flushTimeout)

			imp := importer.New(backend.Store,
				importer.WithLogger(a.logger),
				importer.WithReporter(tracker),
				importer.WithBatchSizes(opts.recordBatch, opts.workoutBatch, opts.clinicalBatch),
				importer.WithTolerance(opts.tolerance),
			)
			summary, err := imp.Run(c.Context(), opts.request)
			if err != nil {
				return err
			}
			printSummary(a.stdout, summary)
			if !summary.Succeeded() {
				return ErrImportIncomplete
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.request.Username, "user", "u", "", "owner username; data is read from <data-path>/<user>")
	flags.StringVar(&opts.request.DataPath, "data-path", opts.request.DataPath, "root data directory (env DATA_PATH)")
	flags.BoolVar(&opts.request.SkipAppleHealth, "skip-apple-health", false, "skip export.xml")
	flags.BoolVar(&opts.request.SkipMacroFactor, "skip-macrofactor", false, "skip the MacroFactor workbook")
	flags.BoolVar(&opts.request.SkipClinical, "skip-clinical", false, "skip clinical records")
	flags.BoolVar(&opts.request.SkipECG, "skip-ecg", false, "skip ECG recordings")
	flags.BoolVar(&opts.request.SkipRoutes, "skip-routes", false, "skip workout route matching")
	flags.BoolVar(&opts.request.DeferRoutes, "defer-routes", opts.request.DeferRoutes, "leave route matching to the linker service (env DEFER_ROUTES)")
	flags.IntVar(&opts.recordBatch, "record-batch-size", opts.recordBatch, "health records per transaction")
	flags.IntVar(&opts.workoutBatch, "workout-batch-size", opts.workoutBatch, "workouts per transaction")
	flags.IntVar(&opts.clinicalBatch, "clinical-batch-size", opts.clinicalBatch, "clinical records per transaction")
	flags.DurationVar(&opts.tolerance, "route-tolerance", opts.tolerance, "slack on both sides of a workout when matching routes")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printSummary(w io.Writer, s importer.Summary) {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tRECORDS\tSKIPPED\tERRORS\tDURATION")
	for _, phase := range s.Phases {
		errCount := len(phase.Errors)
		if phase.Err != nil {
			errCount++
		}
		p.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			phase.Source, phase.Status, phase.Records, phase.Skipped, errCount, importer.FormatDuration(phase.Duration))
	}
	_ = tw.Flush()
	p.Fprintf(w, "\n%d records for %s in %s\n", s.Records(), s.Owner.Username, importer.FormatDuration(s.Elapsed))
	for _, msg := range s.Errors() {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}
