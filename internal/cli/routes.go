package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordangarrison/vitals/internal/importer"
)

func newRoutesCommand(a *app) *cobra.Command {
	var (
		username  string
		dir       string
		tolerance = a.cfg.RouteMatchTolerance
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Link GPX and FIT track files to existing workouts",
		Long: `
Matches every track file in --dir against the owner's workouts and records
a workout-routes import. Defaults to <data-path>/<user>/apple-health/workout-routes.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if dir == "" {
				dir = importer.PathsFor(a.cfg.DataPath, username).Routes
			}
			backend, err := a.open(c.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			tracker := a.tracker()
			defer tracker.Flush(flushTimeout)

			result, err := importer.New(backend.Store,
				importer.WithLogger(a.logger),
				importer.WithReporter(tracker),
				importer.WithTolerance(tolerance),
			).MatchRoutes(c.Context(), username, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d linked, %d unlinked in %s\n", result.Records, result.Skipped, importer.FormatDuration(result.Duration))
			for _, msg := range result.Errors {
				fmt.Fprintf(a.stdout, "  %s\n", msg)
			}
			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&username, "user", "u", "", "owner username")
	flags.StringVar(&dir, "dir", "", "directory of .gpx and .fit files")
	flags.DurationVar(&tolerance, "route-tolerance", tolerance, "slack on both sides of a workout when matching")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
