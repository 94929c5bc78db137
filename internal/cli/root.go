// Package cli builds the vitals command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jordangarrison/vitals/db/postgres/migrations"
	"github.com/jordangarrison/vitals/internal/config"
	"github.com/jordangarrison/vitals/internal/errtrack"
	"github.com/jordangarrison/vitals/internal/importer"
	"github.com/jordangarrison/vitals/internal/persistence/postgres"
)

// Backend is an open store plus the operations the commands run against it.
type Backend struct {
	Store   importer.Store
	Migrate func(ctx context.Context) ([]string, error)
	Close   func()
}

// Connector opens a Backend for a Postgres URL.
type Connector func(ctx context.Context, postgresURL string) (*Backend, error)

var _ importer.Store = (*postgres.Repository)(nil)

// Connect opens a pgx pool and wraps it in the Postgres repository.
func Connect(ctx context.Context, postgresURL string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Backend{
		Store: postgres.NewRepository(pool),
		Migrate: func(ctx context.Context) ([]string, error) {
			return migrations.Up(ctx, pool)
		},
		Close: pool.Close,
	}, nil
}

// app carries what every subcommand shares.
type app struct {
	cfg         config.Config
	connect     Connector
	stdout      io.Writer
	logger      *log.Logger
	postgresURL string
}

func (a *app) open(ctx context.Context) (*Backend, error) {
	return a.connect(ctx, a.postgresURL)
}

func (a *app) tracker() *errtrack.Tracker {
	tracker, err := errtrack.Init(errtrack.Config{
		DSN:         a.cfg.SentryDSN,
		Environment: a.cfg.SentryEnvironment,
	}, a.logger)
	if err != nil {
		a.logger.Printf("error tracking disabled: %v", err)
	}
	return tracker
}

// NewRootCommand returns the vitals command with the migrate, import and routes
// subcommands. Flags default to the values in cfg.
func NewRootCommand(cfg config.Config, connect Connector, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		cfg:     cfg,
		connect: connect,
		stdout:  stdout,
		logger:  log.New(stderr, "[vitals] ", log.LstdFlags),
	}

	rc := &cobra.Command{
		Use:   "vitals",
		Short: "Import personal health exports into Postgres.",
		Long: `vitals ingests an Apple Health export, MacroFactor workbooks, clinical
FHIR records, ECG recordings and workout route files for one owner into
Postgres. Each source is audited in import_history.
`,
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringVar(&a.postgresURL, "postgres-url", cfg.PostgresURL, "Postgres connection string (env POSTGRES_URL)")

	rc.AddCommand(newMigrateCommand(a))
	rc.AddCommand(newImportCommand(a))
	rc.AddCommand(newRoutesCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
