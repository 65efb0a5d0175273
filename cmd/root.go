// Package cmd defines and implements the CLI commands for the popetl executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/app"
	"github.com/JakeFAU/world-population-etl/internal/config"
	"github.com/JakeFAU/world-population-etl/internal/logging"
	"github.com/JakeFAU/world-population-etl/internal/population"
)

// sessionKeyType is the key for storing the loaded session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what PersistentPreRunE hands to subcommands.
type session struct {
	cfg    config.Config
	logger *zap.Logger
}

// App is the part of *app.App the commands use, so tests can inject a mock.
type App interface {
	Run(ctx context.Context) (population.RunSummary, error)
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (App, error) {
	return app.New(ctx, cfg, logger, out)
}

// newLogger is swapped in tests to observe log output.
var newLogger = logging.New

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "popetl",
		Short: "Scrape the world population table, write it to CSV and load a warehouse.",
		Long: `popetl fetches the regional world population table from Wikipedia,
normalizes its rows, writes them to a CSV file and loads a batch into
Snowflake (or Postgres for local development).

Configuration comes from an optional YAML file plus POPETL_* environment
variables. Passwords and DSNs are only read from the environment.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(sessionKey).(*session); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	rt, ok := ctx.Value(sessionKey).(*session)
	if !ok || rt == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return rt, nil
}

// Execute is the main entry point. It cancels the run on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
