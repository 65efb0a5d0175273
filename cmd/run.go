package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	output          string
	warehouseSource string
	noWarehouse     bool
	quiet           bool
}

// newRunCmd creates the 'run' subcommand, which executes one full pipeline run.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, normalize, write and load the population table once",
		Long: `Fetches the source page, extracts the wikitable, writes the normalized
rows to CSV and loads the configured batch into the warehouse. A warehouse
that cannot be reached is logged and skipped; a failing statement fails
the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "CSV output path (overrides output.path)")
	cmd.Flags().StringVar(&opts.warehouseSource, "warehouse-source", "", "rows to load: seed or scraped (overrides warehouse.source)")
	cmd.Flags().BoolVar(&opts.noWarehouse, "no-warehouse", false, "skip the warehouse load")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the table")
	return cmd
}

func runPipeline(cmd *cobra.Command, opts *runOptions) error {
	rt, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if opts.warehouseSource != "" {
		cfg.Warehouse.Source = opts.warehouseSource
	}
	if opts.noWarehouse {
		cfg.Warehouse.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.quiet {
		out = nil
	}
	appInstance, err := newApp(cmd.Context(), cfg, rt.logger, out)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer appInstance.Close()

	summary, err := appInstance.Run(cmd.Context())
	if err != nil {
		return err
	}
	rt.logger.Info("run command finished",
		zap.String("run_id", summary.RunID),
		zap.String("output", summary.OutputPath),
		zap.String("warehouse", string(summary.Warehouse)),
	)
	return nil
}
