package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/world-population-etl/internal/display"
	"github.com/JakeFAU/world-population-etl/internal/sink/csvfile"
)

// newShowCmd creates the 'show' subcommand, which prints a previously written CSV.
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [csv-path]",
		Short: "Print a written CSV file as a table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			path := rt.cfg.Output.Path
			if len(args) == 1 {
				path = args[0]
			}
			records, err := csvfile.Read(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			display.Table(cmd.OutOrStdout(), records)
			return nil
		},
	}
}
