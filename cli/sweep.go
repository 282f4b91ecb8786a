package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wsiserve/staging"
)

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove staged uploads older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.Housekeeping.StagingRetention
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			n, err := staging.NewStore(cfg.Staging).Sweep(olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staged uploads older than %v\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of staged files to remove (default: housekeeping.stagingRetention)")
	return cmd
}
