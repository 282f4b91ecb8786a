package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"wsiserve/models"
)

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <file>",
		Short: "Stage and convert a local slide file",
		Long:  "Runs a local file through the same staging and conversion pipeline as an upload and prints the public path of the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			a, err := openApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.HandleUpload(cmd.Context(), f, filepath.Base(args[0]))
			if err != nil {
				var e *models.Error
				if errors.As(err, &e) && e.Diagnostic != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), e.Diagnostic)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			return nil
		},
	}
}
