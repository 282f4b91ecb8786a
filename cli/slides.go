package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wsiserve/catalog"
)

func newSlidesCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "slides",
		Short: "List published slides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			slides, err := catalog.New(cfg.Slides).ListWithBase(baseURL)
			if err != nil {
				return err
			}
			if len(slides) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No slides published")
				return nil
			}
			for _, s := range slides {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, s.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Prefix URLs with this scheme://host")
	return cmd
}
