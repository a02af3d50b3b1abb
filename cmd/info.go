package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quotes-crawler/internal/report"
)

func newInfoCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w, err := report.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			stats, err := appInstance.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			_, err = w.Write(stats)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText, "output format: text, markdown or json")
	return cmd
}
