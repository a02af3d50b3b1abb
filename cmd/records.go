package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

func newRecordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records",
		Short: "Print the raw record log as a JSON array",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := appInstance.Records(cmd.Context())
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			if recs == nil {
				recs = []crawler.RawRecord{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(recs); err != nil {
				return fmt.Errorf("encode records: %w", err)
			}
			return nil
		},
	}
}
