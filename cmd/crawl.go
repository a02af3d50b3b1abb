package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/planner"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one batch.
func newCrawlCmd() *cobra.Command {
	var (
		batchSize  int
		startIndex int
		maxTotal   int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one batch of the movie catalog",
		Long: `Lists the configured catalog pages, then fetches the movies in the
window [start-index, start-index+batch-size) that are not yet processed.
Each movie is appended to the record log and marked processed. The next
start index is printed so the following run can continue from it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			window := planner.Window{
				Start:    cfg.Crawler.StartIndex,
				Size:     cfg.Crawler.BatchSize,
				MaxTotal: cfg.Crawler.MaxTotal,
			}
			if cmd.Flags().Changed("batch-size") {
				window.Size = batchSize
			}
			if cmd.Flags().Changed("start-index") {
				window.Start = startIndex
			}
			if cmd.Flags().Changed("max-total") {
				window.MaxTotal = maxTotal
			}

			summary, err := appInstance.Crawl(cmd.Context(), window)
			if summary.RunID != "" {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "run %s %s: fetched %d, failed %d, skipped %d, quotes %d\n",
					summary.RunID, summary.Status, summary.Fetched, summary.Failed, summary.Skipped, summary.Quotes)
				if summary.ArchiveURI != "" {
					fmt.Fprintf(out, "archived to %s\n", summary.ArchiveURI)
				}
				if summary.Exhausted {
					fmt.Fprintln(out, "catalog window exhausted")
				} else {
					fmt.Fprintf(out, "next start index: %d\n", summary.NextStart)
				}
			}
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			appInstance.Logger().Debug("crawl command finished", zap.String("run_id", summary.RunID))
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 20, "number of catalog entries in the window")
	cmd.Flags().IntVar(&startIndex, "start-index", 0, "catalog index the window starts at")
	cmd.Flags().IntVar(&maxTotal, "max-total", 0, "never go past this catalog index (0 = no cap)")
	return cmd
}
