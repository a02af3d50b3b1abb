package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// newLoadCmd creates the 'load' subcommand.
func newLoadCmd() *cobra.Command {
	var (
		dir         string
		childPolicy string
	)
	cmd := &cobra.Command{
		Use:   "load [path]",
		Short: "Load record files into the database",
		Long: `Loads every *.json and *.jsonl file under the records directory (or the
given path, which may also be a single file). Each file is one transaction:
movies are matched by natural key and quotes are inserted under the chosen
child policy. A failed file is rolled back and the load continues.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			path := cfg.Records.Dir
			if dir != "" {
				path = dir
			}
			if len(args) == 1 {
				path = args[0]
			}
			raw := cfg.Loader.ChildPolicy
			if childPolicy != "" {
				raw = childPolicy
			}
			policy, err := store.ParseChildPolicy(raw)
			if err != nil {
				return err
			}

			summary, err := appInstance.Load(cmd.Context(), path, policy)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			out := cmd.OutOrStdout()
			t := summary.Totals
			fmt.Fprintf(out, "units %d, records %d, movies inserted %d, matched %d, backfilled %d, quotes %d, skipped %d\n",
				len(summary.Units), t.Records, t.EntitiesInserted, t.EntitiesMatched, t.EntitiesBackfilled, t.QuotesInserted, t.Skipped)
			for _, f := range summary.Failed {
				fmt.Fprintf(out, "failed: %s: %s\n", f.Unit, f.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of record files (default records.dir)")
	cmd.Flags().StringVar(&childPolicy, "child-policy", "", "append or dedupe (default loader.child_policy)")
	return cmd
}
