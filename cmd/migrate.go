package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates the 'migrate' subcommand. It is the only way to drop data.
func newMigrateCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the movies and quotes tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Migrate(cmd.Context(), reset); err != nil {
				return err
			}
			if reset {
				fmt.Fprintln(cmd.OutOrStdout(), "schema reset")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop existing tables first (destroys all loaded data)")
	return cmd
}
