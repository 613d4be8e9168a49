package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the configured record store (schema migrations, indexes)",
		Long: `Opens the store selected by STORE_BACKEND and exits.

For postgres the goose migrations are applied; for mongo the collection
indexes are created. The memory and redis backends need no preparation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sh, err := openStore(cmd.Context(), c.cfg.StoreBackend, c.log)
			if err != nil {
				return err
			}
			defer sh.close()
			c.log.InfoContext(cmd.Context(), "store ready")
			return nil
		},
	}
}
