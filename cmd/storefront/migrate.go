package main

import (
	"fmt"

	"bike-storefront/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(cmd.Context(), a.db.DB()); err != nil {
				return err
			}
			version, err := database.MigrationVersion(cmd.Context(), a.db.DB())
			if err != nil {
				return err
			}
			fmt.Printf("schema at version %d\n", version)
			return nil
		},
	}
}
