package main

import (
	"fmt"

	"taskify/internal/db"
	"taskify/internal/migrations"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "List pending migrations, or apply them with --apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireEnv("DATABASE_URL")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.Connect(ctx, dsn, 2)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			if !apply {
				pending, err := migrations.Pending(ctx, pool)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				for _, name := range pending {
					fmt.Fprintln(cmd.OutOrStdout(), "pending", name)
				}
				return nil
			}

			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "apply pending migrations")
	return cmd
}
