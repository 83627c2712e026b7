package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/LeaseForge/internal/adapter/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, flush, err := setup(*configPath)
				if err != nil {
					return err
				}
				defer flush()
				if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
					return err
				}
				fmt.Println("migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the last migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				cfg, flush, err := setup(*configPath)
				if err != nil {
					return err
				}
				defer flush()
				if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, steps); err != nil {
					return err
				}
				fmt.Printf("rolled back %d migration(s)\n", steps)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, flush, err := setup(*configPath)
				if err != nil {
					return err
				}
				defer flush()
				v, err := postgres.MigrationVersion(cmd.Context(), cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			},
		},
	)
	return cmd
}
