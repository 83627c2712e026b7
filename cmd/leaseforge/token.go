package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/middleware"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an actor (development and service accounts)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, flush, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer flush()

			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			if subject == "" {
				return errors.New("--sub is required")
			}
			r, err := lease.ParseRole(role)
			if err != nil {
				return err
			}

			token, err := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).
				Issue(lease.Actor{ID: subject, Role: r}, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", string(lease.RoleLandlord), "landlord, tenant or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
