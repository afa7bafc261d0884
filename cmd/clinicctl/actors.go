package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/identity"
)

// approveCmd approves an actor without an admin token, which is how the
// first admin gets bootstrapped.
func approveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <actor-id>",
		Short: "Approve a registered actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("actor id: %w", err)
			}

			pool, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			acc, err := identity.NewPgRepository(pool).ApproveActor(cmd.Context(), id, time.Now())
			if err != nil {
				return err
			}
			e.log.Info().Str("actor_id", acc.ID.String()).Str("role", string(acc.Role)).Msg("actor approved")
			return nil
		},
	}
}

// tokenCmd signs a bearer token for an existing actor. Intended for local
// development and smoke tests.
func tokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Issue a development JWT for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("actor id: %w", err)
			}

			pool, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			acc, err := identity.NewPgRepository(pool).GetActorByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			token, err := issue(e, acc.Actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func issue(e *env, actor access.Actor, ttl time.Duration) (string, error) {
	return api.IssueToken(api.AuthConfig{Secret: e.cfg.JWTSecret, Issuer: e.cfg.JWTIssuer}, actor, ttl)
}
