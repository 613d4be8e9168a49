package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/examgate/pkg/config"
	"github.com/dmitrymomot/examgate/pkg/identity"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Identity token helpers for local development",
	}

	var email string
	issue := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue a bearer token signed with IDENTITY_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idCfg identity.Config
			if err := config.Load(&idCfg); err != nil {
				return err
			}
			tokens, err := identity.NewTokens(idCfg)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0], email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&email, "email", "", "email claim")

	cmd.AddCommand(issue)
	return cmd
}
