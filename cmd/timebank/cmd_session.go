package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"timebank/session"
)

func (a *app) loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later commands",
		Long: `Stores the access token issued by the time-bank web login.
The token is sealed with the configured passphrase before it is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("a token is required (--token)")
			}
			if err := a.creds.Save(session.Credential(token)); err != nil {
				return err
			}

			claims, err := session.DecodeClaims(session.Credential(token))
			if err == nil && claims.Username != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", claims.Username)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token saved.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.creds.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := session.NewResolver(a.client).WithLogger(a.logger.Named("session"))
			identity := resolver.Resolve(cmd.Context(), a.creds.Credential())

			out := cmd.OutOrStdout()
			switch identity.State {
			case session.StateKnown:
				fmt.Fprintln(out, identity.Username)
			case session.StateUnknown:
				fmt.Fprintln(out, "Signed in, but the username could not be determined.")
			default:
				fmt.Fprintln(out, "Not signed in.")
			}
			return nil
		},
	}
}
