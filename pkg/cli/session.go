// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-core-stack/library-client/pkg/client"
	"github.com/go-core-stack/library-client/pkg/session"
)

func loginCmd(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session",
		Long: `Posts the credentials to /api/login and stores the returned token, role,
user id and profile in the configured session store.

When --password is omitted the password is read from the first line of stdin:

  $ echo "$LIBRARY_PASSWORD" | libctl login -u ada`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("username is required. Use -u or --username flag")
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required. Use -p or pipe it on stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			state, err := c.Login(cmd.Context(), client.Credentials{Username: username, Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as user %s (role %s)\n", state.UserID, state.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			state, err := c.Session(cmd.Context())
			if errors.Is(err, session.ErrNoSession) {
				return errors.New("not logged in; run `libctl login`")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user id: %s\n", state.UserID)
			fmt.Fprintf(out, "role:    %s\n", state.Role)
			if state.User != "" {
				fmt.Fprintf(out, "profile: %s\n", state.User)
			}
			return nil
		},
	}
}
