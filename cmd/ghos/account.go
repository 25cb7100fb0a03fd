package main

import (
	"fmt"
	"os"

	"ghos/internal/errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func addAccountCommands(root *cobra.Command) {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Save an account and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = os.Getenv("GHOS_TOKEN")
			}
			if token == "" {
				return errors.ValidationError("a token is required (--token or GHOS_TOKEN)", nil)
			}
			if err := current.sessions.Save(user, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", user)
			return nil
		},
	}
	loginCmd.Flags().String("user", "", "GitHub username")
	loginCmd.Flags().String("token", "", "personal access token")
	loginCmd.MarkFlagRequired("user")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the active account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := current.sessions.Logout()
			if err != nil {
				return err
			}
			if next != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "logged out; now using %s\n", next)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if current.user == "" {
				return errors.Unauthorized("not logged in; run ghos login")
			}
			fmt.Fprintln(cmd.OutOrStdout(), current.user)
			return nil
		},
	}

	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "List saved accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := current.sessions.List()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no saved accounts")
				return nil
			}
			for _, a := range accounts {
				mark := " "
				if a.Active {
					mark = color.GreenString("*")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, a.Username)
			}
			return nil
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <user>",
		Short: "Make a saved account active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := current.store.HasPending()
			if err != nil {
				return err
			}
			if pending {
				return errors.StagingConflict(args[0], "changes are staged; commit or reset them before switching accounts")
			}
			if err := current.sessions.Switch(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(loginCmd, logoutCmd, whoamiCmd, accountsCmd, switchCmd)
}
