package main

import (
	"fmt"

	"ghos/internal/errors"
	"ghos/internal/remote"
	"ghos/internal/vpath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// currentRepo returns the repository the current directory is in.
func currentRepo() (vpath.RepoAddress, error) {
	ws, err := current.workspace()
	if err != nil {
		return vpath.RepoAddress{}, err
	}
	addr, err := ws.Resolve(".")
	if err != nil {
		return addr, err
	}
	if addr.IsRoot() {
		return addr, errors.ValidationError("not inside a repository; cd into one first", nil)
	}
	return addr, nil
}

func addBranchCommands(root *cobra.Command) {
	branchCmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage branches of the current repository",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := currentRepo()
			if err != nil {
				return err
			}
			repo, err := current.backend.GetRepository(cmd.Context(), addr.Owner, addr.Repo)
			if err != nil {
				return err
			}
			branches, err := current.backend.ListBranches(cmd.Context(), addr.Owner, addr.Repo)
			if err != nil {
				return err
			}
			for _, b := range branches {
				mark := " "
				if b.Name == repo.DefaultBranch {
					mark = color.GreenString("*")
				}
				line := fmt.Sprintf("%s %s %s", mark, b.Name, shortSHA(b.SHA))
				if b.Protected {
					line += color.YellowString(" (protected)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch from another branch's head",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remote.ValidateBranchName(args[0]); err != nil {
				return err
			}
			addr, err := currentRepo()
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetString("from")
			if from == "" {
				repo, err := current.backend.GetRepository(cmd.Context(), addr.Owner, addr.Repo)
				if err != nil {
					return err
				}
				from = repo.DefaultBranch
			}
			sha, err := current.backend.GetBranchHeadSHA(cmd.Context(), addr.Owner, addr.Repo, from)
			if err != nil {
				return err
			}
			if err := current.backend.CreateBranch(cmd.Context(), addr.Owner, addr.Repo, args[0], sha); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s from %s at %s\n", args[0], from, shortSHA(sha))
			return nil
		},
	}
	createCmd.Flags().String("from", "", "source branch (default: the repository default branch)")

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := currentRepo()
			if err != nil {
				return err
			}
			if err := current.backend.DeleteBranch(cmd.Context(), addr.Owner, addr.Repo, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	branchCmd.AddCommand(listCmd, createCmd, deleteCmd)
	root.AddCommand(branchCmd)
}
