package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"ghos/internal/errors"
	"ghos/internal/remote"
	"ghos/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// readContent returns the text given by -c, or the file given by -f ("-"
// reads stdin). ok is false when neither flag was set.
func readContent(cmd *cobra.Command) (content string, ok bool, err error) {
	if cmd.Flags().Changed("content") {
		content, _ = cmd.Flags().GetString("content")
		return content, true, nil
	}
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return "", false, nil
	}

	var data []byte
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", file, err)
	}
	return string(data), true, nil
}

func contentFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "read content from a local file (- for stdin)")
	cmd.Flags().StringP("content", "c", "", "use the given text as content")
}

// withWorkspace adapts a workspace command to cobra.
func withWorkspace(run func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ws, err := current.workspace()
		if err != nil {
			return err
		}
		return run(cmd, ws, args)
	}
}

func argOr(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

func addFileCommands(root *cobra.Command) {
	lsCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List repositories or directory contents",
		Args:  cobra.MaximumNArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			items, err := ws.Ls(cmd.Context(), argOr(args, "."))
			if err != nil {
				return err
			}
			printListing(cmd.OutOrStdout(), items)
			return nil
		}),
	}

	cdCmd := &cobra.Command{
		Use:   "cd <path>",
		Short: "Change the current directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			cwd, err := ws.Cd(cmd.Context(), argOr(args, "/"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cwd)
			return nil
		}),
	}

	pwdCmd := &cobra.Command{
		Use:   "pwd",
		Short: "Print the current directory",
		Args:  cobra.NoArgs,
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			cwd, err := ws.Pwd()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cwd)
			return nil
		}),
	}

	catCmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Print a file, including staged changes",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			content, err := ws.Cat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			if content != "" && !strings.HasSuffix(content, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		}),
	}

	treeCmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print a directory tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			depth, _ := cmd.Flags().GetInt("depth")
			out := cmd.OutOrStdout()
			return ws.Tree(cmd.Context(), argOr(args, "."), depth, func(e remote.Entry, level int) error {
				name := e.Name
				if e.Type == remote.EntryDir {
					name = blue(name + "/")
				}
				fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", level), name)
				return nil
			})
		}),
	}
	treeCmd.Flags().Int("depth", 0, "maximum depth (0 for unlimited)")

	touchCmd := &cobra.Command{
		Use:   "touch <path>",
		Short: "Stage a new file",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			content, _, err := readContent(cmd)
			if err != nil {
				return err
			}
			if err := ws.Touch(cmd.Context(), args[0], content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("A"), args[0])
			return nil
		}),
	}
	contentFlags(touchCmd)

	editCmd := &cobra.Command{
		Use:   "edit <path>",
		Short: "Stage new content for an existing file",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			content, ok, err := readContent(cmd)
			if err != nil {
				return err
			}
			if !ok {
				return errors.ValidationError("edit needs --file or --content", nil)
			}
			if err := ws.Edit(cmd.Context(), args[0], content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("M"), args[0])
			return nil
		}),
	}
	contentFlags(editCmd)

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Stage a file for deletion",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			if err := ws.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.RedString("D"), args[0])
			return nil
		}),
	}

	unstageCmd := &cobra.Command{
		Use:   "unstage <path>",
		Short: "Drop the staged change for a file",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			return ws.Unstage(args[0])
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged changes",
		Args:  cobra.NoArgs,
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			status, err := ws.Status()
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		}),
	}

	diffCmd := &cobra.Command{
		Use:   "diff <path>",
		Short: "Compare a staged file with the remote version",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			result, err := ws.Diff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printDiff(cmd.OutOrStdout(), result)
			return nil
		}),
	}

	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Publish every staged change as one commit",
		Args:  cobra.NoArgs,
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			branch, _ := cmd.Flags().GetString("branch")
			result, err := ws.Commit(cmd.Context(), current.engine(), message, branch)
			if err != nil {
				if result != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s landed but staging was not cleared; run \"ghos reset\"\n",
						yellow("warning:"), shortSHA(result.CommitSHA))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d created, %d updated, %d deleted)\n",
				color.GreenString("committed"), shortSHA(result.CommitSHA),
				result.Created, result.Updated, result.Deleted)
			return nil
		}),
	}
	commitCmd.Flags().StringP("message", "m", "", "commit message")
	commitCmd.Flags().StringP("branch", "b", "", "target branch (default: the repository default branch)")
	commitCmd.MarkFlagRequired("message")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every staged change",
		Args:  cobra.NoArgs,
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			if err := ws.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "staging cleared")
			return nil
		}),
	}

	watchCmd := &cobra.Command{
		Use:   "watch <local-file> <path>",
		Short: "Restage a local file every time it is saved",
		Args:  cobra.ExactArgs(2),
		RunE: withWorkspace(func(cmd *cobra.Command, ws *workspace.Workspace, args []string) error {
			w, err := workspace.NewWatcher(ws, args[0], args[1])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s, press Ctrl-C to stop\n", args[0])
			go func() {
				for path := range w.Staged {
					fmt.Fprintf(out, "%s %s\n", color.CyanString("staged"), path)
				}
			}()
			return w.Run(ctx)
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Commit a local directory into a local repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if current.local == nil {
				return errors.ValidationError("import needs the local backend", current.cfg.Backend)
			}
			repo, _ := cmd.Flags().GetString("repo")
			message, _ := cmd.Flags().GetString("message")
			sha, err := current.local.Import(cmd.Context(), current.user, repo, current.cfg.Commit.DefaultBranch, osfsAt(args[0]), message)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s into /%s at %s\n", args[0], repo, shortSHA(sha))
			return nil
		},
	}
	importCmd.Flags().String("repo", "", "repository name")
	importCmd.Flags().StringP("message", "m", "", "commit message")
	importCmd.MarkFlagRequired("repo")

	root.AddCommand(lsCmd, cdCmd, pwdCmd, catCmd, treeCmd, touchCmd, editCmd, rmCmd,
		unstageCmd, statusCmd, diffCmd, commitCmd, resetCmd, watchCmd, importCmd)
}
