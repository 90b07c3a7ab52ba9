package cli

import (
	"bufio"
	"fmt"
	"strings"

	"chipchip/internal/models"
	"chipchip/internal/registry"

	"github.com/spf13/cobra"
)

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage saved chat sessions",
		Long: `List and manage saved chat sessions.

Subcommands:
  list    List sessions (default)
  show    Print a session transcript
  rename  Rename a session
  delete  Delete a session

Examples:
  chipchip sessions
  chipchip sessions show 3f0c...
  chipchip sessions rename 3f0c... "Weekly sales"
  chipchip sessions delete 3f0c... --force`,
		Args: cobra.NoArgs,
		RunE: a.runSessionsList,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE:  a.runSessionsList,
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runSessionsShow,
	}

	renameCmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE:  a.runSessionsRename,
	}

	var force bool
	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Long: `Delete a session and its transcript.

Requires confirmation unless --force is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSessionsDelete(cmd, args[0], force)
		},
	}
	deleteCmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	cmd.AddCommand(renameCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}

func (a *app) runSessionsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	sessions := a.registry.List()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved sessions.")
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %-53s  %d messages\n", s.ID, s.Name, len(s.Messages))
	}
	return nil
}

func (a *app) runSessionsShow(cmd *cobra.Command, args []string) error {
	session, ok := a.registry.Get(args[0])
	if !ok {
		return fmt.Errorf("show %s: %w", args[0], registry.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n\n", session.Name)
	for _, m := range session.Messages {
		who := "You"
		if m.Sender == models.SenderBot {
			who = "Bot"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp, who, m.Text)
	}
	return nil
}

func (a *app) runSessionsRename(cmd *cobra.Command, args []string) error {
	id, name := args[0], strings.Join(args[1:], " ")
	if strings.TrimSpace(name) == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	if err := a.ctrl.RenameChat(id, name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed: %s\n", strings.TrimSpace(name))
	return nil
}

func (a *app) runSessionsDelete(cmd *cobra.Command, id string, force bool) error {
	session, ok := a.registry.Get(id)
	if !ok {
		return fmt.Errorf("delete %s: %w", id, registry.ErrNotFound)
	}

	// Confirm deletion
	if !force {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "About to delete: %s (%s)\n", session.Name, session.ID)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := a.ctrl.DeleteChat(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s\n", session.Name)
	return nil
}
