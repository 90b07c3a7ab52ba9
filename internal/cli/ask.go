package cli

import (
	"errors"
	"fmt"
	"strings"

	"chipchip/internal/chat"

	"github.com/spf13/cobra"
)

var errRequestFailed = errors.New("the assistant could not answer, see the log file for details")

func (a *app) askCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long: `Ask the assistant a single question and print the answer.

The question and answer are saved as a chat session. By default a new
session is started; use --session to continue an existing one.

Examples:
  chipchip ask "Top 3 items?"
  chipchip ask --session 3f0c... "And the bottom 3?"
  chipchip ask --stateless "How many orders last week?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" {
				return errors.New("question is empty")
			}

			if sessionID != "" {
				if err := a.ctrl.LoadChat(sessionID); err != nil {
					return err
				}
			}

			a.ctrl.Send(cmd.Context(), question)

			snap := a.ctrl.Snapshot()
			answer := snap.Messages[len(snap.Messages)-1]
			fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", snap.CurrentID)

			if answer.Text == chat.ApologyText {
				return errRequestFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue the session with this id")
	return cmd
}
