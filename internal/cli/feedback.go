package cli

import (
	"errors"
	"fmt"

	"chipchip/internal/models"
	"chipchip/internal/registry"
	"chipchip/internal/transport"

	"github.com/spf13/cobra"
)

func (a *app) feedbackCmd() *cobra.Command {
	var (
		fb        transport.Feedback
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate an answer",
		Long: `Send a 1 to 5 rating for an answer to the agent backend.

With --session the question and answer default to the last exchange of
that session.

Examples:
  chipchip feedback --question "Top 3 items?" --answer "Tomato, Banana, Apple" --rating 5
  chipchip feedback --session 3f0c... --rating 2 --comment "wrong week"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.agent == nil {
				return errNeedsAgent
			}

			if sessionID != "" {
				session, ok := a.registry.Get(sessionID)
				if !ok {
					return fmt.Errorf("feedback %s: %w", sessionID, registry.ErrNotFound)
				}
				question, answer := lastExchange(session)
				if fb.Question == "" {
					fb.Question = question
				}
				if fb.Answer == "" {
					fb.Answer = answer
				}
			}
			if fb.Question == "" || fb.Answer == "" {
				return errors.New("feedback needs --question and --answer, or --session")
			}

			if err := a.agent.SendFeedback(cmd.Context(), fb); err != nil {
				return fmt.Errorf("send feedback: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks for the feedback.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&fb.Question, "question", "q", "", "question that was asked")
	cmd.Flags().StringVarP(&fb.Answer, "answer", "a", "", "answer that was given")
	cmd.Flags().IntVarP(&fb.Rating, "rating", "r", 0, "rating from 1 to 5")
	cmd.Flags().StringVarP(&fb.Comment, "comment", "c", "", "optional comment")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "rate the last answer of this session")
	cmd.MarkFlagRequired("rating")
	return cmd
}

// lastExchange returns the last bot answer and the user question before it
func lastExchange(s models.Session) (question, answer string) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		switch {
		case answer == "" && m.Sender == models.SenderBot:
			answer = m.Text
		case answer != "" && m.Sender == models.SenderUser:
			return m.Text, answer
		}
	}
	return question, answer
}
