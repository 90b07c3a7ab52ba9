package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Print sample questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.agent == nil {
				return errNeedsAgent
			}

			examples, err := a.agent.Examples(cmd.Context())
			if err != nil {
				return fmt.Errorf("get examples: %w", err)
			}
			for _, e := range examples {
				fmt.Fprintf(cmd.OutOrStdout(), "• %s\n", e)
			}
			return nil
		},
	}
}
