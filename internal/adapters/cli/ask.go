package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func (r *root) askCommand() *cobra.Command {
	var (
		maxTurns int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question with the tool-using agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Retrieval: true, Agent: true})
			if err != nil {
				return err
			}
			defer release()
			run, err := svc.Agent.Run(cmd.Context(), domain.QueryRequest{Query: args[0], MaxTurns: maxTurns})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if asJSON {
				return printJSON(cmd, run)
			}
			cmd.Println(run.Answer)
			if len(run.ToolsInvoked) > 0 {
				cmd.PrintErrf("tools: %v, turns: %d, termination: %s\n", run.ToolsInvoked, run.Turns, run.Termination)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "turn budget (default from AGENT_MAX_TURNS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the whole run as JSON")
	return cmd
}
