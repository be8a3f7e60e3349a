package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func (r *root) readCommand() *cobra.Command {
	var opts domain.ResolveOptions
	cmd := &cobra.Command{
		Use:   "read [part_id]",
		Short: "Print the XML of the element with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Retrieval: true})
			if err != nil {
				return err
			}
			defer release()
			out, err := svc.Retrieval.ReadDocumentPart(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("read part: %w", err)
			}
			cmd.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Wrap, "wrap", true, "wrap the element in a legalDocument envelope")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "resolve with the streaming parser")
	return cmd
}
