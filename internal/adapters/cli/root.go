package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

// Need tells the loader which services a command uses so it can skip
// building the rest.
type Need struct {
	Retrieval bool
	Agent     bool
	Embedding bool
}

// Services are the use cases the commands drive. Unneeded ones may be nil.
type Services struct {
	Retrieval ports.RetrievalService
	Agent     ports.QueryOrchestrator
	Embedder  ports.CorpusEmbedder
	// CorpusPath is the corpus the services were built over.
	CorpusPath string
}

// Loader builds services for corpusPath; an empty path means the configured
// default. The returned func releases them.
type Loader func(ctx context.Context, corpusPath string, need Need) (*Services, func(), error)

type root struct {
	load       Loader
	corpusPath string
}

func NewRootCommand(load Loader) *cobra.Command {
	r := &root{load: load}
	cmd := &cobra.Command{
		Use:   "legalrag",
		Short: "Query a legal case XML corpus",
		Long: `legalrag searches a legal case corpus with BM25 keyword and dense
semantic retrieval, reads identified parts of the XML, and answers questions
with a tool-using language model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&r.corpusPath, "corpus", "", "path to the corpus XML file (default from CORPUS_PATH)")

	cmd.AddCommand(
		r.searchCommand(),
		r.readCommand(),
		r.askCommand(),
		r.embedCommand(),
	)
	return cmd
}

func (r *root) services(ctx context.Context, need Need) (*Services, func(), error) {
	if r.load == nil {
		return nil, nil, errors.New("services not configured")
	}
	return r.load(ctx, r.corpusPath, need)
}
