package domain

// SearchableUnit is one id-bearing XML element with its normalized text.
type SearchableUnit struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ScoredResult is a ranking output. Rank is 1-based.
type ScoredResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// DenseHit is a result of the external vector index. Fragment holds the
// stored document text, usually XML markup of the indexed element.
type DenseHit struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Fragment string  `json:"fragment"`
}

type HybridHit struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	SemanticRank int     `json:"semantic_rank,omitempty"`
	Snippet      string  `json:"snippet,omitempty"`
}

// Envelope element and attribute names used when wrapping a resolved part.
const (
	EnvelopeRoot      = "legalDocument"
	EnvelopeLang      = "en"
	EnvelopePart      = "part"
	UnknownDocumentID = "unknown_doc"
)

type ResolveOptions struct {
	Wrap   bool `json:"wrap"`
	Stream bool `json:"stream"`
}
