package domain

import "time"

// EmbeddingJob asks the worker to (re)embed the parts of a corpus file.
type EmbeddingJob struct {
	ID          string    `json:"id"`
	CorpusPath  string    `json:"corpus_path"`
	RequestedAt time.Time `json:"requested_at"`
}

// CorpusPart is the serialized markup of one id-bearing element selected
// for embedding.
type CorpusPart struct {
	ID     string `json:"id"`
	Tag    string `json:"tag"`
	Markup string `json:"markup"`
}

type EmbeddingReport struct {
	JobID    string        `json:"job_id"`
	Parts    int           `json:"parts"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// PartChunk is a slice of a part's markup sent to the embedder. Document
// keeps the whole part markup so search hits can show it intact.
type PartChunk struct {
	UnitID     string `json:"unit_id"`
	Tag        string `json:"tag"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Document   string `json:"document"`
}
