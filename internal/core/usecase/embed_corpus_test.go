package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

type fakeExtractor struct {
	parts []domain.CorpusPart
	err   error
	tags  []string
}

func (f *fakeExtractor) ExtractParts(_ context.Context, _ string, tags []string, fn func(domain.CorpusPart) error) error {
	f.tags = tags
	for _, p := range f.parts {
		if err := fn(p); err != nil {
			return err
		}
	}
	return f.err
}

type fixedChunker struct{ size int }

func (c fixedChunker) Split(text string) []string {
	var out []string
	for len(text) > c.size {
		out = append(out, text[:c.size])
		text = text[c.size:]
	}
	if strings.TrimSpace(text) != "" {
		out = append(out, text)
	}
	return out
}

type fakeEmbedder struct {
	batches [][]string
	short   bool
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeIndexer struct {
	chunks []domain.PartChunk
}

func (f *fakeIndexer) IndexChunks(_ context.Context, chunks []domain.PartChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("length mismatch")
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func TestEmbedCorpusBatchesChunksAcrossParts(t *testing.T) {
	extractor := &fakeExtractor{parts: []domain.CorpusPart{
		{ID: "p1", Tag: "Paragraph", Markup: "<Paragraph id=\"p1\">abcdefgh</Paragraph>"},
		{ID: "p2", Tag: "Paragraph", Markup: "<Paragraph id=\"p2\">x</Paragraph>"},
		{ID: "blank", Tag: "Votes", Markup: "   "},
	}}
	embedder := &fakeEmbedder{}
	indexer := &fakeIndexer{}
	uc := NewEmbedCorpusUseCase(extractor, fixedChunker{size: 16}, embedder, indexer, []string{"Paragraph", "Votes"}, 3)

	report, err := uc.EmbedCorpus(context.Background(), domain.EmbeddingJob{ID: "job-1", CorpusPath: "/corpus.xml"})
	if err != nil {
		t.Fatalf("EmbedCorpus() error = %v", err)
	}
	if report.Parts != 2 || report.Chunks != len(indexer.chunks) || report.JobID != "job-1" {
		t.Fatalf("unexpected report %+v (indexed %d)", report, len(indexer.chunks))
	}
	for _, b := range embedder.batches {
		if len(b) > 3 {
			t.Fatalf("batch exceeds size: %d", len(b))
		}
	}
	first := indexer.chunks[0]
	if first.UnitID != "p1" || first.ChunkIndex != 0 || first.Document != extractor.parts[0].Markup {
		t.Fatalf("unexpected first chunk %+v", first)
	}
	if indexer.chunks[1].ChunkIndex != 1 {
		t.Fatalf("chunk indexes should count within a part, got %+v", indexer.chunks[1])
	}
	if strings.Join(extractor.tags, ",") != "Paragraph,Votes" {
		t.Fatalf("unexpected tags %v", extractor.tags)
	}
}

func TestEmbedCorpusFailures(t *testing.T) {
	parts := []domain.CorpusPart{{ID: "p1", Tag: "Paragraph", Markup: "<Paragraph id=\"p1\">x</Paragraph>"}}

	uc := NewEmbedCorpusUseCase(&fakeExtractor{parts: parts}, fixedChunker{size: 64}, &fakeEmbedder{short: true}, &fakeIndexer{}, []string{"Paragraph"}, 8)
	if _, err := uc.EmbedCorpus(context.Background(), domain.EmbeddingJob{ID: "j", CorpusPath: "c.xml"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected vector mismatch error, got %v", err)
	}

	uc = NewEmbedCorpusUseCase(&fakeExtractor{}, fixedChunker{size: 64}, &fakeEmbedder{}, &fakeIndexer{}, []string{"Paragraph"}, 8)
	if _, err := uc.EmbedCorpus(context.Background(), domain.EmbeddingJob{ID: "j", CorpusPath: "c.xml"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected no parts error, got %v", err)
	}

	if _, err := uc.EmbedCorpus(context.Background(), domain.EmbeddingJob{ID: "j"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected missing path error, got %v", err)
	}

	parseErr := domain.WrapError(domain.ErrCorpusParse, "extract parts", errors.New("bad xml"))
	indexer := &fakeIndexer{}
	uc = NewEmbedCorpusUseCase(&fakeExtractor{parts: parts, err: parseErr}, fixedChunker{size: 64}, &fakeEmbedder{}, indexer, []string{"Paragraph"}, 1)
	report, err := uc.EmbedCorpus(context.Background(), domain.EmbeddingJob{ID: "j", CorpusPath: "c.xml"})
	if !domain.IsKind(err, domain.ErrCorpusParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if report.Chunks != 1 || len(indexer.chunks) != 1 {
		t.Fatalf("work done before the failure should be reported, got %+v", report)
	}
}

type fakeQueue struct {
	published []domain.EmbeddingJob
	err       error
}

func (f *fakeQueue) PublishEmbeddingJob(_ context.Context, job domain.EmbeddingJob) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakeQueue) SubscribeEmbeddingJobs(context.Context, func(context.Context, domain.EmbeddingJob) error) error {
	return nil
}

func TestScheduleEmbeddingPublishesJob(t *testing.T) {
	q := &fakeQueue{}
	uc := NewScheduleEmbeddingUseCase(q, "/data/cases.xml")

	job, err := uc.Schedule(context.Background(), " ")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if job.ID == "" || job.CorpusPath != "/data/cases.xml" || job.RequestedAt.IsZero() {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(q.published) != 1 || q.published[0].ID != job.ID {
		t.Fatalf("unexpected publications %+v", q.published)
	}

	if _, err := NewScheduleEmbeddingUseCase(q, "").Schedule(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	q.err = errors.New("nats down")
	if _, err := uc.Schedule(context.Background(), "/x.xml"); err == nil {
		t.Fatalf("expected publish error")
	}
}
