package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitKeepsShortMarkupWhole(t *testing.T) {
	s := NewSplitter(100, 10)
	got := s.Split("  <Paragraph id=\"p1\">Short.</Paragraph>\n")
	if len(got) != 1 || got[0] != `<Paragraph id="p1">Short.</Paragraph>` {
		t.Fatalf("unexpected chunks %q", got)
	}
	if s.Split("   ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestSplitPrefersTagAndWordBoundaries(t *testing.T) {
	text := "<Paragraph>" + strings.Repeat("motion denied ", 30) + "</Paragraph>"
	s := NewSplitter(64, 8)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 64 {
			t.Fatalf("chunk %d too long: %d", i, n)
		}
		if i < len(chunks)-1 && !(strings.HasSuffix(c, "denied") || strings.HasSuffix(c, "motion") || strings.HasSuffix(c, ">")) {
			t.Fatalf("chunk %d cut mid-word: %q", i, c)
		}
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], "</Paragraph>") {
		t.Fatalf("last chunk should end the markup: %q", chunks[len(chunks)-1])
	}
}

func TestNewSplitterNormalizesOverlap(t *testing.T) {
	s := NewSplitter(40, 80)
	if s.Overlap != 10 {
		t.Fatalf("expected overlap clamp to 10, got %d", s.Overlap)
	}
	if NewSplitter(0, 0).ChunkSize != 2000 {
		t.Fatalf("expected default chunk size")
	}
}
