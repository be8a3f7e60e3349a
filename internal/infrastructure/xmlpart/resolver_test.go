package xmlpart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

const caseFixture = `<?xml version="1.0" encoding="UTF-8"?>
<Cases>
  <Case name="Marbury v Madison">
    <Facts id="Case1.Facts">
      <Paragraph id="Case1.Facts.p1">The court held <b>that</b> the motion was denied.</Paragraph>
      <Paragraph id="Case1.Facts.p2" num="2">An appeal was filed.</Paragraph>
    </Facts>
    <Decision id="Decision1">
      <Votes/>
    </Decision>
  </Case>
</Cases>
`

func resolveBoth(t *testing.T, doc, id string, wrap bool) (string, string) {
	t.Helper()
	full, err := ResolveReader(context.Background(), strings.NewReader(doc), id, domain.ResolveOptions{Wrap: wrap})
	if err != nil {
		t.Fatalf("full parse %q: %v", id, err)
	}
	stream, err := ResolveReader(context.Background(), strings.NewReader(doc), id, domain.ResolveOptions{Wrap: wrap, Stream: true})
	if err != nil {
		t.Fatalf("stream %q: %v", id, err)
	}
	return full, stream
}

func TestResolveWrappedEnvelopeUsesDottedPrefix(t *testing.T) {
	want := `<legalDocument lang="en" docId="Case1">
  <part partId="Case1.Facts.p1">
    <Paragraph id="Case1.Facts.p1">The court held <b>that</b> the motion was denied.</Paragraph>
  </part>
</legalDocument>
`
	full, stream := resolveBoth(t, caseFixture, "Case1.Facts.p1", true)
	if full != want {
		t.Fatalf("full parse output:\n%s\nwant:\n%s", full, want)
	}
	if stream != want {
		t.Fatalf("stream output:\n%s\nwant:\n%s", stream, want)
	}
}

func TestResolveUnwrappedIndentsElementOnlyContent(t *testing.T) {
	want := `<Facts id="Case1.Facts">
  <Paragraph id="Case1.Facts.p1">The court held <b>that</b> the motion was denied.</Paragraph>
  <Paragraph id="Case1.Facts.p2" num="2">An appeal was filed.</Paragraph>
</Facts>
`
	full, stream := resolveBoth(t, caseFixture, "Case1.Facts", false)
	if full != want || stream != want {
		t.Fatalf("unexpected output:\nfull:\n%s\nstream:\n%s", full, stream)
	}
}

func TestResolveDocIDFallsBackToEnclosingCase(t *testing.T) {
	want := `<legalDocument lang="en" docId="Marbury_v_Madison">
  <part partId="Decision1">
    <Decision id="Decision1">
      <Votes/>
    </Decision>
  </part>
</legalDocument>
`
	full, stream := resolveBoth(t, caseFixture, "Decision1", true)
	if full != want || stream != want {
		t.Fatalf("unexpected output:\nfull:\n%s\nstream:\n%s", full, stream)
	}

	solo, _ := resolveBoth(t, `<root><p id="solo">x</p></root>`, "solo", true)
	if !strings.HasPrefix(solo, `<legalDocument lang="en" docId="unknown_doc">`) {
		t.Fatalf("expected unknown_doc envelope, got %s", solo)
	}

	lower, _ := resolveBoth(t, `<case name="Lower"><p id="x1">x</p></case>`, "x1", true)
	if !strings.HasPrefix(lower, `<legalDocument lang="en" docId="unknown_doc">`) {
		t.Fatalf("element names match Case exactly, got %s", lower)
	}

	nested, _ := resolveBoth(t, `<Case name="Outer"><Case name="Inner"><p id="x2">x</p></Case></Case>`, "x2", true)
	if !strings.HasPrefix(nested, `<legalDocument lang="en" docId="Inner">`) {
		t.Fatalf("expected the nearest Case to win, got %s", nested)
	}
}

func TestResolveStrategiesAgreeForEveryIdentifier(t *testing.T) {
	doc := `<Cases>
  <Case id="Case 9" title="Ignored">
    <Issue id="iss">Whether <em>mandamus</em> lies?<note id="n">see <ref id="r"/> below</note> trailing</Issue>
    <Votes id="votes">
      <Vote id="v1" judge="Marshall" />
      <Vote id="v2">dissent &amp; remarks</Vote>
    </Votes>
  </Case>
</Cases>`
	for _, id := range []string{"Case 9", "iss", "n", "r", "votes", "v1", "v2"} {
		for _, wrap := range []bool{true, false} {
			full, stream := resolveBoth(t, doc, id, wrap)
			if full != stream {
				t.Fatalf("id %q wrap=%v differs:\nfull:\n%s\nstream:\n%s", id, wrap, full, stream)
			}
		}
	}

	full, _ := resolveBoth(t, doc, "votes", true)
	if !strings.Contains(full, `docId="Ignored"`) {
		t.Fatalf("expected title attribute to win over id, got %s", full)
	}
}

func TestResolveKeepsTailTextInsideMatchAndDropsOwnTail(t *testing.T) {
	doc := `<root><p id="t">a<i>b</i>c<i>d</i></p>tail</root>`
	want := "<p id=\"t\">a<i>b</i>c<i>d</i></p>\n"
	full, stream := resolveBoth(t, doc, "t", false)
	if full != want || stream != want {
		t.Fatalf("unexpected output: full=%q stream=%q", full, stream)
	}
}

func TestResolveEscapesTextAndAttributes(t *testing.T) {
	doc := `<root><p id="e" note="a&quot;b &lt;c&gt;">x &amp; y &lt; z</p></root>`
	want := "<p id=\"e\" note=\"a&quot;b &lt;c&gt;\">x &amp; y &lt; z</p>\n"
	full, stream := resolveBoth(t, doc, "e", false)
	if full != want || stream != want {
		t.Fatalf("unexpected output: full=%q stream=%q", full, stream)
	}
}

func TestResolveCarriesInheritedNamespaceDeclarations(t *testing.T) {
	doc := `<r xmlns:j="urn:j"><j:p id="n1" xml:lang="en">x</j:p></r>`
	want := "<j:p xmlns:j=\"urn:j\" id=\"n1\" xml:lang=\"en\">x</j:p>\n"
	full, stream := resolveBoth(t, doc, "n1", false)
	if full != want || stream != want {
		t.Fatalf("unexpected output: full=%q stream=%q", full, stream)
	}
}

func TestResolveFirstMatchWinsForDuplicateIDs(t *testing.T) {
	doc := `<root><p id="dup">first</p><p id="dup">second</p></root>`
	full, stream := resolveBoth(t, doc, "dup", false)
	want := "<p id=\"dup\">first</p>\n"
	if full != want || stream != want {
		t.Fatalf("unexpected output: full=%q stream=%q", full, stream)
	}
}

func TestResolveMissingIdentifierFailsForBothStrategies(t *testing.T) {
	for _, stream := range []bool{false, true} {
		out, err := ResolveReader(context.Background(), strings.NewReader(caseFixture), "Case1.Facts.p404", domain.ResolveOptions{Wrap: true, Stream: stream})
		if !domain.IsKind(err, domain.ErrIdentifierNotFound) {
			t.Fatalf("stream=%v: expected ErrIdentifierNotFound, got %v", stream, err)
		}
		if out != "" {
			t.Fatalf("stream=%v: expected no output, got %q", stream, out)
		}
	}
}

func TestResolveStreamStopsAtMatchedElementClose(t *testing.T) {
	doc := `<root><a id="x">hi</a><b></c></root>`

	out, err := ResolveReader(context.Background(), strings.NewReader(doc), "x", domain.ResolveOptions{Stream: true})
	if err != nil {
		t.Fatalf("stream should not read past the match: %v", err)
	}
	if out != "<a id=\"x\">hi</a>\n" {
		t.Fatalf("unexpected output %q", out)
	}

	_, err = ResolveReader(context.Background(), strings.NewReader(doc), "x", domain.ResolveOptions{})
	if !domain.IsKind(err, domain.ErrCorpusParse) {
		t.Fatalf("full parse should reject the malformed tail, got %v", err)
	}
}

func TestResolveMalformedDocumentBeforeMatch(t *testing.T) {
	doc := `<root><a></b><p id="x">hi</p></root>`
	for _, stream := range []bool{false, true} {
		_, err := ResolveReader(context.Background(), strings.NewReader(doc), "x", domain.ResolveOptions{Stream: stream})
		if !domain.IsKind(err, domain.ErrCorpusParse) {
			t.Fatalf("stream=%v: expected ErrCorpusParse, got %v", stream, err)
		}
	}
}

func TestResolverReadsFileAndValidatesInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.xml")
	if err := os.WriteFile(path, []byte(caseFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	r := NewResolver(path)

	out, err := r.Resolve(context.Background(), "Case1.Facts.p2", domain.ResolveOptions{Wrap: false, Stream: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out != "<Paragraph id=\"Case1.Facts.p2\" num=\"2\">An appeal was filed.</Paragraph>\n" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := r.Resolve(context.Background(), "  ", domain.ResolveOptions{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	missing := NewResolver(filepath.Join(t.TempDir(), "nope.xml"))
	if _, err := missing.Resolve(context.Background(), "x", domain.ResolveOptions{}); !domain.IsKind(err, domain.ErrCorpusParse) {
		t.Fatalf("expected ErrCorpusParse, got %v", err)
	}
}

func TestResolveHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ResolveReader(ctx, strings.NewReader(caseFixture), "Case1.Facts.p1", domain.ResolveOptions{Stream: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractPartsEmitsOutermostTaggedElements(t *testing.T) {
	var parts []domain.CorpusPart
	err := ExtractParts(context.Background(), strings.NewReader(caseFixture), []string{"Paragraph", " Decision ", "Votes"}, func(p domain.CorpusPart) error {
		parts = append(parts, p)
		return nil
	})
	if err != nil {
		t.Fatalf("ExtractParts() error = %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %+v", parts)
	}
	if parts[0].ID != "Case1.Facts.p1" || parts[0].Tag != "Paragraph" {
		t.Fatalf("unexpected first part %+v", parts[0])
	}
	if parts[0].Markup != `<Paragraph id="Case1.Facts.p1">The court held <b>that</b> the motion was denied.</Paragraph>` {
		t.Fatalf("unexpected markup %q", parts[0].Markup)
	}
	if parts[2].ID != "Decision1" || parts[2].Markup != "<Decision id=\"Decision1\">\n  <Votes/>\n</Decision>" {
		t.Fatalf("unexpected decision part %+v", parts[2])
	}
}

func TestExtractPartsStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ExtractParts(context.Background(), strings.NewReader(caseFixture), []string{"Paragraph"}, func(domain.CorpusPart) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected callback error after one call, got %v (%d calls)", err, calls)
	}
}

func TestExtractPartsRequiresTags(t *testing.T) {
	err := ExtractParts(context.Background(), strings.NewReader(caseFixture), []string{" "}, func(domain.CorpusPart) error { return nil })
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
