package xmlpart

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

// Extractor streams the outermost id-bearing elements with selected tag
// names out of a corpus file.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) ExtractParts(ctx context.Context, path string, tags []string, fn func(domain.CorpusPart) error) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.WrapError(domain.ErrCorpusParse, "extract parts", err)
	}
	defer f.Close()
	return ExtractParts(ctx, f, tags, fn)
}

// ExtractParts calls fn once per captured part in document order. Parts
// nested inside a captured part are emitted as part of its markup only.
func ExtractParts(ctx context.Context, r io.Reader, tags []string, fn func(domain.CorpusPart) error) error {
	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			wanted[tag] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "extract parts", fmt.Errorf("at least one tag is required"))
	}

	dec := newDecoder(r)
	var (
		outer     nameStack
		ancestors []xml.StartElement
		sub       *builder
		partID    string
	)
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.WrapError(domain.ErrCorpusParse, "extract parts", err)
		}

		if sub != nil {
			switch t := tok.(type) {
			case xml.StartElement:
				sub.open(t)
			case xml.EndElement:
				if err := sub.close(t.Name); err != nil {
					return domain.WrapError(domain.ErrCorpusParse, "extract parts", err)
				}
				if sub.depth() > 0 {
					continue
				}
				m := &match{sub: sub.t, ancestors: ancestors}
				part := domain.CorpusPart{
					ID:     partID,
					Tag:    sub.t.nodes[0].name.Local,
					Markup: strings.TrimSpace(m.render(partID, false)),
				}
				sub = nil
				if err := fn(part); err != nil {
					return err
				}
			case xml.CharData:
				sub.text(string(t))
			}
			continue
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if id := idOf(t.Attr); id != "" {
				if _, ok := wanted[t.Name.Local]; ok {
					sub = newBuilder()
					sub.open(t)
					partID = id
					continue
				}
			}
			outer.push(t.Name)
			ancestors = append(ancestors, xml.StartElement{Name: t.Name, Attr: append([]xml.Attr(nil), t.Attr...)})
		case xml.EndElement:
			if err := outer.pop(t.Name); err != nil {
				return domain.WrapError(domain.ErrCorpusParse, "extract parts", err)
			}
			ancestors = ancestors[:len(ancestors)-1]
		}
	}
	if sub != nil || len(outer) > 0 {
		return domain.WrapError(domain.ErrCorpusParse, "extract parts", io.ErrUnexpectedEOF)
	}
	return nil
}
