package xmlpart

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

const ctxCheckEvery = 4096

// Resolver looks up id-bearing elements in one corpus file. Every call
// opens the file and traverses it again; no state is shared between calls.
type Resolver struct {
	path string
}

func NewResolver(path string) *Resolver {
	return &Resolver{path: path}
}

func (r *Resolver) Path() string { return r.path }

func (r *Resolver) Resolve(ctx context.Context, id string, opts domain.ResolveOptions) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve part", fmt.Errorf("part_id is required"))
	}
	f, err := os.Open(r.path)
	if err != nil {
		return "", domain.WrapError(domain.ErrCorpusParse, "resolve part", err)
	}
	defer f.Close()

	started := time.Now()
	out, err := ResolveReader(ctx, f, id, opts)
	slog.Debug("part_resolved",
		"part_id", id,
		"stream", opts.Stream,
		"wrap", opts.Wrap,
		"bytes", len(out),
		"duration_ms", time.Since(started).Milliseconds(),
		"error", err,
	)
	return out, err
}

// ResolveReader resolves id against the document read from r.
func ResolveReader(ctx context.Context, r io.Reader, id string, opts domain.ResolveOptions) (string, error) {
	var (
		m   *match
		err error
	)
	if opts.Stream {
		m, err = streamMatch(ctx, r, id)
	} else {
		m, err = parseMatch(ctx, r, id)
	}
	if err != nil {
		return "", err
	}
	return m.render(id, opts.Wrap), nil
}

// match is a resolved subtree together with the start tags that enclose it,
// outermost first.
type match struct {
	sub       *tree
	ancestors []xml.StartElement
}

func (m *match) render(id string, wrap bool) string {
	root := &m.sub.nodes[0]
	scopes := make([][]xml.Attr, len(m.ancestors))
	for i, a := range m.ancestors {
		scopes[i] = a.Attr
	}
	if inherited := inheritedNamespaces(scopes, root.attrs); len(inherited) > 0 {
		root.attrs = append(inherited, root.attrs...)
	}

	if !wrap {
		return m.sub.render()
	}
	chain := append(append([]xml.StartElement(nil), m.ancestors...), xml.StartElement{Name: root.name, Attr: root.attrs})
	return envelope(m.sub, id, deriveDocID(id, chain)).render()
}

// envelope places sub inside <legalDocument><part>.
func envelope(sub *tree, partID, docID string) *tree {
	t := &tree{nodes: make([]node, 0, len(sub.nodes)+2)}
	t.nodes = append(t.nodes, node{
		name: xml.Name{Local: domain.EnvelopeRoot},
		attrs: []xml.Attr{
			{Name: xml.Name{Local: "lang"}, Value: domain.EnvelopeLang},
			{Name: xml.Name{Local: "docId"}, Value: docID},
		},
		parent:   -1,
		children: []int{1},
	})
	t.nodes = append(t.nodes, node{
		name:   xml.Name{Local: domain.EnvelopePart},
		attrs:  []xml.Attr{{Name: xml.Name{Local: "partId"}, Value: partID}},
		parent: 0,
	})
	t.graft(1, sub)
	return t
}

// deriveDocID uses the prefix of a dotted part id. Otherwise it takes the
// name, title or id of the nearest enclosing element named exactly Case
// (chain is innermost last). Outer Case ancestors are only consulted when
// the nearer ones carry none of those attributes.
func deriveDocID(partID string, chain []xml.StartElement) string {
	if i := strings.IndexByte(partID, '.'); i >= 0 {
		return partID[:i]
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Name.Local != "Case" {
			continue
		}
		for _, key := range []string{"name", "title", "id"} {
			for _, a := range chain[i].Attr {
				if a.Name.Space == "" && a.Name.Local == key && a.Value != "" {
					return strings.ReplaceAll(a.Value, " ", "_")
				}
			}
		}
	}
	return domain.UnknownDocumentID
}

// parseMatch materializes the whole document, then copies the first
// element in document order whose id equals id.
func parseMatch(ctx context.Context, r io.Reader, id string) (*match, error) {
	doc, err := parseTree(ctx, r)
	if err != nil {
		return nil, err
	}
	for i := range doc.nodes {
		if doc.attr(i, "id") != id {
			continue
		}
		var ancestors []xml.StartElement
		for p := doc.nodes[i].parent; p >= 0; p = doc.nodes[p].parent {
			ancestors = append(ancestors, xml.StartElement{Name: doc.nodes[p].name, Attr: doc.nodes[p].attrs})
		}
		for l, h := 0, len(ancestors)-1; l < h; l, h = l+1, h-1 {
			ancestors[l], ancestors[h] = ancestors[h], ancestors[l]
		}
		return &match{sub: doc.copySubtree(i), ancestors: ancestors}, nil
	}
	return nil, notFound(id)
}

func parseTree(ctx context.Context, r io.Reader) (*tree, error) {
	dec := newDecoder(r)
	b := newBuilder()
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if b.depth() == 0 && len(b.t.nodes) > 0 {
				return nil, parseError(fmt.Errorf("extra content after document element"))
			}
			b.open(t)
		case xml.EndElement:
			if err := b.close(t.Name); err != nil {
				return nil, parseError(err)
			}
		case xml.CharData:
			b.text(string(t))
		}
	}
	if len(b.t.nodes) == 0 {
		return nil, parseError(fmt.Errorf("no element found"))
	}
	if b.depth() > 0 {
		return nil, parseError(io.ErrUnexpectedEOF)
	}
	return b.t, nil
}

// streamMatch walks the token stream keeping only the open ancestors until
// the first element with the id starts. From there the subtree is built in
// an arena and the walk ends when that element closes.
func streamMatch(ctx context.Context, r io.Reader, id string) (*match, error) {
	dec := newDecoder(r)

	var (
		outer     nameStack
		ancestors []xml.StartElement
		sub       *builder
		sawRoot   bool
	)
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}

		if sub != nil {
			switch t := tok.(type) {
			case xml.StartElement:
				sub.open(t)
			case xml.EndElement:
				if err := sub.close(t.Name); err != nil {
					return nil, parseError(err)
				}
				if sub.depth() == 0 {
					return &match{sub: sub.t, ancestors: ancestors}, nil
				}
			case xml.CharData:
				sub.text(string(t))
			}
			continue
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(outer) == 0 && sawRoot {
				return nil, parseError(fmt.Errorf("extra content after document element"))
			}
			sawRoot = true
			if idOf(t.Attr) == id {
				sub = newBuilder()
				sub.open(t)
				continue
			}
			outer.push(t.Name)
			ancestors = append(ancestors, xml.StartElement{Name: t.Name, Attr: append([]xml.Attr(nil), t.Attr...)})
		case xml.EndElement:
			if err := outer.pop(t.Name); err != nil {
				return nil, parseError(err)
			}
			ancestors = ancestors[:len(ancestors)-1]
		}
	}

	switch {
	case sub != nil:
		return nil, parseError(io.ErrUnexpectedEOF)
	case !sawRoot:
		return nil, parseError(fmt.Errorf("no element found"))
	case len(outer) > 0:
		return nil, parseError(io.ErrUnexpectedEOF)
	}
	return nil, notFound(id)
}

func parseError(err error) error {
	return domain.WrapError(domain.ErrCorpusParse, "resolve part", err)
}

func notFound(id string) error {
	return domain.WrapError(domain.ErrIdentifierNotFound, "resolve part", fmt.Errorf("%s", id))
}
