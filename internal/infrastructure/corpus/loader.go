package corpus

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

const ctxCheckEvery = 4096

// LoadUnits reads every id-bearing element of the XML file at path.
func LoadUnits(ctx context.Context, path string) ([]domain.SearchableUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusParse, "load corpus", err)
	}
	defer f.Close()

	units, err := ReadUnits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	return units, nil
}

type openElement struct {
	id    string
	start int
}

// ReadUnits streams the document and keeps text only while an id-bearing
// element is open, so peak memory is bounded by the largest unit rather
// than the file. Units are returned in the order their id was first seen
// at element close; a repeated id replaces the earlier text in place.
func ReadUnits(ctx context.Context, r io.Reader) ([]domain.SearchableUnit, error) {
	dec := newDecoder(r)

	var (
		stack     []openElement
		buf       []byte
		openIDs   int
		sawRoot   bool
		positions = make(map[string]int)
		units     = make([]domain.SearchableUnit, 0, 1024)
		dups      int
	)

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrCorpusParse, "read corpus", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			id := attrValue(t.Attr, "id")
			stack = append(stack, openElement{id: id, start: len(buf)})
			if id != "" {
				openIDs++
			}
		case xml.CharData:
			if openIDs > 0 {
				buf = append(buf, t...)
			}
		case xml.EndElement:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.id == "" {
				continue
			}
			text := NormalizeText(string(buf[top.start:]))
			openIDs--
			if openIDs == 0 {
				buf = buf[:0]
			}
			if text == "" {
				continue
			}
			if pos, ok := positions[top.id]; ok {
				units[pos].Text = text
				dups++
				continue
			}
			positions[top.id] = len(units)
			units = append(units, domain.SearchableUnit{ID: top.id, Text: text})
		}
	}

	if !sawRoot {
		return nil, domain.WrapError(domain.ErrCorpusParse, "read corpus", fmt.Errorf("no element found"))
	}
	if len(units) == 0 {
		return nil, domain.WrapError(domain.ErrCorpusEmpty, "read corpus", fmt.Errorf("no elements with id= found in the XML"))
	}
	if dups > 0 {
		slog.Warn("corpus_duplicate_ids", "duplicates", dups, "units", len(units))
	}
	return units, nil
}

// NormalizeText collapses whitespace runs to one space and trims the ends.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(bufio.NewReaderSize(r, 64*1024))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
