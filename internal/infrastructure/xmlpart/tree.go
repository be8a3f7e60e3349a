package xmlpart

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// node is one element of an arena-backed tree. Names keep the prefix as
// written in the source (Space holds the prefix, not the namespace URL).
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	text     string
	tail     string
	parent   int
	children []int
}

// tree stores nodes in creation order, which is document pre-order.
// Index 0 is the root once anything has been added.
type tree struct {
	nodes []node
}

func (t *tree) attr(i int, local string) string {
	for _, a := range t.nodes[i].attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// copySubtree returns an independent tree rooted at a copy of node i. The
// tail of i belongs to its parent's content and is not copied.
func (t *tree) copySubtree(i int) *tree {
	out := &tree{nodes: make([]node, 0, 16)}
	var walk func(src, parent int)
	walk = func(src, parent int) {
		n := t.nodes[src]
		idx := len(out.nodes)
		out.nodes = append(out.nodes, node{
			name:   n.name,
			attrs:  append([]xml.Attr(nil), n.attrs...),
			text:   n.text,
			tail:   n.tail,
			parent: parent,
		})
		if parent >= 0 {
			out.nodes[parent].children = append(out.nodes[parent].children, idx)
		}
		for _, c := range n.children {
			walk(c, idx)
		}
	}
	walk(i, -1)
	out.nodes[0].tail = ""
	return out
}

// graft appends sub as the last child of parent.
func (t *tree) graft(parent int, sub *tree) {
	offset := len(t.nodes)
	for _, n := range sub.nodes {
		cp := n
		cp.children = make([]int, len(n.children))
		for j, c := range n.children {
			cp.children[j] = c + offset
		}
		if n.parent >= 0 {
			cp.parent = n.parent + offset
		} else {
			cp.parent = parent
		}
		t.nodes = append(t.nodes, cp)
	}
	t.nodes[parent].children = append(t.nodes[parent].children, offset)
}

// builder grows a tree from start, end and text events using an explicit
// stack of open node indexes.
type builder struct {
	t     *tree
	stack []int
}

func newBuilder() *builder {
	return &builder{t: &tree{nodes: make([]node, 0, 64)}}
}

func (b *builder) depth() int { return len(b.stack) }

func (b *builder) open(se xml.StartElement) int {
	parent := -1
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1]
	}
	idx := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{
		name:   se.Name,
		attrs:  append([]xml.Attr(nil), se.Attr...),
		parent: parent,
	})
	if parent >= 0 {
		b.t.nodes[parent].children = append(b.t.nodes[parent].children, idx)
	}
	b.stack = append(b.stack, idx)
	return idx
}

func (b *builder) close(name xml.Name) error {
	if len(b.stack) == 0 {
		return fmt.Errorf("unexpected end element </%s>", qualified(name))
	}
	top := b.stack[len(b.stack)-1]
	if b.t.nodes[top].name != name {
		return fmt.Errorf("element <%s> closed by </%s>", qualified(b.t.nodes[top].name), qualified(name))
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

// text attaches character data to the open element, or to the tail of its
// most recently closed child.
func (b *builder) text(s string) {
	if len(b.stack) == 0 {
		return
	}
	n := &b.t.nodes[b.stack[len(b.stack)-1]]
	if k := len(n.children); k > 0 {
		b.t.nodes[n.children[k-1]].tail += s
		return
	}
	n.text += s
}

// nameStack verifies element nesting for the parts of a document that are
// not materialized.
type nameStack []xml.Name

func (s *nameStack) push(n xml.Name) { *s = append(*s, n) }

func (s *nameStack) pop(n xml.Name) error {
	if len(*s) == 0 {
		return fmt.Errorf("unexpected end element </%s>", qualified(n))
	}
	top := (*s)[len(*s)-1]
	if top != n {
		return fmt.Errorf("element <%s> closed by </%s>", qualified(top), qualified(n))
	}
	*s = (*s)[:len(*s)-1]
	return nil
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(bufio.NewReaderSize(r, 64*1024))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func idOf(attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == "id" {
			return a.Value
		}
	}
	return ""
}
