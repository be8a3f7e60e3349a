package xmlpart

import (
	"encoding/xml"
	"strings"
)

const indentUnit = "  "

// render serializes the tree rooted at node 0.
//
// Whitespace-only text is dropped unless the element has other non-blank
// character content. Elements whose content is only child elements are
// indented by two spaces per level; mixed content is written inline along
// with everything below it. Empty elements are self-closed.
func (t *tree) render() string {
	if len(t.nodes) == 0 {
		return ""
	}
	var b strings.Builder
	t.write(&b, 0, 0, true)
	b.WriteByte('\n')
	return b.String()
}

func (t *tree) write(b *strings.Builder, i, depth int, format bool) {
	n := &t.nodes[i]
	mixed := t.mixed(i)

	b.WriteByte('<')
	b.WriteString(qualified(n.name))
	for _, a := range n.attrs {
		b.WriteByte(' ')
		b.WriteString(qualified(a.Name))
		b.WriteString(`="`)
		escapeAttr(b, a.Value)
		b.WriteByte('"')
	}

	text := n.text
	if !mixed {
		text = ""
	}
	if text == "" && len(n.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	escapeText(b, text)

	indent := format && !mixed
	for _, c := range n.children {
		if indent {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat(indentUnit, depth+1))
		}
		t.write(b, c, depth+1, indent)
		if mixed {
			escapeText(b, t.nodes[c].tail)
		}
	}
	if indent && len(n.children) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(indentUnit, depth))
	}

	b.WriteString("</")
	b.WriteString(qualified(n.name))
	b.WriteByte('>')
}

// mixed reports whether element i has non-blank character content of its own.
func (t *tree) mixed(i int) bool {
	n := &t.nodes[i]
	if !isBlank(n.text) {
		return true
	}
	for _, c := range n.children {
		if !isBlank(t.nodes[c].tail) {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func escapeText(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\r':
			b.WriteString("&#13;")
		default:
			b.WriteRune(r)
		}
	}
}

func escapeAttr(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\n':
			b.WriteString("&#10;")
		case '\r':
			b.WriteString("&#13;")
		case '\t':
			b.WriteString("&#9;")
		default:
			b.WriteRune(r)
		}
	}
}

// isNamespaceDecl reports whether a raw attribute declares a namespace.
func isNamespaceDecl(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// inheritedNamespaces returns the namespace declarations in scope at the
// end of ancestors that self does not redeclare, outermost first.
func inheritedNamespaces(ancestors [][]xml.Attr, self []xml.Attr) []xml.Attr {
	declared := make(map[string]bool)
	for _, a := range self {
		if isNamespaceDecl(a) {
			declared[qualified(a.Name)] = true
		}
	}

	var (
		order []string
		value = make(map[string]xml.Attr)
	)
	for _, attrs := range ancestors {
		for _, a := range attrs {
			if !isNamespaceDecl(a) {
				continue
			}
			key := qualified(a.Name)
			if declared[key] {
				continue
			}
			if _, seen := value[key]; !seen {
				order = append(order, key)
			}
			value[key] = a
		}
	}

	out := make([]xml.Attr, 0, len(order))
	for _, key := range order {
		out = append(out, value[key])
	}
	return out
}
