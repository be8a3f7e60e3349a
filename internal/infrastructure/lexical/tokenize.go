package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and returns its runs of ASCII letters, digits and
// underscores.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	start := -1
	for i := 0; i < len(s); i++ {
		if isTokenByte(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, strings.ToLower(s[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, strings.ToLower(s[start:]))
	}
	return out
}

func isTokenByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// DefaultSnippetWindow is the snippet width in characters.
const DefaultSnippetWindow = 160

const ellipsis = " ..."

// Snippet returns a window of text around the earliest occurrence of any
// query token of two or more characters. The match lands about a third of
// the way into the window. Without a match the head of text is returned.
func Snippet(text, query string, window int) string {
	if window <= 0 {
		window = DefaultSnippetWindow
	}
	runes := []rune(text)

	terms := make([]string, 0, 8)
	for _, tok := range Tokenize(query) {
		if len(tok) >= 2 {
			terms = append(terms, tok)
		}
	}
	if len(terms) == 0 {
		return head(runes, window)
	}

	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	pos := -1
	for _, term := range terms {
		if hit := indexRunes(lower, []rune(term)); hit >= 0 && (pos < 0 || hit < pos) {
			pos = hit
		}
	}
	if pos < 0 {
		return head(runes, window)
	}

	start := pos - window/3
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if end < len(runes) {
		out += ellipsis
	}
	return out
}

func head(runes []rune, window int) string {
	end := window
	if end > len(runes) {
		end = len(runes)
	}
	out := strings.TrimSpace(string(runes[:end]))
	if len(runes) > window {
		out += ellipsis
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
