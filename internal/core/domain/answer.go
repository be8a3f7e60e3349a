package domain

import (
	"regexp"
	"strings"
)

var (
	thinkBlockPattern   = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	answerBlockPattern  = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
	sourcesBlockPattern = regexp.MustCompile(`(?s)<sources>(.*?)</sources>`)
	sourcePattern       = regexp.MustCompile(`(?s)<source>(.*?)</source>`)
)

// FinalAnswer is the structured view of a model's final output.
type FinalAnswer struct {
	Think   string   `json:"think,omitempty"`
	Answer  string   `json:"answer,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// HasAnswerMarker reports whether raw carries an answer block opening tag.
func HasAnswerMarker(raw string) bool {
	return strings.Contains(raw, "<answer>")
}

// ParseFinalAnswer never fails; missing blocks yield empty fields.
// Sources are read from the answer block only, preferring its nested
// sources block when present.
func ParseFinalAnswer(raw string) FinalAnswer {
	var out FinalAnswer
	if m := thinkBlockPattern.FindStringSubmatch(raw); m != nil {
		out.Think = strings.TrimSpace(m[1])
	}
	m := answerBlockPattern.FindStringSubmatch(raw)
	if m == nil {
		return out
	}
	body := m[1]
	out.Answer = strings.TrimSpace(sourcesBlockPattern.ReplaceAllString(body, ""))

	scope := body
	if blocks := sourcesBlockPattern.FindAllStringSubmatch(body, -1); len(blocks) > 0 {
		scope = ""
		for _, b := range blocks {
			scope += b[1]
		}
	}
	for _, m := range sourcePattern.FindAllStringSubmatch(scope, -1) {
		source := strings.TrimSpace(m[1])
		if source != "" {
			out.Sources = append(out.Sources, source)
		}
	}
	return out
}
