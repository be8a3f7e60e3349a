package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

var toolDirectivePattern = regexp.MustCompile(`(?s)<tool>\s*(\{.*?\})\s*</tool>`)

// ParseToolDirective extracts the first <tool>{...}</tool> block of raw.
// found is false when there is no block or the block cannot be used; in the
// latter case err carries ErrMalformedDirective for logging.
func ParseToolDirective(raw string, defaultN int) (inv domain.ToolInvocation, found bool, err error) {
	m := toolDirectivePattern.FindStringSubmatch(raw)
	if m == nil {
		return domain.ToolInvocation{}, false, nil
	}

	var payload struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return domain.ToolInvocation{}, false, domain.WrapError(domain.ErrMalformedDirective, "parse tool directive", err)
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return domain.ToolInvocation{}, false, domain.WrapError(domain.ErrMalformedDirective, "parse tool directive", fmt.Errorf("name is required"))
	}

	return domain.ToolInvocation{
		Call: newToolCall(name, payload.Args, defaultN),
		Raw:  raw,
	}, true, nil
}

func newToolCall(name string, args map[string]any, defaultN int) domain.ToolCall {
	switch name {
	case domain.ToolKeywordSearch:
		return domain.KeywordSearchCall{
			Query: stringInput(args, "query", ""),
			N:     intInput(args, "n", defaultN),
		}
	case domain.ToolSemanticSearch:
		return domain.SemanticSearchCall{
			Query: stringInput(args, "query", ""),
			N:     intInput(args, "n", defaultN),
		}
	case domain.ToolReadDocumentPart:
		return domain.ReadDocumentPartCall{
			PartID: stringInput(args, "part_id", ""),
			Wrap:   boolInput(args, "wrap", true),
			Stream: boolInput(args, "stream", false),
		}
	default:
		return domain.UnknownToolCall{Name: name, Args: args}
	}
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]any, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}

func boolInput(input map[string]any, key string, fallback bool) bool {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}
