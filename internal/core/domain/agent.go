package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ToolSemanticSearch   = "semantic_search"
	ToolKeywordSearch    = "keyword_search"
	ToolReadDocumentPart = "read_document_part"
)

// ToolCall is a parsed tool directive. The set of implementations is closed:
// the three retrieval calls plus UnknownToolCall for names the model invented.
type ToolCall interface {
	ToolName() string
	Arguments() map[string]any
	isToolCall()
}

type KeywordSearchCall struct {
	Query string
	N     int
}

func (c KeywordSearchCall) ToolName() string { return ToolKeywordSearch }
func (c KeywordSearchCall) Arguments() map[string]any {
	return map[string]any{"query": c.Query, "n": c.N}
}
func (KeywordSearchCall) isToolCall() {}

type SemanticSearchCall struct {
	Query string
	N     int
}

func (c SemanticSearchCall) ToolName() string { return ToolSemanticSearch }
func (c SemanticSearchCall) Arguments() map[string]any {
	return map[string]any{"query": c.Query, "n": c.N}
}
func (SemanticSearchCall) isToolCall() {}

type ReadDocumentPartCall struct {
	PartID string
	Wrap   bool
	Stream bool
}

func (c ReadDocumentPartCall) ToolName() string { return ToolReadDocumentPart }
func (c ReadDocumentPartCall) Arguments() map[string]any {
	return map[string]any{"part_id": c.PartID, "wrap": c.Wrap, "stream": c.Stream}
}
func (ReadDocumentPartCall) isToolCall() {}

type UnknownToolCall struct {
	Name string
	Args map[string]any
}

func (c UnknownToolCall) ToolName() string { return c.Name }
func (c UnknownToolCall) Arguments() map[string]any {
	if c.Args == nil {
		return map[string]any{}
	}
	return c.Args
}
func (UnknownToolCall) isToolCall() {}

// ToolInvocation is one turn's directive together with the raw generation
// output it was extracted from.
type ToolInvocation struct {
	Call ToolCall
	Raw  string
}

type ToolEvent struct {
	Turn        int            `json:"turn"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Status      string         `json:"status"`
	Output      string         `json:"output"`
	ModelOutput string         `json:"model_output"`
}

// OrchestrationState lives for exactly one query.
type OrchestrationState struct {
	MaxTurns int
	Turn     int
	Context  string
	Events   []ToolEvent
}

func NewOrchestrationState(maxTurns int) *OrchestrationState {
	return &OrchestrationState{
		MaxTurns: maxTurns,
		Events:   make([]ToolEvent, 0, maxTurns),
	}
}

// Record appends the event and a bounded preview of its output to the
// running context.
func (s *OrchestrationState) Record(event ToolEvent, previewChars int) {
	s.Events = append(s.Events, event)
	args, _ := json.Marshal(event.Args)
	s.Context += fmt.Sprintf("\n\n--- Tool: %s ---\nQuery/Args: %s\nResult: %s", event.Tool, args, Preview(event.Output, previewChars))
}

func (s *OrchestrationState) Exhausted() bool {
	return s.Turn >= s.MaxTurns
}

// Preview cuts s to at most n runes.
func Preview(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type QueryRequest struct {
	Query    string        `json:"query"`
	History  []ChatMessage `json:"history,omitempty"`
	MaxTurns int           `json:"max_turns,omitempty"`
}

// MaxTurnsLimit is the largest per-request turn budget a caller may ask for.
const MaxTurnsLimit = 20

const (
	TerminationFinalAnswer = "final_answer"
	TerminationMaxTurns    = "max_turns"
)

type QueryRunResult struct {
	RunID        string      `json:"run_id"`
	Query        string      `json:"query"`
	Answer       string      `json:"answer"`
	Final        FinalAnswer `json:"final"`
	Turns        int         `json:"turns"`
	Forced       bool        `json:"forced"`
	Termination  string      `json:"termination"`
	ToolsInvoked []string    `json:"tools_invoked,omitempty"`
	ToolEvents   []ToolEvent `json:"tool_events,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

type AgentLimits struct {
	MaxTurns          int           `json:"max_turns"`
	GenerationTimeout time.Duration `json:"generation_timeout"`
	ToolTimeout       time.Duration `json:"tool_timeout"`
	StatePreviewChars int           `json:"state_preview_chars"`
	LogPreviewChars   int           `json:"log_preview_chars"`
	DefaultTopN       int           `json:"default_top_n"`
}

func (l AgentLimits) Normalize() AgentLimits {
	if l.MaxTurns <= 0 {
		l.MaxTurns = 5
	}
	if l.GenerationTimeout <= 0 {
		l.GenerationTimeout = 120 * time.Second
	}
	if l.ToolTimeout <= 0 {
		l.ToolTimeout = 30 * time.Second
	}
	if l.StatePreviewChars <= 0 {
		l.StatePreviewChars = 1000
	}
	if l.LogPreviewChars <= 0 {
		l.LogPreviewChars = 500
	}
	if l.DefaultTopN <= 0 {
		l.DefaultTopN = 3
	}
	return l
}

// ValidateQuery rejects requests the orchestrator cannot run.
func ValidateQuery(req QueryRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("query is required"))
	}
	if req.MaxTurns < 0 || req.MaxTurns > MaxTurnsLimit {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("max_turns must be between 0 and %d", MaxTurnsLimit))
	}
	return nil
}
