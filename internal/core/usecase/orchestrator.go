package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

type OrchestratorOptions struct {
	// Journal and Observer are optional.
	Journal  ports.RunJournal
	Observer ports.AgentObserver
}

// Orchestrator runs the bounded tool loop for one query at a time. It holds
// no per-query state; every Run gets a fresh OrchestrationState.
type Orchestrator struct {
	tools     ports.RetrievalService
	generator ports.Generator
	limits    domain.AgentLimits
	opts      OrchestratorOptions
}

func NewOrchestrator(
	tools ports.RetrievalService,
	generator ports.Generator,
	limits domain.AgentLimits,
	opts OrchestratorOptions,
) *Orchestrator {
	return &Orchestrator{
		tools:     tools,
		generator: generator,
		limits:    limits.Normalize(),
		opts:      opts,
	}
}

func (o *Orchestrator) Run(ctx context.Context, req domain.QueryRequest) (*domain.QueryRunResult, error) {
	if err := domain.ValidateQuery(req); err != nil {
		return nil, err
	}
	maxTurns := o.limits.MaxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}

	runID := uuid.NewString()
	state := domain.NewOrchestrationState(maxTurns)
	result := &domain.QueryRunResult{
		RunID:     runID,
		Query:     req.Query,
		StartedAt: time.Now().UTC(),
	}
	logger := slog.With("run_id", runID)
	logger.Info("agent_run_started", "max_turns", maxTurns, "history", len(req.History))

	for !state.Exhausted() {
		state.Turn++
		raw, err := o.generate(ctx, buildMessages(req, state))
		if err != nil {
			logger.Error("agent_generation_failed", "turn", state.Turn, "error", err)
			return nil, fmt.Errorf("agent turn %d: %w", state.Turn, err)
		}

		inv, found, derr := ParseToolDirective(raw, o.limits.DefaultTopN)
		if derr != nil {
			logger.Debug("agent_malformed_directive", "turn", state.Turn, "error", derr)
		}
		switch {
		case found:
			event, err := o.dispatch(ctx, state.Turn, inv)
			if err != nil {
				return nil, err
			}
			state.Record(event, o.limits.StatePreviewChars)
			logger.Info("agent_tool_call",
				"turn", state.Turn,
				"tool", event.Tool,
				"status", event.Status,
				"result_preview", domain.Preview(event.Output, o.limits.LogPreviewChars),
			)
		case domain.HasAnswerMarker(raw):
			logger.Info("agent_final_answer", "turn", state.Turn)
			return o.finish(ctx, result, state, raw, domain.TerminationFinalAnswer, false), nil
		default:
			logger.Info("agent_no_action", "turn", state.Turn)
		}
	}

	messages := buildMessages(req, state)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: forcedFinalInstruction})
	raw, err := o.generate(ctx, messages)
	if err != nil {
		logger.Error("agent_generation_failed", "turn", "forced", "error", err)
		return nil, fmt.Errorf("agent forced final round: %w", err)
	}
	logger.Info("agent_forced_final", "turns", state.Turn)
	return o.finish(ctx, result, state, raw, domain.TerminationMaxTurns, true), nil
}

func (o *Orchestrator) generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.limits.GenerationTimeout)
	defer cancel()
	return o.generator.Chat(genCtx, messages)
}

// dispatch runs one tool call. Tool failures become error payloads for the
// model; only cancellation of ctx itself aborts the run.
func (o *Orchestrator) dispatch(ctx context.Context, turn int, inv domain.ToolInvocation) (domain.ToolEvent, error) {
	started := time.Now()
	toolCtx, cancel := context.WithTimeout(ctx, o.limits.ToolTimeout)
	output, err := o.execute(toolCtx, inv.Call)
	cancel()

	status := "ok"
	if err != nil {
		if ctx.Err() != nil {
			return domain.ToolEvent{}, ctx.Err()
		}
		status = toolErrorStatus(err)
		output = errorPayload(toolErrorMessage(inv.Call, err))
	}
	if o.opts.Observer != nil {
		o.opts.Observer.ObserveToolCall(inv.Call.ToolName(), status, time.Since(started))
	}

	return domain.ToolEvent{
		Turn:        turn,
		Tool:        inv.Call.ToolName(),
		Args:        inv.Call.Arguments(),
		Status:      status,
		Output:      output,
		ModelOutput: inv.Raw,
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, call domain.ToolCall) (string, error) {
	switch c := call.(type) {
	case domain.KeywordSearchCall:
		return o.tools.KeywordSearch(ctx, c.Query, c.N)
	case domain.SemanticSearchCall:
		return o.tools.SemanticSearch(ctx, c.Query, c.N)
	case domain.ReadDocumentPartCall:
		return o.tools.ReadDocumentPart(ctx, c.PartID, domain.ResolveOptions{Wrap: c.Wrap, Stream: c.Stream})
	case domain.UnknownToolCall:
		return "", domain.WrapError(domain.ErrUnknownTool, "dispatch tool", fmt.Errorf("%s", c.Name))
	default:
		return "", fmt.Errorf("dispatch tool: unhandled call %T", call)
	}
}

func toolErrorStatus(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrUnknownTool):
		return "unknown_tool"
	case domain.IsKind(err, domain.ErrIdentifierNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrRetrieverUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func toolErrorMessage(call domain.ToolCall, err error) string {
	switch {
	case domain.IsKind(err, domain.ErrUnknownTool):
		return "Unknown tool: " + call.ToolName()
	case domain.IsKind(err, domain.ErrRetrieverUnavailable):
		return "Semantic search not initialized"
	default:
		return err.Error()
	}
}

// errorPayload renders {"error": "..."} without HTML escaping so ids and
// markup in messages stay readable to the model.
func errorPayload(msg string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(msg)
	return `{"error": ` + string(bytes.TrimSpace(buf.Bytes())) + `}`
}

func (o *Orchestrator) finish(
	ctx context.Context,
	result *domain.QueryRunResult,
	state *domain.OrchestrationState,
	raw, termination string,
	forced bool,
) *domain.QueryRunResult {
	result.Answer = raw
	result.Final = domain.ParseFinalAnswer(raw)
	result.Turns = state.Turn
	result.Forced = forced
	result.Termination = termination
	result.ToolEvents = state.Events
	result.ToolsInvoked = invokedTools(state.Events)
	result.FinishedAt = time.Now().UTC()

	if o.opts.Observer != nil {
		o.opts.Observer.ObserveRun(termination, state.Turn)
	}
	if o.opts.Journal != nil {
		// Journal failures are logged only.
		if err := o.opts.Journal.RecordRun(context.WithoutCancel(ctx), result); err != nil {
			slog.Warn("agent_run_journal_failed", "run_id", result.RunID, "error", err)
		}
	}
	return result
}

func invokedTools(events []domain.ToolEvent) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, event := range events {
		if _, ok := seen[event.Tool]; ok {
			continue
		}
		seen[event.Tool] = struct{}{}
		out = append(out, event.Tool)
	}
	return out
}
