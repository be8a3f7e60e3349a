package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func buildSystemPrompt(maxTurns int, stateContext string) string {
	if strings.TrimSpace(stateContext) == "" {
		stateContext = "No prior context."
	}
	return fmt.Sprintf(`You are a helpful RAG assistant specializing in legal document analysis. You have access to three tools:

1. **semantic_search**: Find documents semantically similar to a query
   - args: {"query": "search query", "n": number_of_results}

2. **keyword_search**: BM25 keyword search across documents
   - args: {"query": "keywords", "n": number_of_results}

3. **read_document_part**: Retrieve a specific document section by ID
   - args: {"part_id": "doc_id.section.subsection", "wrap": true, "stream": false}

You may call one tool per turn, for up to %d turns, before giving your final answer.

In each turn, analyze what information you need and respond with EITHER a tool call OR your final answer.

For tool calls, use this format:
<think>
[your reasoning for what to search for and why]
</think>
<tool>
{"name": "tool_name", "args": {"query": "search query"}}
</tool>

When you have enough information to answer the user's question, give your final answer in this format:

<think>
[your reasoning for the answer based on gathered information]
</think>
<answer>
[your comprehensive answer citing the evidence you found or "I don't know" if you didn't get enough information]

<sources>
<source>doc_id_1</source>
<source>doc_id_2</source>
</sources>
</answer>

Context from previous tool calls:
%s
`, maxTurns, stateContext)
}

const forcedFinalInstruction = `You have used all available tool turns. No more tools will be executed. Provide your final answer now in the <answer> format, based only on the information gathered so far.`

func toolResultMessage(tool, result string) string {
	return fmt.Sprintf("Tool '%s' returned:\n%s\n\nContinue with analysis or provide final answer if you have enough information.", tool, result)
}

// buildMessages rebuilds the whole conversation for one generation round.
// Turns that produced neither a tool call nor an answer leave no trace.
func buildMessages(req domain.QueryRequest, state *domain.OrchestrationState) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(req.History)+2+2*len(state.Events))
	messages = append(messages, domain.ChatMessage{Role: "system", Content: buildSystemPrompt(state.MaxTurns, state.Context)})
	for _, msg := range req.History {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role != "assistant" {
			role = "user"
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: "user", Content: req.Query})
	for _, event := range state.Events {
		messages = append(messages,
			domain.ChatMessage{Role: "assistant", Content: event.ModelOutput},
			domain.ChatMessage{Role: "user", Content: toolResultMessage(event.Tool, event.Output)},
		)
	}
	return messages
}
