// Package assistant provides a prebuilt multi-query retrieval assistant
// workflow: it summarizes the conversation, analyzes and rewrites the
// user's question, pauses for clarification when the question is
// unclear, fans out one research agent per sub-question, and aggregates
// the per-question answers into a single response.
package assistant

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryAnalysis is the structured result of analyzing a user question.
type QueryAnalysis struct {
	IsClear             bool     `json:"is_clear"`
	Questions           []string `json:"questions"`
	ClarificationNeeded string   `json:"clarification_needed"`
}

// ToolSpec advertises a callable tool to the model.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	Name  string `json:"name"`
	Input string `json:"input"`
}

// AgentAction is one step of the research agent: either a tool call or
// a final answer (Call nil).
type AgentAction struct {
	Call   *ToolCall
	Answer string
}

// ChatModel is the language model collaborator. A call failure aborts
// the run; degraded-but-valid output (an empty summary, an unclear
// verdict) is returned as a value, not an error.
type ChatModel interface {
	// Complete returns a plain completion for the messages.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Analyze returns the structured analysis of the user's question.
	Analyze(ctx context.Context, messages []Message) (*QueryAnalysis, error)
	// Decide advances the research agent one step: call a tool or
	// answer.
	Decide(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
