package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stategraph/stategraph/pkg/stategraph"
	"github.com/stategraph/stategraph/pkg/validation"
)

// scriptedModel implements ChatModel with per-call hooks.
type scriptedModel struct {
	completeFn func(ctx context.Context, messages []Message) (string, error)
	analyzeFn  func(ctx context.Context, messages []Message) (*QueryAnalysis, error)
	decideFn   func(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error)
}

func (m *scriptedModel) Complete(ctx context.Context, messages []Message) (string, error) {
	if m.completeFn == nil {
		return "completion", nil
	}
	return m.completeFn(ctx, messages)
}

func (m *scriptedModel) Analyze(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
	if m.analyzeFn == nil {
		return &QueryAnalysis{IsClear: true, Questions: []string{"q"}}, nil
	}
	return m.analyzeFn(ctx, messages)
}

func (m *scriptedModel) Decide(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
	if m.decideFn == nil {
		return &AgentAction{Answer: "answer"}, nil
	}
	return m.decideFn(ctx, messages, tools)
}

// taskOf extracts the sub-question the agent was given.
func taskOf(messages []Message) string {
	return messages[1].Content
}

// sawObservation reports whether the transcript already holds a tool
// observation.
func sawObservation(messages []Message) bool {
	for _, m := range messages {
		if m.Role == RoleTool {
			return true
		}
	}
	return false
}

func newTestRuntime(t *testing.T, cfg Config) *stategraph.Runtime {
	t.Helper()
	g, err := Build(cfg)
	require.NoError(t, err)
	return stategraph.NewRuntime(g, stategraph.Options{})
}

func TestAssistantMultiQueryRun(t *testing.T) {
	model := &scriptedModel{
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			return &QueryAnalysis{
				IsClear:   true,
				Questions: []string{"rental prices in Clementi", "grant eligibility"},
			}, nil
		},
		decideFn: func(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
			assert.Len(t, tools, 1)
			if !sawObservation(messages) {
				return &AgentAction{Call: &ToolCall{Name: "search_docs", Input: taskOf(messages)}}, nil
			}
			return &AgentAction{Answer: "found: " + taskOf(messages)}, nil
		},
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			require.Equal(t, aggregationPrompt, messages[0].Content)
			return "combined response", nil
		},
	}

	searches := make(chan string, 4)
	tool := FuncTool{
		ToolName: "search_docs",
		Desc:     "Search documents.",
		Fn: func(ctx context.Context, input string) (string, error) {
			searches <- input
			return "passage about " + input, nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Tools = []Tool{tool}

	rt := newTestRuntime(t, cfg)
	result, err := rt.Submit(context.Background(), stategraph.NewThreadID(),
		stategraph.State{"question": "what are rental prices and grants?"})
	require.NoError(t, err)

	require.False(t, result.Paused())
	assert.Equal(t, "combined response", result.Output["answer"])

	// One branch per sub-question, results folded in branch order.
	records := result.Output["agent_answers"].([]interface{})
	require.Len(t, records, 2)
	first := records[0].(map[string]interface{})
	second := records[1].(map[string]interface{})
	assert.Equal(t, 0, first["index"])
	assert.Equal(t, "found: rental prices in Clementi", first["answer"])
	assert.Equal(t, 1, second["index"])
	assert.Equal(t, "found: grant eligibility", second["answer"])

	close(searches)
	var queried []string
	for q := range searches {
		queried = append(queried, q)
	}
	assert.ElementsMatch(t,
		[]string{"rental prices in Clementi", "grant eligibility"}, queried)

	// The exchange lands in history for the next turn.
	history := result.Output["history"].([]interface{})
	require.Len(t, history, 2)
	assert.Equal(t, "Assistant: combined response", history[1])
}

func TestAssistantMultiTurnMemory(t *testing.T) {
	model := &scriptedModel{
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			prompt := messages[1].Content
			return &QueryAnalysis{IsClear: true, Questions: []string{"sub: " + prompt[strings.Index(prompt, "User Query:"):]}}, nil
		},
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			return "answer " + fmt.Sprint(len(messages)), nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model

	rt := newTestRuntime(t, cfg)
	thread := stategraph.NewThreadID()

	first, err := rt.Submit(context.Background(), thread,
		stategraph.State{"question": "first question"})
	require.NoError(t, err)
	require.False(t, first.Paused())

	second, err := rt.Submit(context.Background(), thread,
		stategraph.State{"question": "second question"})
	require.NoError(t, err)
	require.False(t, second.Paused())

	// The thread's history accumulates across turns.
	history := second.Output["history"].([]interface{})
	require.Len(t, history, 4)
	assert.Equal(t, "User: first question", history[0])
	assert.Equal(t, "User: second question", history[2])

	// The previous turn's branch records do not bleed into this turn's
	// aggregate.
	records := second.Output["agent_answers"].([]interface{})
	require.Len(t, records, 1)
	rec := records[0].(map[string]interface{})
	assert.Contains(t, rec["question"], "second question")
}

func TestAssistantClarificationPause(t *testing.T) {
	calls := 0
	model := &scriptedModel{
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			calls++
			if calls == 1 {
				return &QueryAnalysis{
					IsClear:             false,
					ClarificationNeeded: "Which flat type are you asking about?",
				}, nil
			}
			return &QueryAnalysis{IsClear: true, Questions: []string{"4-room resale prices"}}, nil
		},
		decideFn: func(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
			return &AgentAction{Answer: "researched " + taskOf(messages)}, nil
		},
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			return "final answer", nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model

	rt := newTestRuntime(t, cfg)
	thread := stategraph.NewThreadID()

	paused, err := rt.Submit(context.Background(), thread,
		stategraph.State{"question": "how much?"})
	require.NoError(t, err)
	require.True(t, paused.Paused())
	assert.Equal(t, "Which flat type are you asking about?", paused.Interrupt.Message)

	resumed, err := rt.Submit(context.Background(), thread,
		stategraph.State{"question": "4-room resale in Clementi"})
	require.NoError(t, err)
	require.False(t, resumed.Paused())
	assert.Equal(t, "final answer", resumed.Output["answer"])
	assert.Equal(t, 2, calls)
}

func TestAssistantShortClarificationGetsDefault(t *testing.T) {
	model := &scriptedModel{
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			return &QueryAnalysis{IsClear: false, ClarificationNeeded: "what?"}, nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model

	rt := newTestRuntime(t, cfg)
	paused, err := rt.Submit(context.Background(), stategraph.NewThreadID(),
		stategraph.State{"question": "?"})
	require.NoError(t, err)
	require.True(t, paused.Paused())
	assert.Equal(t, defaultClarification, paused.Interrupt.Message)
}

func TestAssistantToolFailureIsObservation(t *testing.T) {
	model := &scriptedModel{
		decideFn: func(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
			if !sawObservation(messages) {
				return &AgentAction{Call: &ToolCall{Name: "search_docs", Input: "x"}}, nil
			}
			// The failure reaches the agent as a prefixed observation.
			last := messages[len(messages)-1]
			assert.True(t, IsFailure(strings.TrimPrefix(last.Content, "search_docs: ")))
			return &AgentAction{Answer: "answered without documents"}, nil
		},
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			return "degraded but complete", nil
		},
	}

	tool := FuncTool{
		ToolName: "search_docs",
		Desc:     "Search documents.",
		Fn: func(ctx context.Context, input string) (string, error) {
			return "", errors.New("connection refused")
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Tools = []Tool{tool}

	rt := newTestRuntime(t, cfg)
	result, err := rt.Submit(context.Background(), stategraph.NewThreadID(),
		stategraph.State{"question": "anything"})
	require.NoError(t, err)
	assert.Equal(t, "degraded but complete", result.Output["answer"])
}

func TestAssistantAgentTurnBudget(t *testing.T) {
	model := &scriptedModel{
		decideFn: func(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
			// Never answers; the turn budget must cut the loop.
			return &AgentAction{Call: &ToolCall{Name: "search_docs", Input: "again"}}, nil
		},
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			return "aggregated", nil
		},
	}
	tool := FuncTool{
		ToolName: "search_docs",
		Desc:     "Search documents.",
		Fn: func(ctx context.Context, input string) (string, error) {
			return "more text", nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Tools = []Tool{tool}
	cfg.MaxAgentTurns = 2

	rt := newTestRuntime(t, cfg)
	result, err := rt.Submit(context.Background(), stategraph.NewThreadID(),
		stategraph.State{"question": "anything"})
	require.NoError(t, err)

	records := result.Output["agent_answers"].([]interface{})
	require.Len(t, records, 1)
	record := records[0].(map[string]interface{})
	assert.Equal(t, fallbackAnswer, record["answer"])
}

func TestAssistantModelFailureAbortsRun(t *testing.T) {
	boom := errors.New("model down")
	model := &scriptedModel{
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			return nil, boom
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model

	rt := newTestRuntime(t, cfg)
	_, err := rt.Submit(context.Background(), stategraph.NewThreadID(),
		stategraph.State{"question": "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, stategraph.ErrCollaborator)
}

func TestAssistantSummarizesLongHistory(t *testing.T) {
	summarized := false
	model := &scriptedModel{
		completeFn: func(ctx context.Context, messages []Message) (string, error) {
			if messages[0].Content == summaryPrompt {
				summarized = true
				return "they discussed rentals", nil
			}
			return "aggregated", nil
		},
		analyzeFn: func(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
			// The summary feeds the analysis context.
			assert.Contains(t, messages[1].Content, "they discussed rentals")
			return &QueryAnalysis{IsClear: true, Questions: []string{"q"}}, nil
		},
	}

	cfg := DefaultConfig()
	cfg.Model = model

	rt := newTestRuntime(t, cfg)
	result, err := rt.Submit(context.Background(), stategraph.NewThreadID(), stategraph.State{
		"question": "follow-up",
		"history": stategraph.Append(
			"User: a", "Assistant: b", "User: c", "Assistant: d"),
	})
	require.NoError(t, err)
	assert.True(t, summarized)
	assert.Equal(t, "aggregated", result.Output["answer"])
}

func TestAssistantConfigValidation(t *testing.T) {
	_, err := Build(Config{GraphName: "assistant", MaxAgentTurns: 6})
	require.Error(t, err)
	var verrs validation.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	cfg := DefaultConfig()
	cfg.Model = &scriptedModel{}
	cfg.MaxAgentTurns = 0
	_, err = Build(cfg)
	require.Error(t, err)
}

func TestAssistantRegistryBuilder(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, "assistant", b.Name())

	_, err := b.Build(context.Background(), "not a config")
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Model = &scriptedModel{}
	g, err := b.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "assistant", g.Name())
}

func TestToolboxInvoke(t *testing.T) {
	tb := NewToolbox(FuncTool{
		ToolName: "echo",
		Desc:     "Echoes input.",
		Fn: func(ctx context.Context, input string) (string, error) {
			return "echo: " + input, nil
		},
	})

	assert.Equal(t, []ToolSpec{{Name: "echo", Description: "Echoes input."}}, tb.Specs())
	assert.Equal(t, "echo: hi", tb.Invoke(context.Background(), &ToolCall{Name: "echo", Input: "hi"}))

	unknown := tb.Invoke(context.Background(), &ToolCall{Name: "nope"})
	assert.True(t, IsFailure(unknown))
	assert.Equal(t, fmt.Sprintf("%sunknown tool %q", ErrorPrefix, "nope"), unknown)
}
