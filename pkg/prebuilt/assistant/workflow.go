package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stategraph/stategraph/pkg/prebuilt"
	"github.com/stategraph/stategraph/pkg/stategraph"
)

const (
	defaultClarification = "I need more information to understand your question."
	fallbackAnswer       = "Unable to generate an answer."
)

// NewBuilder returns the registry entry for the assistant prebuilt.
func NewBuilder() prebuilt.Builder {
	return prebuilt.NewBuildFunc("assistant", func(ctx context.Context, cfg any) (*stategraph.Graph, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for assistant, expected assistant.Config")
		}
		return Build(c)
	})
}

// Build compiles the assistant workflow:
//
//	summarize -> analyze -> (await_input -> analyze)   unclear question
//	                     -> research × N -> aggregate   clear question
//
// The await_input node is an interrupt point: the run pauses there with
// the clarification prompt in state, and the revised question arrives
// through the resume input. Each research branch runs the agent
// subgraph on one rewritten sub-question.
func Build(cfg Config) (*stategraph.Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	toolbox := NewToolbox(cfg.Tools...)

	agentGraph, err := buildAgentGraph(cfg, toolbox)
	if err != nil {
		return nil, err
	}

	schema := stategraph.NewSchema().
		AddField("question", stategraph.Field{Reducer: stategraph.ReplaceIfNonEmpty}).
		AddField("history", stategraph.Field{Reducer: stategraph.AppendWithReset}).
		AddField("conversation_summary", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("question_is_clear", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("clarification", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("original_query", stategraph.Field{Reducer: stategraph.ReplaceIfNonEmpty}).
		AddField("rewritten_questions", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("agent_answers", stategraph.Field{Reducer: stategraph.AppendWithReset}).
		AddField("answer", stategraph.Field{Reducer: stategraph.Replace})

	return stategraph.NewBuilder(cfg.GraphName, schema).
		AddNode("summarize", summarizeNode(cfg)).
		AddNode("analyze", analyzeNode(cfg)).
		AddNode("await_input", stategraph.NodeFunc(awaitInput)).
		AddSubgraph("research", agentGraph, researchIn, researchOut).
		AddNode("aggregate", aggregateNode(cfg)).
		AddEdge(stategraph.Start, "summarize").
		AddEdge("summarize", "analyze").
		AddConditionalEdge("analyze", routeAfterAnalysis, "await_input").
		AddFanOutEdge("analyze", "research", "aggregate").
		AddEdge("await_input", "analyze").
		AddEdge("aggregate", stategraph.End).
		InterruptBefore("await_input").
		Compile()
}

// summarizeNode condenses the prior exchanges into a running summary
// and clears the previous run's per-question answers. Short histories
// skip the model call.
func summarizeNode(cfg Config) stategraph.NodeFunc {
	return func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		history := toStrings(s["history"])
		if len(history) < cfg.SummaryThreshold {
			return stategraph.State{
				"conversation_summary": "",
				"agent_answers":        stategraph.ResetList(),
			}, nil
		}

		recent := history
		if len(recent) > 6 {
			recent = recent[len(recent)-6:]
		}
		summary, err := cfg.Model.Complete(ctx, []Message{
			{Role: RoleSystem, Content: summaryPrompt},
			{Role: RoleUser, Content: "Conversation history:\n" + strings.Join(recent, "\n")},
		})
		if err != nil {
			return nil, err
		}
		return stategraph.State{
			"conversation_summary": summary,
			"agent_answers":        stategraph.ResetList(),
		}, nil
	}
}

// analyzeNode classifies the question and rewrites it into focused
// sub-questions, or records the clarification to ask for.
func analyzeNode(cfg Config) stategraph.NodeFunc {
	return func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		question, _ := s.GetString("question")

		var prompt strings.Builder
		if summary, _ := s.GetString("conversation_summary"); strings.TrimSpace(summary) != "" {
			fmt.Fprintf(&prompt, "Conversation Context:\n%s\n", summary)
		}
		fmt.Fprintf(&prompt, "User Query:\n%s\n", question)

		analysis, err := cfg.Model.Analyze(ctx, []Message{
			{Role: RoleSystem, Content: analysisPrompt},
			{Role: RoleUser, Content: prompt.String()},
		})
		if err != nil {
			return nil, err
		}

		if analysis.IsClear && len(analysis.Questions) > 0 {
			rewritten := make([]interface{}, len(analysis.Questions))
			for i, q := range analysis.Questions {
				rewritten[i] = q
			}
			return stategraph.State{
				"question_is_clear":   true,
				"clarification":       "",
				"original_query":      question,
				"rewritten_questions": rewritten,
			}, nil
		}

		clarification := analysis.ClarificationNeeded
		if len(strings.TrimSpace(clarification)) <= 10 {
			clarification = defaultClarification
		}
		return stategraph.State{
			"question_is_clear": false,
			"clarification":     clarification,
		}, nil
	}
}

// awaitInput is the interrupt placeholder: the resume input carries the
// revised question, so the node itself changes nothing.
func awaitInput(ctx context.Context, s stategraph.State) (stategraph.State, error) {
	return stategraph.State{}, nil
}

// routeAfterAnalysis pauses for clarification or spawns one research
// branch per rewritten sub-question.
func routeAfterAnalysis(ctx context.Context, s stategraph.State) (stategraph.Decision, error) {
	if clear, _ := s["question_is_clear"].(bool); !clear {
		return stategraph.Goto("await_input"), nil
	}
	questions, _ := s["rewritten_questions"].([]interface{})
	seeds := make([]stategraph.State, len(questions))
	for i, q := range questions {
		seeds[i] = stategraph.State{"task": q, "task_index": i}
	}
	return stategraph.Spawn(seeds...), nil
}

// researchIn seeds the agent subgraph from one fan-out branch.
func researchIn(branch stategraph.State) stategraph.State {
	return stategraph.State{
		"task":       branch["task"],
		"task_index": branch["task_index"],
	}
}

// researchOut projects the agent's answer record back as an
// agent_answers append.
func researchOut(final stategraph.State) stategraph.State {
	return stategraph.State{"agent_answers": stategraph.Append(final["record"])}
}

// aggregateNode merges the per-question answers into one response and
// extends the conversation history.
func aggregateNode(cfg Config) stategraph.NodeFunc {
	return func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		question, _ := s.GetString("original_query")
		records := toList(s["agent_answers"])
		if len(records) == 0 {
			return stategraph.State{"answer": "No answers were generated."}, nil
		}

		sorted := make([]map[string]interface{}, 0, len(records))
		for _, r := range records {
			if m, ok := r.(map[string]interface{}); ok {
				sorted = append(sorted, m)
			}
		}
		sort.Slice(sorted, func(i, j int) bool {
			return toInt(sorted[i]["index"]) < toInt(sorted[j]["index"])
		})

		var formatted strings.Builder
		for i, rec := range sorted {
			fmt.Fprintf(&formatted, "\nAnswer %d:\n%v\n", i+1, rec["answer"])
		}

		answer, err := cfg.Model.Complete(ctx, []Message{
			{Role: RoleSystem, Content: aggregationPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(
				"Original user question: %s\nRetrieved answers:%s", question, formatted.String())},
		})
		if err != nil {
			return nil, err
		}

		return stategraph.State{
			"answer":  answer,
			"history": stategraph.Append("User: "+question, "Assistant: "+answer),
		}, nil
	}
}

// buildAgentGraph compiles the per-question research subgraph: the
// agent loops through tool calls until it answers or exhausts its turn
// budget, then extract normalizes the answer record.
func buildAgentGraph(cfg Config, toolbox *Toolbox) (*stategraph.Graph, error) {
	schema := stategraph.NewSchema().
		AddField("task", stategraph.Field{Reducer: stategraph.ReplaceIfNonEmpty}).
		AddField("task_index", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("transcript", stategraph.Field{Reducer: stategraph.AppendWithReset}).
		AddField("pending_call", stategraph.Field{Reducer: stategraph.Replace}).
		AddField("final_answer", stategraph.Field{Reducer: stategraph.ReplaceIfNonEmpty}).
		AddField("turns", stategraph.Field{Reducer: stategraph.AppendWithReset}).
		AddField("record", stategraph.Field{Reducer: stategraph.Replace})

	agent := func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		if len(toList(s["turns"])) >= cfg.MaxAgentTurns {
			return stategraph.State{"final_answer": fallbackAnswer}, nil
		}

		task, _ := s.GetString("task")
		messages := []Message{
			{Role: RoleSystem, Content: agentPrompt},
			{Role: RoleUser, Content: task},
		}
		for _, entry := range toList(s["transcript"]) {
			if m, ok := entry.(Message); ok {
				messages = append(messages, m)
			}
		}

		action, err := cfg.Model.Decide(ctx, messages, toolbox.Specs())
		if err != nil {
			return nil, err
		}

		if action.Call != nil {
			return stategraph.State{
				"pending_call": *action.Call,
				"turns":        stategraph.Append(1),
				"transcript": stategraph.Append(Message{
					Role:    RoleAssistant,
					Content: fmt.Sprintf("calling %s: %s", action.Call.Name, action.Call.Input),
				}),
			}, nil
		}

		answer := strings.TrimSpace(action.Answer)
		if answer == "" {
			answer = fallbackAnswer
		}
		return stategraph.State{
			"final_answer": answer,
			"turns":        stategraph.Append(1),
		}, nil
	}

	tools := func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		call, ok := s["pending_call"].(ToolCall)
		if !ok {
			return nil, fmt.Errorf("tools node invoked without a pending call")
		}
		observation := toolbox.Invoke(ctx, &call)
		return stategraph.State{
			"transcript": stategraph.Append(Message{
				Role:    RoleTool,
				Content: fmt.Sprintf("%s: %s", call.Name, observation),
			}),
		}, nil
	}

	extract := func(ctx context.Context, s stategraph.State) (stategraph.State, error) {
		answer, _ := s.GetString("final_answer")
		if strings.TrimSpace(answer) == "" {
			answer = fallbackAnswer
		}
		return stategraph.State{
			"record": map[string]interface{}{
				"index":    toInt(s["task_index"]),
				"question": s["task"],
				"answer":   answer,
			},
		}, nil
	}

	routeAgent := func(ctx context.Context, s stategraph.State) (stategraph.Decision, error) {
		if answer, _ := s.GetString("final_answer"); answer != "" {
			return stategraph.Goto("extract"), nil
		}
		return stategraph.Goto("tools"), nil
	}

	return stategraph.NewBuilder(cfg.GraphName+"_agent", schema).
		AddNode("agent", stategraph.NodeFunc(agent)).
		AddNode("tools", stategraph.NodeFunc(tools)).
		AddNode("extract", stategraph.NodeFunc(extract)).
		AddEdge(stategraph.Start, "agent").
		AddConditionalEdge("agent", routeAgent, "tools", "extract").
		AddEdge("tools", "agent").
		AddEdge("extract", stategraph.End).
		Compile()
}

func toList(v interface{}) []interface{} {
	items, _ := v.([]interface{})
	return items
}

func toStrings(v interface{}) []string {
	items := toList(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
