package assistant

import (
	"fmt"

	"github.com/stategraph/stategraph/pkg/validation"
)

// Config parameterizes the assistant workflow.
type Config struct {
	// Model handles summarization, query analysis, agent reasoning, and
	// aggregation.
	Model ChatModel `json:"-" validate:"required"`
	// Tools available to the research agent. May be empty; the agent
	// then answers from the model alone.
	Tools []Tool `json:"-"`
	// GraphName names the compiled graph.
	GraphName string `json:"graph_name" validate:"node_name"`
	// MaxAgentTurns bounds the agent/tools loop per research branch.
	MaxAgentTurns int `json:"max_agent_turns" validate:"min=1,max=50"`
	// SummaryThreshold is the history length below which summarization
	// is skipped.
	SummaryThreshold int `json:"summary_threshold" validate:"min=0"`
}

// DefaultConfig returns the workflow defaults; Model and Tools must
// still be supplied.
func DefaultConfig() Config {
	return Config{
		GraphName:        "assistant",
		MaxAgentTurns:    6,
		SummaryThreshold: 4,
	}
}

func (c Config) validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	return nil
}
