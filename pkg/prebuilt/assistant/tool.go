package assistant

import (
	"context"
	"fmt"
	"strings"
)

// Reserved observation prefixes. Tools report recoverable failures as
// prefixed observations instead of errors, letting the agent reason
// about them; a returned error aborts the whole run.
const (
	ErrorPrefix     = "ERROR: "
	NoResultsPrefix = "NO_RESULTS: "
)

// Tool is an external capability the research agent may invoke.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// Toolbox indexes tools by name and renders their specs for the model.
type Toolbox struct {
	tools map[string]Tool
	specs []ToolSpec
}

// NewToolbox builds a toolbox. Duplicate names keep the last tool.
func NewToolbox(tools ...Tool) *Toolbox {
	tb := &Toolbox{tools: make(map[string]Tool, len(tools))}
	var order []string
	for _, t := range tools {
		if _, dup := tb.tools[t.Name()]; !dup {
			order = append(order, t.Name())
		}
		tb.tools[t.Name()] = t
	}
	for _, name := range order {
		tb.specs = append(tb.specs, ToolSpec{Name: name, Description: tb.tools[name].Description()})
	}
	return tb
}

// Specs lists the tool specs in registration order.
func (tb *Toolbox) Specs() []ToolSpec { return tb.specs }

// Invoke calls the named tool and normalizes failures into
// ErrorPrefix observations the agent can read.
func (tb *Toolbox) Invoke(ctx context.Context, call *ToolCall) string {
	tool, ok := tb.tools[call.Name]
	if !ok {
		return fmt.Sprintf("%sunknown tool %q", ErrorPrefix, call.Name)
	}
	result, err := tool.Call(ctx, call.Input)
	if err != nil {
		return fmt.Sprintf("%s%s failed: %v", ErrorPrefix, call.Name, err)
	}
	return result
}

// IsFailure reports whether an observation carries a reserved failure
// prefix.
func IsFailure(observation string) bool {
	return strings.HasPrefix(observation, ErrorPrefix) ||
		strings.HasPrefix(observation, NoResultsPrefix)
}

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, input string) (string, error)
}

func (t FuncTool) Name() string        { return t.ToolName }
func (t FuncTool) Description() string { return t.Desc }
func (t FuncTool) Call(ctx context.Context, input string) (string, error) {
	return t.Fn(ctx, input)
}
