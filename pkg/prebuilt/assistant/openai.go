package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel implements ChatModel and Embedder on the OpenAI API.
type OpenAIModel struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
}

// OpenAIOption configures an OpenAIModel.
type OpenAIOption func(*OpenAIModel)

// WithChatModel overrides the chat completion model.
func WithChatModel(model string) OpenAIOption {
	return func(m *OpenAIModel) { m.chatModel = model }
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) OpenAIOption {
	return func(m *OpenAIModel) { m.embeddingModel = model }
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(m *OpenAIModel) { m.temperature = t }
}

// NewOpenAIModel creates the OpenAI-backed model collaborator.
func NewOpenAIModel(apiKey string, opts ...OpenAIOption) *OpenAIModel {
	m := &OpenAIModel{
		client:         openai.NewClient(apiKey),
		chatModel:      openai.GPT4oMini,
		embeddingModel: string(openai.SmallEmbedding3),
		temperature:    0.2,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete implements ChatModel.
func (m *OpenAIModel) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.chatModel,
		Messages:    toOpenAIMessages(messages),
		Temperature: m.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Analyze implements ChatModel using JSON-mode structured output.
func (m *OpenAIModel) Analyze(ctx context.Context, messages []Message) (*QueryAnalysis, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.chatModel,
		Messages:    toOpenAIMessages(messages),
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("parse query analysis: %w", err)
	}
	return &analysis, nil
}

// toolInputSchema is the single-argument schema shared by all tools.
var toolInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"input": {"type": "string", "description": "The tool input"}
	},
	"required": ["input"]
}`)

// Decide implements ChatModel using the function-calling API.
func (m *OpenAIModel) Decide(ctx context.Context, messages []Message, tools []ToolSpec) (*AgentAction, error) {
	oaTools := make([]openai.Tool, len(tools))
	for i, spec := range tools {
		oaTools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toolInputSchema,
			},
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.chatModel,
		Messages:    toOpenAIMessages(messages),
		Temperature: m.temperature,
		Tools:       oaTools,
	})
	if err != nil {
		return nil, fmt.Errorf("agent step: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return &AgentAction{Answer: msg.Content}, nil
	}

	call := msg.ToolCalls[0]
	var args struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments for %s: %w", call.Function.Name, err)
	}
	return &AgentAction{Call: &ToolCall{Name: call.Function.Name, Input: args.Input}}, nil
}

// Embed implements Embedder.
func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(m.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned from API")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		role := msg.Role
		// Tool observations travel as user messages; the real tool role
		// requires call ids the workflow does not track.
		if role == RoleTool {
			role = openai.ChatMessageRoleUser
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: msg.Content}
	}
	return out
}
