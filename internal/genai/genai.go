// Package genai asks an OpenAI chat model to either answer a customer or pick
// one of the agent's tools.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model settings
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

var (
	// ErrAPIKeyMissing is returned when no OpenAI API key is configured.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY not set")
	// ErrNoChoicesReturned is returned when the model answers with no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is everything one decision needs.
type Request struct {
	SystemPrompt string
	// Context holds extra system messages placed after the prompt, such as
	// the slots a customer currently has on hold.
	Context  []string
	History  []models.Turn
	UserText string
	Tools    []Tool
}

// ToolCall is a tool the model chose, with its raw JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Decision is either a text reply or a tool call.
type Decision struct {
	Text     string
	ToolCall *ToolCall
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	maxTokens   int64
	temperature float64
}

// NewClient creates a GenAI client. The API key falls back to $OPENAI_API_KEY
// and the model to $OPENAI_MODEL.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	slog.Debug("GenAI NewClient options set", "APIKey_set", cfg.APIKey != "", "model", cfg.Model)
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newClient(&cli.Chat.Completions, cfg), nil
}

func newClient(chat chatService, cfg Opts) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Client{chat: chat, model: cfg.Model, maxTokens: cfg.MaxTokens, temperature: cfg.Temperature}
}

// Decide sends the conversation and tool schema to the model and returns its
// choice. Only the first tool call is honored when the model returns several.
func (c *Client) Decide(ctx context.Context, req Request) (*Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    buildMessages(req),
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	slog.Debug("Client.Decide: calling chat completion", "model", c.model, "messages", len(params.Messages), "tools", len(params.Tools))
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("Client.Decide: chat completion failed", "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	msg := resp.Choices[0].Message
	if n := len(msg.ToolCalls); n > 0 {
		if n > 1 {
			slog.Warn("Client.Decide: model returned multiple tool calls, using the first", "count", n)
		}
		call := msg.ToolCalls[0]
		slog.Debug("Client.Decide: tool call selected", "tool", call.Function.Name, "id", call.ID)
		return &Decision{ToolCall: &ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		}}, nil
	}
	return &Decision{Text: msg.Content}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+len(req.Context)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, extra := range req.Context {
		msgs = append(msgs, openai.SystemMessage(extra))
	}
	for _, turn := range req.History {
		switch turn.Role {
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(turn.Content))
		default:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.UserText))
	return msgs
}

func buildTools(tools []Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}
