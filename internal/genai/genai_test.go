package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
	calls  int
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.params = body
	return m.resp, m.err
}

func textCompletion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestDecide_TextReply(t *testing.T) {
	mock := &mockChatService{resp: textCompletion("Hi there! How can I help?")}
	client := newClient(mock, Opts{})

	d, err := client.Decide(context.Background(), Request{
		SystemPrompt: "system",
		History: []models.Turn{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "hi"},
		},
		UserText: "need a plumber",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.ToolCall != nil {
		t.Fatalf("expected text decision, got tool call %+v", d.ToolCall)
	}
	if d.Text != "Hi there! How can I help?" {
		t.Errorf("unexpected text %q", d.Text)
	}
	// system + 2 history + user
	if len(mock.params.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(mock.params.Messages))
	}
	if mock.params.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, mock.params.Model)
	}
	if mock.params.MaxTokens.Value != DefaultMaxTokens {
		t.Errorf("expected max tokens %d, got %d", DefaultMaxTokens, mock.params.MaxTokens.Value)
	}
	if len(mock.params.Tools) != 0 {
		t.Errorf("expected no tools, got %d", len(mock.params.Tools))
	}
}

func TestDecide_ToolCall(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{
					{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "lookup_availability", Arguments: `{"start_date":"2025-01-06"}`}},
					{ID: "call_2", Function: openai.ChatCompletionMessageToolCallFunction{Name: "save_lead", Arguments: `{}`}},
				},
			},
		}},
	}}
	client := newClient(mock, Opts{Model: "gpt-test"})

	d, err := client.Decide(context.Background(), Request{
		SystemPrompt: "system",
		Context:      []string{"held slots"},
		UserText:     "any time monday?",
		Tools: []Tool{
			{Name: "lookup_availability", Description: "find slots", Parameters: map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.ToolCall == nil {
		t.Fatal("expected tool call decision")
	}
	if d.ToolCall.Name != "lookup_availability" || d.ToolCall.ID != "call_1" {
		t.Errorf("expected first tool call, got %+v", d.ToolCall)
	}
	if string(d.ToolCall.Arguments) != `{"start_date":"2025-01-06"}` {
		t.Errorf("unexpected arguments %s", d.ToolCall.Arguments)
	}
	if len(mock.params.Tools) != 1 || mock.params.Tools[0].Function.Name != "lookup_availability" {
		t.Errorf("tool schema not forwarded: %+v", mock.params.Tools)
	}
	if len(mock.params.Messages) != 3 {
		t.Errorf("expected system, context and user messages, got %d", len(mock.params.Messages))
	}
	if mock.params.Model != "gpt-test" {
		t.Errorf("expected configured model, got %q", mock.params.Model)
	}
}

func TestDecide_ServiceError(t *testing.T) {
	client := newClient(&mockChatService{err: errors.New("service failure")}, Opts{})
	_, err := client.Decide(context.Background(), Request{UserText: "hi"})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestDecide_NoChoices(t *testing.T) {
	client := newClient(&mockChatService{resp: &openai.ChatCompletion{}}, Opts{})
	_, err := client.Decide(context.Background(), Request{UserText: "hi"})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithMaxTokens(200), WithTemperature(0.2))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.maxTokens != 200 || cli.temperature != 0.2 {
		t.Errorf("options not applied: %+v", cli)
	}
}
