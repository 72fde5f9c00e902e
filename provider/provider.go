// Package provider defines the LLM provider abstraction used by the
// orchestrator and worker agents. Concrete implementations live in
// subpackages (openai speaks the chat-completions dialect used by both
// OpenAI and OpenRouter).
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
)

// Message is a single message in a chat conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role=tool messages
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSchema describes a tool the model may call, in JSON Schema form.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token consumption for a single completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatRequest is a provider-agnostic completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the model's reply plus usage accounting.
type ChatResponse struct {
	Message Message
	Usage   Usage
}

// Provider is implemented by LLM backends.
type Provider interface {
	// Chat sends a conversation to the model and returns its reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Model returns the model identifier requests are sent to.
	Model() string
}

// NewHTTPClient builds the HTTP client shared by all provider instances.
// Workers run concurrently, so the pool is sized well above the default.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConns:        cfg.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.MaxIdleConnections,
		IdleConnTimeout:     cfg.IdleConnectionExpiry,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// ProviderError wraps a failed request with enough detail to decide
// whether a retry makes sense.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
