package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/internal/pricing"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools"
)

// stubLLM scripts provider responses for tests. With respond set, every
// call goes through it; otherwise responses are served from the queue in
// order.
type stubLLM struct {
	mu       sync.Mutex
	model    string
	queue    []stubReply
	respond  func(req provider.ChatRequest) (*provider.ChatResponse, error)
	requests []provider.ChatRequest
}

type stubReply struct {
	resp *provider.ChatResponse
	err  error
}

func newStubLLM() *stubLLM {
	return &stubLLM{model: pricing.DefaultModel}
}

func (s *stubLLM) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if s.respond != nil {
		return s.respond(req)
	}
	if len(s.queue) == 0 {
		return nil, fmt.Errorf("stub exhausted after %d calls", len(s.requests))
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.resp, next.err
}

func (s *stubLLM) Model() string { return s.model }

func (s *stubLLM) enqueue(content string) {
	s.queue = append(s.queue, stubReply{resp: textResponse(content)})
}

func (s *stubLLM) enqueueErr(err error) {
	s.queue = append(s.queue, stubReply{err: err})
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) request(i int) provider.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func textResponse(content string) *provider.ChatResponse {
	return &provider.ChatResponse{
		Message: provider.Message{Role: "assistant", Content: content},
		Usage:   provider.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
}

func toolCallResponse(content string, calls ...provider.ToolCall) *provider.ChatResponse {
	resp := textResponse(content)
	resp.Message.ToolCalls = calls
	return resp
}

// stubTool is a scriptable tool for agent loop tests.
type stubTool struct {
	name     string
	result   tools.ToolResult
	err      error
	execArgs []map[string]any
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub " + t.name }
func (t *stubTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *stubTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	t.execArgs = append(t.execArgs, args)
	return t.result, t.err
}
