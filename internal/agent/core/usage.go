package core

import (
	"sync"

	"github.com/mohammad-safakhou/deepresearch/internal/tokens"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

// usageTracker accumulates the lead agent's token spend across analysis,
// planning, compression and synthesis calls. Safe for concurrent use.
type usageTracker struct {
	mu         sync.Mutex
	prompt     int64
	completion int64
}

func (u *usageTracker) record(resp *provider.ChatResponse) {
	if u == nil || resp == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		u.prompt += resp.Usage.PromptTokens
		u.completion += resp.Usage.CompletionTokens
		return
	}
	u.completion += int64(tokens.Count(resp.Message.Content))
}

func (u *usageTracker) totals() (prompt, completion int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.prompt, u.completion
}

func (u *usageTracker) reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt = 0
	u.completion = 0
}
