package core

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/pricing"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

// The execution-trace model lives in the session package so the vault can
// persist it without depending on the agents. Aliased here because the
// agents produce these values.
type (
	SubTask           = session.SubTask
	ToolCall          = session.ToolCall
	ReActIteration    = session.ReActIteration
	TokenUsage        = session.TokenUsage
	WorkerFullContext = session.WorkerFullContext
)

// QueryAnalysis is the lead agent's assessment of a research query.
// Complexity drives the worker count; the other fields inform planning.
type QueryAnalysis struct {
	Complexity  float64  `json:"complexity"`  // 0.0-1.0
	Specificity float64  `json:"specificity"` // 0.0-1.0
	Domains     []string `json:"domains"`
	MultiStep   bool     `json:"multi_step"`
}

// ResearchReport is the output of a single ReAct agent run.
type ResearchReport struct {
	Query   string   `json:"query"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`

	Model           string                 `json:"model"`
	Iterations      int                    `json:"iterations"`
	Tokens          TokenUsage             `json:"tokens"`
	Cost            *pricing.CostBreakdown `json:"cost,omitempty"`
	ReactIterations []ReActIteration       `json:"react_iterations"`
	Err             string                 `json:"error,omitempty"` // e.g. max_iterations
}

// WorkerResult is one worker's contribution to the final synthesis.
type WorkerResult struct {
	TaskID      string                 `json:"task_id"`
	Objective   string                 `json:"objective"`
	Summary     string                 `json:"summary"` // compressed findings
	Sources     []string               `json:"sources"`
	Tokens      TokenUsage             `json:"tokens"`
	Cost        *pricing.CostBreakdown `json:"cost,omitempty"`
	Err         string                 `json:"error,omitempty"`
	FullContext *WorkerFullContext     `json:"-"`
}

// CostSummary breaks the total run cost into lead and worker spend.
type CostSummary struct {
	Lead      pricing.CostBreakdown `json:"lead"`
	Workers   pricing.CostBreakdown `json:"workers"`
	TotalCost float64               `json:"total_cost"`
}

// ProcessingResult is the orchestrator's final output for a query.
type ProcessingResult struct {
	Query           string         `json:"query"`
	ComplexityScore float64        `json:"complexity_score"`
	SubTasks        []SubTask      `json:"sub_tasks"`
	WorkerResults   []WorkerResult `json:"worker_results"`
	Report          string         `json:"report"`
	Sources         []string       `json:"sources"`
	Model           string         `json:"model"`
	Tokens          TokenUsage     `json:"tokens"`
	Cost            CostSummary    `json:"cost"`
	Duration        time.Duration  `json:"duration"`
}

// FillSession copies the run outcome into a session, preserving the
// session's identity and version chain. Workers without a retained full
// context (a worker that never started, for example) get a minimal one
// built from the result.
func (r *ProcessingResult) FillSession(s *session.ResearchSession, now time.Time) {
	// A fork's run prompt is derived context. The session keeps the
	// query it was created with.
	if s.Query == "" {
		s.Query = r.Query
	}
	s.ComplexityScore = r.ComplexityScore
	s.SubTasks = r.SubTasks
	s.Report = r.Report
	s.AllSources = r.Sources
	s.Model = r.Model
	s.Tokens = r.Tokens
	s.Cost = r.Cost.TotalCost
	s.Status = session.StatusCompleted
	s.UpdatedAt = now

	s.Workers = s.Workers[:0]
	for i := range r.WorkerResults {
		wr := &r.WorkerResults[i]
		if wr.FullContext != nil {
			s.Workers = append(s.Workers, *wr.FullContext)
			continue
		}
		status := session.StatusCompleted
		if wr.Err != "" {
			status = session.StatusFailed
		}
		s.Workers = append(s.Workers, session.WorkerFullContext{
			TaskID:            wr.TaskID,
			WorkerID:          wr.TaskID,
			Objective:         wr.Objective,
			CompressedSummary: wr.Summary,
			Sources:           wr.Sources,
			Status:            status,
			Error:             wr.Err,
			Tokens:            wr.Tokens,
			Model:             r.Model,
		})
	}
}

// LLMProvider is the subset of the provider API the agents need. Declared
// here so tests can substitute a stub without touching HTTP.
type LLMProvider interface {
	Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error)
	Model() string
}
