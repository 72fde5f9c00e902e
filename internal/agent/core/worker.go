package core

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/tools"
)

// WorkerAgent runs one sub-task with a tighter iteration budget than the
// lead and captures a full execution trace for the vault.
type WorkerAgent struct {
	agent    *ReactAgent
	workerID string
}

func NewWorkerAgent(llm LLMProvider, registry *tools.Registry, workerID string, maxIterations int, maxTokens int64, progress ProgressCallback) *WorkerAgent {
	if maxIterations <= 0 {
		maxIterations = 15 // shorter budget than the lead
	}
	return &WorkerAgent{
		workerID: workerID,
		agent: NewReactAgent(llm, registry, ReactConfig{
			MaxIterations: maxIterations,
			MaxTokens:     maxTokens,
			Progress:      progress,
			WorkerID:      workerID,
		}),
	}
}

// Execute researches the sub-task objective. Failures are contained: the
// returned context records the error and the report explains it, so one
// crashed worker never sinks the whole run.
func (w *WorkerAgent) Execute(ctx context.Context, task SubTask) (*WorkerFullContext, *ResearchReport) {
	fc := &WorkerFullContext{
		TaskID:         task.ID,
		WorkerID:       w.workerID,
		Objective:      task.Objective,
		ToolsAvailable: task.Tools,
		ExpectedOutput: task.ExpectedOutput,
		Status:         session.StatusRunning,
		StartedAt:      time.Now(),
		Model:          w.agent.llm.Model(),
	}

	report, err := w.agent.Research(ctx, task.Objective)
	completed := time.Now()
	fc.CompletedAt = &completed
	fc.DurationSeconds = completed.Sub(fc.StartedAt).Seconds()

	if err != nil {
		fc.Status = session.StatusFailed
		fc.Error = err.Error()
		return fc, &ResearchReport{
			Query:   task.Objective,
			Content: fmt.Sprintf("Research failed due to error: %v", err),
			Model:   w.agent.llm.Model(),
			Err:     err.Error(),
		}
	}

	fc.ReactIterations = report.ReactIterations
	for _, it := range report.ReactIterations {
		fc.ToolCalls = append(fc.ToolCalls, it.Actions...)
	}
	fc.FinalOutput = report.Content
	fc.Sources = report.Sources
	fc.Status = session.StatusCompleted
	fc.Tokens = report.Tokens
	if report.Cost != nil {
		fc.Cost = report.Cost.TotalCost()
	}
	// Iteration exhaustion still produces an answer. The report's Err
	// tag carries that flag; a completed context never sets Error.
	return fc, report
}
