package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepresearch/internal/pricing"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/internal/tokens"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools"
)

var orchestratorTracer trace.Tracer = otel.Tracer("deepresearch/internal/agent/orchestrator")

// Orchestrator is the lead researcher. It analyzes a query, plans
// sub-tasks, fans out worker agents in parallel, compresses their
// findings and synthesizes the final report.
type Orchestrator struct {
	cfg       config.AgentsConfig
	llm       LLMProvider
	planner   *Planner
	registry  *tools.Registry
	progress  ProgressCallback
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	usage     *usageTracker
}

func NewOrchestrator(cfg config.AgentsConfig, llm LLMProvider, registry *tools.Registry, progress ProgressCallback, tel *telemetry.Telemetry) (*Orchestrator, error) {
	if _, err := pricing.Resolve(llm.Model()); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NoOpProgress{}
	}
	usage := &usageTracker{}
	return &Orchestrator{
		cfg:       cfg,
		llm:       llm,
		planner:   NewPlanner(llm, cfg.PlanMaxRetries, cfg.PlanRetryBackoff, usage),
		registry:  registry,
		progress:  progress,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		usage:     usage,
	}, nil
}

// Research runs the full multi-agent pipeline for one query.
func (o *Orchestrator) Research(ctx context.Context, query string) (*ProcessingResult, error) {
	started := time.Now()
	o.usage.reset()

	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.research",
		trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	// Analyze
	analysisCtx, analysisSpan := orchestratorTracer.Start(ctx, "orchestrator.analyze")
	analysis, err := o.planner.Analyze(analysisCtx, query)
	if err != nil {
		analysisSpan.SetStatus(codes.Error, err.Error())
		analysisSpan.End()
		span.SetStatus(codes.Error, err.Error())
		o.telemetry.RecordRun("failed", time.Since(started), 0)
		return nil, err
	}
	analysisSpan.SetAttributes(attribute.Float64("query.complexity", analysis.Complexity))
	analysisSpan.SetStatus(codes.Ok, "completed")
	analysisSpan.End()

	// Plan
	planCtx, planSpan := orchestratorTracer.Start(ctx, "orchestrator.plan")
	subTasks, err := o.planner.Plan(planCtx, query, analysis.Complexity)
	if err != nil {
		planSpan.SetStatus(codes.Error, err.Error())
		planSpan.End()
		span.SetStatus(codes.Error, err.Error())
		o.telemetry.RecordRun("failed", time.Since(started), 0)
		return nil, err
	}
	planSpan.SetAttributes(attribute.Int("plan.task_count", len(subTasks)))
	planSpan.SetStatus(codes.Ok, "completed")
	planSpan.End()

	// Fan out workers
	workerResults := o.executeTasks(ctx, subTasks)

	// Synthesize
	synthCtx, synthSpan := orchestratorTracer.Start(ctx, "orchestrator.synthesize")
	report, err := o.synthesize(synthCtx, query, workerResults)
	if err != nil {
		synthSpan.SetStatus(codes.Error, err.Error())
		synthSpan.End()
		span.SetStatus(codes.Error, err.Error())
		o.telemetry.RecordRun("failed", time.Since(started), 0)
		return nil, err
	}
	synthSpan.SetStatus(codes.Ok, "completed")
	synthSpan.End()

	result := &ProcessingResult{
		Query:           query,
		ComplexityScore: analysis.Complexity,
		SubTasks:        subTasks,
		WorkerResults:   workerResults,
		Report:          report,
		Sources:         mergeSources(workerResults),
		Model:           o.llm.Model(),
		Duration:        time.Since(started),
	}
	o.attachCosts(result)

	span.SetAttributes(
		attribute.Float64("run.cost_usd", result.Cost.TotalCost),
		attribute.Int64("run.tokens", result.Tokens.Total),
		attribute.Int("run.worker_count", len(workerResults)),
	)
	span.SetStatus(codes.Ok, "completed")

	o.telemetry.RecordRun("completed", result.Duration, result.Cost.TotalCost)
	o.logger.Printf("research completed: %d workers, %d sources, %d tokens, $%.4f, %s",
		len(workerResults), len(result.Sources), result.Tokens.Total,
		result.Cost.TotalCost, result.Duration.Round(time.Millisecond))
	return result, nil
}

// executeTasks runs one worker goroutine per sub-task and collects results
// in completion order. The orchestrator always waits for every worker;
// failures and timeouts come back as failure-shaped results so the
// synthesis step sees a complete picture.
func (o *Orchestrator) executeTasks(ctx context.Context, subTasks []SubTask) []WorkerResult {
	o.logger.Printf("spawning %d workers", len(subTasks))

	var wg sync.WaitGroup
	resultCh := make(chan WorkerResult, len(subTasks))

	for _, task := range subTasks {
		wg.Add(1)
		go func(task SubTask) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Printf("worker %s panicked: %v", task.ID, r)
					resultCh <- WorkerResult{
						TaskID:    task.ID,
						Objective: task.Objective,
						Summary:   fmt.Sprintf("Worker failed: panic: %v. Task: %s", r, task.Objective),
						Err:       fmt.Sprintf("panic: %v", r),
					}
				}
			}()
			resultCh <- o.runWorker(ctx, task)
		}(task)
	}

	wg.Wait()
	close(resultCh)

	results := make([]WorkerResult, 0, len(subTasks))
	for r := range resultCh {
		results = append(results, r)
	}
	// Stable order for reports and tests; collection order is completion order.
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	return results
}

func (o *Orchestrator) runWorker(ctx context.Context, task SubTask) WorkerResult {
	workerStart := time.Now()
	workerID := task.ID

	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.worker",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.objective", task.Objective),
		))
	defer span.End()

	timeout := o.cfg.WorkerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	workerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o.progress.OnWorkerStart(workerID, task.Objective)

	worker := NewWorkerAgent(o.llm, o.registry, workerID, o.cfg.WorkerMaxIterations, o.cfg.MaxTokens, o.progress)
	fc, report := worker.Execute(workerCtx, task)

	if fc.Status == session.StatusFailed {
		errMsg := fc.Error
		if workerCtx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("timeout (%s)", timeout)
			fc.Error = errMsg
		}
		o.logger.Printf("worker %s failed: %s", workerID, errMsg)
		o.progress.OnWorkerError(workerID, errMsg)
		o.telemetry.RecordWorker("failed", time.Since(workerStart))
		span.SetStatus(codes.Error, errMsg)

		return WorkerResult{
			TaskID:      task.ID,
			Objective:   task.Objective,
			Summary:     fmt.Sprintf("Worker failed: %s. Task: %s", errMsg, task.Objective),
			Err:         errMsg,
			FullContext: fc,
		}
	}

	summary, err := o.compress(ctx, report.Content)
	if err != nil {
		// Synthesis can still use the uncompressed output.
		o.logger.Printf("worker %s compression failed, using full output: %v", workerID, err)
		summary = report.Content
	}
	fc.CompressedSummary = summary

	o.progress.OnWorkerComplete(workerID)
	o.telemetry.RecordWorker("completed", time.Since(workerStart))
	o.telemetry.RecordTokens("worker", report.Tokens.Prompt, report.Tokens.Completion)
	if report.Cost != nil {
		o.telemetry.RecordCost("worker", report.Cost.TotalCost())
	}
	span.SetStatus(codes.Ok, "completed")

	return WorkerResult{
		TaskID:      task.ID,
		Objective:   task.Objective,
		Summary:     summary,
		Sources:     report.Sources,
		Tokens:      report.Tokens,
		Cost:        report.Cost,
		Err:         report.Err,
		FullContext: fc,
	}
}

// compress reduces worker output to the synthesis budget. Content already
// under budget passes through untouched, which keeps the operation
// idempotent.
func (o *Orchestrator) compress(ctx context.Context, content string) (string, error) {
	budget := o.cfg.CompressionTokens
	if budget <= 0 {
		budget = 2000
	}
	if tokens.Count(content) <= budget {
		return content, nil
	}

	prompt := fmt.Sprintf("Compress to %d tokens, preserving key insights:\n\n%s", budget, content)
	resp, err := o.llm.Chat(ctx, provider.ChatRequest{
		Messages:  []provider.Message{{Role: "user", Content: prompt}},
		MaxTokens: budget,
	})
	if err != nil {
		return "", err
	}
	o.usage.record(resp)
	return resp.Message.Content, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, query string, results []WorkerResult) (string, error) {
	o.logger.Printf("synthesizing results from %d workers", len(results))

	summaries := make([]string, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, r.Summary)
	}

	prompt := fmt.Sprintf(`Synthesize these research findings:

Query: %s

Findings from %d workers:
%s
%s

Create comprehensive markdown report with:
1. Summary
2. Key findings
3. Sources (cite all)
4. Conclusion
`, query, len(summaries), strings.Repeat("=", 50), strings.Join(summaries, "\n"))

	resp, err := o.llm.Chat(ctx, provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	o.usage.record(resp)
	return resp.Message.Content, nil
}

// Recompile re-synthesizes a report from previously gathered worker
// findings without running any new research. The instructions steer the
// synthesis prompt; the worker contexts come from a stored session.
func (o *Orchestrator) Recompile(ctx context.Context, query string, workers []WorkerFullContext) (*ProcessingResult, error) {
	started := time.Now()
	o.usage.reset()

	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.recompile",
		trace.WithAttributes(attribute.String("query", query), attribute.Int("workers", len(workers))))
	defer span.End()

	results := make([]WorkerResult, 0, len(workers))
	for _, w := range workers {
		summary := w.CompressedSummary
		if summary == "" {
			summary = w.FinalOutput
		}
		// The stored context keeps only the scalar cost, so the
		// breakdown is rebuilt from the token counts.
		var cost *pricing.CostBreakdown
		if mp, ok := pricing.Lookup(w.Model); ok {
			cb := mp.EstimateCost(w.Tokens.Prompt, w.Tokens.Completion)
			cost = &cb
		}
		results = append(results, WorkerResult{
			TaskID:    w.TaskID,
			Objective: w.Objective,
			Summary:   summary,
			Sources:   w.Sources,
			Tokens:    w.Tokens,
			Cost:      cost,
		})
	}

	report, err := o.synthesize(ctx, query, results)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")

	result := &ProcessingResult{
		Query:         query,
		WorkerResults: results,
		Report:        report,
		Sources:       mergeSources(results),
		Model:         o.llm.Model(),
		Duration:      time.Since(started),
	}
	o.attachCosts(result)
	return result, nil
}

// attachCosts aggregates lead and worker token spend into the result.
func (o *Orchestrator) attachCosts(result *ProcessingResult) {
	leadPrompt, leadCompletion := o.usage.totals()

	var workerCosts pricing.CostBreakdown
	for _, r := range result.WorkerResults {
		workerCosts.PromptTokens += r.Tokens.Prompt
		workerCosts.CompletionTokens += r.Tokens.Completion
		if r.Cost != nil {
			workerCosts.InputCost += r.Cost.InputCost
			workerCosts.OutputCost += r.Cost.OutputCost
		}
	}

	var leadCosts pricing.CostBreakdown
	if p, ok := pricing.Lookup(o.llm.Model()); ok {
		leadCosts = p.EstimateCost(leadPrompt, leadCompletion)
	} else {
		leadCosts = pricing.CostBreakdown{PromptTokens: leadPrompt, CompletionTokens: leadCompletion}
	}

	result.Tokens = TokenUsage{
		Prompt:     leadPrompt + workerCosts.PromptTokens,
		Completion: leadCompletion + workerCosts.CompletionTokens,
		Total:      leadPrompt + workerCosts.PromptTokens + leadCompletion + workerCosts.CompletionTokens,
	}
	result.Cost = CostSummary{
		Lead:      leadCosts,
		Workers:   workerCosts,
		TotalCost: leadCosts.TotalCost() + workerCosts.TotalCost(),
	}

	o.telemetry.RecordTokens("lead", leadPrompt, leadCompletion)
	o.telemetry.RecordCost("lead", leadCosts.TotalCost())
}

func mergeSources(results []WorkerResult) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range results {
		for _, s := range r.Sources {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
