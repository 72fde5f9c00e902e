package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/pricing"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools"
)

const (
	testAnalysis = `{"complexity": 0.5, "specificity": 0.8, "domains": ["science"], "multi_step": true}`
	testPlan     = `[
  {"id": "task_1", "objective": "alpha", "tools": ["search", "fetch"], "expected_output": "alpha findings"},
  {"id": "task_2", "objective": "beta", "tools": ["search", "fetch"], "expected_output": "beta findings"},
  {"id": "task_3", "objective": "gamma", "tools": ["search", "fetch"], "expected_output": "gamma findings"}
]`
)

// echoFetch returns whatever URL it was asked for, so each worker can
// visit a distinct source.
type echoFetch struct{}

func (echoFetch) Name() string           { return "fetch" }
func (echoFetch) Description() string    { return "echo fetch" }
func (echoFetch) Schema() map[string]any { return map[string]any{"type": "object"} }
func (echoFetch) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	url, _ := args["url"].(string)
	return tools.ToolResult{
		Success:  true,
		Content:  "content of " + url,
		Metadata: map[string]any{"url": url},
	}, nil
}

func newTestOrchestrator(t *testing.T, llm *stubLLM) *Orchestrator {
	t.Helper()
	cfg := config.AgentsConfig{
		WorkerMaxIterations: 5,
		MaxTokens:           1 << 40,
	}
	registry := tools.NewRegistry(
		&stubTool{name: "search", result: tools.ToolResult{Success: true, Content: "results"}},
		echoFetch{},
	)
	orch, err := NewOrchestrator(cfg, llm, registry, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

// pipelineDispatch answers analysis, planning and synthesis prompts from
// the lead role and plays a one-fetch-then-answer worker for everything
// carrying the research system prompt. failObjective, when set, makes
// that worker's LLM calls fail.
func pipelineDispatch(failObjective string) func(req provider.ChatRequest) (*provider.ChatResponse, error) {
	return func(req provider.ChatRequest) (*provider.ChatResponse, error) {
		if req.Messages[0].Role == "system" && req.Messages[0].Content == researchSystemPrompt {
			objective := strings.TrimPrefix(req.Messages[1].Content, "Research this topic: ")
			if objective == failObjective {
				return nil, errors.New("upstream 500")
			}
			if req.Messages[len(req.Messages)-1].Role == "tool" {
				return textResponse("<answer>Findings on " + objective + "</answer>"), nil
			}
			return toolCallResponse("looking up "+objective,
				fetchCall("c-"+objective, "https://src.example/"+objective)), nil
		}

		prompt := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.HasPrefix(prompt, "Analyze this research query"):
			return textResponse(testAnalysis), nil
		case strings.HasPrefix(prompt, "Decompose this query"):
			return textResponse(testPlan), nil
		case strings.HasPrefix(prompt, "Synthesize these research findings"):
			return textResponse("# Final Report"), nil
		default:
			return nil, errors.New("unexpected prompt: " + prompt)
		}
	}
}

func TestResearchPipeline(t *testing.T) {
	llm := newStubLLM()
	llm.respond = pipelineDispatch("")
	orch := newTestOrchestrator(t, llm)

	result, err := orch.Research(context.Background(), "how do solar storms affect satellites")
	if err != nil {
		t.Fatalf("research: %v", err)
	}

	if result.Report != "# Final Report" {
		t.Fatalf("report = %q", result.Report)
	}
	if result.ComplexityScore != 0.5 {
		t.Fatalf("complexity = %v", result.ComplexityScore)
	}
	if len(result.SubTasks) != 3 {
		t.Fatalf("sub-tasks = %d, want 3", len(result.SubTasks))
	}
	if len(result.WorkerResults) != 3 {
		t.Fatalf("worker results = %d, want 3", len(result.WorkerResults))
	}
	for i, want := range []string{"task_1", "task_2", "task_3"} {
		if result.WorkerResults[i].TaskID != want {
			t.Fatalf("results not ordered by task id: %v", result.WorkerResults)
		}
	}
	if got := result.WorkerResults[0].Summary; got != "Findings on alpha" {
		t.Fatalf("worker summary = %q", got)
	}
	wantSources := []string{
		"https://src.example/alpha",
		"https://src.example/beta",
		"https://src.example/gamma",
	}
	if len(result.Sources) != len(wantSources) {
		t.Fatalf("sources = %v", result.Sources)
	}
	for i, s := range wantSources {
		if result.Sources[i] != s {
			t.Fatalf("sources not merged and sorted: %v", result.Sources)
		}
	}
	if result.Tokens.Total <= 0 {
		t.Fatalf("tokens not aggregated: %+v", result.Tokens)
	}
	if result.Cost.TotalCost <= 0 {
		t.Fatalf("cost not attached: %+v", result.Cost)
	}
	if result.Model != pricing.DefaultModel {
		t.Fatalf("model = %q", result.Model)
	}

	// Worker output is short, so compression must pass through without a call.
	for i := 0; i < llm.callCount(); i++ {
		req := llm.request(i)
		if strings.HasPrefix(req.Messages[len(req.Messages)-1].Content, "Compress to") {
			t.Fatalf("short worker output should not trigger compression")
		}
	}
}

func TestResearchIsolatesWorkerFailure(t *testing.T) {
	llm := newStubLLM()
	llm.respond = pipelineDispatch("beta")
	orch := newTestOrchestrator(t, llm)

	result, err := orch.Research(context.Background(), "q")
	if err != nil {
		t.Fatalf("one failed worker must not fail the run: %v", err)
	}
	if result.Report != "# Final Report" {
		t.Fatalf("report = %q", result.Report)
	}

	failed := result.WorkerResults[1]
	if failed.TaskID != "task_2" || failed.Err == "" {
		t.Fatalf("expected task_2 to fail: %+v", failed)
	}
	if !strings.HasPrefix(failed.Summary, "Worker failed:") {
		t.Fatalf("failure summary = %q", failed.Summary)
	}
	if failed.FullContext == nil || failed.FullContext.Status != "failed" {
		t.Fatalf("full context should record the failure: %+v", failed.FullContext)
	}
	for _, i := range []int{0, 2} {
		if result.WorkerResults[i].Err != "" {
			t.Fatalf("healthy worker marked failed: %+v", result.WorkerResults[i])
		}
	}
}

func TestCompressPassThrough(t *testing.T) {
	llm := newStubLLM()
	orch := newTestOrchestrator(t, llm)

	content := "A short finding that fits the budget."
	got, err := orch.compress(context.Background(), content)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if got != content {
		t.Fatalf("under-budget content must pass through, got %q", got)
	}
	if llm.callCount() != 0 {
		t.Fatalf("pass-through must not call the model")
	}
}

func TestCompressLongContent(t *testing.T) {
	llm := newStubLLM()
	llm.enqueue("compressed findings")
	orch := newTestOrchestrator(t, llm)
	orch.cfg.CompressionTokens = 10

	long := strings.Repeat("satellite telemetry anomaly report ", 40)
	got, err := orch.compress(context.Background(), long)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if got != "compressed findings" {
		t.Fatalf("compress = %q", got)
	}

	req := llm.request(0)
	if req.MaxTokens != 10 {
		t.Fatalf("compression should cap output at the budget, got %d", req.MaxTokens)
	}
	if !strings.HasPrefix(req.Messages[0].Content, "Compress to 10 tokens") {
		t.Fatalf("prompt = %.60q", req.Messages[0].Content)
	}
}

func TestNewOrchestratorRejectsUnknownModel(t *testing.T) {
	llm := newStubLLM()
	llm.model = "nonexistent/model"
	_, err := NewOrchestrator(config.AgentsConfig{}, llm, tools.NewRegistry(), nil, nil)
	if !errors.Is(err, pricing.ErrUnsupportedModel) {
		t.Fatalf("err = %v, want ErrUnsupportedModel", err)
	}
}

func TestRecompile(t *testing.T) {
	llm := newStubLLM()
	llm.enqueue("# Rewritten Report")
	orch := newTestOrchestrator(t, llm)

	workers := []WorkerFullContext{
		{
			TaskID:            "task_1",
			Objective:         "alpha",
			CompressedSummary: "alpha summary",
			Sources:           []string{"https://src.example/alpha"},
			Model:             pricing.DefaultModel,
			Tokens:            TokenUsage{Prompt: 1000, Completion: 500, Total: 1500},
		},
		{
			TaskID:      "task_2",
			Objective:   "beta",
			FinalOutput: "beta full output",
			Sources:     []string{"https://src.example/beta"},
		},
	}

	result, err := orch.Recompile(context.Background(), "original query", workers)
	if err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if result.Report != "# Rewritten Report" {
		t.Fatalf("report = %q", result.Report)
	}
	if llm.callCount() != 1 {
		t.Fatalf("recompile must only synthesize, made %d calls", llm.callCount())
	}

	prompt := llm.request(0).Messages[0].Content
	if !strings.HasPrefix(prompt, "Synthesize these research findings") {
		t.Fatalf("prompt = %.60q", prompt)
	}
	if !strings.Contains(prompt, "alpha summary") {
		t.Fatalf("compressed summary missing from synthesis prompt")
	}
	if !strings.Contains(prompt, "beta full output") {
		t.Fatalf("final output fallback missing from synthesis prompt")
	}
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %v", result.Sources)
	}

	first := result.WorkerResults[0].Cost
	if first == nil || first.TotalCost() <= 0 {
		t.Fatalf("stored tokens should rebuild a cost breakdown, got %+v", first)
	}
	if first.PromptTokens != 1000 || first.CompletionTokens != 500 {
		t.Fatalf("breakdown tokens = %d/%d", first.PromptTokens, first.CompletionTokens)
	}
	if result.WorkerResults[1].Cost != nil {
		t.Fatalf("unknown model must not invent a cost: %+v", result.WorkerResults[1].Cost)
	}
}
