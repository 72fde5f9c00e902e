package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/pricing"
	"github.com/mohammad-safakhou/deepresearch/internal/tokens"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools"
)

const researchSystemPrompt = `You are a deep research agent that conducts thorough investigations.

CRITICAL: Before using any tool, you MUST explain your reasoning out loud. Start each step by
explaining what you're thinking, what you need to find out, and why.

PROCESS:
1. Explain your thinking: What do you need to know? Why?
2. Use available tools to gather information
3. Reflect on what you learned and what's still needed
4. Continue until you have comprehensive understanding

AVAILABLE TOOLS:
- search(query: str): Search the web using a SINGLE search query string
  Example: search("Python programming language tutorial")
  DO NOT pass a list of queries. Pass ONE string.
- fetch(url: str): Fetch and read webpage content
  Example: fetch("https://www.python.org")

IMPORTANT: Pass single string arguments, not lists!

OUTPUT FORMAT:
When you have sufficient information, provide your final answer wrapped in <answer> tags
as a markdown report:

<answer>
# Research Report: [Topic]

[Comprehensive markdown report with sections, citations, and sources]

## Sources
- [Title](URL)
</answer>

GUIDELINES:
- Be thorough but concise
- Always cite sources using markdown links: [Title](URL)
- Use tools iteratively to build comprehensive understanding
- Stop when you have sufficient information to answer thoroughly`

// budgetDirective is injected as a system message when token usage crosses
// 90% of the budget.
const budgetDirective = "Token budget nearly exhausted. Provide answer now."

// maxHistoryMessages bounds the conversation sent to the model: the system
// message plus the most recent 19 entries.
const maxHistoryMessages = 20

var answerRe = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)

// observationPreview is how much of each tool output is kept in the
// iteration observation log. The full output still reaches the model.
const observationPreview = 500

// ReactAgent runs a single think-act-observe research loop against the
// configured LLM and tool registry.
type ReactAgent struct {
	llm           LLMProvider
	registry      *tools.Registry
	maxIterations int
	maxTokens     int64
	temperature   float64
	progress      ProgressCallback
	workerID      string
	logger        *log.Logger

	iterations       int
	promptTokens     int64
	completionTokens int64
	visitedURLs      map[string]struct{}
	trace            []ReActIteration
	messages         []provider.Message
}

// ReactConfig carries the knobs for a ReactAgent.
type ReactConfig struct {
	MaxIterations int
	MaxTokens     int64
	Temperature   float64
	Progress      ProgressCallback
	WorkerID      string
}

func NewReactAgent(llm LLMProvider, registry *tools.Registry, cfg ReactConfig) *ReactAgent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 50_000
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgress{}
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "agent"
	}
	return &ReactAgent{
		llm:           llm,
		registry:      registry,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		progress:      progress,
		workerID:      workerID,
		logger:        log.New(log.Writer(), "[REACT] ", log.LstdFlags),
	}
}

// Research runs the loop until the model emits an <answer> block or the
// iteration budget runs out. Exhaustion is not an error; the report notes
// it and carries whatever sources were gathered.
func (a *ReactAgent) Research(ctx context.Context, query string) (*ResearchReport, error) {
	a.iterations = 0
	a.promptTokens = 0
	a.completionTokens = 0
	a.visitedURLs = make(map[string]struct{})
	a.trace = nil
	a.messages = []provider.Message{
		{Role: "system", Content: researchSystemPrompt},
		{Role: "user", Content: "Research this topic: " + query},
	}

	a.logger.Printf("%s: research started (model=%s)", a.workerID, a.llm.Model())

	for a.iterations < a.maxIterations {
		content, err := a.step(ctx)
		if err != nil {
			return nil, err
		}

		if answerRe.MatchString(content) {
			answer := extractAnswer(content)
			a.logger.Printf("%s: research completed in %d iterations (%d tokens, %d sources)",
				a.workerID, a.iterations, a.tokensUsed(), len(a.visitedURLs))
			return a.buildReport(query, answer, ""), nil
		}

		if a.tokensUsed() > a.maxTokens*9/10 {
			a.logger.Printf("%s: approaching token budget (%d used)", a.workerID, a.tokensUsed())
			a.messages = append(a.messages, provider.Message{Role: "system", Content: budgetDirective})
		}
	}

	a.logger.Printf("%s: max iterations reached (%d)", a.workerID, a.iterations)
	return a.buildReport(query, "Research incomplete due to iteration limit.", "max_iterations"), nil
}

func (a *ReactAgent) buildReport(query, content, errTag string) *ResearchReport {
	report := &ResearchReport{
		Query:           query,
		Content:         content,
		Sources:         a.sources(),
		Model:           a.llm.Model(),
		Iterations:      a.iterations,
		Tokens:          TokenUsage{Prompt: a.promptTokens, Completion: a.completionTokens, Total: a.tokensUsed()},
		ReactIterations: a.trace,
		Err:             errTag,
	}
	if p, ok := pricing.Lookup(a.llm.Model()); ok {
		breakdown := p.EstimateCost(a.promptTokens, a.completionTokens)
		report.Cost = &breakdown
	}
	return report
}

// step runs one ReAct iteration: truncate history, invoke the model,
// execute any tool calls, and capture the trace.
func (a *ReactAgent) step(ctx context.Context) (string, error) {
	a.iterations++
	a.truncateHistory()

	resp, err := a.llm.Chat(ctx, provider.ChatRequest{
		Messages:    a.messages,
		Tools:       a.registry.Schemas(),
		Temperature: a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm invocation failed at iteration %d: %w", a.iterations, err)
	}
	a.recordUsage(resp)

	content := resp.Message.Content
	a.messages = append(a.messages, resp.Message)

	if answerRe.MatchString(content) {
		// Final iteration carries the thought only.
		a.trace = append(a.trace, ReActIteration{
			Iteration: a.iterations,
			Thought:   content,
			Timestamp: time.Now(),
		})
		return content, nil
	}

	var actions []ToolCall
	var observation strings.Builder

	for _, call := range resp.Message.ToolCalls {
		record := a.executeToolCall(ctx, call)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		actions = append(actions, record)

		if record.Success {
			observation.WriteString(fmt.Sprintf("Tool %s output:\n%s...\n\n", record.ToolName, preview(record.Result, observationPreview)))
		} else {
			observation.WriteString(fmt.Sprintf("Tool %s error: %s\n\n", record.ToolName, record.Result))
		}

		a.messages = append(a.messages, provider.Message{
			Role:       "tool",
			Content:    record.Result,
			ToolCallID: call.ID,
		})
	}

	a.trace = append(a.trace, ReActIteration{
		Iteration:   a.iterations,
		Thought:     content,
		Actions:     actions,
		Observation: observation.String(),
		Timestamp:   time.Now(),
	})

	return content, nil
}

// executeToolCall dispatches one tool call. Unknown tools and tool
// failures come back as failed records rather than loop errors, so the
// model can observe and recover.
func (a *ReactAgent) executeToolCall(ctx context.Context, call provider.ToolCall) ToolCall {
	start := time.Now()
	record := ToolCall{
		ToolName:  call.Name,
		Timestamp: start,
		Iteration: a.iterations,
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			record.Result = fmt.Sprintf("Tool error: invalid arguments: %v", err)
			record.DurationSeconds = time.Since(start).Seconds()
			return record
		}
	}
	record.Arguments = args

	tool := a.registry.Get(call.Name)
	if tool == nil {
		record.Result = fmt.Sprintf("Tool error: unknown tool %q", call.Name)
		record.DurationSeconds = time.Since(start).Seconds()
		return record
	}

	a.progress.OnWorkerToolUse(a.workerID, call.Name, describeCall(call.Name, args))

	result, err := tool.Execute(ctx, args)
	record.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		record.Result = fmt.Sprintf("Tool error: %v", err)
		return record
	}

	record.Result = result.Content
	record.Success = result.Success

	// Only successfully fetched pages count as visited sources.
	if call.Name == "fetch" && result.Success {
		if url, ok := result.Metadata["url"].(string); ok && url != "" {
			a.visitedURLs[url] = struct{}{}
		}
	}

	return record
}

func (a *ReactAgent) truncateHistory() {
	if len(a.messages) <= maxHistoryMessages {
		return
	}
	system := a.messages[0]
	recent := a.messages[len(a.messages)-(maxHistoryMessages-1):]
	a.messages = append([]provider.Message{system}, recent...)
}

func (a *ReactAgent) recordUsage(resp *provider.ChatResponse) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		a.promptTokens += resp.Usage.PromptTokens
		a.completionTokens += resp.Usage.CompletionTokens
		return
	}
	// No usage metadata; approximate from the response text.
	a.completionTokens += int64(tokens.Count(resp.Message.Content))
}

func (a *ReactAgent) tokensUsed() int64 {
	return a.promptTokens + a.completionTokens
}

func (a *ReactAgent) sources() []string {
	out := make([]string, 0, len(a.visitedURLs))
	for url := range a.visitedURLs {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

func extractAnswer(content string) string {
	if m := answerRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func describeCall(name string, args map[string]any) string {
	switch name {
	case "search":
		return fmt.Sprintf("Searching: %v", args["query"])
	case "fetch":
		url := fmt.Sprint(args["url"])
		if len(url) > 50 {
			url = url[:47] + "..."
		}
		return "Reading: " + url
	default:
		return fmt.Sprintf("Running %s", name)
	}
}
