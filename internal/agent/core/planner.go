package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/provider"
)

// PlanErrorKind tags a planning failure so retries and final error
// messages can distinguish transport problems from bad model output.
type PlanErrorKind string

const (
	PlanErrorHTTP       PlanErrorKind = "http"
	PlanErrorDecode     PlanErrorKind = "decode"
	PlanErrorValidation PlanErrorKind = "validation"
	PlanErrorEmpty      PlanErrorKind = "empty"
	PlanErrorUnknown    PlanErrorKind = "unknown"
)

// PlanError is a single failed planning attempt.
type PlanError struct {
	Kind    PlanErrorKind
	Attempt int
	Err     error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan attempt %d failed (%s): %v", e.Attempt, e.Kind, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// Planner turns a research query into a complexity assessment and a set
// of independent sub-tasks.
type Planner struct {
	llm         LLMProvider
	logger      *log.Logger
	maxRetries  int
	backoff     time.Duration
	temperature float64
	usage       *usageTracker
}

func NewPlanner(llm LLMProvider, maxRetries int, backoff time.Duration, usage *usageTracker) *Planner {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Planner{
		llm:        llm,
		logger:     log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
		maxRetries: maxRetries,
		backoff:    backoff,
		usage:      usage,
	}
}

// WorkerCountFor maps a complexity score to the number of workers to
// spawn. Out-of-range scores clamp to the nearest band.
func WorkerCountFor(complexity float64) int {
	switch {
	case complexity < 0.3:
		return 1
	case complexity < 0.6:
		return 3
	default:
		return 5
	}
}

const analyzePromptTemplate = `Analyze this research query and return ONLY valid JSON.

Query: %s

IMPORTANT: Return ONLY a JSON object with exactly these fields.
No markdown, no explanation, nothing else.

Example format:
{
  "complexity": 0.5,
  "specificity": 0.7,
  "domains": ["technology", "software"],
  "multi_step": false
}

Your response must be a JSON object with:
- complexity: float between 0.0 and 1.0 (0.0 = very simple, 1.0 = very complex)
- specificity: float between 0.0 and 1.0 (0.0 = very vague, 1.0 = very specific)
- domains: array of domain names (e.g., ["technology", "business", "science"])
- multi_step: boolean (true if requires multiple research steps, false if single step)`

const planPromptTemplate = `Decompose this query into %d focused sub-tasks:

Query: %s

Each sub-task should:
- Be independently researchable
- Have clear objective
- Specify required tools (search, fetch)
- Minimize overlap

IMPORTANT: Return ONLY a valid JSON array, nothing else. No markdown, no explanation.
Each task must have these exact fields:
- id: string (task_1, task_2, etc.)
- objective: string (max 200 chars)
- tools: array of strings (e.g., ["search", "fetch"])
- expected_output: string (max 100 chars)

Example format:
[
  {
    "id": "task_1",
    "objective": "Research housing price trends in Sweden for 2024",
    "tools": ["search", "fetch"],
    "expected_output": "Overview of Swedish housing market trends"
  },
  {
    "id": "task_2",
    "objective": "Compare Malmo housing prices to other Swedish cities",
    "tools": ["search", "fetch"],
    "expected_output": "Comparative analysis of Malmo vs other cities"
  }
]`

// Analyze scores the query's complexity.
func (p *Planner) Analyze(ctx context.Context, query string) (QueryAnalysis, error) {
	p.logger.Printf("analyzing query: %.120s", query)

	resp, err := p.llm.Chat(ctx, provider.ChatRequest{
		Messages:    []provider.Message{{Role: "user", Content: fmt.Sprintf(analyzePromptTemplate, query)}},
		Temperature: p.temperature,
	})
	if err != nil {
		return QueryAnalysis{}, fmt.Errorf("query analysis failed: %w", err)
	}
	p.usage.record(resp)

	raw := strings.TrimSpace(resp.Message.Content)
	if raw == "" {
		return QueryAnalysis{}, errors.New("llm returned empty response during analysis; check API key and network")
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &analysis); err != nil {
		return QueryAnalysis{}, fmt.Errorf("invalid query analysis JSON: %w", err)
	}
	p.logger.Printf("analysis complete: complexity=%.2f specificity=%.2f domains=%v multi_step=%v",
		analysis.Complexity, analysis.Specificity, analysis.Domains, analysis.MultiStep)
	return analysis, nil
}

// Plan decomposes the query into sub-tasks, retrying on transient and
// parse failures. The final error aggregates what went wrong.
func (p *Planner) Plan(ctx context.Context, query string, complexity float64) ([]SubTask, error) {
	numWorkers := WorkerCountFor(complexity)
	p.logger.Printf("creating research plan: workers=%d complexity=%.2f", numWorkers, complexity)

	prompt := fmt.Sprintf(planPromptTemplate, numWorkers, query)

	var lastErr *PlanError
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if attempt > 1 && p.backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoff):
			}
		}

		tasks, planErr := p.attempt(ctx, prompt, attempt)
		if planErr == nil {
			p.logger.Printf("research plan created: %d tasks", len(tasks))
			for i, t := range tasks {
				p.logger.Printf("task %d: id=%s objective=%.100s", i+1, t.ID, t.Objective)
			}
			return tasks, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = planErr
		p.logger.Printf("%v", planErr)
	}

	msg := fmt.Sprintf("failed to create plan after %d attempts", p.maxRetries)
	if lastErr != nil && lastErr.Kind == PlanErrorDecode {
		msg += ": the API returned malformed JSON; this usually means an invalid API key, an unsupported model name, or an error page instead of JSON"
	}
	return nil, fmt.Errorf("%s: %w", msg, lastErr)
}

func (p *Planner) attempt(ctx context.Context, prompt string, attempt int) ([]SubTask, *PlanError) {
	resp, err := p.llm.Chat(ctx, provider.ChatRequest{
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
	})
	if err != nil {
		var pe *provider.ProviderError
		if errors.As(err, &pe) {
			return nil, &PlanError{Kind: PlanErrorHTTP, Attempt: attempt, Err: err}
		}
		return nil, &PlanError{Kind: PlanErrorUnknown, Attempt: attempt, Err: err}
	}
	p.usage.record(resp)

	raw := strings.TrimSpace(resp.Message.Content)
	if raw == "" {
		return nil, &PlanError{Kind: PlanErrorEmpty, Attempt: attempt,
			Err: errors.New("llm returned empty response; check API key and network")}
	}

	tasks, err := ParseSubTasks(raw)
	if err != nil {
		kind := PlanErrorValidation
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			kind = PlanErrorDecode
		}
		return nil, &PlanError{Kind: kind, Attempt: attempt, Err: err}
	}
	return tasks, nil
}

// ParseSubTasks decodes a model response into validated sub-tasks.
// Numeric ids are tolerated and stringified.
func ParseSubTasks(raw string) ([]SubTask, error) {
	extracted := ExtractJSON(raw)

	var items []struct {
		ID             any      `json:"id"`
		Objective      string   `json:"objective"`
		Tools          []string `json:"tools"`
		ExpectedOutput string   `json:"expected_output"`
	}
	if err := json.Unmarshal([]byte(extracted), &items); err != nil {
		return nil, fmt.Errorf("invalid sub-task JSON (length=%d): %.500s: %w", len(extracted), extracted, err)
	}
	if len(items) == 0 {
		return nil, errors.New("plan contained no sub-tasks")
	}

	tasks := make([]SubTask, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(stringifyID(item.ID))
		if id == "" {
			id = fmt.Sprintf("task_%d", i+1)
		}
		if strings.TrimSpace(item.Objective) == "" {
			return nil, fmt.Errorf("sub-task %s has no objective", id)
		}
		tasks = append(tasks, SubTask{
			ID:             id,
			Objective:      item.Objective,
			Tools:          item.Tools,
			ExpectedOutput: item.ExpectedOutput,
		})
	}
	return tasks, nil
}

func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("task_%d", int(id))
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// ExtractJSON pulls the first complete JSON object or array out of a
// model response, stripping markdown code fences and trailing prose. The
// scan tracks string literals and escapes so braces inside strings do not
// unbalance the depth count.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx != -1 {
			raw = raw[idx+1:]
		}
		if strings.HasSuffix(raw, "```") {
			raw = strings.TrimSpace(raw[:len(raw)-3])
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return raw
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return raw
}
