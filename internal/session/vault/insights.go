package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

const insightPrompt = `You are an expert research analyst. Extract key insights from the worker's research output.

For each insight, provide:
1. **Title**: Short, descriptive title (max 60 chars)
2. **Finding**: The core insight or discovery (2-3 sentences)
3. **Evidence**: Supporting evidence from the research (1-2 sentences, cite specifics)
4. **Implications**: What this means or why it matters (1-2 sentences)
5. **Confidence**: high, medium, or low
6. **Tags**: 3-5 relevant keywords

Return a JSON array of insights. Extract 2-4 key insights per worker output.

Example:
` + "```json" + `
[
  {
    "title": "Foundation models reaching 10T parameters",
    "finding": "Foundation models are now reaching 10 trillion parameters through mixture-of-experts (MoE) architectures, while maintaining computational efficiency by activating only sparse subsets during inference.",
    "evidence": "MoE architectures enable 10T+ parameter models while maintaining inference costs comparable to dense 1T models (Source: ArXiv Scaling Laws Update 2024).",
    "implications": "This enables unprecedented model capacity without proportional cost increases, making large-scale models more accessible for research and production use.",
    "confidence": "high",
    "tags": ["scaling-laws", "mixture-of-experts", "model-architecture", "efficiency"]
  }
]
` + "```" + `

Worker Output:
%s`

var insightLogger = log.New(log.Writer(), "[INSIGHTS] ", log.LstdFlags)

// ExtractInsights runs an LLM pass over each completed worker's final
// output and returns the extracted insights. Extraction is best effort: a
// failure for one worker is logged and skipped, never propagated, so a
// finished research run always saves.
func ExtractInsights(ctx context.Context, llm provider.Provider, s *session.ResearchSession) []session.Insight {
	var all []session.Insight
	for i := range s.Workers {
		w := &s.Workers[i]
		if w.Status != session.StatusCompleted || w.FinalOutput == "" {
			continue
		}
		insights, err := extractWorkerInsights(ctx, llm, w)
		if err != nil {
			insightLogger.Printf("extraction failed for %s: %v", w.WorkerID, err)
			continue
		}
		insightLogger.Printf("extracted %d insights from %s", len(insights), w.WorkerID)
		all = append(all, insights...)
	}
	return all
}

func extractWorkerInsights(ctx context.Context, llm provider.Provider, w *session.WorkerFullContext) ([]session.Insight, error) {
	resp, err := llm.Chat(ctx, provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "You are an expert research analyst."},
			{Role: "user", Content: fmt.Sprintf(insightPrompt, w.FinalOutput)},
		},
	})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Title        string   `json:"title"`
		Finding      string   `json:"finding"`
		Evidence     string   `json:"evidence"`
		Implications string   `json:"implications"`
		Confidence   string   `json:"confidence"`
		Tags         []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Message.Content)), &raw); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}

	now := time.Now()
	insights := make([]session.Insight, 0, len(raw))
	for _, r := range raw {
		confidence := r.Confidence
		if confidence == "" {
			confidence = "medium"
		}
		insights = append(insights, session.Insight{
			Title:        r.Title,
			Finding:      r.Finding,
			Evidence:     r.Evidence,
			Implications: r.Implications,
			Confidence:   confidence,
			Tags:         r.Tags,
			WorkerID:     w.WorkerID,
			CreatedAt:    now,
		})
	}
	return insights, nil
}

// stripFences unwraps a markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
	} else {
		return s
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
