package vault

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
)

// frontmatterBlock renders a YAML frontmatter block for a markdown note.
func frontmatterBlock(data any) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return fmt.Sprintf("---\n%s---\n\n", out), nil
}

func sessionNote(s *session.ResearchSession, fm sessionFrontmatter) (string, error) {
	block, err := frontmatterBlock(fm)
	if err != nil {
		return "", err
	}

	var workerLinks []string
	for i, w := range s.Workers {
		workerLinks = append(workerLinks, fmt.Sprintf("%d. [[workers/%s_worker|Worker %d]]: %s", i+1, w.TaskID, i+1, w.Objective))
	}
	workersSection := "No workers"
	if len(workerLinks) > 0 {
		workersSection = strings.Join(workerLinks, "\n")
	}

	var insightLinks []string
	for i, ins := range s.Insights {
		insightLinks = append(insightLinks, fmt.Sprintf("- [[insights/insight_%d|%s]]", i+1, insightTitle(ins, i)))
	}
	insightsSection := "No insights extracted"
	if len(insightLinks) > 0 {
		insightsSection = strings.Join(insightLinks, "\n")
	}

	var breakdown []string
	for _, w := range s.Workers {
		breakdown = append(breakdown, fmt.Sprintf("- %s: %d sources", w.WorkerID, len(w.Sources)))
	}

	var b strings.Builder
	b.WriteString(block)
	fmt.Fprintf(&b, "# Research Session: %s\n\n", s.Query)
	fmt.Fprintf(&b, "## Query\n> %s\n\n", s.Query)
	fmt.Fprintf(&b, "## Research Plan\n\n")
	fmt.Fprintf(&b, "Complexity: %.2f (%d workers)\n\n", s.ComplexityScore, len(s.Workers))
	fmt.Fprintf(&b, "### Workers\n%s\n\n", workersSection)
	fmt.Fprintf(&b, "## Compiled Reports\n\n- [[reports/report_v%d|Report v%d]] - Synthesis (%s)\n\n", s.Version, s.Version, s.CreatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "## Key Insights\n\n%s\n\n", insightsSection)
	fmt.Fprintf(&b, "## Sources\n\nTotal: %d sources across all workers\n\n### By Worker\n%s\n\n", len(s.AllSources), strings.Join(breakdown, "\n"))
	fmt.Fprintf(&b, "## Metadata\n\n")
	fmt.Fprintf(&b, "- **Session ID**: `%s`\n", s.SessionID)
	fmt.Fprintf(&b, "- **Version**: %d\n", s.Version)
	fmt.Fprintf(&b, "- **Status**: %s\n", s.Status)
	fmt.Fprintf(&b, "- **Model**: %s\n", s.Model)
	fmt.Fprintf(&b, "- **Total Cost**: $%.4f\n", s.Cost)
	fmt.Fprintf(&b, "- **Created**: %s\n", s.CreatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "- **Updated**: %s\n", s.UpdatedAt.Format(timeLayout))
	return b.String(), nil
}

func workerNote(w *session.WorkerFullContext, fm workerFrontmatter) (string, error) {
	block, err := frontmatterBlock(fm)
	if err != nil {
		return "", err
	}

	var trace strings.Builder
	for _, it := range w.ReactIterations {
		fmt.Fprintf(&trace, "### Iteration %d\n\n", it.Iteration)
		fmt.Fprintf(&trace, "**Thought**: %s\n\n", it.Thought)
		if len(it.Actions) > 0 {
			trace.WriteString("**Actions**:\n")
			for _, a := range it.Actions {
				mark := "ok"
				if !a.Success {
					mark = "failed"
				}
				fmt.Fprintf(&trace, "- `%s` (%s, %.2fs)\n", a.ToolName, mark, a.DurationSeconds)
			}
			trace.WriteString("\n")
		}
		if it.Observation != "" {
			fmt.Fprintf(&trace, "**Observation**:\n```\n%s\n```\n\n", clip(it.Observation, 500))
		}
	}

	ctxJSON, err := marshalWorker(w)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(block)
	fmt.Fprintf(&b, "# Worker: %s\n\n", w.Objective)
	fmt.Fprintf(&b, "**Session**: [[../session|Session]]\n**Objective**: %s\n\n", w.Objective)
	fmt.Fprintf(&b, "## Research Process (ReAct Loop)\n\n%s", trace.String())
	fmt.Fprintf(&b, "## Final Output\n\n%s\n\n", w.FinalOutput)
	fmt.Fprintf(&b, "## Compressed Summary\n\n%s\n\n", w.CompressedSummary)
	fmt.Fprintf(&b, "## Metadata\n\n")
	fmt.Fprintf(&b, "- **Task ID**: `%s`\n", w.TaskID)
	fmt.Fprintf(&b, "- **Worker ID**: `%s`\n", w.WorkerID)
	fmt.Fprintf(&b, "- **Status**: %s\n", w.Status)
	fmt.Fprintf(&b, "- **Duration**: %.2fs\n", w.DurationSeconds)
	fmt.Fprintf(&b, "- **Tool Calls**: %d\n", len(w.ToolCalls))
	fmt.Fprintf(&b, "- **Cost**: $%.4f\n", w.Cost)
	fmt.Fprintf(&b, "- **Sources**: %d\n\n", len(w.Sources))
	fmt.Fprintf(&b, "## Full Context\n\n```json\n%s\n```\n", ctxJSON)
	return b.String(), nil
}

func insightNote(ins session.Insight, fm insightFrontmatter) (string, error) {
	block, err := frontmatterBlock(fm)
	if err != nil {
		return "", err
	}

	evidence := ins.Evidence
	if evidence == "" {
		evidence = "No evidence provided"
	}
	implications := ins.Implications
	if implications == "" {
		implications = "No implications provided"
	}

	var b strings.Builder
	b.WriteString(block)
	fmt.Fprintf(&b, "# %s\n\n", ins.Title)
	fmt.Fprintf(&b, "**Context**: [[../session|Session]] -> [[../workers/%s_worker|Worker]]\n\n", ins.WorkerID)
	fmt.Fprintf(&b, "## Insight\n\n%s\n\n", ins.Finding)
	fmt.Fprintf(&b, "## Evidence\n\n%s\n\n", evidence)
	fmt.Fprintf(&b, "## Implications\n\n%s\n", implications)
	return b.String(), nil
}

func sourceNote(url, content string, fm sourceFrontmatter) (string, error) {
	block, err := frontmatterBlock(fm)
	if err != nil {
		return "", err
	}

	var links []string
	for _, wid := range fm.AccessedByWorkers {
		links = append(links, fmt.Sprintf("- [[../workers/%s_worker|%s]]", wid, wid))
	}

	display := content
	if len(display) > maxSourceContentChars {
		display = display[:maxSourceContentChars] + "\n\n[Content truncated...]"
	}

	var b strings.Builder
	b.WriteString(block)
	fmt.Fprintf(&b, "# Source: %s\n\n", url)
	fmt.Fprintf(&b, "## URL\n%s\n\n", url)
	fmt.Fprintf(&b, "## Accessed By Workers\n%s\n\n", strings.Join(links, "\n"))
	fmt.Fprintf(&b, "## Content\n\n```\n%s\n```\n", display)
	return b.String(), nil
}

func reportNote(s *session.ResearchSession, fm reportFrontmatter) (string, error) {
	block, err := frontmatterBlock(fm)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(block)
	fmt.Fprintf(&b, "# Research Report: %s\n\n", s.Query)
	fmt.Fprintf(&b, "**Session**: [[%s]]\n**Generated**: %s\n\n", s.VersionedID(), s.CreatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "---\n\n%s\n\n---\n\n", s.Report)
	fmt.Fprintf(&b, "## Research Metadata\n\n")
	fmt.Fprintf(&b, "- **Workers**: %d\n", len(s.Workers))
	fmt.Fprintf(&b, "- **Sources**: %d\n", len(s.AllSources))
	fmt.Fprintf(&b, "- **Total Cost**: $%.4f\n", s.Cost)
	fmt.Fprintf(&b, "- **Model**: %s\n", s.Model)
	return b.String(), nil
}

func insightTitle(ins session.Insight, index int) string {
	title := ins.Title
	if title == "" {
		title = ins.Finding
		if i := strings.Index(title, "."); i >= 0 {
			title = title[:i]
		}
	}
	title = clip(title, 50)
	if title == "" {
		return fmt.Sprintf("Insight %d", index+1)
	}
	return title
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
