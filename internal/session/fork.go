package session

import (
	"fmt"
	"strings"
	"time"
)

// Forking is the only transition in the versioning state machine: every
// operation builds a NEW session at version+1 pointing back at the parent.
// The parent is never touched.

// maxContextChars bounds how much parent material is folded into a fork's
// research prompt.
const maxContextChars = 2000

func fork(parent *ResearchSession, now time.Time) ResearchSession {
	return ResearchSession{
		SessionID:       parent.SessionID,
		Version:         parent.Version + 1,
		ParentSessionID: parent.VersionedID(),
		Query:           parent.Query,
		ComplexityScore: parent.ComplexityScore,
		Model:           parent.Model,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Continue forks the parent session for follow-up research. The returned
// query carries the parent's insights and a truncated report summary so
// the new run builds on prior findings.
func Continue(parent *ResearchSession, instructions string, now time.Time) (ResearchSession, string) {
	child := fork(parent, now)

	var context strings.Builder
	for _, ins := range parent.Insights {
		context.WriteString("- ")
		context.WriteString(ins.Finding)
		context.WriteString("\n")
	}
	if context.Len() == 0 {
		for _, w := range parent.Workers {
			if w.CompressedSummary != "" {
				context.WriteString(w.CompressedSummary)
				context.WriteString("\n")
			}
		}
	}

	query := fmt.Sprintf(`Continue this research, building on what was already found.

**Original Query**: %s

**Prior Findings**:
%s
**Report Summary**:
%s

**New Instructions**: %s

Focus on the new instructions; do not repeat research that is already covered above.`,
		parent.Query,
		truncate(context.String(), maxContextChars),
		truncate(parent.Report, maxContextChars),
		instructions)

	return child, query
}

// Expand forks the parent session to deepen a single worker's research.
// The new run gets that worker's full (untruncated where budget allows)
// output as context.
func Expand(parent *ResearchSession, workerID, instructions string, now time.Time) (ResearchSession, string, error) {
	worker, ok := parent.Worker(workerID)
	if !ok {
		available := make([]string, 0, len(parent.Workers))
		for _, w := range parent.Workers {
			available = append(available, w.WorkerID)
		}
		return ResearchSession{}, "", fmt.Errorf("worker %q not found in session %s (available: %s)",
			workerID, parent.VersionedID(), strings.Join(available, ", "))
	}

	child := fork(parent, now)

	query := fmt.Sprintf(`Continue the research from the previous worker's findings.

**Previous Objective**: %s

**Previous Findings**:
%s
[... previous research truncated ...]

**New Instructions**: %s

Focus specifically on the new instructions while building on the previous research context.`,
		worker.Objective,
		truncate(worker.FinalOutput, maxContextChars),
		instructions)

	return child, query, nil
}

// Recompile forks the parent session for a re-synthesis of the existing
// worker findings. No new research runs; the caller feeds the returned
// session's workers back through synthesis with the extra instructions.
// The child inherits the parent's workers, sub-tasks and sources.
func Recompile(parent *ResearchSession, instructions string, now time.Time) (ResearchSession, string) {
	child := fork(parent, now)
	child.SubTasks = append([]SubTask(nil), parent.SubTasks...)
	child.Workers = append([]WorkerFullContext(nil), parent.Workers...)
	child.AllSources = append([]string(nil), parent.AllSources...)
	child.Insights = append([]Insight(nil), parent.Insights...)
	return child, instructions
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
