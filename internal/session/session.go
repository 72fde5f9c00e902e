// Package session defines the versioned research session model: the full
// per-worker execution traces, the session aggregate, and the forking
// operations that create new versions. Persistence lives in the vault
// subpackage.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubTask is a focused research assignment handed to one worker.
type SubTask struct {
	ID             string   `json:"id" yaml:"id"`
	Objective      string   `json:"objective" yaml:"objective"`
	Tools          []string `json:"tools" yaml:"tools"`
	ExpectedOutput string   `json:"expected_output" yaml:"expected_output"`
}

// ToolCall records a single tool invocation inside an agent loop.
type ToolCall struct {
	ToolName        string         `json:"tool_name"`
	Arguments       map[string]any `json:"arguments"`
	Result          string         `json:"result"`
	Success         bool           `json:"success"`
	DurationSeconds float64        `json:"duration_seconds"`
	Timestamp       time.Time      `json:"timestamp"`
	Iteration       int            `json:"iteration"`
}

// ReActIteration is one thought-action-observation cycle.
type ReActIteration struct {
	Iteration   int        `json:"iteration"`
	Thought     string     `json:"thought"`
	Actions     []ToolCall `json:"actions"`
	Observation string     `json:"observation"`
	Timestamp   time.Time  `json:"timestamp"`
}

// TokenUsage is accumulated token consumption.
type TokenUsage struct {
	Prompt     int64 `json:"prompt" yaml:"prompt"`
	Completion int64 `json:"completion" yaml:"completion"`
	Total      int64 `json:"total" yaml:"total"`
}

// Worker lifecycle states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// WorkerFullContext is the complete execution trace of one worker. Nothing
// here is compressed; the vault persists it losslessly so later versions
// can expand or recompile without re-running research.
type WorkerFullContext struct {
	TaskID         string   `json:"task_id"`
	WorkerID       string   `json:"worker_id"`
	Objective      string   `json:"objective"`
	ToolsAvailable []string `json:"tools_available"`
	ExpectedOutput string   `json:"expected_output"`

	ReactIterations []ReActIteration `json:"react_iterations"`
	ToolCalls       []ToolCall       `json:"tool_calls"`

	FinalOutput       string   `json:"final_output"`
	CompressedSummary string   `json:"compressed_summary"`
	Sources           []string `json:"sources"`

	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	Cost            float64    `json:"cost"`
	Tokens          TokenUsage `json:"tokens"`
	Model           string     `json:"model"`
}

// Insight is a key finding auto-extracted from a worker's output.
type Insight struct {
	Title        string    `json:"title"`
	Finding      string    `json:"finding"`
	Evidence     string    `json:"evidence"`
	Implications string    `json:"implications"`
	Confidence   string    `json:"confidence"` // high, medium, low
	Tags         []string  `json:"tags"`
	WorkerID     string    `json:"worker_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResearchSession is the top-level aggregate for one research run. The
// version chain is append-only: new work forks forward via Continue,
// Expand or Recompile, and a saved session is never mutated.
type ResearchSession struct {
	SessionID       string `json:"session_id"`
	Version         int    `json:"version"` // >= 1
	ParentSessionID string `json:"parent_session_id,omitempty"`

	Query           string    `json:"query"`
	ComplexityScore float64   `json:"complexity_score"`
	SubTasks        []SubTask `json:"sub_tasks"`

	Workers []WorkerFullContext `json:"workers"`

	Report     string   `json:"report"`
	AllSources []string `json:"all_sources"`

	Insights []Insight `json:"insights"`

	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Model     string     `json:"model"`
	Cost      float64    `json:"cost"`
	Tokens    TokenUsage `json:"tokens"`
}

// DirName is the vault directory name for this session version.
func (s *ResearchSession) DirName() string {
	return fmt.Sprintf("%s_v%d", s.SessionID, s.Version)
}

// VersionedID identifies this exact session version, and is what children
// record as their parent.
func (s *ResearchSession) VersionedID() string {
	return fmt.Sprintf("%s_v%d", s.SessionID, s.Version)
}

// Worker returns the worker matching the given worker or task id.
func (s *ResearchSession) Worker(id string) (*WorkerFullContext, bool) {
	for i := range s.Workers {
		w := &s.Workers[i]
		if w.WorkerID == id || w.TaskID == id {
			return w, true
		}
	}
	return nil, false
}

// SplitVersionedID splits "session_x_v3" into ("session_x", 3). An id
// without a version suffix returns version 0.
func SplitVersionedID(id string) (string, int) {
	i := strings.LastIndex(id, "_v")
	if i < 0 {
		return id, 0
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil || n < 1 {
		return id, 0
	}
	return id[:i], n
}

// NewSessionID generates a fresh session identifier, e.g.
// "session_20250120_142530_ab12cd34".
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

// New creates a version-1 session for a fresh query.
func New(query, model string, now time.Time) ResearchSession {
	return ResearchSession{
		SessionID: NewSessionID(now),
		Version:   1,
		Query:     query,
		Model:     model,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
