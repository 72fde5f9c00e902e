// Package vault persists research sessions as a markdown vault: one
// directory per session version holding the session note, per-worker notes
// with the full ReAct trace, extracted insights, deduplicated source pages
// and the compiled report. Notes carry YAML frontmatter so the vault is
// both human-browsable and machine-loadable.
package vault

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
)

const (
	timeLayout            = time.RFC3339
	maxSourceContentChars = 10_000
)

type sessionFrontmatter struct {
	Type          string             `yaml:"type"`
	SessionID     string             `yaml:"session_id"`
	Version       int                `yaml:"version"`
	ParentSession string             `yaml:"parent_session,omitempty"`
	Query         string             `yaml:"query"`
	Status        string             `yaml:"status"`
	CreatedAt     time.Time          `yaml:"created_at"`
	UpdatedAt     time.Time          `yaml:"updated_at"`
	Model         string             `yaml:"model"`
	Complexity    float64            `yaml:"complexity"`
	NumWorkers    int                `yaml:"num_workers"`
	TotalCost     float64            `yaml:"total_cost"`
	Tokens        session.TokenUsage `yaml:"tokens"`
	SubTasks      []session.SubTask  `yaml:"sub_tasks,omitempty"`
	Tags          []string           `yaml:"tags,omitempty"`
}

type workerFrontmatter struct {
	Type            string     `yaml:"type"`
	SessionID       string     `yaml:"session_id"`
	TaskID          string     `yaml:"task_id"`
	WorkerID        string     `yaml:"worker_id"`
	Objective       string     `yaml:"objective"`
	Status          string     `yaml:"status"`
	CreatedAt       time.Time  `yaml:"created_at"`
	CompletedAt     *time.Time `yaml:"completed_at,omitempty"`
	DurationSeconds float64    `yaml:"duration_seconds"`
	ToolCalls       int        `yaml:"tool_calls"`
	Cost            float64    `yaml:"cost"`
	Tags            []string   `yaml:"tags,omitempty"`
}

type insightFrontmatter struct {
	Type          string    `yaml:"type"`
	InsightNumber int       `yaml:"insight_number"`
	CreatedAt     time.Time `yaml:"created_at"`
	WorkerID      string    `yaml:"worker_id"`
	Confidence    string    `yaml:"confidence"`
	Tags          []string  `yaml:"tags,omitempty"`
}

type sourceFrontmatter struct {
	Type              string    `yaml:"type"`
	URL               string    `yaml:"url"`
	URLHash           string    `yaml:"url_hash"`
	FirstAccessed     time.Time `yaml:"first_accessed"`
	AccessedByWorkers []string  `yaml:"accessed_by_workers"`
	AccessCount       int       `yaml:"access_count"`
}

type reportFrontmatter struct {
	Type         string    `yaml:"type"`
	SessionID    string    `yaml:"session_id"`
	Version      int       `yaml:"version"`
	Query        string    `yaml:"query"`
	CreatedAt    time.Time `yaml:"created_at"`
	NumWorkers   int       `yaml:"num_workers"`
	TotalSources int       `yaml:"total_sources"`
	TotalCost    float64   `yaml:"total_cost"`
}

// Writer writes research sessions into a vault directory.
type Writer struct {
	path string
}

// NewWriter creates a writer rooted at path, creating the directory if
// needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}
	return &Writer{path: path}, nil
}

// Path returns the vault root directory.
func (w *Writer) Path() string { return w.path }

// Save writes the complete session to the vault and returns the path of
// the session note. Saving a session version is idempotent; it never
// touches other versions.
func (w *Writer) Save(s *session.ResearchSession) (string, error) {
	dir := filepath.Join(w.path, s.DirName())
	for _, sub := range []string{"", "workers", "insights", "sources", "reports"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create session directory: %w", err)
		}
	}

	if err := w.writeWorkers(s, dir); err != nil {
		return "", err
	}
	if err := w.writeInsights(s, dir); err != nil {
		return "", err
	}
	if err := w.writeSources(s, dir); err != nil {
		return "", err
	}
	if err := w.writeReport(s, dir); err != nil {
		return "", err
	}

	fm := sessionFrontmatter{
		Type:          "research_session",
		SessionID:     s.SessionID,
		Version:       s.Version,
		ParentSession: s.ParentSessionID,
		Query:         s.Query,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		Model:         s.Model,
		Complexity:    s.ComplexityScore,
		NumWorkers:    len(s.Workers),
		TotalCost:     s.Cost,
		Tokens:        s.Tokens,
		SubTasks:      s.SubTasks,
		Tags:          generateTags(s.Query),
	}
	content, err := sessionNote(s, fm)
	if err != nil {
		return "", err
	}
	notePath := filepath.Join(dir, "session.md")
	if err := os.WriteFile(notePath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write session note: %w", err)
	}
	return notePath, nil
}

func (w *Writer) writeWorkers(s *session.ResearchSession, dir string) error {
	for i := range s.Workers {
		worker := &s.Workers[i]
		fm := workerFrontmatter{
			Type:            "worker",
			SessionID:       s.SessionID,
			TaskID:          worker.TaskID,
			WorkerID:        worker.WorkerID,
			Objective:       worker.Objective,
			Status:          worker.Status,
			CreatedAt:       worker.StartedAt,
			CompletedAt:     worker.CompletedAt,
			DurationSeconds: worker.DurationSeconds,
			ToolCalls:       len(worker.ToolCalls),
			Cost:            worker.Cost,
			Tags:            generateTags(worker.Objective),
		}
		content, err := workerNote(worker, fm)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "workers", worker.TaskID+"_worker.md")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write worker note: %w", err)
		}
	}
	return nil
}

func (w *Writer) writeInsights(s *session.ResearchSession, dir string) error {
	for i, ins := range s.Insights {
		fm := insightFrontmatter{
			Type:          "insight",
			InsightNumber: i + 1,
			CreatedAt:     ins.CreatedAt,
			WorkerID:      ins.WorkerID,
			Confidence:    ins.Confidence,
			Tags:          ins.Tags,
		}
		content, err := insightNote(ins, fm)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "insights", fmt.Sprintf("insight_%d.md", i+1))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write insight note: %w", err)
		}
	}
	return nil
}

// writeSources writes one note per unique URL, tracking which workers
// fetched it. Page content comes from the first successful fetch call.
func (w *Writer) writeSources(s *session.ResearchSession, dir string) error {
	type sourceEntry struct {
		url           string
		content       string
		accessedBy    []string
		firstAccessed time.Time
	}

	var order []string
	entries := make(map[string]*sourceEntry)
	for i := range s.Workers {
		worker := &s.Workers[i]
		for _, url := range worker.Sources {
			e, ok := entries[url]
			if !ok {
				e = &sourceEntry{
					url:           url,
					content:       fetchedContent(worker, url),
					firstAccessed: worker.StartedAt,
				}
				entries[url] = e
				order = append(order, url)
			}
			e.accessedBy = append(e.accessedBy, worker.WorkerID)
		}
	}

	for _, url := range order {
		e := entries[url]
		hash := urlHash(url)
		fm := sourceFrontmatter{
			Type:              "source",
			URL:               url,
			URLHash:           hash,
			FirstAccessed:     e.firstAccessed,
			AccessedByWorkers: e.accessedBy,
			AccessCount:       len(e.accessedBy),
		}
		content, err := sourceNote(url, e.content, fm)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "sources", fmt.Sprintf("source_%s.md", hash))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write source note: %w", err)
		}
	}
	return nil
}

func (w *Writer) writeReport(s *session.ResearchSession, dir string) error {
	fm := reportFrontmatter{
		Type:         "report",
		SessionID:    s.SessionID,
		Version:      s.Version,
		Query:        s.Query,
		CreatedAt:    s.CreatedAt,
		NumWorkers:   len(s.Workers),
		TotalSources: len(s.AllSources),
		TotalCost:    s.Cost,
	}
	content, err := reportNote(s, fm)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "reports", fmt.Sprintf("report_v%d.md", s.Version))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// marshalWorker renders the full worker context as indented JSON for the
// lossless trace block in the worker note.
func marshalWorker(w *session.WorkerFullContext) (string, error) {
	out, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal worker context: %w", err)
	}
	return string(out), nil
}

func fetchedContent(w *session.WorkerFullContext, url string) string {
	for _, tc := range w.ToolCalls {
		if tc.ToolName != "fetch" || !tc.Success {
			continue
		}
		if u, ok := tc.Arguments["url"].(string); ok && u == url {
			return tc.Result
		}
	}
	return ""
}

func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return fmt.Sprintf("%x", sum)[:12]
}

// generateTags derives note tags from a query: lowercase words longer
// than three characters, punctuation stripped, five at most.
func generateTags(query string) []string {
	var tags []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, "?.,!")
		if len(word) <= 3 {
			continue
		}
		tags = append(tags, word)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}
