package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
)

// ErrNotFound is returned when the requested session version does not
// exist in the vault.
var ErrNotFound = errors.New("session not found")

// Summary is the listing view of a stored session version.
type Summary struct {
	SessionID  string
	Version    int
	Query      string
	Status     string
	CreatedAt  time.Time
	NumWorkers int
	TotalCost  float64
}

// Loader reads research sessions back from a vault directory.
type Loader struct {
	path string
}

// NewLoader creates a loader rooted at path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reconstructs a session version from its vault directory. Worker
// traces come from the fenced JSON block in each worker note, so the
// round-trip through the vault is lossless.
func (l *Loader) Load(sessionID string, version int) (session.ResearchSession, error) {
	dir := filepath.Join(l.path, fmt.Sprintf("%s_v%d", sessionID, version))
	raw, err := os.ReadFile(filepath.Join(dir, "session.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return session.ResearchSession{}, fmt.Errorf("%w: %s v%d", ErrNotFound, sessionID, version)
		}
		return session.ResearchSession{}, fmt.Errorf("read session note: %w", err)
	}

	var fm sessionFrontmatter
	if _, err := parseFrontmatter(string(raw), &fm); err != nil {
		return session.ResearchSession{}, fmt.Errorf("parse session note: %w", err)
	}

	s := session.ResearchSession{
		SessionID:       fm.SessionID,
		Version:         fm.Version,
		ParentSessionID: fm.ParentSession,
		Query:           fm.Query,
		ComplexityScore: fm.Complexity,
		SubTasks:        fm.SubTasks,
		Status:          fm.Status,
		CreatedAt:       fm.CreatedAt,
		UpdatedAt:       fm.UpdatedAt,
		Model:           fm.Model,
		Cost:            fm.TotalCost,
		Tokens:          fm.Tokens,
	}

	s.Workers, err = l.loadWorkers(dir)
	if err != nil {
		return session.ResearchSession{}, err
	}
	s.Insights, err = l.loadInsights(dir)
	if err != nil {
		return session.ResearchSession{}, err
	}
	s.Report = l.loadReport(dir, fm.Version)
	s.AllSources = aggregateSources(s.Workers)
	return s, nil
}

func (l *Loader) loadWorkers(dir string) ([]session.WorkerFullContext, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "workers", "*_worker.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var workers []session.WorkerFullContext
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read worker note: %w", err)
		}
		w, err := parseWorkerNote(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse worker note %s: %w", filepath.Base(path), err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// parseWorkerNote recovers the full worker context from the fenced JSON
// block in the note body.
func parseWorkerNote(content string) (session.WorkerFullContext, error) {
	var fm workerFrontmatter
	body, err := parseFrontmatter(content, &fm)
	if err != nil {
		return session.WorkerFullContext{}, err
	}

	block, ok := extractFencedJSON(body)
	if !ok {
		return session.WorkerFullContext{}, errors.New("no trace block found")
	}
	var w session.WorkerFullContext
	if err := json.Unmarshal([]byte(block), &w); err != nil {
		return session.WorkerFullContext{}, fmt.Errorf("decode trace block: %w", err)
	}
	return w, nil
}

func (l *Loader) loadInsights(dir string) ([]session.Insight, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "insights", "insight_*.md"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return insightNumber(paths[i]) < insightNumber(paths[j])
	})

	var insights []session.Insight
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read insight note: %w", err)
		}
		var fm insightFrontmatter
		body, err := parseFrontmatter(string(raw), &fm)
		if err != nil {
			return nil, fmt.Errorf("parse insight note %s: %w", filepath.Base(path), err)
		}
		sections := splitSections(body)
		insights = append(insights, session.Insight{
			Title:        firstHeading(body),
			Finding:      sections["Insight"],
			Evidence:     sections["Evidence"],
			Implications: sections["Implications"],
			Confidence:   fm.Confidence,
			Tags:         fm.Tags,
			WorkerID:     fm.WorkerID,
			CreatedAt:    fm.CreatedAt,
		})
	}
	return insights, nil
}

func (l *Loader) loadReport(dir string, version int) string {
	raw, err := os.ReadFile(filepath.Join(dir, "reports", fmt.Sprintf("report_v%d.md", version)))
	if err != nil {
		return ""
	}
	var fm reportFrontmatter
	body, err := parseFrontmatter(string(raw), &fm)
	if err != nil {
		return ""
	}
	// Report content sits between the two horizontal rules the writer
	// emits around it.
	start := strings.Index(body, "---\n")
	if start < 0 {
		return body
	}
	rest := body[start+len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// List enumerates stored session versions, newest first. Entries that
// cannot be read or parsed are skipped rather than failing the listing.
func (l *Loader) List() ([]Summary, error) {
	entries, err := os.ReadDir(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vault directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session_") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.path, entry.Name(), "session.md"))
		if err != nil {
			continue
		}
		var fm sessionFrontmatter
		if _, err := parseFrontmatter(string(raw), &fm); err != nil {
			continue
		}
		out = append(out, Summary{
			SessionID:  fm.SessionID,
			Version:    fm.Version,
			Query:      fm.Query,
			Status:     fm.Status,
			CreatedAt:  fm.CreatedAt,
			NumWorkers: fm.NumWorkers,
			TotalCost:  fm.TotalCost,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Version > out[j].Version
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// parseFrontmatter decodes the YAML frontmatter block into dst and
// returns the remaining body. Fences match only on their own line, so a
// "---" inside a frontmatter value (a query, say) never closes the block.
func parseFrontmatter(content string, dst any) (string, error) {
	if !strings.HasPrefix(content, "---\n") {
		return content, errors.New("missing frontmatter")
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return content, errors.New("malformed frontmatter")
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), dst); err != nil {
		return "", fmt.Errorf("decode frontmatter: %w", err)
	}
	return strings.TrimSpace(rest[end+len("\n---\n"):]), nil
}

// extractFencedJSON returns the content of the last ```json fence in the
// body. The worker note emits the trace block last so observation text
// containing fences never shadows it.
func extractFencedJSON(body string) (string, bool) {
	start := strings.LastIndex(body, "```json\n")
	if start < 0 {
		return "", false
	}
	rest := body[start+len("```json\n"):]
	end := strings.Index(rest, "\n```")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// splitSections maps "## " header names to their section bodies.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	var name string
	var lines []string
	flush := func() {
		if name != "" {
			sections[name] = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			name = strings.TrimSpace(line[3:])
			lines = lines[:0]
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func insightNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".md")
	var n int
	fmt.Sscanf(base, "insight_%d", &n)
	return n
}

func aggregateSources(workers []session.WorkerFullContext) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range workers {
		for _, s := range workers[i].Sources {
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
