package vault

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
)

func testSession() session.ResearchSession {
	now := time.Date(2025, 1, 20, 14, 25, 30, 0, time.UTC)
	completed := now.Add(90 * time.Second)
	return session.ResearchSession{
		SessionID:       "session_20250120_142530_ab12cd34",
		Version:         1,
		Query:           "impact of solar storms on satellites",
		ComplexityScore: 0.7,
		SubTasks: []session.SubTask{
			{ID: "task_1", Objective: "survey recent solar storm events", Tools: []string{"search", "fetch"}, ExpectedOutput: "event list"},
		},
		Workers: []session.WorkerFullContext{
			{
				TaskID:         "task_1",
				WorkerID:       "worker_1",
				Objective:      "survey recent solar storm events",
				ToolsAvailable: []string{"search", "fetch"},
				ExpectedOutput: "event list",
				ReactIterations: []session.ReActIteration{
					{
						Iteration: 1,
						Thought:   "I should search for recent events",
						Actions: []session.ToolCall{
							{
								ToolName:        "fetch",
								Arguments:       map[string]any{"url": "https://example.com/storms"},
								Result:          "page content about storms",
								Success:         true,
								DurationSeconds: 1.5,
								Timestamp:       now,
								Iteration:       1,
							},
						},
						Observation: "found an event list",
						Timestamp:   now,
					},
				},
				ToolCalls: []session.ToolCall{
					{
						ToolName:        "fetch",
						Arguments:       map[string]any{"url": "https://example.com/storms"},
						Result:          "page content about storms",
						Success:         true,
						DurationSeconds: 1.5,
						Timestamp:       now,
						Iteration:       1,
					},
				},
				FinalOutput:       "Detailed findings about solar storms.",
				CompressedSummary: "Storms in 2024 caused outages.",
				Sources:           []string{"https://example.com/storms"},
				Status:            session.StatusCompleted,
				StartedAt:         now,
				CompletedAt:       &completed,
				DurationSeconds:   90,
				Cost:              0.0123,
				Tokens:            session.TokenUsage{Prompt: 1000, Completion: 200, Total: 1200},
				Model:             "test-model",
			},
		},
		Report:     "Solar storms degrade satellite electronics.",
		AllSources: []string{"https://example.com/storms"},
		Insights: []session.Insight{
			{
				Title:        "Storm frequency rising",
				Finding:      "Event frequency doubled since 2020.",
				Evidence:     "NOAA records show 2x events.",
				Implications: "Operators need hardening budgets.",
				Confidence:   "high",
				Tags:         []string{"solar", "satellites"},
				WorkerID:     "worker_1",
				CreatedAt:    now,
			},
		},
		Status:    session.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     "test-model",
		Cost:      0.0456,
		Tokens:    session.TokenUsage{Prompt: 5000, Completion: 1500, Total: 6500},
	}
}

func saveTestSession(t *testing.T, dir string, s *session.ResearchSession) string {
	t.Helper()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	path, err := w.Save(s)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestSaveLayout(t *testing.T) {
	dir := t.TempDir()
	s := testSession()
	path := saveTestSession(t, dir, &s)

	sessionDir := filepath.Join(dir, "session_20250120_142530_ab12cd34_v1")
	if path != filepath.Join(sessionDir, "session.md") {
		t.Fatalf("session note path = %s", path)
	}
	for _, want := range []string{
		"session.md",
		filepath.Join("workers", "task_1_worker.md"),
		filepath.Join("reports", "report_v1.md"),
		filepath.Join("insights", "insight_1.md"),
	} {
		if _, err := os.Stat(filepath.Join(sessionDir, want)); err != nil {
			t.Fatalf("missing %s: %v", want, err)
		}
	}

	// one source note, named by url hash
	matches, _ := filepath.Glob(filepath.Join(sessionDir, "sources", "source_*.md"))
	if len(matches) != 1 {
		t.Fatalf("source notes = %d, want 1", len(matches))
	}
	base := filepath.Base(matches[0])
	if len(base) != len("source_")+12+len(".md") {
		t.Fatalf("source filename should embed a 12-char hash: %s", base)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := testSession()
	saveTestSession(t, dir, &s)

	loaded, err := NewLoader(dir).Load(s.SessionID, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.SessionID != s.SessionID || loaded.Version != s.Version {
		t.Fatalf("identity lost: %s v%d", loaded.SessionID, loaded.Version)
	}
	if loaded.Query != s.Query || loaded.Status != s.Status || loaded.Model != s.Model {
		t.Fatalf("metadata lost: %+v", loaded)
	}
	if loaded.ComplexityScore != s.ComplexityScore || loaded.Cost != s.Cost {
		t.Fatalf("accounting lost: complexity=%f cost=%f", loaded.ComplexityScore, loaded.Cost)
	}
	if loaded.Tokens != s.Tokens {
		t.Fatalf("tokens lost: %+v", loaded.Tokens)
	}
	if !reflect.DeepEqual(loaded.SubTasks, s.SubTasks) {
		t.Fatalf("sub-tasks lost: %+v", loaded.SubTasks)
	}
	if loaded.Report != s.Report {
		t.Fatalf("report lost: %q", loaded.Report)
	}
	if !reflect.DeepEqual(loaded.AllSources, s.AllSources) {
		t.Fatalf("sources lost: %+v", loaded.AllSources)
	}

	if len(loaded.Workers) != 1 {
		t.Fatalf("workers = %d, want 1", len(loaded.Workers))
	}
	w := loaded.Workers[0]
	orig := s.Workers[0]
	if w.TaskID != orig.TaskID || w.WorkerID != orig.WorkerID || w.Objective != orig.Objective {
		t.Fatalf("worker identity lost: %+v", w)
	}
	if w.FinalOutput != orig.FinalOutput || w.CompressedSummary != orig.CompressedSummary {
		t.Fatalf("worker outputs lost")
	}
	if w.Status != orig.Status || w.Cost != orig.Cost {
		t.Fatalf("worker lifecycle lost")
	}
	if !reflect.DeepEqual(w.Sources, orig.Sources) {
		t.Fatalf("worker sources lost: %+v", w.Sources)
	}
	if len(w.ReactIterations) != 1 || w.ReactIterations[0].Thought != orig.ReactIterations[0].Thought {
		t.Fatalf("react trace lost: %+v", w.ReactIterations)
	}
	if len(w.ToolCalls) != 1 || w.ToolCalls[0].ToolName != "fetch" {
		t.Fatalf("tool calls lost: %+v", w.ToolCalls)
	}

	if len(loaded.Insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(loaded.Insights))
	}
	ins := loaded.Insights[0]
	if ins.Title != "Storm frequency rising" || ins.Finding != "Event frequency doubled since 2020." {
		t.Fatalf("insight content lost: %+v", ins)
	}
	if ins.Confidence != "high" || ins.WorkerID != "worker_1" {
		t.Fatalf("insight metadata lost: %+v", ins)
	}
}

func TestRoundTripQueryWithRuleText(t *testing.T) {
	dir := t.TempDir()
	s := testSession()
	s.Query = "EV adoption --- Norway vs Germany"
	saveTestSession(t, dir, &s)

	loaded, err := NewLoader(dir).Load(s.SessionID, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Query != s.Query {
		t.Fatalf("query = %q, want %q", loaded.Query, s.Query)
	}
	if loaded.Report != s.Report {
		t.Fatalf("report = %q, want %q", loaded.Report, s.Report)
	}
	if len(loaded.Workers) != 1 || loaded.Workers[0].FinalOutput != s.Workers[0].FinalOutput {
		t.Fatalf("worker trace lost: %+v", loaded.Workers)
	}
}

func TestLoadNotFound(t *testing.T) {
	loader := NewLoader(t.TempDir())
	_, err := loader.Load("session_x", 1)
	if err == nil {
		t.Fatalf("expected error for missing session")
	}
	if !strings.Contains(err.Error(), "session not found") {
		t.Fatalf("error should be ErrNotFound, got %v", err)
	}
}

func TestSavedVersionsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	s := testSession()
	saveTestSession(t, dir, &s)

	child := s
	child.Version = 2
	child.ParentSessionID = "session_20250120_142530_ab12cd34_v1"
	child.Report = "Revised report."
	saveTestSession(t, dir, &child)

	loader := NewLoader(dir)
	v1, err := loader.Load(s.SessionID, 1)
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	v2, err := loader.Load(s.SessionID, 2)
	if err != nil {
		t.Fatalf("load v2: %v", err)
	}
	if v1.Report != "Solar storms degrade satellite electronics." {
		t.Fatalf("saving v2 mutated v1's report: %q", v1.Report)
	}
	if v2.Report != "Revised report." || v2.ParentSessionID != v1.VersionedID() {
		t.Fatalf("v2 wrong: %+v", v2)
	}
}

func TestListSkipsUnreadableEntries(t *testing.T) {
	dir := t.TempDir()
	s := testSession()
	saveTestSession(t, dir, &s)

	// corrupt entry: directory without a session note
	if err := os.MkdirAll(filepath.Join(dir, "session_corrupt_v1"), 0o755); err != nil {
		t.Fatal(err)
	}
	// corrupt entry: unparseable frontmatter
	badDir := filepath.Join(dir, "session_bad_v1")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "session.md"), []byte("not frontmatter"), 0o644); err != nil {
		t.Fatal(err)
	}
	// unrelated file
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := NewLoader(dir).List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("list = %d entries, want 1: %+v", len(items), items)
	}
	if items[0].SessionID != s.SessionID || items[0].NumWorkers != 1 {
		t.Fatalf("summary wrong: %+v", items[0])
	}
}

func TestListEmptyVault(t *testing.T) {
	items, err := NewLoader(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil {
		t.Fatalf("list on missing vault: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no entries, got %d", len(items))
	}
}

func TestGenerateTags(t *testing.T) {
	tags := generateTags("What is the Impact of solar storms on satellites today?")
	want := []string{"what", "impact", "solar", "storms", "satellites"}
	if !reflect.DeepEqual(tags, want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"[1,2]", "[1,2]"},
		{"```json\n[1,2]\n```", "[1,2]"},
		{"```\n[1,2]\n```", "[1,2]"},
		{"text before\n```json\n[1,2]\n```\ntext after", "[1,2]"},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Fatalf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
