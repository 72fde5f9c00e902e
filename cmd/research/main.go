package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/internal/session/vault"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

func main() {
	root := rootCMD()
	root.AddCommand(expandCMD(), continueCMD(), recompileCMD(), sessionsCMD(), serveCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime is the wired dependency set shared by the research commands.
type runtime struct {
	cfg    *config.Config
	llm    provider.Provider
	orch   *core.Orchestrator
	writer *vault.Writer
	loader *vault.Loader
}

func buildRuntime(cfgPath, model string, maxIterations int, verbose bool) (*runtime, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if maxIterations > 0 {
		cfg.Agents.MaxIterations = maxIterations
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	registry, err := core.NewToolRegistry(cfg.Search, cfg.Fetch)
	if err != nil {
		return nil, err
	}

	var progress core.ProgressCallback = core.NoOpProgress{}
	if verbose {
		progress = core.NewLogProgress()
	}
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	orch, err := core.NewOrchestrator(cfg.Agents, llm, registry, progress, tele)
	if err != nil {
		return nil, err
	}

	writer, err := vault.NewWriter(cfg.Vault.Path)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:    cfg,
		llm:    llm,
		orch:   orch,
		writer: writer,
		loader: vault.NewLoader(cfg.Vault.Path),
	}, nil
}

// saveSession extracts insights and persists the session, returning the
// vault path of the session note.
func (rt *runtime) saveSession(ctx context.Context, s *session.ResearchSession) (string, error) {
	s.Insights = vault.ExtractInsights(ctx, rt.llm, s)
	return rt.writer.Save(s)
}

// loadParent loads a stored session, accepting either a bare id with an
// explicit version or a versioned id like "session_x_v2".
func (rt *runtime) loadParent(id string, version int) (session.ResearchSession, error) {
	bare, v := session.SplitVersionedID(id)
	if v > 0 {
		id, version = bare, v
	}
	if version < 1 {
		version = 1
	}
	return rt.loader.Load(id, version)
}

func printResult(result *core.ProcessingResult, s *session.ResearchSession, path string) {
	fmt.Println(result.Report)
	fmt.Println()
	fmt.Printf("Session: %s (saved to %s)\n", s.VersionedID(), path)
	fmt.Printf("Workers: %d | Sources: %d | Duration: %s\n",
		len(result.WorkerResults), len(result.Sources), result.Duration.Round(timeRound))
	fmt.Printf("Tokens: %d prompt + %d completion | Cost: $%.4f\n",
		result.Tokens.Prompt, result.Tokens.Completion, result.Cost.TotalCost)
}

func writeOutput(path, report string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}
