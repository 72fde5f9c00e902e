package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
)

const timeRound = time.Second

func rootCMD() *cobra.Command {
	var (
		cfgPath       string
		model         string
		output        string
		maxIterations int
		single        bool
		verbose       bool
	)

	root := &cobra.Command{
		Use:   "research <query>",
		Short: "Multi-agent deep research assistant",
		Long: `Research a topic with parallel worker agents and save the session
to the vault. Subcommands continue, expand or recompile stored sessions.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			query := strings.Join(args, " ")

			rt, err := buildRuntime(cfgPath, model, maxIterations, verbose)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if single {
				return runSingle(ctx, rt, query, output)
			}

			result, err := rt.orch.Research(ctx, query)
			if err != nil {
				return err
			}

			s := session.New(query, result.Model, time.Now())
			result.FillSession(&s, time.Now())
			path, err := rt.saveSession(ctx, &s)
			if err != nil {
				return err
			}
			printResult(result, &s, path)
			return writeOutput(output, result.Report)
		},
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVarP(&model, "model", "m", "", "LLM model override")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log worker progress")
	root.Flags().StringVarP(&output, "output", "o", "", "write the report to a file")
	root.Flags().IntVar(&maxIterations, "max-iterations", 0, "max agent iterations")
	root.Flags().BoolVar(&single, "single", false, "single-agent mode, no fan-out")
	return root
}

// runSingle runs one ReAct agent at the lead budget without planning or
// fan-out. The result is printed, not saved to the vault.
func runSingle(ctx context.Context, rt *runtime, query, output string) error {
	registry, err := core.NewToolRegistry(rt.cfg.Search, rt.cfg.Fetch)
	if err != nil {
		return err
	}
	agent := core.NewReactAgent(rt.llm, registry, core.ReactConfig{
		MaxIterations: rt.cfg.Agents.MaxIterations,
		MaxTokens:     rt.cfg.Agents.MaxTokens,
		Temperature:   rt.cfg.LLM.Temperature,
	})
	report, err := agent.Research(ctx, query)
	if err != nil {
		return err
	}

	fmt.Println(report.Content)
	fmt.Println()
	fmt.Printf("Iterations: %d | Sources: %d | Tokens: %d\n",
		report.Iterations, len(report.Sources), report.Tokens.Total)
	if report.Cost != nil {
		fmt.Printf("Cost: $%.4f\n", report.Cost.TotalCost())
	}
	if report.Err != "" {
		fmt.Printf("Warning: %s\n", report.Err)
	}
	return writeOutput(output, report.Content)
}

func expandCMD() *cobra.Command {
	var (
		cfgPath string
		model   string
		verbose bool
		version int
	)

	cmd := &cobra.Command{
		Use:   "expand <session_id> <worker_id> <instructions>",
		Short: "Expand one worker's research with new instructions",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cfgPath, model, 0, verbose)
			if err != nil {
				return err
			}
			parent, err := rt.loadParent(args[0], version)
			if err != nil {
				return err
			}
			instructions := strings.Join(args[2:], " ")

			child, query, err := session.Expand(&parent, args[1], instructions, time.Now())
			if err != nil {
				return err
			}
			return runFork(cmd.Context(), rt, &child, query)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVarP(&model, "model", "m", "", "LLM model override")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log worker progress")
	cmd.Flags().IntVar(&version, "version", 0, "parent session version (default latest loaded as 1)")
	return cmd
}

func continueCMD() *cobra.Command {
	var (
		cfgPath string
		model   string
		verbose bool
		version int
	)

	cmd := &cobra.Command{
		Use:   "continue <session_id> <instructions>",
		Short: "Continue research from a stored session's findings",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cfgPath, model, 0, verbose)
			if err != nil {
				return err
			}
			parent, err := rt.loadParent(args[0], version)
			if err != nil {
				return err
			}
			instructions := strings.Join(args[1:], " ")

			child, query := session.Continue(&parent, instructions, time.Now())
			return runFork(cmd.Context(), rt, &child, query)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVarP(&model, "model", "m", "", "LLM model override")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log worker progress")
	cmd.Flags().IntVar(&version, "version", 0, "parent session version")
	return cmd
}

// runFork runs the full pipeline on a forked session's query and saves
// the child version.
func runFork(ctx context.Context, rt *runtime, child *session.ResearchSession, query string) error {
	result, err := rt.orch.Research(ctx, query)
	if err != nil {
		return err
	}
	result.FillSession(child, time.Now())
	path, err := rt.saveSession(ctx, child)
	if err != nil {
		return err
	}
	printResult(result, child, path)
	return nil
}

func recompileCMD() *cobra.Command {
	var (
		cfgPath string
		model   string
		version int
	)

	cmd := &cobra.Command{
		Use:   "recompile <session_id> [instructions]",
		Short: "Re-synthesize a session's report without new research",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cfgPath, model, 0, false)
			if err != nil {
				return err
			}
			parent, err := rt.loadParent(args[0], version)
			if err != nil {
				return err
			}
			instructions := strings.Join(args[1:], " ")

			child, instr := session.Recompile(&parent, instructions, time.Now())
			query := child.Query
			if instr != "" {
				query = fmt.Sprintf("%s\n\nSynthesis instructions: %s", child.Query, instr)
			}

			ctx := cmd.Context()
			result, err := rt.orch.Recompile(ctx, query, child.Workers)
			if err != nil {
				return err
			}

			child.Report = result.Report
			child.Status = session.StatusCompleted
			child.UpdatedAt = time.Now()
			child.Cost += result.Cost.Lead.TotalCost()
			child.Tokens.Prompt += result.Cost.Lead.PromptTokens
			child.Tokens.Completion += result.Cost.Lead.CompletionTokens
			child.Tokens.Total = child.Tokens.Prompt + child.Tokens.Completion

			path, err := rt.writer.Save(&child)
			if err != nil {
				return err
			}
			fmt.Println(result.Report)
			fmt.Printf("\nReport v%d saved to %s\n", child.Version, path)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVarP(&model, "model", "m", "", "LLM model override")
	cmd.Flags().IntVar(&version, "version", 0, "parent session version")
	return cmd
}
