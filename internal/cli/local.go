package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// NewLocalCmds создаёт команды, работающие с файлом графа без API:
// compile, run, stages, validate, backends, types.
func NewLocalCmds(outputFn func() *Output) []*cobra.Command {
	return []*cobra.Command{
		newCompileCmd(outputFn),
		newRunCmd(outputFn),
		newStagesCmd(outputFn),
		newValidateCmd(outputFn),
		newBackendsCmd(outputFn),
		newTypesCmd(outputFn),
	}
}

// ErrInvalidGraph — граф не прошёл проверку.
var ErrInvalidGraph = errors.New("graph is invalid")

func newLocalCompiler(out *Output) *compiler.Compiler {
	return compiler.New(compiler.Config{
		Registry: steps.DefaultRegistry(),
		Logger:   out.Logger(),
	})
}

func newCompileCmd(outputFn func() *Output) *cobra.Command {
	var backend string
	var output string
	var mode string
	var title string

	cmd := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile a graph file into a CI configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			g, err := engine.LoadGraphFile(args[0])
			if err != nil {
				return err
			}
			stageMode, err := engine.ParseStageMode(mode)
			if err != nil {
				return err
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			res, err := newLocalCompiler(out).Build(compiler.Request{
				Graph:     g,
				Backend:   registry.Backend(backend),
				Title:     title,
				StageMode: stageMode,
			})
			if err != nil {
				return err
			}

			return writeCompiled(out, output, res.Text, res.Skipped, res)
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", string(compiler.BackendGitHubActions), "Target backend (see `conveyor backends`)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write result to file instead of stdout")
	cmd.Flags().StringVar(&mode, "mode", "", "Stage mode: longest (default) or bfs")
	cmd.Flags().StringVar(&title, "title", "", "Document name (default: file name)")

	return cmd
}

func newRunCmd(outputFn func() *Output) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Simulate a graph file locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			g, err := engine.LoadGraphFile(args[0])
			if err != nil {
				return err
			}

			exec := executor.New(executor.Config{
				Registry:    steps.DefaultRegistry(),
				Logger:      out.Logger(),
				Parallelism: parallel,
			})
			rec := exec.Execute(cmd.Context(), executor.Request{Graph: g, Trigger: "manual"})

			printExecution(out, executionFromRecord(rec))
			if !rec.Succeeded() {
				return fmt.Errorf("run finished with status %s", rec.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "Run up to N ready nodes concurrently")

	return cmd
}

func newStagesCmd(outputFn func() *Output) *cobra.Command {
	var mode string
	var format string

	cmd := &cobra.Command{
		Use:   "stages FILE",
		Short: "Show how a graph file is split into stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			g, err := engine.LoadGraphFile(args[0])
			if err != nil {
				return err
			}
			stageMode, err := engine.ParseStageMode(mode)
			if err != nil {
				return err
			}

			plan := engine.StageGraph(g, engine.WithMode(stageMode))

			switch format {
			case "dot":
				dot, err := engine.FormatDOT(g, plan)
				if err != nil {
					return err
				}
				out.Text(dot)
			case "text", "":
				printPlan(out, plan)
			default:
				return fmt.Errorf("unknown format %q (want text or dot)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Stage mode: longest (default) or bfs")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or dot")

	return cmd
}

// printPlan выводит стадии таблицей.
func printPlan(out *Output, plan *engine.Plan) {
	if out.JSONMode() {
		out.JSON(plan)
		return
	}

	rows := make([][]string, len(plan.Stages))
	for i, s := range plan.Stages {
		rows[i] = []string{s.Name, strings.Join(s.NodeIDs(), ", "), strings.Join(s.Dependencies, ", ")}
	}
	out.Table([]string{"STAGE", "NODES", "NEEDS"}, rows)

	if plan.Cyclic {
		out.Success("Warning: graph contains a cycle, staged breadth-first")
	}
	if len(plan.Unstaged) > 0 {
		out.Success(fmt.Sprintf("Unreachable from roots: %s", strings.Join(plan.Unstaged, ", ")))
	}
}

func newValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a graph file for structural errors, cycles and bad triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			g, err := engine.LoadGraphFile(args[0])
			if err != nil {
				return err
			}

			problems := validateGraph(g)

			reg := steps.DefaultRegistry()
			for _, b := range []registry.Backend{
				compiler.BackendGitHubActions, compiler.BackendGitLabCI, compiler.BackendJenkins, compiler.BackendShell,
			} {
				if missing := reg.Unsupported(g, b); len(missing) > 0 {
					out.Success(fmt.Sprintf("Note: %s skips %s", b, strings.Join(missing, ", ")))
				}
			}

			if out.JSONMode() {
				out.JSON(map[string]any{"valid": len(problems) == 0, "errors": problems})
			}
			if len(problems) > 0 {
				for _, p := range problems {
					out.Error(p)
				}
				return fmt.Errorf("%w: %d problem(s)", ErrInvalidGraph, len(problems))
			}

			out.Success(fmt.Sprintf("%s: %d nodes, %d edges, OK", args[0], len(g.Nodes), len(g.Edges)))
			return nil
		},
	}
}

// validateGraph собирает все проблемы графа.
func validateGraph(g *domain.Graph) []string {
	var problems []string
	if err := engine.Validate(g); err != nil {
		problems = append(problems, err.Error())
	}
	if err := engine.DetectCycle(g); err != nil {
		problems = append(problems, err.Error())
	}
	for _, tr := range trigger.FromNodes(g.Nodes) {
		if err := tr.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

func newBackendsCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List compilation backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			targets := newLocalCompiler(out).Targets()

			rows := make([][]string, len(targets))
			for i, t := range targets {
				rows[i] = []string{string(t.Name), t.Filename, t.Description}
			}

			out.Print([]string{"NAME", "FILE", "DESCRIPTION"}, rows, targets)
			return nil
		},
	}
}

func newTypesCmd(outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List built-in step types",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var items []*registry.Item
			var rows [][]string
			for _, it := range steps.DefaultRegistry().Items() {
				if category != "" && it.Category != category {
					continue
				}
				backends := make([]string, 0, len(it.Generators))
				for _, b := range it.Backends() {
					backends = append(backends, string(b))
				}
				items = append(items, it)
				rows = append(rows, []string{it.Type, it.Category, it.Label, strings.Join(backends, ",")})
			}

			out.Print([]string{"TYPE", "CATEGORY", "LABEL", "BACKENDS"}, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")

	return cmd
}

// executionFromRecord переводит запись локального прогона в формат API.
func executionFromRecord(rec *domain.ExecutionRecord) *ExecutionResponse {
	out := &ExecutionResponse{
		ID:         rec.ID.String(),
		Timestamp:  rec.Timestamp.Format(time.RFC3339),
		Status:     string(rec.Status),
		TotalNodes: rec.TotalNodes,
		Executed:   rec.Executed(),
		Details:    make(map[string]NodeResult, len(rec.Details)),
		Order:      rec.Order,
		Error:      rec.Error,
		Trigger:    rec.Trigger,
		DurationMs: rec.DurationMs,
	}
	for id, d := range rec.Details {
		out.Details[id] = NodeResult{
			Status:   string(d.Status),
			Output:   d.Output,
			Error:    d.Error,
			Attempts: d.Attempts,
		}
	}
	return out
}
