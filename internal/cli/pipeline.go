package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/engine"
)

// NewPipelineCmd создаёт группу команд для управления pipelines через API.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage stored pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineCreateCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineDeleteCmd(clientFn, outputFn),
		newPipelineCompileCmd(clientFn, outputFn),
		newPipelineRunCmd(clientFn, outputFn),
	)

	return cmd
}

var pipelineHeaders = []string{"ID", "NAME", "ACTIVE", "NODES", "UPDATED"}

func pipelineRow(p PipelineResponse) []string {
	return []string{p.ID, p.Name, strconv.FormatBool(p.IsActive), strconv.Itoa(p.NodeCount), p.UpdatedAt}
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines, err := clientFn().ListPipelines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = pipelineRow(p)
			}

			outputFn().Print(pipelineHeaders, rows, pipelines)
			return nil
		},
	}
}

func newPipelineCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var description string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Create a pipeline from a graph file (JSON or DOT)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			// Граф проверяется локально, DOT переводится в JSON
			g, err := engine.LoadGraphFile(args[0])
			if err != nil {
				return err
			}
			graph, err := json.Marshal(g)
			if err != nil {
				return fmt.Errorf("encode graph: %w", err)
			}

			req := CreatePipelineRequest{Name: name, Description: description, Graph: graph}
			if inactive {
				active := false
				req.IsActive = &active
			}

			p, err := clientFn().CreatePipeline(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline created: %s", p.ID))
			out.Print(pipelineHeaders, [][]string{pipelineRow(*p)}, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Pipeline description")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the pipeline disabled")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := clientFn().GetPipeline(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(pipelineHeaders, [][]string{pipelineRow(*p)}, p)
			return nil
		},
	}
}

func newPipelineDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a pipeline and its schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeletePipeline(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Pipeline deleted: %s", args[0]))
			return nil
		},
	}
}

func newPipelineCompileCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var backend string
	var output string

	cmd := &cobra.Command{
		Use:   "compile ID",
		Short: "Compile a stored pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			res, err := clientFn().CompilePipeline(args[0], backend)
			if err != nil {
				return err
			}

			return writeCompiled(out, output, res.Text, res.Skipped, res)
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "github-actions", "Target backend")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write result to file instead of stdout")

	return cmd
}

func newPipelineRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var async bool
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Run a stored pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			req := RunPipelineRequest{Trigger: "manual", IdempotencyKey: idempotencyKey}

			if async {
				accepted, err := client.StartPipeline(args[0], req)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run requested: %s", accepted.RequestID))
				out.Print([]string{"REQUEST_ID", "PIPELINE_ID"}, [][]string{{accepted.RequestID, accepted.PipelineID}}, accepted)
				return nil
			}

			rec, err := client.RunPipeline(args[0], req)
			if err != nil {
				return err
			}
			printExecution(out, rec)
			if rec.Status != "success" {
				return fmt.Errorf("run %s finished with status %s", rec.ID, rec.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue the run and return immediately")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Skip the run if one with this key exists")

	return cmd
}

// writeCompiled выводит скомпилированный документ или пишет его в файл.
func writeCompiled(out *Output, path, text string, skipped []string, jsonData any) error {
	if len(skipped) > 0 {
		out.Success(fmt.Sprintf("Skipped nodes without generator: %v", skipped))
	}

	if path != "" {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		out.Success(fmt.Sprintf("Written to %s", path))
		return nil
	}

	if out.JSONMode() {
		out.JSON(jsonData)
		return nil
	}
	out.Text(text)
	return nil
}
