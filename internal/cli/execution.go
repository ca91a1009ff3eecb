package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для истории прогонов.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"executions", "exec"},
		Short:   "Inspect execution history",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipelineID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := clientFn().ListExecutions(ListExecutionsOpts{
				PipelineID: pipelineID,
				Status:     status,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE_ID", "STATUS", "EXECUTED", "TRIGGER", "DURATION", "STARTED"}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{
					r.ID, r.PipelineID, r.Status,
					fmt.Sprintf("%d/%d", r.Executed, r.TotalNodes),
					r.Trigger, formatDuration(r.DurationMs), r.Timestamp,
				}
			}

			outputFn().Print(headers, rows, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Filter by pipeline ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (success, error)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details per node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}

			printExecution(outputFn(), rec)
			return nil
		},
	}
}

// printExecution выводит запись прогона: строка на узел в порядке выполнения.
func printExecution(out *Output, rec *ExecutionResponse) {
	if out.JSONMode() {
		out.JSON(rec)
		return
	}

	out.Success(fmt.Sprintf("Execution %s: %s (%d/%d nodes, %s)",
		rec.ID, rec.Status, len(rec.Details), rec.TotalNodes, formatDuration(rec.DurationMs)))
	if rec.Error != "" {
		out.Success("Error: " + rec.Error)
	}

	rows := make([][]string, 0, len(rec.Order))
	for _, id := range rec.Order {
		d := rec.Details[id]
		rows = append(rows, []string{id, d.Status, strconv.Itoa(max(d.Attempts, 1)), d.Error})
	}
	out.Table([]string{"NODE", "STATUS", "ATTEMPTS", "ERROR"}, rows)
}

func formatDuration(ms int64) string {
	return strconv.FormatInt(ms, 10) + "ms"
}
