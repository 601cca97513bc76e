package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"easel/internal/registry"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newEngineClient(cfg)
			if err != nil {
				return err
			}

			var view registry.QueueView
			if err := client.get("/api/queue", &view); err != nil {
				return err
			}

			if jsonOut || !stdoutIsTTY() {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			if len(view.Items) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}

			rows := make([][]string, 0, len(view.Items))
			for _, job := range view.Items {
				progress := ""
				if job.Progress != nil && job.Progress.TotalSteps > 0 {
					progress = fmt.Sprintf("%d/%d", job.Progress.Step, job.Progress.TotalSteps)
				}
				detail := job.Error
				if detail == "" && len(job.Outputs) > 0 {
					detail = job.Outputs[0]
				}
				rows = append(rows, []string{
					job.ID,
					job.Kind.Label(),
					string(job.Status),
					progress,
					job.UpdatedAt.Local().Format(time.Kitchen),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Kind", "Status", "Progress", "Updated", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d pending, %d processing, %d completed, %d failed (%d total)\n",
				view.Counters.Pending, view.Counters.Processing,
				view.Counters.Completed, view.Counters.Failed, view.Counters.Total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
