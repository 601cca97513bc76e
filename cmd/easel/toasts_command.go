package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"easel/internal/notify"
)

type toastsResponse struct {
	Toasts       []notify.Toast `json:"toasts"`
	RecentErrors []string       `json:"recent_errors"`
}

func newToastsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "toasts",
		Short: "Show active notifications and the recent error log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newEngineClient(cfg)
			if err != nil {
				return err
			}

			var payload toastsResponse
			if err := client.get("/api/toasts", &payload); err != nil {
				return err
			}

			if jsonOut || !stdoutIsTTY() {
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			if len(payload.Toasts) == 0 {
				fmt.Fprintln(out, "No active notifications.")
			} else {
				rows := make([][]string, 0, len(payload.Toasts))
				for _, toast := range payload.Toasts {
					rows = append(rows, []string{
						fmt.Sprintf("%d", toast.ID),
						string(toast.Severity),
						toast.Message,
						toast.CreatedAt.Local().Format(time.Kitchen),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Severity", "Message", "At"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				))
			}

			if showErrors {
				if len(payload.RecentErrors) == 0 {
					fmt.Fprintln(out, "No recent errors.")
					return nil
				}
				fmt.Fprintln(out, "Recent errors (newest first):")
				for _, message := range payload.RecentErrors {
					fmt.Fprintf(out, "  - %s\n", message)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "Include the recent error log")
	return cmd
}
