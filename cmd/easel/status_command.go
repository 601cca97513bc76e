package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"easel/internal/engine"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running engine's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newEngineClient(cfg)
			if err != nil {
				return err
			}

			var status engine.Status
			if err := client.get("/api/status", &status); err != nil {
				return err
			}

			if jsonOut || !stdoutIsTTY() {
				return writeJSON(cmd, status)
			}

			model := status.CurrentModel
			if model == "" {
				model = "(none)"
			}
			if status.ModelLoading {
				model += " (loading)"
			}
			server := status.ServerStatus
			if server == "" {
				server = "unknown"
			}
			if status.ServerVersion != "" {
				server = fmt.Sprintf("%s (%s)", server, status.ServerVersion)
			}
			pairs := [][2]string{
				{"Running", yesNo(status.Running)},
				{"Connection", string(status.Connection)},
				{"Server", server},
				{"Model", model},
				{"Pending jobs", strconv.Itoa(status.Counters.Pending)},
				{"Processing", strconv.Itoa(status.Counters.Processing)},
				{"Completed", strconv.Itoa(status.Counters.Completed)},
				{"Failed", strconv.Itoa(status.Counters.Failed)},
				{"Question pending", yesNo(status.PendingAsk)},
				{"Continuations", strconv.Itoa(status.Continuations)},
				{"Transcript", status.TranscriptPath},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPairs(pairs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
