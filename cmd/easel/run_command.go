package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"easel/internal/engine"
	"easel/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			eng, err := engine.New(cfg, logger, nil)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer eng.Close()

			if err := eng.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "easel engine running against %s\n", cfg.Server.BaseURL)
			if addr := eng.APIAddr(); addr != "" {
				fmt.Fprintf(out, "status api on http://%s\n", addr)
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)

			select {
			case <-signals:
			case <-cmd.Context().Done():
			}

			eng.Stop()
			return nil
		},
	}
}
