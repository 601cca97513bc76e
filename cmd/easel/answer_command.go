package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAnswerCommand(ctx *commandContext) *cobra.Command {
	var dismiss bool

	cmd := &cobra.Command{
		Use:   "answer [text]",
		Short: "Answer the assistant's pending question",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newEngineClient(cfg)
			if err != nil {
				return err
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if !dismiss && text == "" {
				return errors.New("provide an answer or pass --dismiss")
			}

			payload := map[string]any{"answer": text, "dismiss": dismiss}
			if err := client.post("/api/question/answer", payload, nil); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dismiss {
				fmt.Fprintln(out, "Question dismissed.")
				return nil
			}
			fmt.Fprintln(out, "Answer delivered; the assistant is resuming.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "Dismiss the question without answering")
	return cmd
}
