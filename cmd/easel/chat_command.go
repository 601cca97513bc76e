package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/question"
	"easel/internal/transcript"
)

type transcriptResponse struct {
	Entries []transcript.Entry `json:"entries"`
}

type questionResponse struct {
	Pending  bool              `json:"pending"`
	Question question.Question `json:"question"`
}

func newChatCommand(ctx *commandContext) *cobra.Command {
	var clear bool
	var history int

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the assistant",
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
			out := cmd.OutOrStdout()

			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" && !clear {
				return showTranscript(cmd, client, history)
			}
			if clear {
				// The transcript lives in the engine's data dir; clearing
				// happens through a fresh store rather than the API so it
				// also works while the engine is down.
				store, err := transcript.Open(cfg)
				if err != nil {
					return fmt.Errorf("open transcript: %w", err)
				}
				defer store.Close()
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return fmt.Errorf("clear transcript: %w", err)
				}
				fmt.Fprintf(out, "Cleared %d transcript entries.\n", removed)
				if message == "" {
					return nil
				}
			}

			if err := client.post("/api/chat", map[string]string{"message": message}, nil); err != nil {
				return err
			}

			var tail transcriptResponse
			if err := client.get("/api/transcript?limit=2", &tail); err != nil {
				return err
			}
			for _, entry := range tail.Entries {
				if entry.Role == transcript.RoleAssistant {
					fmt.Fprintln(out, entry.Content)
				}
			}

			var pending questionResponse
			if err := client.get("/api/question", &pending); err != nil {
				return err
			}
			if pending.Pending {
				printQuestion(cmd, pending.Question)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the conversation transcript first")
	cmd.Flags().IntVar(&history, "history", 20, "Transcript entries to show when no message is given")
	return cmd
}

func showTranscript(cmd *cobra.Command, client *engineClient, limit int) error {
	var history transcriptResponse
	if err := client.get(fmt.Sprintf("/api/transcript?limit=%d", limit), &history); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(history.Entries) == 0 {
		fmt.Fprintln(out, "Transcript is empty.")
		return nil
	}
	for _, entry := range history.Entries {
		fmt.Fprintf(out, "[%s] %s\n", entry.Role, entry.Content)
	}
	return nil
}

func printQuestion(cmd *cobra.Command, q question.Question) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	if q.Title != "" {
		fmt.Fprintf(out, "Question: %s\n", q.Title)
	}
	fmt.Fprintln(out, q.Prompt)
	for i, option := range q.Options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, option)
	}
	fmt.Fprintln(out, "Respond with `easel answer <text>` or `easel answer --dismiss`.")
}
