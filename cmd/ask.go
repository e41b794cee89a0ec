package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/chatnote/pkg/llm"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask a one-off question without touching the current conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = a.cfg.API.Model
		}
		system, _ := cmd.Flags().GetString("system")

		messages := []llms.MessageContent{}
		if system != "" {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
		}
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, strings.Join(args, " ")))

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		out := cmd.OutOrStdout()
		m := llm.NewStreamModel(a.client, model, llm.WithIngestor(a.ingestor))
		_, err = m.GenerateContent(ctx, messages,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				_, err := out.Write(chunk)
				return err
			}))
		fmt.Fprintln(out)
		return err
	},
}

func init() {
	askCmd.Flags().StringP("model", "m", "", "model to ask (default from config)")
	askCmd.Flags().StringP("system", "s", "", "system prompt")
	rootCmd.AddCommand(askCmd)
}
