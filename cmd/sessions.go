package cmd

import (
	"fmt"

	"github.com/killallgit/chatnote/pkg/chat"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.client.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(a.out, dimStyle.Render("no conversations yet"))
			return nil
		}
		for _, s := range sessions {
			marker := " "
			if s.ID == a.state.LastConversationID {
				marker = "*"
			}
			fmt.Fprintf(a.out, "%s %s %s\n", marker, s.ID, s.Title)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show the messages of a conversation (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		id := a.state.LastConversationID
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			return fmt.Errorf("no conversation given and none remembered")
		}

		session := chat.NewSession(a.client, id, chat.SessionOptions{Model: a.cfg.API.Model})
		if err := session.Select(cmd.Context(), id); err != nil {
			return err
		}
		for _, msg := range session.Messages() {
			printMessage(a.out, msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
}
