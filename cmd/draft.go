package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect and edit saved drafts",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save <conversation-id> <text>",
	Short: "Save draft text for a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		savedAt := a.drafts.Save(args[0], strings.Join(args[1:], " "))
		if savedAt == "" {
			return fmt.Errorf("draft storage is unavailable")
		}
		fmt.Fprintf(a.out, "saved at %s (%s)\n", savedAt, a.drafts.Backend().Name())
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Print a conversation's draft (default: the current one)",
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
		d, ok := a.drafts.Restore(id)
		if !ok {
			fmt.Fprintln(a.out, dimStyle.Render("no draft"))
			return nil
		}
		fmt.Fprintf(a.out, "%s\n%s\n", dimStyle.Render("saved at "+d.SavedAt), d.Text)
		return nil
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Discard a conversation's draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		a.drafts.Clear(args[0])
		return nil
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations with a saved draft, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.store == nil || a.drafts.Downgraded() {
			return fmt.Errorf("drafts are not stored on disk")
		}
		textPrefix := a.drafts.TextKey("")
		tsPrefix := a.drafts.TimestampKey("")
		keys, err := a.store.Keys(textPrefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if strings.HasPrefix(key, tsPrefix) {
				continue
			}
			id := strings.TrimPrefix(key, textPrefix)
			d, ok := a.drafts.Restore(id)
			if !ok {
				continue
			}
			fmt.Fprintf(a.out, "%s %s %s\n", id, dimStyle.Render(d.SavedAt), firstLine(d.Text))
		}
		return nil
	},
}

var draftWatchCmd = &cobra.Command{
	Use:   "watch [conversation-id]",
	Short: "Print draft changes made by other chatnote processes",
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
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		unwatch := a.drafts.Watch(id,
			func(text string) { fmt.Fprintf(a.out, "text: %q\n", text) },
			func(savedAt string) { fmt.Fprintf(a.out, "saved at: %s\n", savedAt) },
		)
		defer unwatch()

		fmt.Fprintln(a.out, dimStyle.Render("watching draft of "+id+", Ctrl-C to stop"))
		<-ctx.Done()
		return nil
	},
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " ..."
	}
	return line
}

func init() {
	draftCmd.AddCommand(draftSaveCmd, draftShowCmd, draftClearCmd, draftListCmd, draftWatchCmd)
	rootCmd.AddCommand(draftCmd)
}
