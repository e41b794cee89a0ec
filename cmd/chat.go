package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/chatnote/pkg/chat"
	"github.com/killallgit/chatnote/pkg/config"
	"github.com/killallgit/chatnote/pkg/draft"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the assistant",
	Long: `Send a message and stream the reply. Without a message, chat reads
lines from stdin until EOF or /quit. End a line with \ to continue the
message on the next line. Unsent input is kept as a draft and restored the
next time the conversation is opened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		explicit, _ := cmd.Flags().GetString("id")
		fresh, _ := cmd.Flags().GetBool("new")
		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = a.cfg.API.Model
		}

		remembered := a.state.LastConversationID
		if fresh {
			remembered = ""
		}
		id := chat.ResolveConversationID(explicit, remembered)
		resumed := id == explicit || id == remembered
		a.remember(func(st *config.State) { st.LastConversationID = id })

		return runChat(cmd.Context(), a, cmd.InOrStdin(), id, model, resumed, strings.Join(args, " "))
	},
}

// editorDrafts clears the draft through the editor so its state follows
type editorDrafts struct {
	editor *draft.Editor
}

func (d editorDrafts) Clear(string) {
	d.editor.Clear()
}

func runChat(ctx context.Context, a *app, in io.Reader, id, model string, resumed bool, message string) error {
	out := a.out
	printer := newReplyPrinter(out)

	editor := a.drafts.Open(id, a.cfg.Drafts.Debounce, func(text string) {
		if text == "" {
			fmt.Fprintln(out, dimStyle.Render("(draft cleared in another window)"))
			return
		}
		fmt.Fprintln(out, dimStyle.Render("(draft changed in another window: "+text+")"))
	}, nil)
	defer editor.Close()

	session := chat.NewSession(a.client, id, chat.SessionOptions{
		Model:    model,
		Ingestor: a.ingestor,
		Drafts:   editorDrafts{editor: editor},
		Observer: printer.observe,
	})

	if resumed {
		printer.mute = true
		if err := session.Select(ctx, id); err != nil {
			logger.Warn("failed to load history of %s: %v", id, err)
		}
		printer.mute = false
		for _, msg := range session.Messages() {
			printMessage(out, msg)
		}
	}

	send := func(text string) error {
		editor.Edit(text)
		editor.Flush()

		sendCtx, stop := interruptible(ctx)
		defer stop()
		err := session.Send(sendCtx, text)
		printer.finish()
		return err
	}

	if message != "" {
		return send(message)
	}

	fmt.Fprintln(out, dimStyle.Render("conversation "+id))
	if editor.State() == draft.StateRestored {
		fmt.Fprintf(out, "%s %s\n", dimStyle.Render("restored draft from "+editor.SavedAt()+", press enter to send:"), editor.Text())
	}

	scanner := bufio.NewScanner(in)
	var pending []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			break
		}

		if strings.HasSuffix(line, `\`) {
			pending = append(pending, strings.TrimSuffix(line, `\`))
			editor.Edit(strings.Join(pending, "\n"))
			continue
		}
		pending = append(pending, line)
		text := strings.TrimSpace(strings.Join(pending, "\n"))
		pending = pending[:0]

		if text == "" {
			text = strings.TrimSpace(editor.Text())
			if text == "" {
				continue
			}
		}

		if err := send(text); err != nil {
			if errors.Is(err, chat.ErrEmptyMessage) {
				continue
			}
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		}
	}
	return scanner.Err()
}

func init() {
	chatCmd.Flags().String("id", "", "conversation to continue")
	chatCmd.Flags().Bool("new", false, "start a new conversation")
	chatCmd.Flags().StringP("model", "m", "", "model to ask (default from config)")
	rootCmd.AddCommand(chatCmd)
}
