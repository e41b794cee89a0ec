package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/chatnote/pkg/chat"
	"github.com/killallgit/chatnote/pkg/reflection"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("243"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	reminderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

func roleLabel(role string) string {
	switch role {
	case chat.RoleUser:
		return userStyle.Render("you")
	case chat.RoleAssistant:
		return assistantStyle.Render("assistant")
	default:
		return systemStyle.Render(role)
	}
}

func printMessage(w io.Writer, msg chat.Message) {
	fmt.Fprintf(w, "%s: %s\n", roleLabel(msg.Role), msg.Content)
}

// replyPrinter writes the growing assistant reply of a conversation as it
// streams, printing only what was not printed before
type replyPrinter struct {
	w       io.Writer
	id      string
	printed int
	// mute drops updates, used while history loads
	mute bool
}

func newReplyPrinter(w io.Writer) *replyPrinter {
	return &replyPrinter{w: w}
}

func (p *replyPrinter) observe(conv chat.Conversation) {
	if p.mute {
		return
	}
	msg, ok := chat.GetLastMessage(conv)
	if !ok || !msg.IsAssistant() {
		return
	}
	if msg.ID != p.id {
		if p.id != "" {
			fmt.Fprintln(p.w)
		}
		p.id = msg.ID
		p.printed = 0
		fmt.Fprintf(p.w, "%s: ", roleLabel(msg.Role))
	}
	if len(msg.Content) > p.printed {
		fmt.Fprint(p.w, msg.Content[p.printed:])
		p.printed = len(msg.Content)
	}
}

// finish ends the current reply line
func (p *replyPrinter) finish() {
	if p.id != "" {
		fmt.Fprintln(p.w)
	}
	p.id = ""
	p.printed = 0
}

// printTree renders a reply tree with one indent step per level
func printTree(w io.Writer, roots []*reflection.Node) {
	reflection.Walk(roots, func(n *reflection.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		meta := dimStyle.Render(fmt.Sprintf("[%s]", n.Answer.ID))
		if n.Answer.Author != "" {
			meta = dimStyle.Render(fmt.Sprintf("[%s %s]", n.Answer.ID, n.Answer.Author))
		}
		fmt.Fprintf(w, "%s- %s %s\n", indent, n.Answer.Content, meta)
	})
}
