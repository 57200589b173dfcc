// Package ui renders the session state on a terminal. It is a thin view:
// no domain logic, no store access, never calls back into the controller.
package ui

import (
	"fmt"
	"io"
	"strconv"

	"support-chat/domain/chat"
	"support-chat/session"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type ConsoleRenderer struct {
	out    io.Writer
	userID string
}

func NewConsoleRenderer(out io.Writer, userID string) *ConsoleRenderer {
	return &ConsoleRenderer{out: out, userID: userID}
}

// RenderList prints the conversation list as a table, most recently
// active conversation first.
func (r *ConsoleRenderer) RenderList(entries []session.ConversationEntry) {
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"With", "Last message", "Unread", "Activity"})
	for _, entry := range entries {
		unread := ""
		if entry.UnreadCount > 0 {
			unread = strconv.Itoa(entry.UnreadCount)
		}
		table.Append([]string{
			entry.CounterpartName,
			truncate(entry.Preview, 40),
			unread,
			entry.LastActivity.Format("15:04:05"),
		})
	}
	table.Render()
}

// RenderThread prints the active conversation, own messages highlighted.
func (r *ConsoleRenderer) RenderThread(conv chat.Conversation, messages []chat.Message) {
	for _, msg := range messages {
		stamp := msg.CreatedAt.Format("15:04:05")
		if msg.SenderID == r.userID {
			fmt.Fprintln(r.out, color.Cyan.Sprintf("[%s] me: %s", stamp, msg.Content))
			continue
		}
		fmt.Fprintf(r.out, "[%s] %s: %s\n", stamp, msg.SenderID, msg.Content)
	}
}

// Toast surfaces a non-blocking error line.
func (r *ConsoleRenderer) Toast(text string) {
	fmt.Fprintln(r.out, color.Red.Sprintf("! %s", text))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// ConsoleNotifier is the desktop-notification stand-in for a terminal
// client: a colored bell line. Permission maps to a simple toggle.
type ConsoleNotifier struct {
	out     io.Writer
	Enabled bool
}

func NewConsoleNotifier(out io.Writer, enabled bool) *ConsoleNotifier {
	return &ConsoleNotifier{out: out, Enabled: enabled}
}

func (n *ConsoleNotifier) RequestPermission() bool {
	return n.Enabled
}

func (n *ConsoleNotifier) Notify(title, body string) error {
	_, err := fmt.Fprintln(n.out, color.Yellow.Sprintf("\a%s - %s", title, body))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
