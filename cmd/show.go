package cmd

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
)

var (
	limit int
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	toolMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Italic(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show messages for a specific session",
	Long:  `Display the messages of one session in order. Tool output is shown by size only.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("session", args[0])
		if err != nil {
			return err
		}
		owner, err := ownerFromFlags()
		if err != nil {
			return err
		}
		store, err := loadStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		t, err := store.Transcript(cmd.Context(), owner, id)
		if err != nil {
			return notFound(err, "session", id)
		}

		displayTranscript(cmd.OutOrStdout(), t, limit)
		return nil
	},
}

// displayTranscript renders t. A positive max keeps only the last max messages.
func displayTranscript(out io.Writer, t *internal.Transcript, max int) {
	msgs := t.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	_, _ = fmt.Fprintln(out, sessionHeaderStyle.Render("💬 "+t.Session.Title))
	meta := fmt.Sprintf("Session %d · %d message(s)", t.Session.ID, len(t.Messages))
	if t.Session.Pinned {
		meta += " · pinned"
	}
	_, _ = fmt.Fprintln(out, sessionMetaStyle.Render(meta))

	for _, m := range msgs {
		var label string
		content := m.Content
		switch m.Role {
		case internal.RoleHuman:
			label = userMessageStyle.Render("👤 You")
		case internal.RoleAI:
			label = assistantMessageStyle.Render("🤖 Assistant")
		case internal.RoleTool:
			label = toolMessageStyle.Render("🔧 Tool")
			content = fmt.Sprintf("(%d characters of tool output)", utf8.RuneCountInString(m.Content))
		default:
			label = string(m.Role)
		}
		ts := ""
		if !m.CreatedAt.IsZero() {
			ts = " " + timestampStyle.Render(m.CreatedAt.Local().Format(time.DateTime))
		}
		_, _ = fmt.Fprintf(out, "%s%s\n", label, ts)
		_, _ = fmt.Fprintln(out, messageContentStyle.Render(content))
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N messages")
}
