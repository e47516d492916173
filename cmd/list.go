package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

// sessionRow is one line of the session table.
type sessionRow struct {
	Session  internal.Session
	Messages int
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long:  `List an owner's sessions in display order: highest rank first, newest first among equal ranks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := ownerFromFlags()
		if err != nil {
			return err
		}
		store, err := loadStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx := cmd.Context()
		sessions, err := store.ListSessions(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		rows := make([]sessionRow, 0, len(sessions))
		for _, s := range sessions {
			n, err := store.CountMessages(ctx, s.ID)
			if err != nil {
				internal.LogWarn("Failed to count messages for session %d: %v", s.ID, err)
			}
			rows = append(rows, sessionRow{Session: s, Messages: n})
		}

		displaySessions(cmd.OutOrStdout(), rows, time.Now())
		return nil
	},
}

func displaySessions(out io.Writer, rows []sessionRow, now time.Time) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, headerStyle.Render("📋 No sessions found"))
		return
	}

	_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(rows))))
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 80))

	for _, row := range rows {
		name := row.Session.Title
		if utf8.RuneCountInString(name) > 50 {
			name = string([]rune(name)[:47]) + "..."
		}
		if row.Session.Pinned {
			name = pinStyle.Render("📌 ") + name
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(strconv.FormatInt(row.Session.ID, 10)),
			name,
			countStyle.Render(strconv.Itoa(row.Messages)),
			dateStyle.Render(relativeDate(row.Session.CreatedAt, now)),
		)
	}

	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, idStyle.Render("💡 Tip: Use the ID with `chatrelay show <id>`"))
}

// relativeDate formats t relative to now the way the session table shows it.
func relativeDate(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	t = t.Local()
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
