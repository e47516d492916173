package export

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iksnae/chatrelay/internal"
)

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct{}

var roleHeadings = map[internal.Role]string{
	internal.RoleHuman: "You",
	internal.RoleAI:    "Assistant",
	internal.RoleTool:  "Tool",
}

// Export renders t as a readable document. Tool output is summarized by
// size, the same way the chat view shows it.
func (e *MarkdownExporter) Export(t *internal.Transcript, w io.Writer) error {
	sess := t.Session

	_, _ = fmt.Fprintf(w, "# %s\n\n", sess.Title)
	_, _ = fmt.Fprintf(w, "**Session:** %d  \n", sess.ID)
	if !sess.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", sess.CreatedAt.UTC().Format(time.RFC3339))
	}
	if sess.Pinned {
		_, _ = fmt.Fprintf(w, "**Pinned:** yes  \n")
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(t.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range t.Messages {
		heading, ok := roleHeadings[msg.Role]
		if !ok {
			heading = string(msg.Role)
		}

		var body string
		if msg.Role == internal.RoleTool {
			body = fmt.Sprintf("_Tool output: %d characters_", utf8.RuneCountInString(msg.Content))
		} else {
			body = escapeMarkdown(msg.Content)
		}

		_, err := fmt.Fprintf(w, "**%s:**\n\n%s\n\n", heading, body)
		if err != nil {
			return fmt.Errorf("failed to write message %d: %w", msg.ID, err)
		}

		if i < len(t.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCodeBlock = !inCodeBlock
		case !inCodeBlock:
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

// ContentType returns the MIME type for this format
func (e *MarkdownExporter) ContentType() string {
	return "text/markdown; charset=utf-8"
}
