package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ShowProgress runs fn while drawing a spinner on w. On non-terminals it
// logs the message once and runs fn directly.
func ShowProgress(ctx context.Context, w io.Writer, message string, fn func() error) error {
	if !isTerminal(w) {
		LogInfo(message)
		return fn()
	}

	ctx, cancel := context.WithCancel(ctx)
	spinnerDone := make(chan struct{})
	go func() {
		defer close(spinnerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %s", progressStyle.Render(spinnerFrames[i%len(spinnerFrames)]), message)
			}
		}
	}()

	err := fn()
	cancel()
	<-spinnerDone

	if err != nil {
		fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
		return err
	}
	fmt.Fprintf(w, "\r%s %s\n", successStyle.Render("✓"), message)
	return nil
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func printStyled(w io.Writer, style lipgloss.Style, icon, plainPrefix, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", style.Render(icon), message)
		return
	}
	fmt.Fprintf(w, "%s%s\n", plainPrefix, message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	printStyled(w, successStyle, "✓", "", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	printStyled(w, errorStyle, "✗", "", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	printStyled(w, progressStyle, "ℹ", "", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	printStyled(w, warningStyle, "⚠", "WARNING: ", message)
}
