package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/engine"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that chatrelay can load its config, open its database, and reach an engine",
	Long: `Check the health of chatrelay by verifying:
  • Configuration loading
  • Database access and schema
  • Response engine configuration

This command is useful for debugging deployments, especially in CI/CD environments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, sectionStyle.Render("🔍 chatrelay Health Check"))
		_, _ = fmt.Fprintln(out)

		// Step 1: Configuration
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return err
		}
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckVerbose {
			src := configPath
			if src == "" {
				src = "(defaults)"
			}
			_, _ = fmt.Fprintf(out, "   Source: %s\n", src)
			_, _ = fmt.Fprintf(out, "   Listen address: %s\n", cfg.Server.Addr)
			_, _ = fmt.Fprintf(out, "   Checkpoint interval: %s\n", cfg.Relay.CheckpointInterval)
		}
		_, _ = fmt.Fprintln(out)

		// Step 2: Database
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 2: Opening database..."))
		if cfg.Database.Path != internal.MemoryDatabase {
			if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
				_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Database file does not exist yet; it will be created"))
			}
		}
		store, err := openStore(cfg)
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Failed to open database"))
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, "Error details:")
			_, _ = fmt.Fprintln(out, err)
			return err
		}
		defer func() { _ = store.Close() }()

		sessions, messages, err := internal.PingDatabase(cmd.Context(), store.DB())
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Database query failed:"), err)
			return err
		}
		_, _ = fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Database ready: %d session(s), %d message(s)", sessions, messages)))
		if healthcheckVerbose {
			_, _ = fmt.Fprintf(out, "   Path: %s\n", cfg.Database.Path)
		}
		_, _ = fmt.Fprintln(out)

		// Step 3: Engine
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 3: Checking response engine..."))
		if _, _, err := engine.New(cmd.Context(), cfg.Engine); err != nil {
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Engine unavailable:"), err)
			if healthcheckVerbose {
				_, _ = fmt.Fprintf(out, "   Provider: %s\n", cfg.Engine.Provider)
				_, _ = fmt.Fprintf(out, "   Use --engine echo with 'chatrelay serve' to run without credentials\n")
			}
		} else {
			_, _ = fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Engine ready (%s)", cfg.Engine.Provider)))
			if healthcheckVerbose {
				_, _ = fmt.Fprintf(out, "   Model: %s\n", cfg.Engine.Model)
			}
		}
		_, _ = fmt.Fprintln(out)

		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Health check passed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed information")
}
