package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/iksnae/chatrelay/internal"
)

var (
	verbose    bool
	configPath string
	dbPath     string
	userID     string
	guestToken string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Stream chat sessions from a response engine and keep their history",
	Long: `chatrelay serves multi-session chat over HTTP: it streams assistant
responses as NDJSON, checkpoints them to SQLite while they grow, and titles
new sessions in the background.

The same database can be managed from the command line.

Features:
  • Streaming relay with periodic checkpoints
  • Per-owner session list with pinning and manual ordering
  • Turn deletion that removes a question and everything it produced
  • Export in multiple formats (JSONL, Markdown, YAML, JSON)

Quick Start:
  chatrelay serve                          # Start the HTTP server
  chatrelay list --user 42                 # List a user's sessions
  chatrelay show 7 --user 42               # View one session
  chatrelay export 7 --user 42 --format md # Export as Markdown`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer internal.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ownerFlags holds the flags that pick whose sessions a command works on.
func ownerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("owner", pflag.ContinueOnError)
	fs.StringVar(&userID, "user", "", "Act as the signed-in user with this id")
	fs.StringVar(&guestToken, "guest", "", "Act as the anonymous guest with this token")
	return fs
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().AddFlagSet(ownerFlags())

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*internal.Config, error) {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if !verbose {
		internal.SetLogLevel(internal.ParseLogLevel(cfg.Logging.Level))
	}
	return cfg, nil
}

// openStore opens the configured database.
func openStore(cfg *internal.Config) (*internal.Store, error) {
	store, err := internal.OpenStore(cfg.Database.Path, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}

// loadStore is loadConfig followed by openStore.
func loadStore() (*internal.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

var errOwnerRequired = errors.New("owner required: pass --user <id> or --guest <token>")

// ownerFromFlags builds the owner key selected by --user or --guest.
func ownerFromFlags() (internal.OwnerKey, error) {
	user := strings.TrimSpace(userID)
	guest := strings.TrimSpace(guestToken)
	switch {
	case user != "" && guest != "":
		return internal.OwnerKey{}, errors.New("--user and --guest are mutually exclusive")
	case user != "":
		return internal.UserOwner(user), nil
	case guest != "":
		return internal.GuestOwner(guest), nil
	default:
		return internal.OwnerKey{}, errOwnerRequired
	}
}

// parseID parses a positive row id argument.
func parseID(kind, arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, &internal.ValidationError{Field: kind, Reason: fmt.Sprintf("%q is not a valid id", arg)}
	}
	return id, nil
}

// notFound rewrites ErrNotFound into a message naming what was looked up.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, internal.ErrNotFound) {
		return fmt.Errorf("%s %d not found (use 'chatrelay list' to see available sessions)", what, id)
	}
	return err
}
