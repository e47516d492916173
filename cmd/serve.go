package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/engine"
	"github.com/iksnae/chatrelay/internal/relay"
	"github.com/iksnae/chatrelay/internal/server"
)

var (
	serveAddr      string
	serveEngine    string
	serveEchoDelay int
	serveJSONLogs  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the chat server: session management endpoints plus the NDJSON
streaming relay. Stops gracefully on SIGINT or SIGTERM, finishing in-flight
streams and background title tasks first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveEngine != "" {
			cfg.Engine.Provider = serveEngine
		}
		if serveJSONLogs || cfg.Logging.JSON {
			internal.SetJSON(true)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		eng, sum, err := engine.New(ctx, cfg.Engine, engine.WithEchoDelay(serveEchoDelay))
		if err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}

		rl := relay.New(store, eng, sum, relay.WithConfig(cfg.Relay))
		srv := server.New(store, rl, server.NewHeaderResolver(cfg.Server))

		internal.LogInfo("Using %s engine, database %s", cfg.Engine.Provider, cfg.Database.Path)
		return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout, func(addr net.Addr) {
			internal.PrintInfo(cmd.OutOrStdout(), fmt.Sprintf("Listening on http://%s", addr))
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveEngine, "engine", "", "Engine provider: genai or echo (overrides config)")
	serveCmd.Flags().IntVar(&serveEchoDelay, "echo-delay", 30, "Milliseconds between words for the echo engine")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "Log as JSON")
}
