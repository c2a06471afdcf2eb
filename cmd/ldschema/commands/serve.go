package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/server"
	"github.com/teranos/ldschema/version"
)

// ServeCmd starts the HTTP API
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP API",
	Long: `Serve validation, repair, generation, rendering, review, history,
inspection and stats over HTTP, plus Prometheus metrics at /metrics.
The blocklist file, when configured, is reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{watchPolicy: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		a.cfg.Server.Port = port
	}

	srv, err := server.New(server.Config{
		Workflow:   a.workflow,
		Renderer:   a.renderer,
		Repairer:   a.repairer,
		History:    a.history,
		Events:     a.events,
		Review:     a.review,
		Inspector:  a.inspector,
		Cache:      a.cache,
		DebugToken: a.cfg.Server.DebugToken,
		Logger:     logger.ComponentLogger("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Infow("Starting ldschema server",
		"version", version.Get().String(),
		"addr", a.cfg.ServerAddr(),
		"database", a.cfg.Database.Path,
		"cache", a.cfg.Cache.Backend,
		"debug_view", a.cfg.Server.DebugToken != "")
	return srv.ListenAndServe(ctx, a.cfg.ServerAddr())
}
