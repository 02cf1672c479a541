package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/session"
	"github.com/kozaktomas/face-logger/internal/web"
	"github.com/kozaktomas/face-logger/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition HTTP API",
	Long: `Start an HTTP API for remote cameras and kiosks.

Clients that run their own face detector post embeddings to /api/v1/recognize;
the server applies the same matching, cooldown and logging as 'watch'.
Identities can be listed and registered over /api/v1/identities.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (0 = WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (empty = WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return err
	}
	logger := attendance.NewLogger(cfg.Log.Path)
	if err := logger.Init(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	pool, mirrors, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		fmt.Println("Mirroring log entries to PostgreSQL")
	}

	logging := session.NewLogging(store, logger, session.Options{
		Threshold: cfg.Matching.Threshold,
		Cooldown:  cfg.Log.Cooldown,
	}, mirrors...)
	server := web.NewServer(cfg, handlers.NewState(logging, cfg.Matching.Threshold, cfg.Log.Path))

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving %d registered people on http://%s:%d\n", len(store.Labels()), cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
