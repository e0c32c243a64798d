package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/database/postgres"
	"github.com/Hofman2HQ/LookALike/internal/facematch"
	"github.com/Hofman2HQ/LookALike/internal/pipeline"
	"github.com/Hofman2HQ/LookALike/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the LookALike web server.

The server exposes POST /match and GET /health, serves dataset photos under
/static and a small upload page at /. The index and the embedding pipeline
are loaded at startup; a missing index starts the server with an empty one.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST)")
}

// initPostgres connects the PostgreSQL reference store and registers it as
// the postgres backend.
func initPostgres(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required for the postgres backend")
	}
	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	if cfg.Search.Backend == pipeline.BackendPostgres {
		if err := initPostgres(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matcher, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load matcher: %w", err)
	}
	fmt.Printf("Index ready with %d reference faces (embedder: %s, detector: %s)\n",
		matcher.Size(), matcher.Pipeline().Embedder().Name(), matcher.Pipeline().Preprocessor().DetectorName())
	if cfg.Detector.Kind != facematch.DetectorNone && matcher.Pipeline().Preprocessor().DetectorName() == facematch.DetectorNone {
		fmt.Printf("No face detector available: queries use the whole image. Run 'lookalike fetch-cascade' to install %s\n",
			cfg.Detector.CascadePath)
	}

	server := web.NewServer(cfg, matcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if pool := postgres.GetGlobalPool(); pool != nil {
			_ = pool.Close()
		}
	}()

	fmt.Printf("Starting LookALike on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
