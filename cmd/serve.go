package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the face verification API server",
	Long: `Start the Facegate HTTP server.
The server exposes the enrollment and verification endpoints for badge
terminals, the identities admin API, a health probe and Prometheus
metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}

	log := logger.Setup(cfg.Server.LogLevel)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	fmt.Printf("Using %s identity store\n", cfg.Store.Backend)
	app, err := newApp(cfg, log, indexLoad, collector)
	if err != nil {
		return err
	}
	defer app.Close()
	fmt.Printf("Identify index ready with %d identities\n", app.index.Count())

	// A model server outage must not keep the API from binding; verify
	// requests fail individually and /healthz reports the degradation.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	health := app.svc.Health(pingCtx)
	cancelPing()
	if health.Extractor != "ok" {
		fmt.Printf("Warning: model server not reachable: %s\n", health.Extractor)
	} else {
		fmt.Printf("Model server ready (model %s, %d enrolled)\n", health.Model, health.Enrolled)
	}

	server := web.NewServer(&cfg.Server, app.svc, registry, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		app.saveIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facegate API on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
