package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/orchestrator"
	"github.com/cairnlabs/cairn/pkg/overlay"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the orchestrator service",
	Long: `Run the orchestrator in the foreground: recover persisted agents,
drain the task queue, poll the signal directory, and keep the stable
tree in sync with the project until interrupted.

Examples:
  cairn up
  cairn up --project-root ~/src/service --metrics-addr :9464`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().String("metrics-addr", ":9464", "Listen address for /metrics and /healthz")
	upCmd.Flags().Bool("log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if jsonLogs, _ := cmd.Flags().GetBool("log-json"); jsonLogs {
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})
	}

	orch := orchestrator.New(cfg)
	if err := orch.Initialize(); err != nil {
		if overlay.IsLocked(err) {
			return fmt.Errorf("another cairn service is already running against %s", cfg.Paths.ProjectRoot)
		}
		return err
	}

	// Mirror lifecycle events into the service log.
	sub := orch.Broker().Subscribe()
	go func() {
		for ev := range sub {
			log.Logger.Debug().
				Str("component", "events").
				Str("type", string(ev.Type)).
				Str("agent_id", ev.AgentID).
				Str("message", ev.Message).
				Msg("event")
		}
	}()

	if err := orch.Start(); err != nil {
		orch.Broker().Unsubscribe(sub)
		orch.Stop()
		return err
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	metrics.SetVersion(Version)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %v", err)
		}
	}()

	displayAddr := metricsAddr
	if strings.HasPrefix(displayAddr, ":") {
		displayAddr = "localhost" + displayAddr
	}

	fmt.Println("Starting Cairn orchestrator...")
	fmt.Printf("  Project root: %s\n", cfg.Paths.ProjectRoot)
	fmt.Printf("  Cairn home:   %s\n", cfg.Paths.CairnHome)
	fmt.Printf("  Max agents:   %d\n", cfg.Orchestrator.MaxConcurrentAgents)
	fmt.Printf("  LLM:          %s (%s)\n", cfg.LLM.Endpoint, cfg.LLM.Model)
	fmt.Printf("  Metrics:      http://%s/metrics\n", displayAddr)
	fmt.Println()
	fmt.Println("Orchestrator is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down, waiting for running agents...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		fmt.Println("Shutting down, waiting for running agents...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	orch.Broker().Unsubscribe(sub)
	orch.Stop()

	fmt.Println("✓ Shutdown complete")
	return nil
}
