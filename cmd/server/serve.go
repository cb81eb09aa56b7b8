package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/ticket-ledger/api"
	"github.com/warp/ticket-ledger/infra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port    int
	NoAudit bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ticket ledger HTTP API",
		Long: `Open the ledger, replay its journal and serve the HTTP API.

STARTUP SEQUENCE:
  1. Load configuration (file, environment, flags)
  2. Open SQLite and bind it to the ledger parameters
  3. Replay the journal into the in-memory ledger
  4. Start the audit scheduler
  5. Start the HTTP server

On SIGINT/SIGTERM the server stops accepting connections, waits for active
requests (server.shutdown_timeout), stops the scheduler and closes the
database.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP server port (overrides config)")
	cmd.Flags().BoolVar(&opts.NoAudit, "no-audit", false, "disable the audit scheduler")

	return cmd
}

func runServe(opts *ServeOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.NoAudit {
		cfg.Audit.Enabled = false
	}

	logger := infra.NewLogger(cfg)

	// Initialize store and ledger
	store, svc, err := infra.OpenLedger(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, svc, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	scheduler := api.NewAuditScheduler(store, svc, logger)
	scheduler.CheckInterval = cfg.Audit.Interval
	scheduler.Enabled = cfg.Audit.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped", "last_seq", svc.LastSeq())
	return nil
}
