package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/envboot/internal/core/server"
	"github.com/solatis/envboot/internal/lifecycle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bootstrap lifecycle and report readiness over gRPC health",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "127.0.0.1", "gRPC health server host")
	serveCmd.Flags().Int("port", 50061, "gRPC health server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	rt, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	health, err := server.NewHealthServer(cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := health.Listen(); err != nil {
		return err
	}
	rt.gate.OnTransition(func(_, to lifecycle.State) {
		if to.AtLeast(lifecycle.Ready) {
			health.SetServing(true)
		}
	})

	logger.Info("starting envboot health server", "version", Version, "addr", health.Addr())
	errChan := make(chan error, 2)
	go func() {
		errChan <- health.Serve()
	}()
	go func() {
		if _, err := rt.gate.Run(ctx); err != nil {
			errChan <- fmt.Errorf("lifecycle: %w", err)
			return
		}
		logger.Info("bootstrap complete", "state", rt.gate.State().String())
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
