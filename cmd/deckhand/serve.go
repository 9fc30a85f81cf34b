package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/deckhand/internal/cli"
	httpAdapter "github.com/aretw0/deckhand/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve command execution over HTTP",
	Long:  `Starts the agent as an HTTP server accepting command requests on POST /v1/commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		addr := agent.Config.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler := httpAdapter.NewHandler(agent.Processor, agent.Store,
			httpAdapter.WithMetrics(agent.Metrics.Handler()),
			httpAdapter.WithLogger(agent.Logger),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Stop()

		serverErrors := make(chan error, 1)
		go func() {
			agent.Logger.Info("Starting deckhand server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			agent.Logger.Info("Start shutdown", "signal", ctx.Signal())

			// Give in-flight commands a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				agent.Logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			agent.Logger.Info("Deckhand server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides DECKHAND_LISTEN_ADDR)")
}
