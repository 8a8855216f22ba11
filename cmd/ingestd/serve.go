package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	"github.com/wina-futureobjects/track-futura-new-sub007/migrations"
)

var (
	serveMigrate         bool
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook endpoint and run scheduled maintenance",
	Long:  `Starts the HTTP server for POST /webhooks/{provider} and GET /healthz, the outbox dispatch and ledger prune schedules, and the job worker.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations before serving")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if serveMigrate {
		if err := migrations.Apply(ctx, env.client, env.cfg.Store.Dialect); err != nil {
			return err
		}
	}

	rt, err := ingest.NewRuntime(ctx, env.client, env.cfg,
		ingest.WithRuntimeLogger(env.logger),
		ingest.WithRuntimeLoggerProvider(env.logger),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := rt.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		env.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	rt.Start(ctx)

	select {
	case <-ctx.Done():
		env.logger.Info("shutdown requested")
	case err = <-serveErr:
		if err != nil {
			env.logger.Error("http server failed", "error", err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		env.logger.Warn("http shutdown incomplete", "error", shutdownErr.Error())
	}
	if stopErr := rt.Stop(shutdownCtx); stopErr != nil {
		env.logger.Warn("scheduler shutdown incomplete", "error", stopErr.Error())
	}
	return err
}
