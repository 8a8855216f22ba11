// Command ingestd runs the webhook ingestion service and its maintenance
// operations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	"github.com/wina-futureobjects/track-futura-new-sub007/config"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	sqlstore "github.com/wina-futureobjects/track-futura-new-sub007/store/sql"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "ingestd",
	Short:         "BrightData webhook ingestion service",
	Long:          `Receives signed BrightData deliveries, links each record to its scraping job and manages the quarantine, delivery ledger and event outbox.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&envFile, "env-file", "", "dotenv file loaded before INGEST_* variables are read (default ./.env if present)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "json", "log format: json, text or pretty")

	rootCmd.AddCommand(serveCmd, migrateCmd, jobsCmd, quarantineCmd, deliveriesCmd, outboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ingestd:", err)
		os.Exit(1)
	}
}

// environment is what every subcommand starts from: resolved config, a
// logger and an open database.
type environment struct {
	cfg    core.Config
	logger *glog.BaseLogger
	client *persistence.Client
}

func setup(ctx context.Context) (*environment, error) {
	cfg, err := config.Load(ctx, configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stderr, logLevel, logFormat, cfg.ServiceName)
	client, err := sqlstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &environment{cfg: cfg, logger: logger, client: client}, nil
}

func (e *environment) Close() {
	if e == nil || e.client == nil {
		return
	}
	if err := e.client.Close(); err != nil {
		e.logger.Warn("close store failed", "error", err.Error())
	}
}

// runtime builds a runtime for one-shot commands: no command bus and
// scheduled work runs inline.
func (e *environment) runtime(ctx context.Context) (*ingest.Runtime, error) {
	return ingest.NewRuntime(ctx, e.client, e.cfg,
		ingest.WithRuntimeLogger(e.logger),
		ingest.WithRuntimeLoggerProvider(e.logger),
		ingest.WithoutCommandBus(),
		ingest.WithInlineTasks(),
	)
}

// withRuntime opens the environment, builds a one-shot runtime and hands it
// to fn.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *ingest.Runtime) error) error {
	ctx := cmd.Context()
	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	rt, err := env.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
