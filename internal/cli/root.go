// Package cli provides the command-line interface for roger.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rogercare/roger-go/internal/config"
	"github.com/rogercare/roger-go/internal/crisis"
	"github.com/rogercare/roger-go/internal/llm"
	"github.com/rogercare/roger-go/internal/metrics"
	"github.com/rogercare/roger-go/internal/notify"
	"github.com/rogercare/roger-go/internal/pipeline"
	"github.com/rogercare/roger-go/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var verbose bool

// Global config, loaded once before any subcommand runs.
var cfg config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "roger",
	Short: "Conversational companion with crisis-aware response gating",
	Long: `Roger is a conversational companion for at-risk users. Every reply
passes through a safety pipeline: crisis classification and escalation,
feedback-loop detection, tiered memory with grounding, and hallucination
screening.

Run it as an MCP server over stdio, chat with it directly in the
terminal, or inspect recorded crisis events.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		cfg = config.Load()
		return nil
	},
}

// connectStore opens the SurrealDB client and initializes the schema.
func connectStore(ctx context.Context, logger *slog.Logger) (*store.Client, error) {
	client, err := store.NewClient(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return client, nil
}

// buildAssembler wires the full pipeline from config. The store may be
// nil, in which case crisis events and memory snapshots stay in-process.
func buildAssembler(storeClient *store.Client, logger *slog.Logger) *pipeline.Assembler {
	collector := metrics.NewCollector()

	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}
	notifier = notify.NewTimedNotifier(notifier, func(d time.Duration, err error) {
		collector.RecordTiming(metrics.OpNotify, d)
		if err != nil {
			collector.RecordError(metrics.OpNotify)
		}
	})

	var audit crisis.AuditSink
	classifier := crisis.NewClassifier(logger)
	templates := crisis.NewTemplates(rand.New(rand.NewSource(time.Now().UnixNano())))
	if storeClient != nil {
		audit = storeClient
	}
	escalator := crisis.NewEscalator(classifier, templates, notifier, audit, logger, nil)

	var generator llm.Generator
	model, err := llm.NewModel(cfg)
	if err != nil {
		logger.Warn("language model unavailable, replies fall back to templates", "error", err)
	} else {
		generator = model
		logger.Info("language model ready", "provider", cfg.LLMProvider, "model", model.Model())
	}

	opts := pipeline.Options{
		Classifier: classifier,
		Escalator:  escalator,
		Generator:  generator,
		Metrics:    collector,
		Logger:     logger,
	}
	if storeClient != nil {
		opts.Store = storeClient
	}
	return pipeline.NewAssembler(opts)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
