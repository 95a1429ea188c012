package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rogercare/roger-go/internal/config"
	"github.com/rogercare/roger-go/internal/memory"
	"github.com/rogercare/roger-go/internal/server"
	"github.com/rogercare/roger-go/internal/tools"
)

var serveNoStore bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP companion server on stdio",
	Long: `Run the MCP server over stdio. Exposes the converse, session_reset,
memory_stats, crisis_history, and ping tools.

Crisis events and memory snapshots are persisted to SurrealDB unless
--no-store is given, in which case everything stays in-process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "run without SurrealDB persistence")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Dual output: stderr text + file JSON. Stdout carries the MCP
	// transport and must stay clean.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("roger starting",
		"version", Version,
		"surrealdb_url", cfg.SurrealDBURL,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	deps := &tools.Dependencies{Logger: logger}

	if !serveNoStore {
		storeClient, err := connectStore(ctx, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return err
		}
		defer func() {
			logger.Info("closing database connection")
			_ = storeClient.Close(ctx)
		}()
		deps.Events = storeClient
		deps.Assembler = buildAssembler(storeClient, logger)
	} else {
		logger.Warn("running without persistence, crisis events are not recorded")
		deps.Assembler = buildAssembler(nil, logger)
	}

	// Periodic tier consolidation across all live session banks.
	consolidator := memory.NewConsolidator(cfg.ConsolidateInterval, deps.Assembler.Banks, logger)
	go consolidator.Run(ctx)

	srv := server.New(Version, logger)
	srv.Setup()

	tools.RegisterAll(srv.MCPServer(), deps)
	logger.Info("tools registered", "count", 5)

	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
