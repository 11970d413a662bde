package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/config"
	"orderScope/internal/indexer"
	"orderScope/internal/model"
	"orderScope/internal/storage"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one order or metrics sync across the configured chains",
		Long: `Run one order or metrics sync across the configured chains.

A (kind, chain) whose running flag was left set by a crashed process is
skipped. serve clears those flags at startup; --reset-running clears them
here. Only use it when no other indexer process is running.`,
		RunE: runSync,
	}
	cmd.Flags().String("kind", string(model.SyncKindOrders), "sync kind (orders, metrics)")
	cmd.Flags().Uint64("chain", 0, "only sync this chain id (0 means all)")
	cmd.Flags().Bool("dry-run", false, "use an in-memory store instead of Postgres")
	cmd.Flags().Bool("reset-running", false, "clear stale running flags before syncing")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kindFlag, _ := cmd.Flags().GetString("kind")
	kind, err := model.ParseSyncKind(kindFlag)
	if err != nil {
		return err
	}
	chainID, _ := cmd.Flags().GetUint64("chain")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	resetRunning, _ := cmd.Flags().GetBool("reset-running")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer store.close()

	if resetRunning {
		if err := resetStaleRuns(ctx, store, logger); err != nil {
			return err
		}
	}

	connector, err := openConnector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connector.Close()

	runner := newRunner(cfg, connector, store, logger)

	logger.Info("sync start",
		zap.String("kind", string(kind)),
		zap.Uint64("chain_id", chainID),
		zap.Bool("dry_run", dryRun),
	)

	if chainID != 0 {
		_, err := runner.Sync(ctx, kind, chainID)
		return err
	}

	failed := 0
	for _, res := range runner.RunAll(ctx, kind) {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d chain(s) failed to sync", failed)
	}
	return nil
}

func newRunner(cfg config.Config, source indexer.ChainSource, store indexer.Store, logger *zap.Logger) *indexer.Runner {
	return indexer.NewRunner(indexer.RunConfig{
		InitialLookback: cfg.Sync.InitialLookback,
		BatchSize:       cfg.Sync.BatchSize,
		BatchDelay:      cfg.Sync.BatchDelay,
		SlowBatchDelay:  cfg.Sync.SlowBatchDelay,
	}, source, store, logger)
}

func resetStaleRuns(ctx context.Context, store storage.SyncStatusStore, logger *zap.Logger) error {
	n, err := store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset running flags: %w", err)
	}
	if n > 0 {
		logger.Warn("cleared stale running flags", zap.Int64("count", n))
	}
	return nil
}
