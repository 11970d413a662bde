package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/aggregate"
	"orderScope/internal/chain"
	"orderScope/internal/config"
	"orderScope/internal/storage"
)

func newVolumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Aggregate gateway token volumes into one fiat snapshot",
		RunE:  runVolume,
	}
	cmd.Flags().Bool("dry-run", false, "use an in-memory store instead of Postgres")
	return cmd
}

func runVolume(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer store.close()

	connector, err := openConnector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connector.Close()

	agg, err := newAggregator(cfg, connector, store, logger)
	if err != nil {
		return err
	}
	snapshot, err := agg.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("volume done",
		zap.Int64("id", snapshot.ID),
		zap.Float64("total_usd", snapshot.TotalVolumeUSD),
		zap.Float64("total_local", snapshot.TotalVolumeLocal),
		zap.String("local_currency", snapshot.LocalCurrency),
	)
	return nil
}

func newAggregator(cfg config.Config, connector *chain.Connector, store storage.SnapshotStore, logger *zap.Logger) (*aggregate.Aggregator, error) {
	lookup, err := newPriceLookup(cfg, logger)
	if err != nil {
		return nil, err
	}
	return aggregate.NewAggregator(aggregate.Config{
		LocalCurrency: cfg.Price.LocalCurrency,
	}, connector, lookup, store, logger), nil
}
