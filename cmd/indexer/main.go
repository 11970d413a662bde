package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderScope/internal/chain"
	"orderScope/internal/config"
	"orderScope/internal/price"
	"orderScope/internal/storage"
	"orderScope/internal/storage/memory"
	"orderScope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Multi-chain order indexer and volume aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newVolumeCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newAdminTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// closableStore is a store together with its release function.
type closableStore struct {
	storage.Store
	close func()
}

func (s closableStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, dryRun bool, logger *zap.Logger) (closableStore, error) {
	if dryRun {
		logger.Info("dry run: using in-memory store")
		return closableStore{Store: memory.New(), close: func() {}}, nil
	}
	if cfg.PGDSN == "" {
		return closableStore{}, fmt.Errorf("pg-dsn is required")
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return closableStore{}, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return closableStore{}, err
	}
	return closableStore{Store: store, close: store.Close}, nil
}

func openConnector(ctx context.Context, cfg config.Config, logger *zap.Logger) (*chain.Connector, error) {
	chains := cfg.ChainConfigs()
	if len(chains) == 0 {
		return nil, fmt.Errorf("no enabled chains configured")
	}
	connector := chain.NewConnector(cfg.ConnectorConfig(), logger)
	if err := connector.Dial(ctx, chains); err != nil {
		connector.Close()
		return nil, err
	}
	return connector, nil
}

func newPriceLookup(cfg config.Config, logger *zap.Logger) (*price.Lookup, error) {
	symbols := price.DefaultSymbols()
	if cfg.Price.SymbolsFile != "" {
		loaded, err := price.LoadSymbolTable(cfg.Price.SymbolsFile)
		if err != nil {
			return nil, err
		}
		symbols = loaded
	}
	feed := price.NewHTTPFeed(cfg.Price.APIURL, cfg.Price.APIKey, cfg.Price.LocalCurrency, cfg.RPC.Timeout)
	return price.NewLookup(price.LookupConfig{
		CacheTTL:    cfg.Price.CacheTTL,
		MinInterval: cfg.Price.MinInterval,
	}, feed, symbols, logger), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
