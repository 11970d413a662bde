package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/api"
	"orderScope/internal/schedule"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the analytics API",
		RunE:  runServe,
	}
	cmd.Flags().String("http-addr", ":8080", "analytics API listen address")
	cmd.Flags().String("redis-addr", "", "Redis address for the response cache (empty disables it)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// Single instance: any running flag left at startup belongs to a dead process.
	if err := resetStaleRuns(ctx, store, logger); err != nil {
		return err
	}

	connector, err := openConnector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connector.Close()

	runner := newRunner(cfg, connector, store, logger)
	agg, err := newAggregator(cfg, connector, store, logger)
	if err != nil {
		return err
	}

	scheduler := schedule.New(schedule.Config{
		OrdersInterval:  cfg.Sync.OrdersInterval,
		MetricsInterval: cfg.Sync.MetricsInterval,
		VolumeInterval:  cfg.Sync.VolumeInterval,
	}, runner, agg, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var cache api.ResponseCache
	if cfg.RedisAddr != "" {
		redisCache, err := api.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Warn("response cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	var auth *api.Authenticator
	if cfg.AdminSecret != "" {
		auth = api.NewAuthenticator(cfg.AdminSecret)
	} else {
		logger.Warn("admin secret not set, force sync endpoint disabled")
	}

	server := api.NewServer(api.Config{
		Addr:        cfg.HTTPAddr,
		MaxPageSize: cfg.API.MaxPageSize,
		CacheTTL:    cfg.API.CacheTTL,
	}, store, scheduler, auth, cache, logger)

	logger.Info("serve start",
		zap.Int("chains", len(connector.Chains())),
		zap.Duration("orders_interval", cfg.Sync.OrdersInterval),
		zap.Duration("metrics_interval", cfg.Sync.MetricsInterval),
		zap.Duration("volume_interval", cfg.Sync.VolumeInterval),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	return server.ListenAndServe(ctx)
}
