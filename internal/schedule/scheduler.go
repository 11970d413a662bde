package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"orderScope/internal/indexer"
	"orderScope/internal/model"
)

// SyncRunner runs the per-chain sync job.
type SyncRunner interface {
	RunAll(ctx context.Context, kind model.SyncKind) []indexer.Result
	Sync(ctx context.Context, kind model.SyncKind, chainID uint64) (indexer.Result, error)
}

// VolumeRunner produces one volume snapshot.
type VolumeRunner interface {
	Run(ctx context.Context) (*model.VolumeSnapshot, error)
}

// Config holds the fixed trigger intervals. A zero interval disables the job.
type Config struct {
	OrdersInterval  time.Duration
	MetricsInterval time.Duration
	VolumeInterval  time.Duration
}

// Scheduler fires the sync job and the volume aggregator on fixed intervals.
type Scheduler struct {
	cfg    Config
	sync   SyncRunner
	volume VolumeRunner
	logger *zap.Logger
	cron   *cron.Cron
}

func New(cfg Config, sync SyncRunner, volume VolumeRunner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	clog := cronLogger{logger.Sugar()}
	return &Scheduler{
		cfg:    cfg,
		sync:   sync,
		volume: volume,
		logger: logger,
		cron:   cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog))),
	}
}

// Start registers the jobs and starts the cron loop. Jobs run until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.every(s.cfg.OrdersInterval, "orders", func() {
		s.sync.RunAll(ctx, model.SyncKindOrders)
	}); err != nil {
		return err
	}
	if err := s.every(s.cfg.MetricsInterval, "metrics", func() {
		s.sync.RunAll(ctx, model.SyncKindMetrics)
	}); err != nil {
		return err
	}
	// The aggregator has no running flag, so overlapping ticks are dropped here.
	volumeJob := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})).Then(cron.FuncJob(func() {
		if _, err := s.volume.Run(ctx); err != nil {
			s.logger.Error("volume aggregation failed", zap.Error(err))
		}
	}))
	if s.cfg.VolumeInterval > 0 && s.volume != nil {
		if _, err := s.cron.AddJob(spec(s.cfg.VolumeInterval), volumeJob); err != nil {
			return fmt.Errorf("schedule volume: %w", err)
		}
		s.logger.Info("job scheduled", zap.String("job", "volume"), zap.Duration("interval", s.cfg.VolumeInterval))
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) every(interval time.Duration, name string, fn func()) error {
	if interval <= 0 || s.sync == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(spec(interval), fn); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func spec(interval time.Duration) string {
	return "@every " + interval.String()
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
