package indexer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderScope/internal/chain"
	"orderScope/internal/metrics"
	"orderScope/internal/model"
	"orderScope/internal/storage"
)

// ChainSource is the subset of the chain connector used by the sync job.
type ChainSource interface {
	Chains() []model.ChainInfo
	IsSlow(chainID uint64) bool
	CurrentBlock(ctx context.Context, chainID uint64) (uint64, error)
	Counters(ctx context.Context, chainID uint64) (model.Counters, error)
	OrderEvents(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) (chain.EventResult, error)
}

// Store is the persistence used by the sync job.
type Store interface {
	storage.OrderStore
	storage.MetricsStore
	storage.SyncStatusStore
}

// RunConfig holds runtime settings for the sync job.
type RunConfig struct {
	InitialLookback uint64
	BatchSize       uint64
	BatchDelay      time.Duration
	SlowBatchDelay  time.Duration
}

// Result summarizes one sync invocation for one chain.
type Result struct {
	RunID      string
	Kind       model.SyncKind
	ChainID    uint64
	Skipped    bool
	Status     model.SyncStatus
	Inserted   int
	Updated    int
	Unchanged  int
	Duplicates int
	Err        error
}

// Runner executes order and metrics syncs against the configured chains.
type Runner struct {
	cfg    RunConfig
	source ChainSource
	store  Store
	logger *zap.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source ChainSource, store Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialLookback == 0 {
		cfg.InitialLookback = DefaultInitialLookback
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5000
	}
	return &Runner{
		cfg:    cfg,
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
		sleep:  sleep,
	}
}

// RunAll syncs every configured chain one after another. A failing chain is
// logged and does not stop the remaining ones.
func (r *Runner) RunAll(ctx context.Context, kind model.SyncKind) []Result {
	chains := r.source.Chains()
	results := make([]Result, 0, len(chains))
	for _, info := range chains {
		if ctx.Err() != nil {
			break
		}
		res, err := r.Sync(ctx, kind, info.ID)
		if err != nil {
			r.logger.Error("chain sync failed",
				zap.String("kind", string(kind)),
				zap.Uint64("chain_id", info.ID),
				zap.String("run_id", res.RunID),
				zap.Error(err),
			)
		}
		results = append(results, res)
	}
	return results
}

// Sync runs one sync of the given kind for one chain.
func (r *Runner) Sync(ctx context.Context, kind model.SyncKind, chainID uint64) (Result, error) {
	switch kind {
	case model.SyncKindOrders:
		return r.SyncOrders(ctx, chainID)
	case model.SyncKindMetrics:
		return r.SyncMetrics(ctx, chainID)
	default:
		return Result{Kind: kind, ChainID: chainID}, fmt.Errorf("unknown sync kind: %q", kind)
	}
}

// SyncOrders ingests OrderCreated events from the cursor up to the current block.
func (r *Runner) SyncOrders(ctx context.Context, chainID uint64) (Result, error) {
	return r.run(ctx, model.SyncKindOrders, chainID, r.syncOrders)
}

// SyncMetrics appends one contract counter snapshot.
func (r *Runner) SyncMetrics(ctx context.Context, chainID uint64) (Result, error) {
	return r.run(ctx, model.SyncKindMetrics, chainID, r.syncMetrics)
}

type workFunc func(ctx context.Context, log *zap.Logger, status model.SyncStatus, res *Result) model.SyncOutcome

func (r *Runner) run(ctx context.Context, kind model.SyncKind, chainID uint64, work workFunc) (Result, error) {
	res := Result{RunID: uuid.NewString(), Kind: kind, ChainID: chainID}
	if !r.configured(chainID) {
		res.Err = fmt.Errorf("chain %d: %w", chainID, chain.ErrChainNotConfigured)
		return res, res.Err
	}

	log := r.logger.With(
		zap.String("kind", string(kind)),
		zap.Uint64("chain_id", chainID),
		zap.String("run_id", res.RunID),
	)
	label := strconv.FormatUint(chainID, 10)

	status, acquired, err := r.store.AcquireSync(ctx, kind, chainID)
	if err != nil {
		res.Err = fmt.Errorf("acquire sync status: %w", err)
		return res, res.Err
	}
	if !acquired {
		log.Info("sync already running, skipping")
		metrics.SyncRuns.WithLabelValues(string(kind), label, "skipped").Inc()
		res.Skipped = true
		res.Status = status
		return res, nil
	}

	started := r.now()
	outcome := r.protect(ctx, log, status, &res, work)

	// The cursor must be released even when ctx was cancelled mid-run.
	released, err := r.store.ReleaseSync(context.WithoutCancel(ctx), kind, chainID, outcome)
	if err != nil {
		log.Error("release sync status", zap.Error(err))
		res.Err = fmt.Errorf("release sync status: %w", err)
		return res, res.Err
	}
	res.Status = released
	res.Err = outcome.Err

	metrics.SyncDuration.WithLabelValues(string(kind), label).Observe(r.now().Sub(started).Seconds())
	metrics.LastSyncedBlock.WithLabelValues(string(kind), label).Set(float64(released.LastSyncedBlock))
	if outcome.Err != nil {
		metrics.SyncRuns.WithLabelValues(string(kind), label, "error").Inc()
		return res, outcome.Err
	}
	metrics.SyncRuns.WithLabelValues(string(kind), label, "success").Inc()
	log.Info("sync complete",
		zap.Uint64("last_synced_block", released.LastSyncedBlock),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed_ranges", len(outcome.FailedRanges)),
	)
	return res, nil
}

// protect converts a panic inside work into a failed outcome.
func (r *Runner) protect(ctx context.Context, log *zap.Logger, status model.SyncStatus, res *Result, work workFunc) (outcome model.SyncOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("sync panicked", zap.Any("panic", p))
			outcome.Err = fmt.Errorf("sync panicked: %v", p)
		}
	}()
	return work(ctx, log, status, res)
}

func (r *Runner) syncOrders(ctx context.Context, log *zap.Logger, status model.SyncStatus, res *Result) model.SyncOutcome {
	var outcome model.SyncOutcome
	chainID := status.ChainID

	target, err := r.source.CurrentBlock(ctx, chainID)
	if err != nil {
		outcome.Err = fmt.Errorf("current block: %w", err)
		return outcome
	}

	from := startBlock(status, target, r.cfg.InitialLookback)
	if from > target {
		log.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", target))
		return outcome
	}

	ranges, err := chain.SplitRange(from, target, r.cfg.BatchSize)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	delay := r.cfg.BatchDelay
	if r.source.IsSlow(chainID) {
		delay = r.cfg.SlowBatchDelay
	}
	label := strconv.FormatUint(chainID, 10)

	for i, blockRange := range ranges {
		if i > 0 {
			if err := r.sleep(ctx, delay); err != nil {
				outcome.Err = err
				return outcome
			}
		}

		log.Debug("fetch order events", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		events, err := r.source.OrderEvents(ctx, chainID, blockRange.From, blockRange.To)
		if err != nil {
			outcome.Err = fmt.Errorf("order events %s: %w", blockRange, err)
			return outcome
		}
		outcome.FailedRanges = append(outcome.FailedRanges, events.Failed...)

		for _, event := range events.Events {
			order := buildOrder(event)
			result, err := r.store.UpsertOrder(ctx, order)
			if err != nil {
				outcome.Err = fmt.Errorf("upsert order %s: %w", order.OrderID, err)
				return outcome
			}
			metrics.OrdersIngested.WithLabelValues(label, result.String()).Inc()
			switch result {
			case storage.UpsertInserted:
				res.Inserted++
			case storage.UpsertUpdated:
				res.Updated++
			case storage.UpsertUnchanged:
				res.Unchanged++
			case storage.UpsertDuplicate:
				res.Duplicates++
				log.Info("duplicate order absorbed",
					zap.String("order_id", order.OrderID),
					zap.String("tx_hash", order.TxHash),
				)
			}
		}

		outcome.SyncedBlock = blockRange.To
		log.Info("batch complete",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("events", len(events.Events)),
			zap.Int("failed_ranges", len(events.Failed)),
		)
	}

	return outcome
}

func (r *Runner) syncMetrics(ctx context.Context, log *zap.Logger, status model.SyncStatus, res *Result) model.SyncOutcome {
	var outcome model.SyncOutcome
	counters, err := r.source.Counters(ctx, status.ChainID)
	if err != nil {
		outcome.Err = fmt.Errorf("counters: %w", err)
		return outcome
	}
	snapshot := model.ContractMetrics{
		ChainID:   status.ChainID,
		Counters:  counters,
		Timestamp: r.now().UTC(),
	}
	if err := r.store.InsertContractMetrics(ctx, snapshot); err != nil {
		outcome.Err = fmt.Errorf("insert contract metrics: %w", err)
		return outcome
	}
	res.Inserted++
	log.Debug("contract metrics stored", zap.String("order_count", counters.OrderCount))
	return outcome
}

func (r *Runner) configured(chainID uint64) bool {
	for _, info := range r.source.Chains() {
		if info.ID == chainID {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
