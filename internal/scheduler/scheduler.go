// Package scheduler drives the processing loop: it claims pending
// inbox items each tick, hands them to the engine, and every Nth tick
// runs the low-frequency sweeps (proactive nudges, scheduled workflows,
// due calendar events, embedding backfill).
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/engram/internal/provider"
	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/workflow"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultBatchSize    = 5
	defaultSweepEvery   = 10
	defaultCallTimeout  = 60 * time.Second
)

// Options configures a Scheduler. Zero values fall back to defaults;
// Now is injectable for tests and defaults to time.Now.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	// SweepEvery runs the low-frequency sweeps every Nth tick.
	SweepEvery int
	// CallTimeout bounds each provider call made by the sweeps.
	CallTimeout time.Duration
	Now         func() time.Time
	// Backfill, if set, is invoked during sweeps to embed entities
	// that were filed without a vector.
	Backfill func(ctx context.Context) error
	Logger   *slog.Logger
}

// Scheduler owns the tick counter and the poll cadence. It processes
// items sequentially to keep audit ordering deterministic and to stay
// friendly to provider rate limits.
type Scheduler struct {
	store    *storage.Store
	engine   *workflow.Engine
	executor *workflow.Executor
	provider provider.Provider

	pollInterval time.Duration
	batchSize    int
	sweepEvery   int
	callTimeout  time.Duration
	now          func() time.Time
	backfill     func(ctx context.Context) error
	logger       *slog.Logger

	tick int
}

// New wires a Scheduler over the store, engine and executor.
func New(store *storage.Store, engine *workflow.Engine, executor *workflow.Executor, p provider.Provider, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = defaultSweepEvery
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		engine:       engine,
		executor:     executor,
		provider:     p,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		sweepEvery:   opts.SweepEvery,
		callTimeout:  opts.CallTimeout,
		now:          opts.Now,
		backfill:     opts.Backfill,
		logger:       opts.Logger,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"poll_interval", s.pollInterval,
		"batch_size", s.batchSize,
		"sweep_every", s.sweepEvery)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single tick: claim and process a batch, then run
// the sweeps when the tick counter says so. Errors are logged, never
// returned; a bad tick must not take the loop down.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick++

	s.processBatch(ctx)

	if s.tick%s.sweepEvery == 0 {
		s.runSweeps(ctx)
	}
}

func (s *Scheduler) processBatch(ctx context.Context) {
	items, err := s.store.ClaimPendingItems(s.batchSize)
	if err != nil {
		s.logger.Error("claiming inbox items", "error", err)
		return
	}

	for _, item := range items {
		if err := s.engine.ProcessItem(ctx, item); err != nil {
			s.logger.Error("processing inbox item", "item", item.ID, "error", err)
		}
	}
}

func (s *Scheduler) runSweeps(ctx context.Context) {
	s.nudgeSweep(ctx)
	s.scheduledWorkflowSweep(ctx)
	s.calendarSweep(ctx)

	if s.backfill != nil {
		if err := s.backfill(ctx); err != nil {
			s.logger.Warn("embedding backfill sweep", "error", err)
		}
	}
}
