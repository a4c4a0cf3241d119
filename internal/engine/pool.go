// Package engine runs the worker pool that generates traffic. Each worker
// owns its chaos timer, Markov cursors, frustration counter and header
// identity; the metrics aggregator and event broker are the only shared
// objects, both concurrency-safe.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/fetch"
	"github.com/quietriver/chaff/internal/metrics"
)

// Config holds the pool's tuning knobs. Validation happens in the config
// package before a Config reaches the engine.
type Config struct {
	Workers int
	Enabled []catalog.Category // non-empty; categories workers draw from
	Seed    int64

	SwitchProb   float64 // per-tick probability of changing category
	ChainProb    float64 // probability a change follows a related edge
	IdentityProb float64 // per-tick probability of rotating identity
	Escalation   bool    // enable frustration query mutation
	MarkovPacing bool    // advance the pacing chain each tick

	MinDelay time.Duration // floor applied after all delay scaling
}

// Pool owns the worker goroutines.
type Pool struct {
	cfg     Config
	workers []*worker
	logger  *slog.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool builds the workers without starting them.
func NewPool(cfg Config, cat *catalog.Catalog, fetcher fetch.Fetcher, agg *metrics.Aggregator, broker *Broker, logger *slog.Logger) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("engine: worker count %d, want >= 1", cfg.Workers)
	}
	if len(cfg.Enabled) == 0 {
		return nil, fmt.Errorf("engine: no enabled categories")
	}
	for _, c := range cfg.Enabled {
		if cat.Lookup(c) == nil {
			return nil, fmt.Errorf("engine: unknown category %q", c)
		}
	}

	p := &Pool{cfg: cfg, logger: logger}
	for i := 0; i < cfg.Workers; i++ {
		p.workers = append(p.workers, newWorker(i, cfg, cat, fetcher, agg, broker, logger))
	}
	return p, nil
}

// Start launches all workers. They run until the given context is
// cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		p.group.Go(func() error {
			w.run(ctx)
			return nil
		})
	}
	p.logger.Info("pool started", "workers", len(p.workers))
}

// Stop cancels the workers and waits for them to acknowledge, up to grace.
// Workers only observe cancellation between ticks, so a worker mid-sleep
// returns quickly while one mid-fetch may take up to the fetch timeout.
func (p *Pool) Stop(grace time.Duration) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.logger.Info("pool stopped")
		return err
	case <-time.After(grace):
		return fmt.Errorf("engine: %d workers did not stop within %v", len(p.workers), grace)
	}
}
