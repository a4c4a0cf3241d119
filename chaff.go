// Package chaff is the public API for embedding the cover-traffic engine.
//
// Consumers construct an App and run it:
//
//	app, err := chaff.New(
//	    chaff.WithVersion(version),
//	    chaff.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: chaff (root) imports
// internal/*, but internal/* never imports chaff (root).
package chaff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/config"
	"github.com/quietriver/chaff/internal/engine"
	"github.com/quietriver/chaff/internal/fetch"
	"github.com/quietriver/chaff/internal/history"
	"github.com/quietriver/chaff/internal/metrics"
	"github.com/quietriver/chaff/internal/ratelimit"
	"github.com/quietriver/chaff/internal/status"
	"github.com/quietriver/chaff/internal/telemetry"
	"github.com/quietriver/chaff/internal/ui"
)

// App is the engine lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	cat          *catalog.Catalog
	enabled      []catalog.Category
	agg          *metrics.Aggregator
	broker       *engine.Broker
	pool         *engine.Pool
	limiter      ratelimit.Limiter
	store        *history.Store // nil when history is disabled
	statusSrv    *status.Server // nil when the status server is disabled
	renderer     *ui.Renderer
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the engine: loads configuration and the category catalog,
// wires telemetry, metrics, the fetcher, the optional history store and
// status server, and builds the worker pool. It does NOT start any
// goroutines — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, fn := range o.overrides {
		fn(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	logger.Info("chaff starting", "version", version, "workers", cfg.Workers, "dry_run", cfg.DryRun)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Catalog problems are fatal: a dangling related edge or a broken
	// transition matrix must never surface mid-run.
	cat, err := catalog.Load()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	enabled, err := resolveCategories(cat, cfg.Categories)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	agg, err := metrics.New()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	broker := engine.NewBroker()

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if !cfg.DisableLimiter && !cfg.DryRun {
		limiter = ratelimit.NewHostLimiter(cfg.HostRate, cfg.HostBurst)
		logger.Info("rate limiting: per-host token bucket", "rate", cfg.HostRate, "burst", cfg.HostBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	fetcher := o.fetcher
	if fetcher == nil {
		if cfg.DryRun {
			fetcher = fetch.NoopFetcher{Logger: logger}
		} else {
			fetcher = fetch.NewHTTP(limiter, cfg.FetchTimeout, logger)
		}
	}

	var store *history.Store
	if cfg.HistoryPath != "" {
		store, err = history.Open(cfg.HistoryPath, cfg.HistoryBatchSize, cfg.HistoryFlushTimeout, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, err
		}
		logger.Info("history log enabled", "path", cfg.HistoryPath)
	}

	var statusSrv *status.Server
	if cfg.StatusPort != 0 {
		statusSrv = status.New(cfg.StatusPort, agg, broker, version, logger)
	}

	pool, err := engine.NewPool(engine.Config{
		Workers:      cfg.Workers,
		Enabled:      enabled,
		Seed:         cfg.Seed,
		SwitchProb:   cfg.SwitchProb,
		ChainProb:    cfg.ChainProb,
		IdentityProb: cfg.IdentityProb,
		Escalation:   cfg.Escalation,
		MarkovPacing: cfg.MarkovPacing,
		MinDelay:     cfg.MinDelay,
	}, cat, fetcher, agg, broker, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	out := o.output
	if out == nil {
		out = os.Stdout
	}

	return &App{
		cfg:          cfg,
		cat:          cat,
		enabled:      enabled,
		agg:          agg,
		broker:       broker,
		pool:         pool,
		limiter:      limiter,
		store:        store,
		statusSrv:    statusSrv,
		renderer:     ui.New(out),
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Catalog exposes the loaded category catalog (for the categories command).
func (a *App) Catalog() *catalog.Catalog { return a.cat }

// Renderer exposes the terminal renderer.
func (a *App) Renderer() *ui.Renderer { return a.renderer }

// Snapshot returns the current aggregate metrics.
func (a *App) Snapshot() metrics.Snapshot { return a.agg.Snapshot() }

// Run starts everything and blocks until ctx is cancelled, the configured
// duration elapses, or the status server fails. It then performs the
// graceful shutdown sequence and prints the run summary.
func (a *App) Run(ctx context.Context) error {
	a.renderer.Banner(a.version, a.cfg.Workers, a.enabled, a.cfg.DryRun)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.store != nil {
		a.store.Start(runCtx)
	}

	var statusErr <-chan error
	if a.statusSrv != nil {
		statusErr = a.statusSrv.Start()
	}

	// Render and persist events off one subscription each.
	renderSub := a.broker.Subscribe()
	go a.renderLoop(renderSub)
	if a.store != nil {
		historySub := a.broker.Subscribe()
		go a.historyLoop(historySub)
	}

	a.pool.Start(runCtx)

	var expiry <-chan time.Time
	if a.cfg.Duration > 0 {
		t := time.NewTimer(a.cfg.Duration)
		defer t.Stop()
		expiry = t.C
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("interrupt received")
	case <-expiry:
		a.logger.Info("run duration elapsed", "duration", a.cfg.Duration)
	case err := <-orNever(statusErr):
		runErr = err
	}

	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}

	a.renderer.Summary(a.agg.Snapshot())
	return runErr
}

// Shutdown runs the graceful stop sequence. Each phase gets its own
// timeout so early completion doesn't steal budget from later phases.
// Order: (1) stop workers (they may still publish while finishing a tick),
// (2) close the broker so subscriber loops finish handing events over,
// (3) drain the history buffer, (4) stop the status server, (5) flush
// telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("chaff shutting down")
	var firstErr error

	if err := a.pool.Stop(a.cfg.ShutdownGrace); err != nil {
		a.logger.Error("pool stop", "error", err)
		firstErr = err
	}

	a.broker.Close()

	if a.store != nil {
		drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.store.Drain(drainCtx)
		cancel()
	}

	if a.statusSrv != nil {
		srvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.statusSrv.Shutdown(srvCtx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	_ = a.limiter.Close()

	otelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.otelShutdown(otelCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	cancel()

	a.logger.Info("chaff stopped")
	return firstErr
}

func (a *App) renderLoop(sub chan engine.Event) {
	for ev := range sub {
		a.renderer.Event(ev)
	}
}

func (a *App) historyLoop(sub chan engine.Event) {
	for ev := range sub {
		if err := a.store.Append(ev); err != nil {
			a.logger.Warn("history append dropped event", "error", err)
		}
	}
}

// resolveCategories expands the configured category list, defaulting to
// every troubleshooting topic when none are named.
func resolveCategories(cat *catalog.Catalog, names []string) ([]catalog.Category, error) {
	if len(names) == 0 {
		return cat.Issues(), nil
	}
	out := make([]catalog.Category, 0, len(names))
	for _, n := range names {
		c := catalog.Category(n)
		if cat.Lookup(c) == nil {
			return nil, fmt.Errorf("unknown category %q (run `chaff categories` for the list)", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// orNever returns ch, or a channel that never fires when ch is nil, so it
// can sit in a select without a nil-channel special case at the call site.
func orNever(ch <-chan error) <-chan error {
	if ch != nil {
		return ch
	}
	return make(chan error)
}
