package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/chain"
	"github.com/quietriver/chaff/internal/chaos"
	"github.com/quietriver/chaff/internal/escalate"
	"github.com/quietriver/chaff/internal/fetch"
	"github.com/quietriver/chaff/internal/markov"
	"github.com/quietriver/chaff/internal/metrics"
)

// Action kind selection weights. Browsing categories ignore these and
// always browse.
var kindWeights = []struct {
	kind   catalog.Kind
	weight float64
}{
	{catalog.KindSearch, 0.40},
	{catalog.KindSupport, 0.25},
	{catalog.KindForum, 0.20},
	{catalog.KindTool, 0.10},
	{catalog.KindYouTube, 0.05},
}

// Search engine selection weights.
var engineWeights = []struct {
	engine catalog.Engine
	weight float64
}{
	{catalog.EngineGoogle, 0.7},
	{catalog.EngineBing, 0.2},
	{catalog.EngineDuckDuckGo, 0.1},
}

// pacingRange maps a pacing state to its delay band.
var pacingRanges = map[string]struct{ min, max time.Duration }{
	"normal":  {5 * time.Second, 30 * time.Second},
	"slow":    {45 * time.Second, 180 * time.Second},
	"erratic": {1 * time.Second, 120 * time.Second},
	// bursty is special-cased: short gaps inside a burst, long gaps between.
	"bursty": {1 * time.Second, 3 * time.Second},
}

var burstPause = struct{ min, max time.Duration }{30 * time.Second, 90 * time.Second}

// worker owns all per-worker mutable state. Nothing here is shared; the
// only cross-worker objects it touches (metrics, broker) are themselves
// concurrency-safe.
type worker struct {
	id        int
	sessionID string
	cat       *catalog.Catalog
	cfg       Config
	rng       *rand.Rand
	timer     *chaos.Timer
	pacing    *markov.Chain
	browse    *markov.Chain
	walker    *chain.Walker
	counter   *escalate.Counter
	identity  fetch.Identity
	fetcher   fetch.Fetcher
	metrics   *metrics.Aggregator
	broker    *Broker
	logger    *slog.Logger

	current   catalog.Category
	burstLeft int
}

func newWorker(id int, cfg Config, cat *catalog.Catalog, fetcher fetch.Fetcher, agg *metrics.Aggregator, broker *Broker, logger *slog.Logger) *worker {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(id)))
	w := &worker{
		id:        id,
		sessionID: uuid.NewString(),
		cat:       cat,
		cfg:       cfg,
		rng:       rng,
		timer:     chaos.New(chaos.WorkerR(id), rng),
		pacing:    markov.New(markov.Matrix(cat.Transitions().Pacing), rng),
		browse:    markov.New(markov.Matrix(cat.Transitions().Categories), rng),
		walker:    chain.New(cat, rng),
		counter:   escalate.New(rng),
		identity:  fetch.NewIdentity(cat.Identity(), rng),
		fetcher:   fetcher,
		metrics:   agg,
		broker:    broker,
		logger:    logger.With("worker", id),
	}
	w.current = cfg.Enabled[rng.Intn(len(cfg.Enabled))]
	w.metrics.RecordFingerprint(w.identity.Fingerprint())
	return w
}

// run is the worker loop: tick, then sleep a chaotic delay, until ctx is
// done. Cancellation is only observed between ticks and during sleeps, so
// an in-flight fetch always completes or times out on its own.
func (w *worker) run(ctx context.Context) {
	w.logger.Info("worker started", "session", w.sessionID, "category", w.current)
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", "session", w.sessionID)
			return
		}
		ev := w.tick(ctx)
		w.broker.Publish(ev)

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "session", w.sessionID)
			return
		case <-time.After(ev.Delay):
		}
	}
}

// tick performs one action and returns the resulting event. Fetch failures
// are absorbed: they flip Success and feed the error counter, nothing more.
func (w *worker) tick(ctx context.Context) Event {
	w.maybeRotateIdentity()
	chained := w.advanceCategory()

	pattern := w.cat.Lookup(w.current)
	target, query, kind, escalated := w.selectAction(pattern)

	err := w.fetcher.Fetch(ctx, target, w.identity)
	cancelled := ctx.Err() != nil
	if err != nil && !cancelled {
		w.logger.Debug("fetch failed", "url", target, "error", err)
	}

	delay := w.nextDelay(pattern)
	// A fetch aborted by shutdown is not a failed action.
	success := err == nil || cancelled

	w.metrics.RecordAction(ctx, string(w.current), delay, success, escalated, chained)

	return Event{
		Time:      time.Now(),
		WorkerID:  w.id,
		SessionID: w.sessionID,
		Category:  w.current,
		Kind:      kind,
		URL:       target,
		Query:     query,
		Delay:     delay,
		Pacing:    w.pacing.Current(),
		Success:   success,
		Escalated: escalated,
		Chained:   chained,
	}
}

// maybeRotateIdentity occasionally swaps the full header fingerprint.
func (w *worker) maybeRotateIdentity() {
	if !w.timer.ShouldSwitch(w.cfg.IdentityProb) {
		return
	}
	w.identity = fetch.NewIdentity(w.cat.Identity(), w.rng)
	w.metrics.RecordFingerprint(w.identity.Fingerprint())
	w.metrics.RecordIdentityChange()
}

// advanceCategory decides whether this tick stays on the current category
// or moves, and reports whether the move followed a related-issue edge.
// Browsing categories move via the Markov chain; issue topics move via the
// graph walker, resetting the frustration counter on a switch.
func (w *worker) advanceCategory() bool {
	if !w.timer.ShouldSwitch(w.cfg.SwitchProb) {
		return false
	}
	if p := w.cat.Lookup(w.current); p != nil && p.Browsing() {
		if next := catalog.Category(w.browse.Next()); w.enabled(next) {
			w.current = next
		}
		return false
	}
	next, chained := w.walker.Next(w.current, w.cfg.Enabled, w.cfg.ChainProb)
	if next != w.current {
		w.counter.Reset()
		w.current = next
	}
	return chained
}

// selectAction picks a concrete action for the pattern and renders its URL.
func (w *worker) selectAction(p *catalog.Pattern) (target, query string, kind catalog.Kind, escalated bool) {
	if p.Browsing() {
		return p.Sites[w.rng.Intn(len(p.Sites))], "", catalog.KindBrowse, false
	}

	w.counter.Bump()
	kind = w.pickKind(p)
	switch kind {
	case catalog.KindSupport:
		return p.SupportSites[w.rng.Intn(len(p.SupportSites))], "", kind, false
	case catalog.KindForum:
		return p.ForumSearches[w.rng.Intn(len(p.ForumSearches))], "", kind, false
	case catalog.KindTool:
		return p.ToolDownloads[w.rng.Intn(len(p.ToolDownloads))], "", kind, false
	}

	query = p.Queries[w.rng.Intn(len(p.Queries))]
	if w.cfg.Escalation && p.Escalates {
		mutated := w.counter.Mutate(query)
		escalated = mutated != query
		query = mutated
	}
	if kind == catalog.KindYouTube {
		return catalog.SearchURL(catalog.EngineYouTube, query), query, kind, escalated
	}
	return catalog.SearchURL(w.pickEngine(), query), query, kind, escalated
}

// pickKind draws an action kind from the weighted table, skipping kinds the
// pattern has no entries for. Search always has entries on issue topics.
func (w *worker) pickKind(p *catalog.Pattern) catalog.Kind {
	available := func(k catalog.Kind) bool {
		switch k {
		case catalog.KindSupport:
			return len(p.SupportSites) > 0
		case catalog.KindForum:
			return len(p.ForumSearches) > 0
		case catalog.KindTool:
			return len(p.ToolDownloads) > 0
		default:
			return len(p.Queries) > 0
		}
	}
	var total float64
	for _, kw := range kindWeights {
		if available(kw.kind) {
			total += kw.weight
		}
	}
	target := w.rng.Float64() * total
	var acc float64
	for _, kw := range kindWeights {
		if !available(kw.kind) {
			continue
		}
		acc += kw.weight
		if target < acc {
			return kw.kind
		}
	}
	return catalog.KindSearch
}

func (w *worker) pickEngine() catalog.Engine {
	target := w.rng.Float64()
	var acc float64
	for _, ew := range engineWeights {
		acc += ew.weight
		if target < acc {
			return ew.engine
		}
	}
	return catalog.EngineGoogle
}

// nextDelay computes the post-action sleep: the pacing band shaped by the
// chaos timer, compressed by topic urgency and mounting frustration. An
// urgent, frustrated user does not wait three minutes between searches.
func (w *worker) nextDelay(p *catalog.Pattern) time.Duration {
	state := w.pacing.Current()
	if w.cfg.MarkovPacing {
		state = w.pacing.Next()
	}

	band := pacingRanges[state]
	if state == "bursty" {
		if w.burstLeft <= 0 {
			w.burstLeft = w.timer.NextBurst(2, 6)
			band = burstPause
		} else {
			w.burstLeft--
		}
	}

	d := w.timer.NextDelay(band.min, band.max)

	factor := 1.0 - 0.7*p.Urgency
	attempts := w.counter.Attempts()
	if attempts > 10 {
		attempts = 10
	}
	factor *= 1.0 - 0.05*float64(attempts)
	if factor < 0.1 {
		factor = 0.1
	}

	d = time.Duration(float64(d) * factor)
	if d < w.cfg.MinDelay {
		d = w.cfg.MinDelay
	}
	return d
}

func (w *worker) enabled(cat catalog.Category) bool {
	for _, c := range w.cfg.Enabled {
		if c == cat {
			return true
		}
	}
	return false
}
