// Package metrics aggregates counters across all workers and computes the
// confusion score. The Aggregator is the only mutable state shared between
// workers; everything funnels through one mutex, which is cheap at the
// request rates this process generates (seconds between actions).
package metrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quietriver/chaff/internal/telemetry"
)

// delayWindow bounds the entropy computation to the most recent delays.
const delayWindow = 100

// Aggregator collects run-wide counters. Safe for concurrent use.
type Aggregator struct {
	mu              sync.Mutex
	requests        int64
	errors          int64
	escalations     int64
	chains          int64
	identityChanges int64
	fingerprints    map[string]struct{}
	categories      map[string]struct{}

	// Ring of the last delayWindow delay values, in seconds.
	delays []float64
	next   int
	full   bool

	start time.Time

	otelActions     metric.Int64Counter
	otelErrors      metric.Int64Counter
	otelEscalations metric.Int64Counter
	otelChains      metric.Int64Counter
}

// New returns an empty Aggregator with OTEL instruments registered on the
// global meter provider (no-ops until telemetry is initialized).
func New() (*Aggregator, error) {
	a := &Aggregator{
		fingerprints: make(map[string]struct{}),
		categories:   make(map[string]struct{}),
		delays:       make([]float64, delayWindow),
		start:        time.Now(),
	}

	meter := telemetry.Meter("chaff/metrics")
	var err error
	if a.otelActions, err = meter.Int64Counter("chaff.actions",
		metric.WithDescription("Total actions performed")); err != nil {
		return nil, fmt.Errorf("metrics: register actions counter: %w", err)
	}
	if a.otelErrors, err = meter.Int64Counter("chaff.errors",
		metric.WithDescription("Total failed actions")); err != nil {
		return nil, fmt.Errorf("metrics: register errors counter: %w", err)
	}
	if a.otelEscalations, err = meter.Int64Counter("chaff.escalations",
		metric.WithDescription("Total escalated queries")); err != nil {
		return nil, fmt.Errorf("metrics: register escalations counter: %w", err)
	}
	if a.otelChains, err = meter.Int64Counter("chaff.chains",
		metric.WithDescription("Total related-issue chain transitions")); err != nil {
		return nil, fmt.Errorf("metrics: register chains counter: %w", err)
	}
	if _, err = meter.Int64ObservableGauge("chaff.confusion_score",
		metric.WithDescription("Current confusion score, 0-100"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(a.Score()))
			return nil
		})); err != nil {
		return nil, fmt.Errorf("metrics: register score gauge: %w", err)
	}
	return a, nil
}

// RecordAction records one completed action.
func (a *Aggregator) RecordAction(ctx context.Context, category string, delay time.Duration, success, escalated, chained bool) {
	a.mu.Lock()
	a.requests++
	if !success {
		a.errors++
	}
	if escalated {
		a.escalations++
	}
	if chained {
		a.chains++
	}
	a.categories[category] = struct{}{}
	a.delays[a.next] = delay.Seconds()
	a.next = (a.next + 1) % delayWindow
	if a.next == 0 {
		a.full = true
	}
	a.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("category", category))
	a.otelActions.Add(ctx, 1, attrs)
	if !success {
		a.otelErrors.Add(ctx, 1, attrs)
	}
	if escalated {
		a.otelEscalations.Add(ctx, 1, attrs)
	}
	if chained {
		a.otelChains.Add(ctx, 1, attrs)
	}
}

// RecordFingerprint notes that a request fingerprint was used.
func (a *Aggregator) RecordFingerprint(fp string) {
	a.mu.Lock()
	a.fingerprints[fp] = struct{}{}
	a.mu.Unlock()
}

// RecordIdentityChange counts one header-identity rotation.
func (a *Aggregator) RecordIdentityChange() {
	a.mu.Lock()
	a.identityChanges++
	a.mu.Unlock()
}

// Snapshot is a point-in-time copy of the aggregate counters.
type Snapshot struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	Escalations     int64         `json:"escalations"`
	Chains          int64         `json:"chains"`
	IdentityChanges int64         `json:"identity_changes"`
	Fingerprints    int           `json:"fingerprints"`
	Categories      int           `json:"categories"`
	Score           int           `json:"score"`
	Uptime          time.Duration `json:"uptime_ns"`
}

// Snapshot returns a consistent copy of all counters plus the score.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Requests:        a.requests,
		Errors:          a.errors,
		Escalations:     a.escalations,
		Chains:          a.chains,
		IdentityChanges: a.identityChanges,
		Fingerprints:    len(a.fingerprints),
		Categories:      len(a.categories),
		Score:           a.scoreLocked(),
		Uptime:          time.Since(a.start),
	}
}

// Score computes the confusion score in [0, 100]: how hard this run's
// traffic would be to profile. Components:
//
//	distinct fingerprints  3 pts each, cap 30
//	distinct categories    2 pts each, cap 20
//	delay entropy          Shannon entropy of recent delays ×10, cap 30
//	identity changes       2 pts each, cap 20
func (a *Aggregator) Score() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scoreLocked()
}

func (a *Aggregator) scoreLocked() int {
	score := math.Min(float64(len(a.fingerprints))*3, 30)
	score += math.Min(float64(len(a.categories))*2, 20)
	score += math.Min(a.delayEntropyLocked()*10, 30)
	score += math.Min(float64(a.identityChanges)*2, 20)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

// delayEntropyLocked computes Shannon entropy over the recent delays,
// bucketed to whole seconds. Uniform timing scores 0; spread-out chaotic
// timing scores high.
func (a *Aggregator) delayEntropyLocked() float64 {
	n := a.next
	if a.full {
		n = delayWindow
	}
	if n == 0 {
		return 0
	}
	buckets := make(map[int]int)
	for i := 0; i < n; i++ {
		buckets[int(a.delays[i])]++
	}
	var entropy float64
	for _, count := range buckets {
		p := float64(count) / float64(n)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
