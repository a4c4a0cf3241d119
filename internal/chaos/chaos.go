// Package chaos produces deterministic but irregular timing from the
// logistic map. The sequence looks random yet is fully reproducible from
// (r, seed), which is what the tests and the per-worker stagger rely on.
package chaos

import (
	"math"
	"math/rand"
	"time"
)

// Chaotic regime bounds for the logistic map control parameter.
const (
	// DefaultR sits well inside the chaotic band (3.57, 4.0].
	DefaultR = 3.9

	// workerRBase and workerRStep stagger r per worker so workers never
	// share an orbit even when seeded identically.
	workerRBase = 3.85
	workerRStep = 0.01
)

// Timer generates chaotic delays, burst sizes and switch decisions.
// Not safe for concurrent use; each worker owns one.
type Timer struct {
	r         float64
	x         float64
	iteration int
}

// New returns a Timer with control parameter r and an initial state drawn
// from rng in the middle of the unit interval. Pass DefaultR unless the
// caller staggers r itself.
func New(r float64, rng *rand.Rand) *Timer {
	return NewSeeded(r, rng.Float64()*0.5+0.25)
}

// NewSeeded returns a Timer with an explicit initial state. The state must
// lie in (0, 1); values outside collapse the orbit to a fixed point, so they
// are clamped back into the open interval.
func NewSeeded(r, seed float64) *Timer {
	if seed <= 0 || seed >= 1 {
		seed = 0.5
	}
	return &Timer{r: r, x: seed}
}

// WorkerR returns the staggered control parameter for a worker id.
func WorkerR(workerID int) float64 {
	return workerRBase + workerRStep*float64(workerID)
}

// step advances the logistic map: x = r·x·(1-x).
func (t *Timer) step() float64 {
	t.x = t.r * t.x * (1 - t.x)
	t.iteration++
	return t.x
}

// NextDelay maps the next chaos value into [min, max], modulated by a slow
// sinusoid over the iteration count that mimics time-of-day drift. The
// modulated value is clamped to [0.1, 1.0] before interpolation, so the
// result always stays inside [min, max].
func (t *Timer) NextDelay(min, max time.Duration) time.Duration {
	v := t.step()
	timeFactor := math.Sin(float64(t.iteration)*0.1)*0.3 + 1.0
	normalized := v * timeFactor
	normalized = math.Max(0.1, math.Min(1.0, normalized))
	return min + time.Duration(float64(max-min)*normalized)
}

// NextBurst returns a burst size in [min, max] driven by the map.
func (t *Timer) NextBurst(min, max int) int {
	v := t.step()
	return min + int(float64(max-min)*v)
}

// ShouldSwitch reports whether a behavior switch should occur, with
// probability roughly p. Low chaos values trigger the switch so the decision
// stays on the deterministic orbit rather than consuming a second source of
// randomness.
func (t *Timer) ShouldSwitch(p float64) bool {
	return t.step() < p
}

// Iteration returns how many map steps have been taken.
func (t *Timer) Iteration() int { return t.iteration }
