// Package markov implements the first-order chains that drive category and
// pacing transitions. A Chain is a cursor over a row-stochastic matrix: each
// Next call samples the successor state from the current row and advances.
//
// Chains are not safe for concurrent use; each worker owns its own.
package markov

import (
	"math/rand"
	"sort"
)

// Matrix maps current state to a distribution over successor states.
// Weights in a row are assumed to sum to 1 (validated at catalog load).
type Matrix map[string]map[string]float64

// Chain walks a Matrix from a current state using an injected random source.
type Chain struct {
	matrix  Matrix
	states  []string // sorted row keys, for deterministic sampling order
	current string
	rng     *rand.Rand
}

// New builds a chain over m starting from a uniformly chosen state.
// The rng is owned by the caller and must not be shared across goroutines.
func New(m Matrix, rng *rand.Rand) *Chain {
	c := &Chain{matrix: m, rng: rng}
	for s := range m {
		c.states = append(c.states, s)
	}
	sort.Strings(c.states)
	if len(c.states) > 0 {
		c.current = c.states[rng.Intn(len(c.states))]
	}
	return c
}

// NewAt builds a chain pinned to an explicit starting state.
func NewAt(m Matrix, start string, rng *rand.Rand) *Chain {
	c := New(m, rng)
	if _, ok := m[start]; ok {
		c.current = start
	}
	return c
}

// Current returns the state the chain is on without advancing.
func (c *Chain) Current() string { return c.current }

// Next samples the successor of the current state and advances to it.
// If the current state has no row (data drift, should not survive catalog
// validation) the chain recovers by jumping to a uniform random state.
func (c *Chain) Next() string {
	row, ok := c.matrix[c.current]
	if !ok || len(row) == 0 {
		c.current = c.states[c.rng.Intn(len(c.states))]
		return c.current
	}
	c.current = c.sample(row)
	return c.current
}

// sample draws one state from a weighted row. Iteration over the row goes
// through the sorted state list so the same seed always yields the same walk.
func (c *Chain) sample(row map[string]float64) string {
	var total float64
	for _, s := range c.states {
		total += row[s]
	}
	if total <= 0 {
		return c.states[c.rng.Intn(len(c.states))]
	}
	target := c.rng.Float64() * total
	var acc float64
	for _, s := range c.states {
		acc += row[s]
		if target < acc {
			return s
		}
	}
	// Float accumulation can land exactly on total; last positive-weight
	// state wins.
	for i := len(c.states) - 1; i >= 0; i-- {
		if row[c.states[i]] > 0 {
			return c.states[i]
		}
	}
	return c.current
}
