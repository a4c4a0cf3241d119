// Package escalate rewrites search queries to reflect mounting frustration.
// The attempt counter is monotone per worker per topic; the tier vocabularies
// get progressively more desperate.
package escalate

import (
	"math/rand"
	"strings"
)

// Tier buckets an attempt count into a frustration level.
type Tier int

const (
	TierCalm   Tier = iota // attempts < 3: query passes through untouched
	TierLow                // 3-5: occasional mild suffix
	TierMedium             // 6-10: prefixes and suffixes appear
	TierHigh               // >10: all caps pleading
)

var (
	lowSuffixes = []string{"", "", " fix", " solution"}

	mediumPrefixes = []string{"how to fix ", "why ", "help ", "please help ", "still ", "urgent "}
	mediumSuffixes = []string{
		" fix", " solution", " not working", " still not working",
		" please help", " driving me crazy", " reddit",
	}

	highPrefixes = []string{"please help ", "urgent ", "HELP ", ""}
	highSuffixes = []string{" not working", " STILL broken", " nothing works", ""}
)

// Counter tracks attempts on the current topic for one worker.
// Not safe for concurrent use.
type Counter struct {
	attempts int
	rng      *rand.Rand
}

// New returns a Counter at zero attempts.
func New(rng *rand.Rand) *Counter {
	return &Counter{rng: rng}
}

// Attempts returns the current attempt count.
func (c *Counter) Attempts() int { return c.attempts }

// Reset zeroes the counter, used when the worker moves to a new topic.
func (c *Counter) Reset() { c.attempts = 0 }

// Bump records one more attempt and returns the new count.
func (c *Counter) Bump() int {
	c.attempts++
	return c.attempts
}

// TierFor maps an attempt count to its frustration tier.
func TierFor(attempts int) Tier {
	switch {
	case attempts < 3:
		return TierCalm
	case attempts <= 5:
		return TierLow
	case attempts <= 10:
		return TierMedium
	default:
		return TierHigh
	}
}

// Mutate rewrites query according to the counter's current tier. The calm
// tier is the identity. Output is always whitespace-trimmed and never empty
// when the input is non-empty.
func (c *Counter) Mutate(query string) string {
	return mutate(query, c.attempts, c.rng)
}

func mutate(query string, attempts int, rng *rand.Rand) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return q
	}
	switch TierFor(attempts) {
	case TierCalm:
		return q
	case TierLow:
		q += lowSuffixes[rng.Intn(len(lowSuffixes))]
	case TierMedium:
		q = mediumPrefixes[rng.Intn(len(mediumPrefixes))] + q +
			mediumSuffixes[rng.Intn(len(mediumSuffixes))]
	default:
		q = highPrefixes[rng.Intn(len(highPrefixes))] + q +
			highSuffixes[rng.Intn(len(highSuffixes))]
	}
	return strings.TrimSpace(q)
}
