package escalate

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		attempts int
		want     Tier
	}{
		{0, TierCalm}, {2, TierCalm},
		{3, TierLow}, {5, TierLow},
		{6, TierMedium}, {10, TierMedium},
		{11, TierHigh}, {100, TierHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.attempts), "attempts=%d", tc.attempts)
	}
}

func TestCalmTierIsIdentity(t *testing.T) {
	c := New(rand.New(rand.NewSource(1)))
	for i := 0; i < 2; i++ {
		assert.Equal(t, "dns server not responding", c.Mutate("dns server not responding"))
		c.Bump()
	}
}

func TestLowTierAppendsOnlySuffixes(t *testing.T) {
	c := New(rand.New(rand.NewSource(2)))
	for i := 0; i < 4; i++ {
		c.Bump()
	}
	require.Equal(t, 4, c.Attempts())
	for i := 0; i < 100; i++ {
		out := c.Mutate("wifi keeps dropping")
		assert.True(t, strings.HasPrefix(out, "wifi keeps dropping"), "got %q", out)
	}
}

func TestMediumTierMutates(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		out := mutate("ssl handshake failed", 8, rng)
		assert.Contains(t, out, "ssl handshake failed")
		assert.NotEmpty(t, out)
	}
}

func TestHighTierNeverEmptyAndTrimmed(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 200; i++ {
		out := mutate("bsod", 20, rng)
		require.NotEmpty(t, out)
		assert.Equal(t, strings.TrimSpace(out), out)
		assert.Contains(t, out, "bsod")
	}
}

func TestDecorationRateRisesWithTier(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const trials = 1000
	decoratedRate := func(attempts int) float64 {
		n := 0
		for i := 0; i < trials; i++ {
			if mutate("printer offline", attempts, rng) != "printer offline" {
				n++
			}
		}
		return float64(n) / trials
	}

	low := decoratedRate(4)
	high := decoratedRate(20)

	// Two of the four low suffixes are empty, so the low tier decorates
	// about half the time. The high tier leaves the query bare only when
	// both the prefix and the suffix draw empty (1 in 16).
	assert.InDelta(t, 0.5, low, 0.06)
	assert.Greater(t, high, 0.85)
	assert.Greater(t, high, low)
}

func TestResetReturnsToCalm(t *testing.T) {
	c := New(rand.New(rand.NewSource(5)))
	for i := 0; i < 12; i++ {
		c.Bump()
	}
	assert.Equal(t, TierHigh, TierFor(c.Attempts()))
	c.Reset()
	assert.Equal(t, 0, c.Attempts())
	assert.Equal(t, "vpn not connecting", c.Mutate("vpn not connecting"))
}

func TestEmptyQueryStaysEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	assert.Empty(t, mutate("", 8, rng))
	assert.Empty(t, mutate("   ", 20, rng))
}
