package chain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietriver/chaff/internal/catalog"
)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func TestNextAlwaysChoosesEnabled(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(1)))
	enabled := []catalog.Category{"dns_failure", "wifi_problems", "bsod"}
	on := map[catalog.Category]bool{"dns_failure": true, "wifi_problems": true, "bsod": true}
	for i := 0; i < 1000; i++ {
		next, _ := w.Next("dns_failure", enabled, 0.3)
		require.True(t, on[next], "picked disabled topic %q", next)
	}
}

func TestChainedFollowsRelatedEdge(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(2)))
	enabled := cat.Issues()
	related := map[catalog.Category]bool{}
	for _, r := range cat.Related("dns_failure") {
		related[r] = true
	}
	require.NotEmpty(t, related)

	sawChain := false
	for i := 0; i < 500; i++ {
		next, chained := w.Next("dns_failure", enabled, 0.5)
		if chained {
			sawChain = true
			assert.True(t, related[next], "chained pick %q is not a related edge", next)
		}
	}
	assert.True(t, sawChain)
}

func TestFullProbabilityAlwaysChains(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(6)))
	enabled := cat.Issues()
	related := map[catalog.Category]bool{}
	for _, r := range cat.Related("dns_failure") {
		related[r] = true
	}

	for i := 0; i < 1000; i++ {
		next, chained := w.Next("dns_failure", enabled, 1.0)
		require.True(t, chained, "trial %d did not chain", i)
		require.True(t, related[next], "pick %q is not a related edge", next)
	}
}

func TestMutualPairAlternates(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(7)))
	// dns_failure and wifi_problems relate to each other; with only the
	// pair enabled, a certain chain must bounce between them.
	enabled := []catalog.Category{"dns_failure", "wifi_problems"}

	cur := catalog.Category("dns_failure")
	for i := 0; i < 50; i++ {
		next, chained := w.Next(cur, enabled, 1.0)
		require.True(t, chained)
		want := catalog.Category("wifi_problems")
		if cur == "wifi_problems" {
			want = "dns_failure"
		}
		require.Equal(t, want, next, "step %d", i)
		cur = next
	}
}

func TestZeroProbabilityNeverChains(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(3)))
	enabled := cat.Issues()
	for i := 0; i < 500; i++ {
		_, chained := w.Next("dns_failure", enabled, 0)
		require.False(t, chained)
	}
}

func TestNoEnabledRelatedFallsBack(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(4)))
	// dns_failure relates to wifi_problems and connection_timeout; enable
	// neither, so every pick must be an unchained fallback.
	enabled := []catalog.Category{"bsod", "trojan"}
	for i := 0; i < 500; i++ {
		next, chained := w.Next("dns_failure", enabled, 1.0)
		require.False(t, chained)
		require.Contains(t, enabled, next)
	}
}

func TestBrowsingCategoryHasNoEdges(t *testing.T) {
	cat := loadCatalog(t)
	w := New(cat, rand.New(rand.NewSource(5)))
	enabled := []catalog.Category{"technology", "health"}
	for i := 0; i < 200; i++ {
		next, chained := w.Next("technology", enabled, 1.0)
		require.False(t, chained)
		require.Contains(t, enabled, next)
	}
}
