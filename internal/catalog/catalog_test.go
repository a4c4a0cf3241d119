package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, c.Issues())
	assert.Greater(t, len(c.Categories()), len(c.Issues()), "browsing categories present")
	assert.NotEmpty(t, c.Identity().UserAgents)
	assert.NotEmpty(t, c.Transitions().Pacing)
}

func TestEveryCategoryHasActions(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, id := range c.Categories() {
		assert.NotEmpty(t, c.Actions(id), "category %s", id)
	}
}

func TestRelatedEdgesResolve(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, id := range c.Categories() {
		for _, rel := range c.Related(id) {
			assert.NotNil(t, c.Lookup(rel), "%s -> %s", id, rel)
		}
	}
}

func TestLookupUnknownReturnsNil(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Nil(t, c.Lookup("not_a_category"))
	assert.Nil(t, c.Related("not_a_category"))
}

func TestBrowsingSplit(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	require.NotNil(t, c.Lookup("technology"))
	assert.True(t, c.Lookup("technology").Browsing())
	require.NotNil(t, c.Lookup("dns_failure"))
	assert.False(t, c.Lookup("dns_failure").Browsing())
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/search?q=dns+not+resolving",
		SearchURL(EngineGoogle, "dns not resolving"))
	assert.Equal(t,
		"https://www.youtube.com/results?search_query=fix+bsod",
		SearchURL(EngineYouTube, "fix bsod"))
	// Unknown engines fall back to Google.
	assert.Contains(t, SearchURL("altavista", "x"), "google.com")
}

func TestValidateRejectsDanglingRelated(t *testing.T) {
	c := &Catalog{patterns: map[Category]*Pattern{
		"a": {ID: "a", Name: "A", Queries: []string{"q"}, Related: []Category{"ghost"}},
	}}
	c.transitions = Transitions{
		Categories: map[string]map[string]float64{"a": {"a": 1}},
		Pacing:     map[string]map[string]float64{"normal": {"normal": 1}},
	}
	c.finalize()
	err := c.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateMatrixRowSums(t *testing.T) {
	err := validateMatrix("pacing", map[string]map[string]float64{
		"normal": {"normal": 0.5, "slow": 0.4},
		"slow":   {"normal": 1.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sums to")
}

func TestValidateMatrixDeadRow(t *testing.T) {
	// "slow" transitions out but nothing transitions in.
	err := validateMatrix("pacing", map[string]map[string]float64{
		"normal": {"normal": 1.0},
		"slow":   {"normal": 1.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead row")
}

func TestValidateMatrixUnknownColumn(t *testing.T) {
	err := validateMatrix("pacing", map[string]map[string]float64{
		"normal": {"warp": 1.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state")
}
