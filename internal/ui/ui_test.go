package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/engine"
	"github.com/quietriver/chaff/internal/metrics"
)

func TestBannerContainsRunParameters(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Banner("1.2.3", 5, []catalog.Category{"dns_failure", "bsod"}, true)

	out := buf.String()
	assert.Contains(t, out, "chaff 1.2.3")
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "5")
}

func TestEventLine(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Event(engine.Event{
		Time:      time.Date(2026, 8, 23, 12, 4, 5, 0, time.UTC),
		WorkerID:  2,
		Category:  "dns_failure",
		Kind:      catalog.KindSearch,
		URL:       "https://www.google.com/search?q=dns",
		Success:   true,
		Escalated: true,
		Chained:   true,
	})

	out := buf.String()
	assert.Contains(t, out, "12:04:05")
	assert.Contains(t, out, "w2")
	assert.Contains(t, out, "dns_failure")
	assert.Contains(t, out, "escalated")
	assert.Contains(t, out, "chained")
}

func TestEventLineTruncatesLongURLs(t *testing.T) {
	long := "https://example.com/" + string(bytes.Repeat([]byte("x"), 200))
	var buf bytes.Buffer
	New(&buf).Event(engine.Event{Time: time.Now(), URL: long, Success: true})
	assert.NotContains(t, buf.String(), "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
}

func TestSummaryShowsScore(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Summary(metrics.Snapshot{
		Requests: 120,
		Errors:   3,
		Score:    64,
		Uptime:   90 * time.Second,
	})
	out := buf.String()
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "64 / 100")
	assert.Contains(t, out, "1m30s")
}

func TestCategoryListCoversCatalog(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	New(&buf).CategoryList(cat)
	out := buf.String()
	assert.Contains(t, out, "dns_failure")
	assert.Contains(t, out, "technology")
}
