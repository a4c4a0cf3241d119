package metrics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New()
	require.NoError(t, err)
	return a
}

func TestEmptyScoreIsZero(t *testing.T) {
	a := newAggregator(t)
	assert.Equal(t, 0, a.Score())
}

func TestScoreComponentsCap(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()

	// 50 fingerprints: capped at 30 points.
	for i := 0; i < 50; i++ {
		a.RecordFingerprint(fmt.Sprintf("fp-%d", i))
	}
	// 30 categories: capped at 20 points.
	for i := 0; i < 30; i++ {
		a.RecordAction(ctx, fmt.Sprintf("cat-%d", i), 5*time.Second, true, false, false)
	}
	// 40 identity changes: capped at 20 points.
	for i := 0; i < 40; i++ {
		a.RecordIdentityChange()
	}

	// Identical delays contribute zero entropy, so the total is exactly
	// the three capped components.
	assert.Equal(t, 70, a.Score())
}

func TestScoreNeverExceeds100(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		a.RecordFingerprint(fmt.Sprintf("fp-%d", i))
		a.RecordIdentityChange()
		a.RecordAction(ctx, fmt.Sprintf("cat-%d", i), time.Duration(i)*time.Second, true, false, false)
	}
	score := a.Score()
	assert.LessOrEqual(t, score, 100)
	assert.GreaterOrEqual(t, score, 0)
}

func TestVariedDelaysScoreHigherThanUniform(t *testing.T) {
	uniform := newAggregator(t)
	varied := newAggregator(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		uniform.RecordAction(ctx, "a", 10*time.Second, true, false, false)
		varied.RecordAction(ctx, "a", time.Duration(i%20)*time.Second, true, false, false)
	}
	assert.Greater(t, varied.Score(), uniform.Score())
}

func TestSnapshotCounts(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()

	a.RecordAction(ctx, "dns_failure", 3*time.Second, true, false, false)
	a.RecordAction(ctx, "dns_failure", 4*time.Second, false, true, false)
	a.RecordAction(ctx, "wifi_problems", 5*time.Second, true, true, true)
	a.RecordFingerprint("fp-1")
	a.RecordIdentityChange()

	s := a.Snapshot()
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(2), s.Escalations)
	assert.Equal(t, int64(1), s.Chains)
	assert.Equal(t, int64(1), s.IdentityChanges)
	assert.Equal(t, 1, s.Fingerprints)
	assert.Equal(t, 2, s.Categories)
	assert.Equal(t, a.Score(), s.Score)
}

func TestConcurrentRecordingLosesNothing(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a.RecordAction(ctx, fmt.Sprintf("cat-%d", w), time.Second, i%7 == 0, false, false)
				a.RecordFingerprint(fmt.Sprintf("fp-%d-%d", w, i))
				a.RecordIdentityChange()
			}
		}(w)
	}
	wg.Wait()

	s := a.Snapshot()
	assert.Equal(t, int64(workers*perWorker), s.Requests)
	assert.Equal(t, int64(workers*perWorker), s.IdentityChanges)
	assert.Equal(t, workers*perWorker, s.Fingerprints)
	assert.Equal(t, workers, s.Categories)
}

func TestEntropyWindowIsBounded(t *testing.T) {
	a := newAggregator(t)
	ctx := context.Background()

	// Fill well past the window with a single value, then the window's
	// worth of varied values: old uniform samples must age out.
	for i := 0; i < 300; i++ {
		a.RecordAction(ctx, "a", time.Second, true, false, false)
	}
	for i := 0; i < delayWindow; i++ {
		a.RecordAction(ctx, "a", time.Duration(i)*time.Second, true, false, false)
	}

	a.mu.Lock()
	entropy := a.delayEntropyLocked()
	a.mu.Unlock()
	// 100 distinct buckets over 100 samples: entropy = log2(100) ≈ 6.64.
	assert.InDelta(t, 6.64, entropy, 0.1)
}
