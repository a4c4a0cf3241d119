// Package chain walks the related-issue graph: after working on a topic, a
// worker sometimes "discovers" a connected problem instead of jumping to an
// unrelated one. Cycles in the graph are expected; the walker never recurses.
package chain

import (
	"math/rand"

	"github.com/quietriver/chaff/internal/catalog"
)

// Walker selects the next troubleshooting topic for one worker.
// Not safe for concurrent use.
type Walker struct {
	cat *catalog.Catalog
	rng *rand.Rand
}

// New returns a Walker over the catalog's related-issue graph.
func New(cat *catalog.Catalog, rng *rand.Rand) *Walker {
	return &Walker{cat: cat, rng: rng}
}

// Next picks the topic that follows current. With probability chainProb it
// follows a related edge (restricted to the enabled set) and reports
// chained=true; otherwise, or when no enabled related topic exists, it falls
// back to a uniform pick over enabled and reports chained=false. The enabled
// set must be non-empty.
func (w *Walker) Next(current catalog.Category, enabled []catalog.Category, chainProb float64) (next catalog.Category, chained bool) {
	if w.rng.Float64() < chainProb {
		if candidates := w.enabledRelated(current, enabled); len(candidates) > 0 {
			return candidates[w.rng.Intn(len(candidates))], true
		}
	}
	return enabled[w.rng.Intn(len(enabled))], false
}

// enabledRelated intersects current's outgoing edges with the enabled set,
// preserving the catalog's edge order.
func (w *Walker) enabledRelated(current catalog.Category, enabled []catalog.Category) []catalog.Category {
	on := make(map[catalog.Category]bool, len(enabled))
	for _, c := range enabled {
		on[c] = true
	}
	var out []catalog.Category
	for _, rel := range w.cat.Related(current) {
		if on[rel] {
			out = append(out, rel)
		}
	}
	return out
}
