// Package catalog holds the immutable data tables that drive traffic
// generation: browsing categories, troubleshooting issue patterns, the
// related-issue graph, identity vocabularies, and the Markov transition
// matrices. Data is embedded at build time and validated once at load;
// after Load returns the catalog is read-only and safe to share.
package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Category identifies one class of simulated activity — either a browsing
// subject ("technology") or a troubleshooting topic ("dns_failure").
type Category string

// Kind classifies an action within a category.
type Kind string

const (
	KindSearch  Kind = "search"
	KindSupport Kind = "support"
	KindForum   Kind = "forum"
	KindTool    Kind = "tool"
	KindYouTube Kind = "youtube"
	KindBrowse  Kind = "browse"
)

// Action is one concrete thing a worker can do: visit a target URL, or run
// a search query (Target empty, Query set — the engine picks the search
// engine and applies escalation before building the final URL).
type Action struct {
	Kind   Kind
	Target string
	Query  string
}

// Pattern describes one category's traffic shape. Issue topics carry Queries,
// SupportSites, ForumSearches and ToolDownloads; browsing categories carry
// Sites. Urgency inversely scales wait time; Escalates enables query
// mutation; Related are outgoing edges of the issue graph (cycles expected).
type Pattern struct {
	ID          Category
	Name        string
	Description string
	Urgency     float64
	Escalates   bool
	Related     []Category

	Queries       []string
	SupportSites  []string
	ForumSearches []string
	ToolDownloads []string
	Sites         []string
}

// Browsing reports whether the pattern is a plain browsing category
// (site visits only) rather than a troubleshooting topic.
func (p *Pattern) Browsing() bool { return len(p.Queries) == 0 && len(p.Sites) > 0 }

// Identity holds the vocabularies used to randomize request fingerprints.
type Identity struct {
	UserAgents []string `yaml:"user_agents"`
	Accept     []string `yaml:"accept"`
	Languages  []string `yaml:"languages"`
	Encodings  []string `yaml:"encodings"`
	Referers   []string `yaml:"referers"`
	Platforms  []string `yaml:"platforms"`
}

// Transitions holds the two row-stochastic matrices: category→category and
// pacing-pattern→pacing-pattern. Row keys are current states, column keys
// next states, values transition probabilities.
type Transitions struct {
	Categories map[string]map[string]float64 `yaml:"categories"`
	Pacing     map[string]map[string]float64 `yaml:"pacing"`
}

// Catalog is the full loaded data set. Immutable after Load.
type Catalog struct {
	patterns    map[Category]*Pattern
	ids         []Category // sorted, for deterministic iteration
	identity    Identity
	transitions Transitions
}

// Lookup returns the pattern for a category, or nil if unknown.
func (c *Catalog) Lookup(cat Category) *Pattern { return c.patterns[cat] }

// Related returns the outgoing related-issue edges for a category.
// Unknown categories and browsing categories have no edges.
func (c *Catalog) Related(cat Category) []Category {
	p := c.patterns[cat]
	if p == nil {
		return nil
	}
	return p.Related
}

// Categories returns all category ids in sorted order.
func (c *Catalog) Categories() []Category { return c.ids }

// Issues returns the ids of troubleshooting topics (non-browsing categories).
func (c *Catalog) Issues() []Category {
	var out []Category
	for _, id := range c.ids {
		if !c.patterns[id].Browsing() {
			out = append(out, id)
		}
	}
	return out
}

// Identity returns the fingerprint vocabularies.
func (c *Catalog) Identity() Identity { return c.identity }

// Transitions returns the Markov transition matrices.
func (c *Catalog) Transitions() Transitions { return c.transitions }

// Actions flattens a category's pattern into the candidate action list.
// Search queries become KindSearch actions with Query set and no Target.
func (c *Catalog) Actions(cat Category) []Action {
	p := c.patterns[cat]
	if p == nil {
		return nil
	}
	out := make([]Action, 0,
		len(p.Queries)+len(p.SupportSites)+len(p.ForumSearches)+len(p.ToolDownloads)+len(p.Sites))
	for _, q := range p.Queries {
		out = append(out, Action{Kind: KindSearch, Query: q})
	}
	for _, s := range p.SupportSites {
		out = append(out, Action{Kind: KindSupport, Target: s})
	}
	for _, s := range p.ForumSearches {
		out = append(out, Action{Kind: KindForum, Target: s})
	}
	for _, s := range p.ToolDownloads {
		out = append(out, Action{Kind: KindTool, Target: s})
	}
	for _, s := range p.Sites {
		out = append(out, Action{Kind: KindBrowse, Target: s})
	}
	return out
}

// Engine is a search engine id accepted by SearchURL.
type Engine string

const (
	EngineGoogle     Engine = "google"
	EngineBing       Engine = "bing"
	EngineDuckDuckGo Engine = "duckduckgo"
	EngineReddit     Engine = "reddit"
	EngineYouTube    Engine = "youtube"
)

// SearchURL builds a search results URL for the query on the given engine.
// Unknown engines fall back to Google.
func SearchURL(engine Engine, query string) string {
	q := url.QueryEscape(strings.TrimSpace(query))
	switch engine {
	case EngineBing:
		return "https://www.bing.com/search?q=" + q
	case EngineDuckDuckGo:
		return "https://duckduckgo.com/?q=" + q
	case EngineReddit:
		return "https://www.reddit.com/search/?q=" + q
	case EngineYouTube:
		return "https://www.youtube.com/results?search_query=" + q
	default:
		return "https://www.google.com/search?q=" + q
	}
}

func (c *Catalog) finalize() {
	c.ids = c.ids[:0]
	for id := range c.patterns {
		c.ids = append(c.ids, id)
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
}

// matrixTolerance is the permitted deviation of a row sum from 1.
const matrixTolerance = 1e-6

// validate enforces the load-time data invariants. Any violation is fatal:
// the process must not start with a catalog that could wedge the chain or
// dangle a related-issue edge at runtime.
func (c *Catalog) validate() error {
	for _, id := range c.ids {
		p := c.patterns[id]
		if p.Name == "" {
			return fmt.Errorf("catalog: category %q has no name", id)
		}
		if p.Urgency < 0 || p.Urgency > 1 {
			return fmt.Errorf("catalog: category %q urgency %v outside [0,1]", id, p.Urgency)
		}
		if len(c.Actions(id)) == 0 {
			return fmt.Errorf("catalog: category %q has no actions", id)
		}
		for _, rel := range p.Related {
			if c.patterns[rel] == nil {
				return fmt.Errorf("catalog: category %q references unknown related category %q", id, rel)
			}
		}
	}

	if err := validateMatrix("categories", c.transitions.Categories); err != nil {
		return err
	}
	if err := validateMatrix("pacing", c.transitions.Pacing); err != nil {
		return err
	}
	// Category matrix states must be real browsing categories.
	for row := range c.transitions.Categories {
		if c.patterns[Category(row)] == nil {
			return fmt.Errorf("catalog: transition row %q is not a known category", row)
		}
	}
	return nil
}

// validateMatrix checks the row-stochastic invariants: weights non-negative,
// rows sum to 1 within tolerance, all column keys known, and every row key
// reachable as a column key of at least one row (no absorbing dead rows).
func validateMatrix(name string, m map[string]map[string]float64) error {
	if len(m) == 0 {
		return fmt.Errorf("catalog: %s transition matrix is empty", name)
	}
	reachable := make(map[string]bool)
	for row, cols := range m {
		if len(cols) == 0 {
			return fmt.Errorf("catalog: %s row %q has no transitions", name, row)
		}
		var sum float64
		for col, w := range cols {
			if w < 0 {
				return fmt.Errorf("catalog: %s row %q has negative weight for %q", name, row, col)
			}
			if _, ok := m[col]; !ok {
				return fmt.Errorf("catalog: %s row %q transitions to unknown state %q", name, row, col)
			}
			if w > 0 {
				reachable[col] = true
			}
			sum += w
		}
		if sum < 1-matrixTolerance || sum > 1+matrixTolerance {
			return fmt.Errorf("catalog: %s row %q sums to %v, want 1", name, row, sum)
		}
	}
	for row := range m {
		if !reachable[row] {
			return fmt.Errorf("catalog: %s state %q is unreachable (dead row)", name, row)
		}
	}
	return nil
}
