package catalog

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// patternYAML is the on-disk shape of one category entry.
type patternYAML struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Urgency       float64  `yaml:"urgency"`
	Escalates     bool     `yaml:"escalates"`
	Related       []string `yaml:"related"`
	Queries       []string `yaml:"queries"`
	SupportSites  []string `yaml:"support_sites"`
	ForumSearches []string `yaml:"forum_searches"`
	ToolDownloads []string `yaml:"tool_downloads"`
	Sites         []string `yaml:"sites"`
}

type issuesFile struct {
	Patterns map[string]patternYAML `yaml:"patterns"`
}

type browsingFile struct {
	Categories map[string]patternYAML `yaml:"categories"`
}

// Load parses and validates the embedded catalog. It is called once at
// startup; any error is a fatal configuration problem and must prevent
// startup rather than surface mid-run.
func Load() (*Catalog, error) {
	c := &Catalog{patterns: make(map[Category]*Pattern)}

	var issues issuesFile
	if err := readYAML("data/issues.yaml", &issues); err != nil {
		return nil, err
	}
	for id, p := range issues.Patterns {
		c.patterns[Category(id)] = toPattern(Category(id), p)
	}

	var browsing browsingFile
	if err := readYAML("data/browsing.yaml", &browsing); err != nil {
		return nil, err
	}
	for id, p := range browsing.Categories {
		if _, dup := c.patterns[Category(id)]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q across issues and browsing", id)
		}
		c.patterns[Category(id)] = toPattern(Category(id), p)
	}

	if err := readYAML("data/identity.yaml", &c.identity); err != nil {
		return nil, err
	}
	if len(c.identity.UserAgents) == 0 {
		return nil, fmt.Errorf("catalog: identity data has no user agents")
	}

	if err := readYAML("data/transitions.yaml", &c.transitions); err != nil {
		return nil, err
	}

	c.finalize()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func toPattern(id Category, p patternYAML) *Pattern {
	related := make([]Category, len(p.Related))
	for i, r := range p.Related {
		related[i] = Category(r)
	}
	return &Pattern{
		ID:            id,
		Name:          p.Name,
		Description:   p.Description,
		Urgency:       p.Urgency,
		Escalates:     p.Escalates,
		Related:       related,
		Queries:       p.Queries,
		SupportSites:  p.SupportSites,
		ForumSearches: p.ForumSearches,
		ToolDownloads: p.ToolDownloads,
		Sites:         p.Sites,
	}
}

func readYAML(path string, out any) error {
	raw, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return nil
}
