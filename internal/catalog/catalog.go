// Package catalog holds the fixed set of analysis models the pipeline may
// use, with per-token cost rates and tiering for auto-upgrade decisions.
package catalog

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Model describes one entry in the analysis-model catalog.
type Model struct {
	ID              string  `yaml:"id"`
	Tier            int     `yaml:"tier"`
	MaxTokens       int     `yaml:"max_tokens"`
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`
}

// Catalog is the closed set of valid analysis models.
type Catalog struct {
	Models    []Model `yaml:"models"`
	DefaultID string  `yaml:"default"`
}

// Default returns the compiled-in catalog. Rates are USD per 1K input tokens.
func Default() *Catalog {
	return &Catalog{
		Models: []Model{
			{ID: "claude-3-haiku-20240307", Tier: 1, MaxTokens: 4000, CostPer1KTokens: 0.00025},
			{ID: "claude-3-sonnet-20240229", Tier: 2, MaxTokens: 4000, CostPer1KTokens: 0.003},
			{ID: "claude-3-opus-20240229", Tier: 3, MaxTokens: 4000, CostPer1KTokens: 0.015},
		},
		DefaultID: "claude-3-sonnet-20240229",
	}
}

// Load reads a catalog from a YAML file. Missing fields fall back to the
// compiled-in defaults.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	def := Default()
	if len(c.Models) == 0 {
		c.Models = def.Models
	}
	if c.DefaultID == "" {
		c.DefaultID = def.DefaultID
	}
	if _, ok := c.Lookup(c.DefaultID); !ok {
		return nil, fmt.Errorf("catalog default %q not in model list", c.DefaultID)
	}
	return &c, nil
}

// Lookup finds a model by ID.
func (c *Catalog) Lookup(id string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// DefaultModel returns the configured fallback model.
func (c *Catalog) DefaultModel() Model {
	m, ok := c.Lookup(c.DefaultID)
	if !ok && len(c.Models) > 0 {
		return c.Models[0]
	}
	return m
}

// NextTier returns the cheapest model strictly above the given tier, if any.
func (c *Catalog) NextTier(tier int) (Model, bool) {
	candidates := make([]Model, 0, len(c.Models))
	for _, m := range c.Models {
		if m.Tier > tier {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return Model{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Tier != candidates[j].Tier {
			return candidates[i].Tier < candidates[j].Tier
		}
		return candidates[i].CostPer1KTokens < candidates[j].CostPer1KTokens
	})
	return candidates[0], true
}

// tokensPerChar approximates token density per language. Logographic and
// dense scripts tokenize far heavier per character than Latin scripts.
var tokensPerChar = map[string]float64{
	"english":  0.25,
	"spanish":  0.28,
	"french":   0.28,
	"german":   0.3,
	"japanese": 0.9,
	"chinese":  0.9,
	"korean":   0.7,
}

const defaultTokensPerChar = 0.3

// EstimateTokens projects the token count for analyzing text of the given
// length in the given language.
func EstimateTokens(length int, language string) int {
	rate, ok := tokensPerChar[language]
	if !ok {
		rate = defaultTokensPerChar
	}
	return int(math.Ceil(float64(length) * rate))
}

// EstimateCost projects the USD cost of the given token count on a model.
func EstimateCost(tokens int, m Model) float64 {
	return float64(tokens) / 1000.0 * m.CostPer1KTokens
}
