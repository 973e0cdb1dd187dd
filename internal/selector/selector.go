// Package selector resolves which analysis model a request should use and
// enforces the caller's monthly budget before any external call is made.
package selector

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/verseworks/prosody/internal/catalog"
	"github.com/verseworks/prosody/internal/observe"
)

// Thresholds are the hand-tuned complexity and upgrade constants. They are
// configuration, not derived values; override with care.
type Thresholds struct {
	ComplexLength         int     // text length beyond which content is complex
	ComplexAvgWordLen     float64 // average word length beyond which content is complex
	ComplexPunctDensity   float64 // punctuation tokens per word beyond which content is complex
	UpgradeBudgetFraction float64 // max share of remaining budget an upgrade may add
}

// DefaultThresholds preserves the tuned constants from the original system.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ComplexLength:         500,
		ComplexAvgWordLen:     7,
		ComplexPunctDensity:   0.3,
		UpgradeBudgetFraction: 0.10,
	}
}

// Preferences are the caller's stored model and budget settings.
type Preferences struct {
	PreferredModel   string
	MonthlyBudgetUSD float64 // zero means no budget cap
	AutoUpgrade      bool
}

// Request carries the per-call inputs to model selection.
type Request struct {
	Text           string
	Language       string
	ExplicitModel  string
	ComplexityHint string // "simple", "standard", "complex", or empty
}

// Selection is the resolved model with its cost projection.
type Selection struct {
	Model           catalog.Model
	EstimatedTokens int
	EstimatedCost   float64
	Upgraded        bool
}

type Selector struct {
	catalog    *catalog.Catalog
	thresholds Thresholds
	logger     *slog.Logger
}

func New(c *catalog.Catalog, t Thresholds, logger *slog.Logger) *Selector {
	return &Selector{catalog: c, thresholds: t, logger: logger}
}

// Select resolves the model (explicit request > stored preference > automatic
// recommendation), validates it against the catalog, applies the auto-upgrade
// rule, and enforces the monthly budget as a hard precondition. monthlySpent
// is the caller's accumulated cost this month.
func (s *Selector) Select(req Request, prefs Preferences, monthlySpent float64) (Selection, error) {
	complex := s.isComplex(req)

	choice := req.ExplicitModel
	if choice == "" {
		choice = prefs.PreferredModel
	}
	if choice == "" {
		choice = s.recommend(req, complex)
	}

	model, ok := s.catalog.Lookup(choice)
	if !ok {
		s.logger.Warn("requested model not in catalog, using default",
			"requested", choice,
			"default", s.catalog.DefaultID,
		)
		model = s.catalog.DefaultModel()
	}

	tokens := catalog.EstimateTokens(len(req.Text), req.Language)
	sel := Selection{
		Model:           model,
		EstimatedTokens: tokens,
		EstimatedCost:   catalog.EstimateCost(tokens, model),
	}

	if prefs.AutoUpgrade && complex {
		sel = s.maybeUpgrade(sel, prefs, monthlySpent)
	}

	if prefs.MonthlyBudgetUSD > 0 {
		projected := monthlySpent + sel.EstimatedCost
		if projected > prefs.MonthlyBudgetUSD {
			return Selection{}, &observe.BudgetExceededError{
				LimitUSD:     prefs.MonthlyBudgetUSD,
				ProjectedUSD: projected,
			}
		}
	}

	return sel, nil
}

// maybeUpgrade substitutes the next model tier for complex content when the
// incremental cost fits within the configured fraction of remaining budget.
func (s *Selector) maybeUpgrade(sel Selection, prefs Preferences, monthlySpent float64) Selection {
	higher, ok := s.catalog.NextTier(sel.Model.Tier)
	if !ok {
		return sel
	}

	upgradedCost := catalog.EstimateCost(sel.EstimatedTokens, higher)
	incremental := upgradedCost - sel.EstimatedCost

	if prefs.MonthlyBudgetUSD > 0 {
		remaining := prefs.MonthlyBudgetUSD - monthlySpent
		if incremental > s.thresholds.UpgradeBudgetFraction*remaining {
			return sel
		}
	}

	s.logger.Info("auto-upgrading model for complex content",
		"from", sel.Model.ID,
		"to", higher.ID,
		"incremental_cost", incremental,
	)
	sel.Model = higher
	sel.EstimatedCost = upgradedCost
	sel.Upgraded = true
	return sel
}

// recommend picks a model tier from text size and complexity when neither the
// request nor the caller's preferences name one.
func (s *Selector) recommend(req Request, complex bool) string {
	if complex || req.ComplexityHint == "complex" {
		if m, ok := s.catalog.NextTier(1); ok {
			return m.ID
		}
	}
	if len(req.Text) < 200 && req.ComplexityHint != "complex" {
		// Short, simple texts go to the cheapest tier.
		cheapest := s.catalog.DefaultModel()
		for _, m := range s.catalog.Models {
			if m.Tier < cheapest.Tier {
				cheapest = m
			}
		}
		return cheapest.ID
	}
	return s.catalog.DefaultID
}

// isComplex applies the tuned complexity heuristic: long text, long average
// word length, or high punctuation density.
func (s *Selector) isComplex(req Request) bool {
	if req.ComplexityHint == "complex" {
		return true
	}
	if req.ComplexityHint == "simple" {
		return false
	}

	if len(req.Text) > s.thresholds.ComplexLength {
		return true
	}

	words := strings.Fields(req.Text)
	if len(words) == 0 {
		return false
	}

	var letters, punct int
	for _, r := range req.Text {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsPunct(r):
			punct++
		}
	}

	avgWordLen := float64(letters) / float64(len(words))
	if avgWordLen > s.thresholds.ComplexAvgWordLen {
		return true
	}

	punctDensity := float64(punct) / float64(len(words))
	return punctDensity > s.thresholds.ComplexPunctDensity
}
