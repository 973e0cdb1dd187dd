// Package pipeline wires the full observation flow: normalize, cache lookup,
// model selection, rate limiting, the external model call, parsing, synthesis
// with rule-based patterns, constellation grouping, and guarded persistence.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verseworks/prosody/internal/anthropic"
	"github.com/verseworks/prosody/internal/cache"
	"github.com/verseworks/prosody/internal/guard"
	"github.com/verseworks/prosody/internal/normalize"
	"github.com/verseworks/prosody/internal/observe"
	"github.com/verseworks/prosody/internal/parse"
	"github.com/verseworks/prosody/internal/prompt"
	"github.com/verseworks/prosody/internal/selector"
	"github.com/verseworks/prosody/internal/synthesis"
	"github.com/verseworks/prosody/internal/usage"
)

// ModelClient is the external analysis model boundary.
type ModelClient interface {
	Complete(ctx context.Context, model, system string, messages []anthropic.Message, maxTokens int) (string, anthropic.Usage, error)
}

// RuleDetector supplies deterministic patterns merged with the model's.
type RuleDetector interface {
	Detect(text, language string) []observe.Pattern
}

// Publisher receives a best-effort event after each persisted observation.
type Publisher interface {
	Publish(subject string, data any) error
}

// Config holds the pipeline's tunable constants.
type Config struct {
	// MaxTextChars rejects oversized input before any work is done.
	MaxTextChars int
	// OverlapThreshold is the synthesis dedup threshold.
	OverlapThreshold float64
	Constellations   synthesis.ConstellationConfig
}

func DefaultConfig() Config {
	return Config{
		MaxTextChars:     50000,
		OverlapThreshold: synthesis.DefaultOverlapThreshold,
		Constellations:   synthesis.DefaultConstellationConfig(),
	}
}

// Request is one observation call.
type Request struct {
	Text           string
	Language       string
	Caller         string
	ExplicitModel  string
	ComplexityHint string
	Preferences    selector.Preferences
	Prompt         prompt.Options
}

// ObservationCreatedSubject is the event published after a successful persist.
const ObservationCreatedSubject = "prosody.observation.created"

// ObservationCreated is the event payload.
type ObservationCreated struct {
	ObservationID string `json:"observation_id"`
	Language      string `json:"language"`
	PatternCount  int    `json:"pattern_count"`
	ModelUsed     string `json:"model_used"`
}

type Pipeline struct {
	model     ModelClient
	selector  *selector.Selector
	governor  *usage.Governor
	guard     *guard.Guard
	cache     cache.Store
	rules     RuleDetector
	publisher Publisher // nil disables events
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func New(model ModelClient, sel *selector.Selector, gov *usage.Governor, g *guard.Guard, c cache.Store, rules RuleDetector, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		model:    model,
		selector: sel,
		governor: gov,
		guard:    g,
		cache:    c,
		rules:    rules,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetPublisher attaches an event publisher. Publishing failures are logged
// and never fail an observation.
func (p *Pipeline) SetPublisher(pub Publisher) { p.publisher = pub }

// SetClock overrides observation timestamps for tests.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Observe runs the full pipeline for one request. A cache hit short-circuits
// everything from model selection onward and reports zero cost. Validation,
// budget, and rate-limit failures surface before the external call is made.
func (p *Pipeline) Observe(ctx context.Context, req Request) (*observe.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &observe.ValidationError{Reason: "text must be a non-empty string"}
	}
	if p.cfg.MaxTextChars > 0 && len(req.Text) > p.cfg.MaxTextChars {
		return nil, &observe.ValidationError{Reason: "text exceeds maximum length"}
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = "english"
	}

	cleaned := normalize.Clean(req.Text)
	key := cache.Key(cleaned.Cleaned, language)
	if obs, ok := p.cache.Get(key); ok {
		p.logger.Info("cache hit", "caller", req.Caller, "language", language)
		return &observe.Result{
			Observation: obs,
			ModelUsed:   obs.Metadata.ModelUsed,
			Cached:      true,
		}, nil
	}

	spent, err := p.governor.MonthlySpent(ctx, req.Caller)
	if err != nil {
		// The budget gate fails open like the rate limiter does; an
		// unavailable counter must not block analysis.
		p.logger.Warn("monthly usage unavailable, skipping budget check",
			"caller", req.Caller, "error", err)
		spent = 0
	}

	sel, err := p.selector.Select(selector.Request{
		Text:           cleaned.Cleaned,
		Language:       language,
		ExplicitModel:  req.ExplicitModel,
		ComplexityHint: req.ComplexityHint,
	}, req.Preferences, spent)
	if err != nil {
		return nil, err
	}

	if err := p.governor.Allow(ctx, req.Caller); err != nil {
		return nil, err
	}

	instruction := prompt.Build(cleaned.Cleaned, language, req.Prompt)
	reply, used, err := p.model.Complete(ctx, sel.Model.ID, prompt.SystemPrompt,
		[]anthropic.Message{{Role: "user", Content: instruction}}, sel.Model.MaxTokens)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// Cancelled mid-flight; never persist a partial observation.
		return nil, ctx.Err()
	}

	// Segments are located against the original text so their offsets stay
	// resolvable in what the caller actually sent.
	parsed := parse.Parse(reply, req.Text)
	merged := synthesis.Merge(parsed.Patterns, p.rules.Detect(req.Text, language), p.cfg.OverlapThreshold)
	constellations := synthesis.BuildConstellations(merged, p.cfg.Constellations)

	obs := &observe.Observation{
		ID:             uuid.NewString(),
		Text:           req.Text,
		Language:       language,
		Patterns:       merged,
		Constellations: constellations,
		Metadata: observe.Metadata{
			ModelUsed:   sel.Model.ID,
			RhymeScheme: parsed.RhymeScheme,
			Meter:       parsed.Meter,
			Cleaning: observe.CleaningStats{
				WasModified:    cleaned.WasModified,
				OriginalLength: cleaned.OriginalLength,
				CleanedLength:  cleaned.CleanedLength,
			},
		},
		CreatedAt: p.now().UTC(),
	}

	if err := p.guard.Persist(ctx, obs, key); err != nil {
		return nil, err
	}

	cost := float64(used.Total()) / 1000 * sel.Model.CostPer1KTokens
	if err := p.governor.Record(ctx, req.Caller, used.Total(), cost); err != nil {
		// Accounting is best effort; the observation already succeeded.
		p.logger.Warn("usage record failed", "caller", req.Caller, "error", err)
	}

	p.publish(obs)

	p.logger.Info("observation created",
		"observation", obs.ID,
		"caller", req.Caller,
		"language", language,
		"patterns", len(obs.Patterns),
		"constellations", len(obs.Constellations),
		"model", sel.Model.ID,
		"tokens", used.Total(),
	)

	return &observe.Result{
		Observation: obs,
		ModelUsed:   sel.Model.ID,
		TokensUsed:  used.Total(),
		CostUSD:     cost,
	}, nil
}

func (p *Pipeline) publish(obs *observe.Observation) {
	if p.publisher == nil {
		return
	}
	evt := ObservationCreated{
		ObservationID: obs.ID,
		Language:      obs.Language,
		PatternCount:  len(obs.Patterns),
		ModelUsed:     obs.Metadata.ModelUsed,
	}
	if err := p.publisher.Publish(ObservationCreatedSubject, evt); err != nil {
		p.logger.Warn("event publish failed", "observation", obs.ID, "error", err)
	}
}
