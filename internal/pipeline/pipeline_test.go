package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verseworks/prosody/internal/anthropic"
	"github.com/verseworks/prosody/internal/cache"
	"github.com/verseworks/prosody/internal/catalog"
	"github.com/verseworks/prosody/internal/guard"
	"github.com/verseworks/prosody/internal/observe"
	"github.com/verseworks/prosody/internal/rules"
	"github.com/verseworks/prosody/internal/selector"
	"github.com/verseworks/prosody/internal/usage"
)

const goodReply = `PATTERN: alliteration
EXAMPLES: "she sells", "seashells"
FEATURE: repeated sh onset
CONFIDENCE: high
EXPLANATION: The sh sound recurs at the start of consecutive words.

RHYME SCHEME: AABB
METER: free verse`

type fakeModel struct {
	reply string
	usage anthropic.Usage
	err   error
	calls int
}

func (m *fakeModel) Complete(ctx context.Context, model, system string, messages []anthropic.Message, maxTokens int) (string, anthropic.Usage, error) {
	m.calls++
	if m.err != nil {
		return "", anthropic.Usage{}, m.err
	}
	return m.reply, m.usage, nil
}

type fakeDocStore struct {
	adds int
}

func (s *fakeDocStore) Add(ctx context.Context, obs *observe.Observation, contentKey string) error {
	s.adds++
	return nil
}

type fakePublisher struct {
	subjects []string
}

func (p *fakePublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func testPipeline(model *fakeModel, govCfg usage.Config) (*Pipeline, *fakeDocStore) {
	logger := slog.Default()
	docs := &fakeDocStore{}
	lru := cache.NewLRU(16, time.Minute)
	gov := usage.NewGovernor(usage.NewMemoryWindowStore(), usage.NewMemoryMonthlyStore(), govCfg, logger)
	sel := selector.New(catalog.Default(), selector.DefaultThresholds(), logger)
	g := guard.New(docs, lru, guard.DefaultLimits(), logger)
	p := New(model, sel, gov, g, lru, rules.NewDetector(), DefaultConfig(), logger)
	return p, docs
}

func TestObserve_Success(t *testing.T) {
	model := &fakeModel{reply: goodReply, usage: anthropic.Usage{InputTokens: 120, OutputTokens: 80}}
	p, docs := testPipeline(model, usage.DefaultConfig())

	res, err := p.Observe(context.Background(), Request{
		Text:   "[Verse 1]\nshe sells seashells by the seashore",
		Caller: "caller-1",
	})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if res.Cached {
		t.Error("fresh analysis reported as cached")
	}
	if res.TokensUsed != 200 {
		t.Errorf("TokensUsed = %d, want 200", res.TokensUsed)
	}
	if res.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want > 0", res.CostUSD)
	}
	if res.ModelUsed == "" || res.ModelUsed != res.Observation.Metadata.ModelUsed {
		t.Errorf("ModelUsed mismatch: %q vs %q", res.ModelUsed, res.Observation.Metadata.ModelUsed)
	}
	if len(res.Observation.Patterns) == 0 {
		t.Error("no patterns in observation")
	}
	if res.Observation.Language != "english" {
		t.Errorf("Language = %q, want default english", res.Observation.Language)
	}
	if !strings.Contains(res.Observation.Text, "[Verse 1]") {
		t.Error("observation must keep the original, uncleaned text")
	}
	if !res.Observation.Metadata.Cleaning.WasModified {
		t.Error("cleaning stats missing the markup removal")
	}
	if res.Observation.Metadata.RhymeScheme != "AABB" || res.Observation.Metadata.Meter != "free verse" {
		t.Errorf("analysis summary = %q / %q", res.Observation.Metadata.RhymeScheme, res.Observation.Metadata.Meter)
	}
	if docs.adds != 1 {
		t.Errorf("store adds = %d, want 1", docs.adds)
	}
}

func TestObserve_CacheHitIsFree(t *testing.T) {
	model := &fakeModel{reply: goodReply, usage: anthropic.Usage{InputTokens: 120, OutputTokens: 80}}
	p, docs := testPipeline(model, usage.DefaultConfig())
	ctx := context.Background()
	req := Request{Text: "she sells seashells by the seashore", Caller: "caller-1"}

	first, err := p.Observe(ctx, req)
	if err != nil {
		t.Fatalf("first Observe: %v", err)
	}
	second, err := p.Observe(ctx, req)
	if err != nil {
		t.Fatalf("second Observe: %v", err)
	}
	if !second.Cached {
		t.Fatal("second call must hit the cache")
	}
	if second.TokensUsed != 0 || second.CostUSD != 0 {
		t.Errorf("cache hit cost = %d tokens / $%v, want zero", second.TokensUsed, second.CostUSD)
	}
	if second.Observation.ID != first.Observation.ID {
		t.Error("cache hit returned a different observation")
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
	if docs.adds != 1 {
		t.Errorf("store adds = %d, want 1", docs.adds)
	}
}

func TestObserve_RejectsBadInput(t *testing.T) {
	model := &fakeModel{reply: goodReply}
	p, _ := testPipeline(model, usage.DefaultConfig())
	p.cfg.MaxTextChars = 50

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"oversized", strings.Repeat("a", 51)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Observe(context.Background(), Request{Text: tt.text, Caller: "c"})
			var verr *observe.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if model.calls != 0 {
				t.Error("validation failure must not reach the model")
			}
		})
	}
}

func TestObserve_RateLimited(t *testing.T) {
	model := &fakeModel{reply: goodReply, usage: anthropic.Usage{InputTokens: 10, OutputTokens: 10}}
	p, _ := testPipeline(model, usage.Config{Window: time.Minute, MaxRequests: 1})
	ctx := context.Background()

	if _, err := p.Observe(ctx, Request{Text: "the rain in spain", Caller: "c"}); err != nil {
		t.Fatalf("first Observe: %v", err)
	}
	_, err := p.Observe(ctx, Request{Text: "a different second text", Caller: "c"})
	var rerr *observe.RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
}

func TestObserve_BudgetBlocksBeforeCall(t *testing.T) {
	model := &fakeModel{reply: goodReply}
	p, docs := testPipeline(model, usage.DefaultConfig())

	_, err := p.Observe(context.Background(), Request{
		Text:        "she sells seashells by the seashore",
		Caller:      "c",
		Preferences: selector.Preferences{MonthlyBudgetUSD: 0.0000001},
	})
	var berr *observe.BudgetExceededError
	if !errors.As(err, &berr) {
		t.Fatalf("err = %v, want BudgetExceededError", err)
	}
	if model.calls != 0 {
		t.Error("budget failure must not reach the model")
	}
	if docs.adds != 0 {
		t.Error("budget failure must not persist anything")
	}
}

func TestObserve_ModelFailureSurfaced(t *testing.T) {
	model := &fakeModel{err: &observe.ExternalServiceError{Kind: observe.ServiceAuth, Message: "bad key"}}
	p, docs := testPipeline(model, usage.DefaultConfig())

	_, err := p.Observe(context.Background(), Request{Text: "some text to analyze", Caller: "c"})
	var serr *observe.ExternalServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if serr.Kind != observe.ServiceAuth {
		t.Errorf("Kind = %q, want auth", serr.Kind)
	}
	if docs.adds != 0 {
		t.Error("failed call must not persist anything")
	}
}

func TestObserve_CancelledBeforePersist(t *testing.T) {
	model := &fakeModel{reply: goodReply, usage: anthropic.Usage{InputTokens: 10, OutputTokens: 10}}
	p, docs := testPipeline(model, usage.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Observe(ctx, Request{Text: "she sells seashells", Caller: "c"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if docs.adds != 0 {
		t.Error("cancelled request must not persist a partial observation")
	}
}

func TestObserve_PublishesEvent(t *testing.T) {
	model := &fakeModel{reply: goodReply, usage: anthropic.Usage{InputTokens: 10, OutputTokens: 10}}
	p, _ := testPipeline(model, usage.DefaultConfig())
	pub := &fakePublisher{}
	p.SetPublisher(pub)

	if _, err := p.Observe(context.Background(), Request{Text: "she sells seashells by the seashore", Caller: "c"}); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != ObservationCreatedSubject {
		t.Errorf("published subjects = %v", pub.subjects)
	}
}
