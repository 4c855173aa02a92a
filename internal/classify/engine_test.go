package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	verdict *LLMVerdict
	err     error
	calls   int
	anon    *Anonymized
}

func (f *fakeLLM) Classify(_ context.Context, anon *Anonymized, _ Tier) (*LLMVerdict, error) {
	f.calls++
	f.anon = anon
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func engineRequest(id string) *Request {
	return &Request{
		RequestID: id,
		UserID:    "user-1",
		OrgID:     "org-1",
		Amount:    decimal.NewFromInt(50_000),
		Currency:  "NGN",
		Narration: "Payment for goods supplied",
		Timestamp: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		Privacy:   PrivacyStandard,
		Context: UserContext{
			Industry:     "Trading",
			BusinessSize: "small",
			Subscription: SubProfessional,
		},
	}
}

func newTestEngine(llm LLMClient) (*Engine, *Cache, *Tracker) {
	cache := NewCache(100, CacheBalanced, time.Hour, nil)
	usage := NewTracker(1000)
	engine := NewEngine(StrategyBalanced, cache, usage, WithLLM(llm))
	return engine, cache, usage
}

func TestPremiumTierThenCacheHit(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{
		IsBusinessIncome: true,
		Confidence:       0.86,
		TaxCategory:      TaxStandardRate,
		Reasoning:        "supplier payment during business hours",
		TokensUsed:       180,
	}}
	engine, _, _ := newTestEngine(llm)

	first := engine.Classify(context.Background(), engineRequest("req-a"))
	require.Equal(t, 1, llm.calls)
	assert.Equal(t, TierPremium, first.Tier)
	require.NotNil(t, first.IsBusinessIncome)
	assert.True(t, *first.IsBusinessIncome)
	assert.True(t, first.VATApplicable)
	assert.Equal(t, 3.2, first.CostNGN)
	assert.False(t, first.CacheHit)
	assert.False(t, first.RequiresReview)

	// An equivalent request hits the cache: no second model call, zero cost.
	second := engineRequest("req-b")
	second.Amount = decimal.NewFromInt(52_000)
	second.Narration = "Payment for goods supplied to vendor"

	hit := engine.Classify(context.Background(), second)
	assert.Equal(t, 1, llm.calls, "cache hit avoids the model")
	assert.True(t, hit.CacheHit)
	assert.Equal(t, 0.0, hit.CostNGN)
	assert.Equal(t, "req-b", hit.RequestID)
	assert.Equal(t, 0.86, hit.Confidence)
}

func TestLLMFailureFallsBackToRules(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model unavailable")}
	engine, _, usage := newTestEngine(llm)

	res := engine.Classify(context.Background(), engineRequest("req-f"))
	require.Equal(t, 1, llm.calls)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, TierRule, res.Tier)
	assert.Equal(t, 0.0, res.CostNGN)
	require.NotNil(t, res.IsBusinessIncome)
	assert.True(t, *res.IsBusinessIncome, "rule evaluator still classifies")

	types := map[EventType]int{}
	for _, e := range usage.Events() {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[EventRuleFallback])
	assert.Equal(t, 1, types[EventClassification])
}

func TestMissingLLMClientFallsBack(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	res := engine.Classify(context.Background(), engineRequest("req-n"))
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, TierRule, res.Tier)
}

func TestAnonymizedPayloadReachesModel(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{IsBusinessIncome: true, Confidence: 0.9, TaxCategory: TaxStandardRate}}
	engine, _, _ := newTestEngine(llm)

	req := engineRequest("req-p")
	req.Narration = "Payment for goods from 08031234567"
	engine.Classify(context.Background(), req)

	require.NotNil(t, llm.anon)
	assert.Contains(t, llm.anon.Narration, "[PHONE]")
	assert.NotContains(t, llm.anon.Narration, "0803")
	assert.Equal(t, "medium", llm.anon.AmountCategory)
}

func TestResultCarriesModelAndPrivacyMetadata(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{
		IsBusinessIncome:   true,
		Confidence:         0.88,
		TaxCategory:        TaxStandardRate,
		CustomerName:       "Chike Trading Ltd",
		InvoiceDescription: "Goods supplied",
		ModelVersion:       "big-model-2024-06",
	}}
	engine, _, _ := newTestEngine(llm)

	req := engineRequest("req-m")
	req.Narration = "Payment for goods from 08031234567"

	res := engine.Classify(context.Background(), req)
	assert.Equal(t, "Chike Trading Ltd", res.CustomerName)
	assert.Equal(t, "Goods supplied", res.InvoiceDescription)
	assert.Equal(t, "big-model-2024-06", res.ModelVersion)
	assert.Equal(t, "standard", res.AnonymizationLevel)
	assert.Contains(t, res.DetectedPatterns, "phone")
}

func TestRuleFallbackAnonymizationLevelIsNone(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	res := engine.Classify(context.Background(), engineRequest("req-l"))
	require.True(t, res.FallbackUsed)
	assert.Equal(t, "none", res.AnonymizationLevel)
	assert.Empty(t, res.ModelVersion)
}

func TestLowConfidenceRequiresReview(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{IsBusinessIncome: true, Confidence: 0.55, TaxCategory: TaxStandardRate}}
	engine, _, _ := newTestEngine(llm)

	res := engine.Classify(context.Background(), engineRequest("req-r"))
	assert.True(t, res.RequiresReview)
}

func TestVerdictInvariantsEnforced(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{
		IsBusinessIncome: false,
		Confidence:       1.7,
		TaxCategory:      "weird_category",
	}}
	engine, _, _ := newTestEngine(llm)

	res := engine.Classify(context.Background(), engineRequest("req-i"))
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Equal(t, TaxUnknown, res.TaxCategory)
	assert.False(t, res.VATApplicable)
}

func TestFeedbackFlowsToCache(t *testing.T) {
	llm := &fakeLLM{verdict: &LLMVerdict{IsBusinessIncome: true, Confidence: 0.9, TaxCategory: TaxStandardRate}}
	engine, cache, _ := newTestEngine(llm)

	req := engineRequest("req-fb")
	engine.Classify(context.Background(), req)
	require.Equal(t, 1, cache.Len())

	assert.True(t, engine.UpdateFeedback(context.Background(), "req-fb", true))
	assert.True(t, engine.UpdateFeedback(context.Background(), "req-fb", false))
	require.Equal(t, 1, cache.Len(), "accuracy 0.5 keeps the entry")
	assert.True(t, engine.UpdateFeedback(context.Background(), "req-fb", false))
	assert.Equal(t, 0, cache.Len(), "inaccurate entry evicted on feedback")
}
