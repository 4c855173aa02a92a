package classify

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleRequest(amount float64, narration string, ts time.Time) *Request {
	return &Request{
		RequestID: "req-1",
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "NGN",
		Narration: narration,
		Timestamp: ts,
	}
}

func TestSalaryOnWeekdayIsNotBusinessIncome(t *testing.T) {
	// Weekday 10:00.
	ts := time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC)
	res := NewRuleEvaluator().Evaluate(ruleRequest(250_000, "Salary payment - January 2024", ts))

	require.NotNil(t, res.IsBusinessIncome)
	assert.False(t, *res.IsBusinessIncome)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.Equal(t, TierRule, res.Tier)
	assert.Equal(t, 0.0, res.CostNGN)
	assert.False(t, res.VATApplicable)
}

func TestBusinessNarrationOnWeekdayIsBusinessIncome(t *testing.T) {
	ts := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	res := NewRuleEvaluator().Evaluate(ruleRequest(50_000, "Payment for goods supplied", ts))

	require.NotNil(t, res.IsBusinessIncome)
	assert.True(t, *res.IsBusinessIncome)
	assert.Greater(t, res.Confidence, 0.5)
	assert.Equal(t, TaxStandardRate, res.TaxCategory)
	assert.True(t, res.VATApplicable)
	assert.Contains(t, res.DetectedPatterns, "keyword:payment for goods")
	assert.Greater(t, res.PatternStrength, 0.0)
}

func TestLocationIndicatorLeansBusiness(t *testing.T) {
	e := NewRuleEvaluator()
	with := e.Evaluate(ruleRequest(80_000, "Goods from Alaba market stall 14", time.Time{}))
	without := e.Evaluate(ruleRequest(80_000, "Goods from shop stall 14", time.Time{}))
	require.NotNil(t, with.IsBusinessIncome)
	assert.True(t, *with.IsBusinessIncome)
	assert.Contains(t, with.Reasoning, "location")
	assert.NotContains(t, without.Reasoning, "location")
}

func TestRepeatSenderHistoryCountsAsEvidence(t *testing.T) {
	e := NewRuleEvaluator()
	base := ruleRequest(30_000, "transfer received", time.Time{})

	repeat := *base
	repeat.Context.SenderHistoryCount = 12
	repeat.Context.SenderBusinessRatio = 0.9

	plain := e.Evaluate(base)
	seasoned := e.Evaluate(&repeat)
	assert.NotContains(t, plain.Reasoning, "sender history")
	assert.Contains(t, seasoned.Reasoning, "sender history ratio 0.90")
	assert.Contains(t, seasoned.DetectedPatterns, "sender:repeat")
}

func TestNoEvidenceVerdictIsUnknown(t *testing.T) {
	res := NewRuleEvaluator().Evaluate(&Request{RequestID: "req-u", Narration: "xyz"})
	assert.Nil(t, res.IsBusinessIncome)
	assert.Equal(t, TaxUnknown, res.TaxCategory)
	assert.False(t, res.VATApplicable)
	assert.Empty(t, res.DetectedPatterns)
}

func TestResultInvariants(t *testing.T) {
	e := NewRuleEvaluator()
	narrations := []string{
		"Salary payment - January 2024",
		"Invoice INV-2204 settlement",
		"gift for mum",
		"xyz",
		"POS terminal settlement for wholesale goods, Balogun market",
	}
	for _, n := range narrations {
		res := e.Evaluate(ruleRequest(75_500, n, time.Date(2024, 5, 4, 11, 0, 0, 0, time.UTC)))
		require.GreaterOrEqual(t, res.Confidence, 0.0, n)
		require.LessOrEqual(t, res.Confidence, 1.0, n)
		require.Contains(t, []string{TaxStandardRate, TaxZeroRate, TaxExempt, TaxUnknown}, res.TaxCategory, n)
		if res.VATApplicable {
			require.Equal(t, TaxStandardRate, res.TaxCategory, n)
		}
	}
}

func TestOptimizerComplexityScoring(t *testing.T) {
	o := NewOptimizer(StrategyBalanced)

	// Strong personal keyword, rich history, named industry, time present:
	// a simple request.
	simple := &Request{
		Amount:    decimal.NewFromInt(250_000),
		Narration: "Monthly salary payment from employer",
		Timestamp: time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC),
		Context:   UserContext{Industry: "Trading", HistoryCount: 100},
	}
	assert.InDelta(t, 0.2, o.Complexity(simple), 0.001)

	// Short ambiguous narration, no history, general industry, no time.
	hard := &Request{
		Amount:    decimal.NewFromInt(2_000_000),
		Narration: "tfr",
		Context:   UserContext{Industry: "General"},
	}
	assert.Equal(t, 1.0, o.Complexity(hard))
}

func TestOptimizerTierSelectionAndSubscriptionClamp(t *testing.T) {
	o := NewOptimizer(StrategyBalanced)

	hard := &Request{
		Amount:    decimal.NewFromInt(2_000_000),
		Narration: "tfr",
		Context:   UserContext{Industry: "General", Subscription: SubScale},
	}
	tier, complexity := o.SelectTier(hard)
	assert.Equal(t, TierAdvanced, tier)
	assert.Equal(t, 1.0, complexity)

	hard.Context.Subscription = SubProfessional
	tier, _ = o.SelectTier(hard)
	assert.Equal(t, TierPremium, tier)

	hard.Context.Subscription = SubStarter
	tier, _ = o.SelectTier(hard)
	assert.Equal(t, TierRule, tier, "starter is capped at the rule tier")
}

func TestTierCosts(t *testing.T) {
	assert.Equal(t, 0.0, TierCostNGN(TierRule))
	assert.Equal(t, 0.8, TierCostNGN(TierLite))
	assert.Equal(t, 3.2, TierCostNGN(TierPremium))
	assert.Equal(t, 48.0, TierCostNGN(TierAdvanced))
}
