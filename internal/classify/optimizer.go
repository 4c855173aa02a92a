package classify

import "strings"

// Optimizer scores request complexity and maps it to the cheapest tier the
// strategy allows, clamped by the user's subscription.
type Optimizer struct {
	strategy Strategy
}

// NewOptimizer builds an optimizer for the given strategy.
func NewOptimizer(strategy Strategy) *Optimizer {
	return &Optimizer{strategy: strategy}
}

// Complexity scores a request in [0,1]. Simple requests (clear keywords,
// rich history) score low and stay on cheap tiers.
func (o *Optimizer) Complexity(req *Request) float64 {
	score := 0.0
	narration := strings.ToLower(req.Narration)

	if matchesAny(narration, strongPersonalKeywords) {
		score -= 0.3
	}
	if matchesAny(narration, strongBusinessKeywords) {
		score += 0.2
	}
	if len(strings.Fields(narration)) <= 3 {
		score += 0.3
	}

	amount := req.Amount.InexactFloat64()
	if amount > 1_000_000 {
		score += 0.2
	}
	if amount < 5_000 {
		score += 0.1
	}

	if req.Context.HistoryCount < 10 {
		score += 0.2
	}
	if strings.EqualFold(req.Context.Industry, "general") || req.Context.Industry == "" {
		score += 0.1
	}
	if req.Timestamp.IsZero() {
		score += 0.1
	}

	return clamp(score+0.5, 0, 1)
}

// tierThresholds returns the complexity cut-offs below which Rule, Lite and
// Premium apply; above the last cut-off the subscription ceiling is used.
func (o *Optimizer) tierThresholds() (rule, lite, premium float64) {
	switch o.strategy {
	case StrategyAggressive:
		return 0.4, 0.7, 0.9
	case StrategyAccuracyFirst:
		return 0.1, 0.3, 0.6
	case StrategyEnterprise:
		return 0.05, 0.2, 0.5
	default: // Balanced
		return 0.2, 0.5, 0.8
	}
}

// SelectTier picks the tier for a request and returns the complexity score
// alongside it. The result never exceeds the subscription ceiling.
func (o *Optimizer) SelectTier(req *Request) (Tier, float64) {
	complexity := o.Complexity(req)
	rule, lite, premium := o.tierThresholds()

	var tier Tier
	switch {
	case complexity < rule:
		tier = TierRule
	case complexity < lite:
		tier = TierLite
	case complexity < premium:
		tier = TierPremium
	default:
		tier = req.Context.Subscription.Ceiling()
	}

	if ceiling := req.Context.Subscription.Ceiling(); tier > ceiling {
		tier = ceiling
	}
	return tier, complexity
}

func matchesAny(narration string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(narration, k) {
			return true
		}
	}
	return false
}
