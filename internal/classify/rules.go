package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// Keyword families. Personal keywords score with the sign reversed.
var (
	strongBusinessKeywords = []string{
		"invoice", "payment for goods", "payment for services", "contract payment",
		"professional fee", "consultation", "commission", "sales revenue",
		"business income", "service charge", "delivery fee", "installation",
	}
	moderateBusinessKeywords = []string{
		"supply", "wholesale", "retail", "goods", "services", "vendor",
		"distributor", "purchase order", "bulk", "customer payment",
	}
	weakBusinessKeywords = []string{
		"payment", "deposit", "pos", "order",
	}
	strongPersonalKeywords = []string{
		"salary", "wage", "allowance", "stipend", "pension", "family support",
		"personal loan", "gift", "donation", "pocket money", "upkeep",
		"maintenance", "welfare",
	}
	moderatePersonalKeywords = []string{
		"rent", "school fees", "medical", "groceries", "utilities", "airtime",
		"recharge", "church", "tithe", "offering",
	}
)

// businessLocations maps market, business-district and industrial-area
// substrings to their evidence weights.
var businessLocations = map[string]float64{
	"alaba":               0.7,
	"computer village":    0.7,
	"balogun market":      0.7,
	"idumota":             0.6,
	"ladipo":              0.6,
	"trade fair":          0.6,
	"apapa":               0.5,
	"ikeja":               0.4,
	"victoria island":     0.5,
	"lekki":               0.4,
	"wuse market":         0.7,
	"garki":               0.5,
	"central area":        0.4,
	"trans amadi":         0.6,
	"oil mill":            0.6,
	"kantin kwari":        0.7,
	"sabon gari":          0.5,
	"dugbe":               0.5,
	"bodija":              0.5,
	"ariaria":             0.7,
	"onitsha main market": 0.7,
	"market":              0.4,
	"industrial":          0.5,
	"plaza":               0.4,
}

type keywordFamily struct {
	keywords []string
	weight   float64
	conf     float64
	business bool
	strong   bool
}

var keywordFamilies = []keywordFamily{
	{strongBusinessKeywords, 0.8, 0.9, true, true},
	{moderateBusinessKeywords, 0.5, 0.7, true, false},
	{weakBusinessKeywords, 0.2, 0.4, true, false},
	{strongPersonalKeywords, 0.9, 0.95, false, true},
	{moderatePersonalKeywords, 0.6, 0.8, false, false},
}

// RuleEvaluator is the deterministic local classifier. It doubles as the
// fallback whenever an LLM tier is unavailable.
type RuleEvaluator struct{}

// NewRuleEvaluator builds the rule evaluator.
func NewRuleEvaluator() *RuleEvaluator { return &RuleEvaluator{} }

// Evaluate classifies a request with weighted evidence from narration
// keywords, amount patterns, time-of-day, location indicators and sender
// history. The business score is the weighted evidence mean remapped to
// [0,1]; the request is business income iff the score exceeds 0.5.
func (e *RuleEvaluator) Evaluate(req *Request) *Result {
	narration := strings.ToLower(req.Narration)

	var weightedSum, weightTotal float64
	var strongWeight, keywordWeight float64
	var reasons, patterns []string

	// Narration keywords. Each matched family contributes once.
	for _, fam := range keywordFamilies {
		matched := ""
		for _, k := range fam.keywords {
			if strings.Contains(narration, k) {
				matched = k
				break
			}
		}
		if matched == "" {
			continue
		}
		contribution := fam.weight * fam.conf
		if !fam.business {
			contribution = -contribution
		}
		weightedSum += contribution
		weightTotal += fam.weight
		keywordWeight += fam.weight
		if fam.strong {
			strongWeight += fam.weight
		}
		polarity := "business"
		if !fam.business {
			polarity = "personal"
		}
		reasons = append(reasons, fmt.Sprintf("keyword %q (%s)", matched, polarity))
		patterns = append(patterns, "keyword:"+matched)
	}

	// Amount divisibility. Round figures lean business.
	amount := req.Amount.InexactFloat64()
	if amount > 0 {
		for _, step := range []float64{1_000, 5_000, 10_000, 50_000, 100_000} {
			if amount >= step && isDivisible(amount, step) {
				weightedSum += 0.05
				weightTotal += 0.05
			}
		}
		if w := amountBandWeight(amount); w > 0 {
			weightedSum += w
			weightTotal += w
		}
	}

	// Time and day of week.
	if !req.Timestamp.IsZero() {
		if w := timeWeight(req.Timestamp); w != 0 {
			weightedSum += w
			if w < 0 {
				weightTotal += -w
			} else {
				weightTotal += w
			}
			reasons = append(reasons, fmt.Sprintf("time pattern %+.2f", w))
			if w > 0 {
				patterns = append(patterns, "time:business_hours")
			} else {
				patterns = append(patterns, "time:night")
			}
		}
	}

	// Location indicators.
	for loc, w := range businessLocations {
		if strings.Contains(narration, loc) {
			weightedSum += w
			weightTotal += w
			reasons = append(reasons, fmt.Sprintf("location %q", loc))
			patterns = append(patterns, "location:"+loc)
			break
		}
	}

	// Repeat sender history. The evidence weight scales with the fraction
	// of this sender's prior transactions classified as business.
	if req.Context.SenderHistoryCount > 0 && req.Context.SenderBusinessRatio > 0 {
		w := 0.5 * req.Context.SenderBusinessRatio
		weightedSum += w
		weightTotal += w
		reasons = append(reasons, fmt.Sprintf("sender history ratio %.2f", req.Context.SenderBusinessRatio))
		patterns = append(patterns, "sender:repeat")
	}

	score := 0.0
	if weightTotal > 0 {
		score = clamp(weightedSum/weightTotal, -1, 1)
	}
	businessScore := (score + 1) / 2

	// No evidence at all means the verdict stays unknown.
	var verdict *bool
	if weightTotal > 0 {
		verdict = core.False()
		if businessScore > 0.5 {
			verdict = core.True()
		}
	}

	confidence := blendConfidence(businessScore, strongWeight, keywordWeight)
	strength := score
	if strength < 0 {
		strength = -strength
	}

	res := &Result{
		RequestID:          req.RequestID,
		IsBusinessIncome:   verdict,
		Confidence:         confidence,
		Reasoning:          fmt.Sprintf("rule score %.3f: %s", businessScore, strings.Join(reasons, "; ")),
		DetectedPatterns:   patterns,
		PatternStrength:    strength,
		Tier:               TierRule,
		AnonymizationLevel: "none",
		CostNGN:            TierCostNGN(TierRule),
	}
	assignTaxCategory(res)
	res.normalize()
	return res
}

// blendConfidence blends a base confidence keyed to how extreme the score is
// with the weight share of strong keyword matches: an unambiguous keyword
// pulls confidence toward 0.95 even when weaker evidence drags the score
// back toward neutral.
func blendConfidence(businessScore, strongWeight, keywordWeight float64) float64 {
	distance := businessScore - 0.5
	if distance < 0 {
		distance = -distance
	}
	base := 0.4
	switch {
	case distance >= 0.3:
		base = 0.8
	case distance >= 0.15:
		base = 0.6
	}

	strongFraction := 0.0
	if keywordWeight > 0 {
		strongFraction = strongWeight / keywordWeight
	}
	return clamp(base+(0.95-base)*strongFraction, 0, 0.95)
}

// assignTaxCategory derives the tax overlay from the verdict.
func assignTaxCategory(res *Result) {
	switch {
	case res.IsBusinessIncome == nil || res.Confidence < 0.5:
		res.TaxCategory = TaxUnknown
		res.VATApplicable = false
	case *res.IsBusinessIncome:
		res.TaxCategory = TaxStandardRate
		res.VATApplicable = true
	default:
		res.TaxCategory = TaxExempt
		res.VATApplicable = false
	}
}

func amountBandWeight(amount float64) float64 {
	switch {
	case amount >= 1_000_000:
		return 0.27
	case amount >= 100_000:
		return 0.24
	case amount >= 10_000:
		return 0.18
	case amount >= 2_000:
		return 0.12
	case amount >= 500:
		return 0.06
	}
	return 0
}

func timeWeight(ts time.Time) float64 {
	hour := ts.Hour()
	switch ts.Weekday() {
	case time.Saturday:
		if hour >= 9 && hour <= 16 {
			return 0.21
		}
	case time.Sunday:
		if hour >= 10 && hour <= 14 {
			return 0.1
		}
	default:
		if hour >= 8 && hour <= 18 {
			return 0.3
		}
	}
	if hour < 6 || hour >= 22 {
		return -0.2
	}
	return 0
}

func isDivisible(amount, step float64) bool {
	q := amount / step
	return q == float64(int64(q))
}
