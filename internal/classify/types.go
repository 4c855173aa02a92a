// Package classify decides whether a transaction is business income for a
// Nigerian SME, trading cost against accuracy across a rule evaluator and
// external LLM tiers, with privacy-preserving anonymization and a two-level
// result cache.
package classify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the classification backend, cheapest first.
type Tier int

const (
	TierRule Tier = iota
	TierLite
	TierPremium
	TierAdvanced
)

func (t Tier) String() string {
	switch t {
	case TierRule:
		return "rule"
	case TierLite:
		return "lite"
	case TierPremium:
		return "premium"
	default:
		return "advanced"
	}
}

// TierCostNGN is the estimated per-request cost of each tier in naira.
func TierCostNGN(t Tier) float64 {
	switch t {
	case TierRule:
		return 0
	case TierLite:
		return 0.8
	case TierPremium:
		return 3.2
	default:
		return 48.0
	}
}

// Strategy is the optimizer policy mapping complexity to a tier.
type Strategy int

const (
	StrategyAggressive Strategy = iota
	StrategyBalanced
	StrategyAccuracyFirst
	StrategyEnterprise
)

// SubscriptionTier caps the most expensive tier a user may reach.
type SubscriptionTier int

const (
	SubStarter SubscriptionTier = iota
	SubProfessional
	SubEnterprise
	SubScale
)

func (s SubscriptionTier) String() string {
	switch s {
	case SubStarter:
		return "starter"
	case SubProfessional:
		return "professional"
	case SubEnterprise:
		return "enterprise"
	default:
		return "scale"
	}
}

// Ceiling is the most expensive tier the subscription allows.
func (s SubscriptionTier) Ceiling() Tier {
	switch s {
	case SubStarter:
		return TierRule
	case SubProfessional, SubEnterprise:
		return TierPremium
	default:
		return TierAdvanced
	}
}

// PrivacyLevel controls how aggressively narration is anonymized before it
// leaves the process.
type PrivacyLevel int

const (
	PrivacyStandard PrivacyLevel = iota
	PrivacyHigh
	PrivacyMaximum
)

func (p PrivacyLevel) String() string {
	switch p {
	case PrivacyHigh:
		return "high"
	case PrivacyMaximum:
		return "maximum"
	default:
		return "standard"
	}
}

// UserContext carries the business profile used for tier selection and cache
// keying.
type UserContext struct {
	Industry            string           `json:"industry"`
	BusinessSize        string           `json:"business_size"`
	Subscription        SubscriptionTier `json:"subscription"`
	HistoryCount        int              `json:"history_count"`
	SenderHistoryCount  int              `json:"sender_history_count"`
	SenderBusinessRatio float64          `json:"sender_business_ratio"`
}

// Request is one classification request. A zero Timestamp means the
// transaction time is unknown.
type Request struct {
	RequestID string          `json:"request_id"`
	UserID    string          `json:"user_id"`
	OrgID     string          `json:"org_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Narration string          `json:"narration"`
	Timestamp time.Time       `json:"timestamp"`
	Sender    string          `json:"sender,omitempty"`
	BankName  string          `json:"bank_name,omitempty"`
	Privacy   PrivacyLevel    `json:"privacy"`
	Context   UserContext     `json:"context"`
}

// Tax categories are closed.
const (
	TaxStandardRate = "standard_rate"
	TaxZeroRate     = "zero_rate"
	TaxExempt       = "exempt"
	TaxUnknown      = "unknown"
)

// Result is the classification verdict. IsBusinessIncome is tri-state
// (nil = unknown), matching the transaction overlay.
type Result struct {
	RequestID        string   `json:"request_id"`
	IsBusinessIncome *bool    `json:"is_business_income"`
	Confidence       float64  `json:"confidence"`
	TaxCategory      string   `json:"tax_category"`
	VATApplicable    bool     `json:"vat_applicable"`
	Reasoning        string   `json:"reasoning"`
	RequiresReview   bool     `json:"requires_review"`
	RiskFactors      []string `json:"risk_factors,omitempty"`

	CustomerName       string   `json:"customer_name,omitempty"`
	InvoiceDescription string   `json:"invoice_description,omitempty"`
	DetectedPatterns   []string `json:"detected_patterns,omitempty"`
	PatternStrength    float64  `json:"pattern_match_strength"`

	Tier               Tier    `json:"tier"`
	ModelVersion       string  `json:"model_version,omitempty"`
	AnonymizationLevel string  `json:"anonymization_level"`
	CacheHit           bool    `json:"cache_hit"`
	FallbackUsed       bool    `json:"fallback_used"`
	CostNGN            float64 `json:"cost_ngn"`
	TokensUsed         int     `json:"tokens_used"`
	ProcessingMs       float64 `json:"processing_ms"`
}

// normalize enforces the result invariants: confidence stays in [0,1], the
// tax category is one of the closed set, and VAT applies only to business
// income at the standard rate.
func (r *Result) normalize() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if r.PatternStrength < 0 {
		r.PatternStrength = 0
	}
	if r.PatternStrength > 1 {
		r.PatternStrength = 1
	}
	switch r.TaxCategory {
	case TaxStandardRate, TaxZeroRate, TaxExempt, TaxUnknown:
	default:
		r.TaxCategory = TaxUnknown
	}
	if r.TaxCategory != TaxStandardRate {
		r.VATApplicable = false
	}
	if r.IsBusinessIncome == nil || !*r.IsBusinessIncome {
		r.VATApplicable = false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
