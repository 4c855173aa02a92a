package classify

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nairaflow/connect/internal/core"
)

// Redaction patterns for Nigerian PII. Phone numbers are redacted before
// account numbers so the +234 prefix never survives as a digit run.
var (
	phoneRe      = regexp.MustCompile(`(\+234|0)[7-9][0-1]\d{8}`)
	longDigitRe  = regexp.MustCompile(`\b\d{11}\b`)
	accountRe    = regexp.MustCompile(`\b\d{10,12}\b`)
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nameRe       = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+){1,2}\b`)
	addressRe    = regexp.MustCompile(`\b\d*\s?[A-Za-z]+ (?:Street|St|Road|Rd|Avenue|Ave|Close|Cl)\b`)
	identifierRe = regexp.MustCompile(`\d{6,}`)
	cityRe       = regexp.MustCompile(`(?i)\b(Lagos|Abuja|Port Harcourt|Kano|Ibadan|Aba|Onitsha|Enugu|Kaduna|Benin City)\b`)
)

// Bank tier buckets replace bank names under anonymization.
var bankTiers = map[string]string{
	"access":     "tier1",
	"zenith":     "tier1",
	"first bank": "tier1",
	"uba":        "tier1",
	"gtbank":     "tier1",
	"guaranty":   "tier1",
	"fidelity":   "tier2",
	"fcmb":       "tier2",
	"union":      "tier2",
	"stanbic":    "tier2",
	"sterling":   "tier2",
	"kuda":       "digital",
	"opay":       "digital",
	"moniepoint": "digital",
	"palmpay":    "digital",
}

// Anonymized is the privacy-preserving view of a request that may leave the
// process. Detected lists the PII pattern classes the pipeline redacted.
type Anonymized struct {
	Narration      string       `json:"narration"`
	AmountCategory string       `json:"amount_category"`
	RoundedAmount  float64      `json:"rounded_amount"`
	PartOfDay      string       `json:"part_of_day"`
	DayCategory    string       `json:"day_category"`
	BankTier       string       `json:"bank_tier,omitempty"`
	Level          PrivacyLevel `json:"level"`
	Detected       []string     `json:"detected_patterns,omitempty"`
}

// Anonymizer applies the redaction pipeline for a privacy level.
type Anonymizer struct{}

// NewAnonymizer builds the redactor.
func NewAnonymizer() *Anonymizer { return &Anonymizer{} }

// Anonymize redacts PII from the request per its privacy level. Standard
// removes phones, accounts and emails; High additionally removes names and
// addresses; Maximum whitelists business terms and masks everything else.
func (a *Anonymizer) Anonymize(req *Request) *Anonymized {
	narration := req.Narration
	var detected []string

	if phoneRe.MatchString(narration) || longDigitRe.MatchString(narration) {
		detected = append(detected, "phone")
	}
	narration = phoneRe.ReplaceAllString(narration, "[PHONE]")
	narration = longDigitRe.ReplaceAllString(narration, "[PHONE]")
	if accountRe.MatchString(narration) {
		detected = append(detected, "account")
	}
	narration = accountRe.ReplaceAllString(narration, "[ACCOUNT]")
	if emailRe.MatchString(narration) {
		detected = append(detected, "email")
	}
	narration = emailRe.ReplaceAllString(narration, "[EMAIL]")

	if req.Privacy >= PrivacyHigh {
		if nameRe.MatchString(narration) {
			detected = append(detected, "name")
		}
		narration = nameRe.ReplaceAllString(narration, "[NAME]")
		if addressRe.MatchString(narration) {
			detected = append(detected, "address")
		}
		narration = addressRe.ReplaceAllString(narration, "[ADDRESS]")
		if cityRe.MatchString(narration) {
			detected = append(detected, "city")
		}
		narration = cityRe.ReplaceAllString(narration, "[CITY]")
	}

	if req.Privacy >= PrivacyMaximum {
		if identifierRe.MatchString(narration) {
			detected = append(detected, "identifier")
		}
		narration = identifierRe.ReplaceAllString(narration, "[IDENTIFIER]")
		narration = maskNonWhitelisted(narration)
	}

	return &Anonymized{
		Narration:      narration,
		AmountCategory: amountCategory(req.Amount),
		RoundedAmount:  roundAmount(req.Amount, req.Privacy),
		PartOfDay:      partOfDay(req.Timestamp),
		DayCategory:    dayCategory(req.Timestamp),
		BankTier:       bankTier(req.BankName),
		Level:          req.Privacy,
		Detected:       detected,
	}
}

// maskNonWhitelisted replaces every word outside the business vocabulary and
// the redaction tokens with [TERM].
func maskNonWhitelisted(narration string) string {
	whitelist := map[string]bool{}
	for _, list := range [][]string{strongBusinessKeywords, moderateBusinessKeywords} {
		for _, phrase := range list {
			for _, w := range strings.Fields(phrase) {
				whitelist[w] = true
			}
		}
	}

	words := strings.Fields(narration)
	for i, w := range words {
		if strings.HasPrefix(w, "[") && strings.HasSuffix(w, "]") {
			continue
		}
		if whitelist[strings.ToLower(strings.Trim(w, ".,;:"))] {
			continue
		}
		words[i] = "[TERM]"
	}
	return strings.Join(words, " ")
}

func roundAmount(amount decimal.Decimal, level PrivacyLevel) float64 {
	step := 1_000.0
	switch level {
	case PrivacyHigh:
		step = 5_000
	case PrivacyMaximum:
		step = 10_000
	}
	return math.Round(amount.InexactFloat64()/step) * step
}

func partOfDay(ts time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	switch h := ts.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 21:
		return "evening"
	default:
		return "night"
	}
}

func bankTier(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	for fragment, tier := range bankTiers {
		if strings.Contains(lower, fragment) {
			return tier
		}
	}
	return "tier3"
}

// ============================================================================
// VALIDATION + NDPR REPORT
// ============================================================================

// ValidationReport is the residual-PII scan verdict for an anonymized
// payload.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Score    float64  `json:"score"`
	Findings []string `json:"findings,omitempty"`
}

// Validate scans anonymized narration for residual PII. Each finding costs
// 0.2 from a base score of 1.0.
func (a *Anonymizer) Validate(anon *Anonymized) *ValidationReport {
	var findings []string
	residual := anon.Narration
	if phoneRe.MatchString(residual) || longDigitRe.MatchString(residual) {
		findings = append(findings, "phone number")
		residual = phoneRe.ReplaceAllString(residual, "")
		residual = longDigitRe.ReplaceAllString(residual, "")
	}
	if accountRe.MatchString(residual) {
		findings = append(findings, "account number")
	}
	if emailRe.MatchString(anon.Narration) {
		findings = append(findings, "email address")
	}
	if anon.Level >= PrivacyHigh && nameRe.MatchString(anon.Narration) {
		findings = append(findings, "personal name")
	}

	score := 1.0 - 0.2*float64(len(findings))
	if score < 0 {
		score = 0
	}
	return &ValidationReport{IsValid: len(findings) == 0, Score: score, Findings: findings}
}

// ErrResidualPII converts a failed validation into an error.
func (a *Anonymizer) ErrResidualPII(report *ValidationReport) error {
	return core.NewError(core.KindPrivacy, "classify.privacy",
		fmt.Sprintf("residual PII after anonymization: %s", strings.Join(report.Findings, ", ")))
}

// NDPRReport documents the processing for Nigeria Data Protection Regulation
// compliance.
type NDPRReport struct {
	CategoriesProcessed []string `json:"categories_processed"`
	CategoriesExcluded  []string `json:"categories_excluded"`
	RetentionPeriod     string   `json:"retention_period"`
	Techniques          []string `json:"techniques"`
	ThirdPartyRetention string   `json:"third_party_retention"`
}

// ComplianceReport describes what the anonymization pipeline processes and
// withholds.
func (a *Anonymizer) ComplianceReport(level PrivacyLevel) *NDPRReport {
	techniques := []string{"pattern redaction", "amount rounding", "time generalization", "bank tier bucketing"}
	if level >= PrivacyMaximum {
		techniques = append(techniques, "vocabulary whitelisting")
	}
	return &NDPRReport{
		CategoriesProcessed: []string{"transaction narration", "amount category", "time of day", "bank tier"},
		CategoriesExcluded:  []string{"phone numbers", "account numbers", "email addresses", "personal names", "addresses"},
		RetentionPeriod:     "7 years",
		Techniques:          techniques,
		ThirdPartyRetention: "not retained",
	}
}
