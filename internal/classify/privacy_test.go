package classify

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighPrivacyRedaction(t *testing.T) {
	req := &Request{
		Amount:    decimal.NewFromInt(45_000),
		Narration: "Transfer from Adebayo Johnson +2348012345678 account 1234567890 for Alaba Market supplies",
		Timestamp: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		Privacy:   PrivacyHigh,
	}

	anon := NewAnonymizer().Anonymize(req)

	assert.Contains(t, anon.Narration, "[PHONE]")
	assert.Contains(t, anon.Narration, "[ACCOUNT]")
	assert.Contains(t, anon.Narration, "[NAME]")
	assert.NotContains(t, anon.Narration, "234")
	assert.False(t, regexp.MustCompile(`\d{10,}`).MatchString(anon.Narration),
		"no 10+ consecutive digits survive")
}

func TestStandardPrivacyKeepsNames(t *testing.T) {
	req := &Request{
		Amount:    decimal.NewFromInt(45_000),
		Narration: "Payment from Chika Obi 08031234567 chika@example.com",
		Privacy:   PrivacyStandard,
	}

	anon := NewAnonymizer().Anonymize(req)
	assert.Contains(t, anon.Narration, "Chika Obi")
	assert.Contains(t, anon.Narration, "[PHONE]")
	assert.Contains(t, anon.Narration, "[EMAIL]")
	assert.False(t, phoneRe.MatchString(anon.Narration))
}

func TestMaximumPrivacyWhitelistsBusinessTerms(t *testing.T) {
	req := &Request{
		Amount:    decimal.NewFromInt(45_000),
		Narration: "invoice settlement ref 9081726354 from Chika for goods",
		Privacy:   PrivacyMaximum,
	}

	anon := NewAnonymizer().Anonymize(req)
	assert.Contains(t, anon.Narration, "invoice")
	assert.Contains(t, anon.Narration, "goods")
	assert.Contains(t, anon.Narration, "[TERM]")
	assert.NotContains(t, anon.Narration, "Chika")
	assert.NotContains(t, anon.Narration, "9081726354")
}

func TestAmountRoundingByLevel(t *testing.T) {
	amount := decimal.NewFromInt(47_300)
	assert.Equal(t, 47_000.0, roundAmount(amount, PrivacyStandard))
	assert.Equal(t, 45_000.0, roundAmount(amount, PrivacyHigh))
	assert.Equal(t, 50_000.0, roundAmount(amount, PrivacyMaximum))
}

func TestPartOfDayAndBankTier(t *testing.T) {
	assert.Equal(t, "unknown", partOfDay(time.Time{}))
	assert.Equal(t, "morning", partOfDay(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "night", partOfDay(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)))

	assert.Equal(t, "tier1", bankTier("Zenith Bank"))
	assert.Equal(t, "digital", bankTier("OPay"))
	assert.Equal(t, "tier3", bankTier("Polaris"))
	assert.Equal(t, "", bankTier(""))
}

func TestValidatorFlagsResidualPII(t *testing.T) {
	a := NewAnonymizer()

	clean := a.Validate(&Anonymized{Narration: "[PHONE] [ACCOUNT] payment for goods", Level: PrivacyHigh})
	assert.True(t, clean.IsValid)
	assert.Equal(t, 1.0, clean.Score)

	dirty := a.Validate(&Anonymized{Narration: "call 08031234567 or mail a@b.com", Level: PrivacyStandard})
	require.False(t, dirty.IsValid)
	assert.InDelta(t, 0.6, dirty.Score, 0.001, "two findings cost 0.4")
	assert.Len(t, dirty.Findings, 2)

	err := a.ErrResidualPII(dirty)
	assert.Contains(t, err.Error(), "phone number")
}

func TestNDPRReport(t *testing.T) {
	report := NewAnonymizer().ComplianceReport(PrivacyMaximum)
	assert.Equal(t, "7 years", report.RetentionPeriod)
	assert.Equal(t, "not retained", report.ThirdPartyRetention)
	assert.Contains(t, report.CategoriesExcluded, "phone numbers")
	assert.Contains(t, strings.Join(report.Techniques, ","), "vocabulary whitelisting")
}
