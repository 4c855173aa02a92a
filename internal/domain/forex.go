package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nairaflow/connect/internal/core"
)

// Regulatory forms forex transactions are executed under.
const (
	FormA   = "FORM_A"
	FormM   = "FORM_M"
	FormPTA = "PTA"
	FormBTA = "BTA"
)

// DefaultAnnualLimitsUSD carries the customary annual allowance ceilings per
// regulatory form, in USD. Callers may substitute their own table.
var DefaultAnnualLimitsUSD = map[string]decimal.Decimal{
	FormPTA: decimal.NewFromInt(16_000),
	FormBTA: decimal.NewFromInt(20_000),
}

// AnnualUsage sums forex volume per counterparty and regulatory form for one
// calendar year. Transactions carry no customer id, so the counterparty
// string is the aggregation key.
func AnnualUsage(txs []core.ForexTransaction, year int) map[string]map[string]decimal.Decimal {
	out := map[string]map[string]decimal.Decimal{}
	for _, tx := range txs {
		if tx.Timestamp.Year() != year || tx.Counterparty == "" {
			continue
		}
		form := strings.ToUpper(tx.RegulatoryForm)
		if form == "" {
			form = FormA
		}
		byForm, ok := out[tx.Counterparty]
		if !ok {
			byForm = map[string]decimal.Decimal{}
			out[tx.Counterparty] = byForm
		}
		byForm[form] = byForm[form].Add(tx.Amount)
	}
	return out
}

// RemainingAllowance reports how much of the form's annual limit a
// counterparty has left, given its usage for the year. Forms without a limit
// return a nil pointer.
func RemainingAllowance(usage map[string]map[string]decimal.Decimal, counterparty, form string, limits map[string]decimal.Decimal) *decimal.Decimal {
	if limits == nil {
		limits = DefaultAnnualLimitsUSD
	}
	limit, ok := limits[strings.ToUpper(form)]
	if !ok {
		return nil
	}
	used := decimal.Zero
	if byForm, ok := usage[counterparty]; ok {
		used = byForm[strings.ToUpper(form)]
	}
	remaining := limit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &remaining
}
