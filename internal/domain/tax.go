package domain

import (
	"github.com/shopspring/decimal"

	"github.com/nairaflow/connect/internal/core"
)

// Nigerian statutory rates.
var (
	// VATRate is the standard VAT rate, 7.5%.
	VATRate = decimal.NewFromFloat(0.075)
	// WHTRate is the withholding-tax estimate, 5%.
	WHTRate = decimal.NewFromFloat(0.05)
	// StampDutyThreshold is the amount above which stamp duty applies.
	StampDutyThreshold = decimal.NewFromInt(1_000)
	// StampDutyFlat is the flat stamp duty above the threshold.
	StampDutyFlat = decimal.NewFromInt(50)
	// COTRate is commission-on-turnover, 0.5%.
	COTRate = decimal.NewFromFloat(0.005)
	// COTCap caps commission-on-turnover per transaction.
	COTCap = decimal.NewFromInt(3_000)
)

// VAT computes the standard-rate VAT on an amount.
func VAT(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(VATRate).Round(2)
}

// WithholdingTax computes the withholding-tax estimate on an amount.
func WithholdingTax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(WHTRate).Round(2)
}

// StampDuty returns the flat duty for amounts above the threshold, zero
// otherwise.
func StampDuty(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(StampDutyThreshold) {
		return StampDutyFlat
	}
	return decimal.Zero
}

// CommissionOnTurnover computes COT with the statutory cap.
func CommissionOnTurnover(amount decimal.Decimal) decimal.Decimal {
	cot := amount.Mul(COTRate).Round(2)
	if cot.GreaterThan(COTCap) {
		return COTCap
	}
	return cot
}

// TaxBreakdown is the statutory charge view of one transaction.
type TaxBreakdown struct {
	Amount     decimal.Decimal `json:"amount"`
	VAT        decimal.Decimal `json:"vat"`
	WHT        decimal.Decimal `json:"wht"`
	StampDuty  decimal.Decimal `json:"stamp_duty"`
	COT        decimal.Decimal `json:"cot"`
	TotalTaxes decimal.Decimal `json:"total_taxes"`
	NetAmount  decimal.Decimal `json:"net_amount"`
}

// BreakdownFor computes the full statutory charge view for a classified
// transaction. VAT applies only to business income at the standard rate.
func BreakdownFor(tx *core.Transaction) TaxBreakdown {
	b := TaxBreakdown{Amount: tx.Amount}

	if tx.VATApplicable && tx.TaxCategory == "standard_rate" {
		b.VAT = VAT(tx.Amount)
		b.WHT = WithholdingTax(tx.Amount)
	}
	b.StampDuty = StampDuty(tx.Amount)
	b.COT = CommissionOnTurnover(tx.Amount)

	b.TotalTaxes = b.VAT.Add(b.WHT).Add(b.StampDuty).Add(b.COT)
	b.NetAmount = tx.Amount.Sub(b.TotalTaxes)
	return b
}
