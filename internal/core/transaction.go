package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType categorises the direction/nature of a financial movement.
type TransactionType int

const (
	TxDebit TransactionType = iota
	TxCredit
	TxTransfer
	TxPayment
	TxRefund
	TxFee
	TxInterest
	TxDividend
)

func (t TransactionType) String() string {
	switch t {
	case TxDebit:
		return "debit"
	case TxCredit:
		return "credit"
	case TxTransfer:
		return "transfer"
	case TxPayment:
		return "payment"
	case TxRefund:
		return "refund"
	case TxFee:
		return "fee"
	case TxInterest:
		return "interest"
	case TxDividend:
		return "dividend"
	default:
		return "unknown"
	}
}

// Transaction is the financial core record observed from banking, payment
// and forex sources. Classification fields are an overlay populated by the
// classification engine; IsBusinessIncome is tri-state (nil = unknown).
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Narration string          `json:"narration"`
	Timestamp time.Time       `json:"timestamp"`

	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	Counterparty  string `json:"counterparty,omitempty"`
	BankName      string `json:"bank_name,omitempty"`

	BalanceBefore *decimal.Decimal `json:"balance_before,omitempty"`
	BalanceAfter  *decimal.Decimal `json:"balance_after,omitempty"`

	// Classification overlay.
	IsBusinessIncome *bool   `json:"is_business_income,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	TaxCategory      string  `json:"tax_category,omitempty"`
	VATApplicable    bool    `json:"vat_applicable,omitempty"`
	Reasoning        string  `json:"reasoning,omitempty"`
	RequiresReview   bool    `json:"requires_review,omitempty"`
}

// BankTransaction adds the banking-channel fields reported by bank feeds.
type BankTransaction struct {
	Transaction

	Channel       string           `json:"channel,omitempty"` // ussd, pos, transfer, atm, branch
	SessionID     string           `json:"session_id,omitempty"`
	StampDuty     *decimal.Decimal `json:"stamp_duty,omitempty"`
	CommissionFee *decimal.Decimal `json:"commission_fee,omitempty"`
}

// PaymentTransaction adds processor fields (Paystack/Flutterwave style).
type PaymentTransaction struct {
	Transaction

	PaymentStatus string           `json:"payment_status,omitempty"` // pending, success, failed, reversed
	ProcessorRef  string           `json:"processor_ref,omitempty"`
	ProcessorFee  *decimal.Decimal `json:"processor_fee,omitempty"`
	SettledAmount *decimal.Decimal `json:"settled_amount,omitempty"`
}

// ForexTransaction adds FX fields including the regulatory form reference
// (Form A/Form M/PBA/BTA) the transaction was executed under.
type ForexTransaction struct {
	Transaction

	SourceCurrency string           `json:"source_currency"`
	TargetCurrency string           `json:"target_currency"`
	ExchangeRate   decimal.Decimal  `json:"exchange_rate"`
	RegulatoryForm string           `json:"regulatory_form,omitempty"`
	FXFee          *decimal.Decimal `json:"fx_fee,omitempty"`
}

// boolPtr helpers keep tri-state assignments readable.

// True returns a pointer to true.
func True() *bool { b := true; return &b }

// False returns a pointer to false.
func False() *bool { b := false; return &b }
