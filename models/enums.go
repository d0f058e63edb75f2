package models

type AccountMainType string

const (
	AccountMainTypeAsset     AccountMainType = "Asset"
	AccountMainTypeLiability AccountMainType = "Liability"
	AccountMainTypeEquity    AccountMainType = "Equity"
	AccountMainTypeIncome    AccountMainType = "Income"
	AccountMainTypeExpense   AccountMainType = "Expense"
)

type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

type LedgerSide string

const (
	LedgerSideDebit  LedgerSide = "DEBIT"
	LedgerSideCredit LedgerSide = "CREDIT"
)

func (s LedgerSide) Valid() bool {
	return s == LedgerSideDebit || s == LedgerSideCredit
}

func (s LedgerSide) Opposite() LedgerSide {
	if s == LedgerSideDebit {
		return LedgerSideCredit
	}
	return LedgerSideDebit
}

type TransactionType string

const (
	TransactionTypeCustomerInvoice TransactionType = "CUSTOMER_INVOICE"
	TransactionTypeVendorBill      TransactionType = "VENDOR_BILL"
	TransactionTypePayment         TransactionType = "PAYMENT"
	TransactionTypeJournalEntry    TransactionType = "JOURNAL_ENTRY"
	TransactionTypeForexAdjustment TransactionType = "FOREX_ADJUSTMENT"
	TransactionTypeBankImport      TransactionType = "BANK_IMPORT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCustomerInvoice, TransactionTypeVendorBill,
		TransactionTypePayment, TransactionTypeJournalEntry,
		TransactionTypeForexAdjustment, TransactionTypeBankImport:
		return true
	}
	return false
}

// NumberPrefix is used when generating sequential transaction numbers.
func (t TransactionType) NumberPrefix() string {
	switch t {
	case TransactionTypeCustomerInvoice:
		return "CI-"
	case TransactionTypeVendorBill:
		return "VB-"
	case TransactionTypePayment:
		return "PM-"
	case TransactionTypeJournalEntry:
		return "JE-"
	case TransactionTypeForexAdjustment:
		return "FX-"
	case TransactionTypeBankImport:
		return "BI-"
	}
	return "TX-"
}

type TransactionStatus string

const (
	TransactionStatusDraft  TransactionStatus = "DRAFT"
	TransactionStatusPosted TransactionStatus = "POSTED"
)

type FiscalPeriodStatus string

const (
	FiscalPeriodOpen   FiscalPeriodStatus = "OPEN"
	FiscalPeriodClosed FiscalPeriodStatus = "CLOSED"
	FiscalPeriodLocked FiscalPeriodStatus = "LOCKED"
)

type MatchStatus string

const (
	MatchStatusPending          MatchStatus = "PENDING"
	MatchStatusAutoApproved     MatchStatus = "AUTO_APPROVED"
	MatchStatusAwaitingApproval MatchStatus = "AWAITING_APPROVAL"
	MatchStatusApproved         MatchStatus = "APPROVED"
	MatchStatusRejected         MatchStatus = "REJECTED"
)

// Terminal match states are immutable.
func (s MatchStatus) Terminal() bool {
	switch s {
	case MatchStatusAutoApproved, MatchStatusApproved, MatchStatusRejected:
		return true
	}
	return false
}

type MatchSeverity string

const (
	MatchSeverityNone     MatchSeverity = "NONE"
	MatchSeverityLow      MatchSeverity = "LOW"
	MatchSeverityMedium   MatchSeverity = "MEDIUM"
	MatchSeverityHigh     MatchSeverity = "HIGH"
	MatchSeverityCritical MatchSeverity = "CRITICAL"
)

// Rank orders severities so the aggregate is the max over discrepancies.
func (s MatchSeverity) Rank() int {
	switch s {
	case MatchSeverityNone:
		return 0
	case MatchSeverityLow:
		return 1
	case MatchSeverityMedium:
		return 2
	case MatchSeverityHigh:
		return 3
	case MatchSeverityCritical:
		return 4
	}
	return 0
}

func MaxSeverity(a, b MatchSeverity) MatchSeverity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type DiscrepancyType string

const (
	DiscrepancyTypeQuantity         DiscrepancyType = "QUANTITY"
	DiscrepancyTypePrice            DiscrepancyType = "PRICE"
	DiscrepancyTypeAmount           DiscrepancyType = "AMOUNT"
	DiscrepancyTypeMissingInInvoice DiscrepancyType = "MISSING_IN_INVOICE"
	DiscrepancyTypeExtraInInvoice   DiscrepancyType = "EXTRA_IN_INVOICE"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusOpen         PurchaseOrderStatus = "OPEN"
	PurchaseOrderStatusCancelled    PurchaseOrderStatus = "CANCELLED"
	PurchaseOrderStatusFullyMatched PurchaseOrderStatus = "FULLY_MATCHED"
)

type BankMatchStatus string

const (
	BankMatchStatusUnmatched        BankMatchStatus = "UNMATCHED"
	BankMatchStatusMatched          BankMatchStatus = "MATCHED"
	BankMatchStatusPartiallyMatched BankMatchStatus = "PARTIALLY_MATCHED"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

type EventPublishStatus string

const (
	EventPublishStatusPending    EventPublishStatus = "PENDING"
	EventPublishStatusProcessing EventPublishStatus = "PROCESSING"
	EventPublishStatusSent       EventPublishStatus = "SENT"
	EventPublishStatusFailed     EventPublishStatus = "FAILED"
	EventPublishStatusDead       EventPublishStatus = "DEAD"
)

// Event types published through the outbox.
const (
	EventTypeTransactionPosted   = "transaction.posted"
	EventTypeTransactionReversed = "transaction.reversed"
	EventTypePeriodClosed        = "period.closed"
	EventTypePeriodLocked        = "period.locked"
	EventTypeMatchAwaiting       = "three_way_match.awaiting_approval"
	EventTypeMatchAutoApproved   = "three_way_match.auto_approved"
	EventTypeMatchApproved       = "three_way_match.approved"
	EventTypeMatchRejected       = "three_way_match.rejected"
	EventTypeBankBatchReconciled = "bank_reconciliation.batch_committed"
)
