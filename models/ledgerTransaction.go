package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transaction is one posted double-entry ledger transaction. Rows are only
// ever written by the posting engine, already balanced and already POSTED;
// amendment happens through reversal transactions, never in place.
type Transaction struct {
	ID                int               `gorm:"primary_key" json:"id"`
	BusinessId        string            `gorm:"size:64;index;not null;index:idx_txn_biz_date,priority:1;index:uniq_txn_idem,unique,priority:1" json:"business_id"`
	TransactionNumber string            `gorm:"size:255;not null" json:"transaction_number"`
	SequenceNo        int64             `gorm:"not null" json:"sequence_no"`
	Type              TransactionType   `gorm:"type:enum('CUSTOMER_INVOICE','VENDOR_BILL','PAYMENT','JOURNAL_ENTRY','FOREX_ADJUSTMENT','BANK_IMPORT');index;not null" json:"type"`
	TransactionDate   time.Time         `gorm:"index;not null;index:idx_txn_biz_date,priority:2" json:"transaction_date"`
	FiscalPeriodId    int               `gorm:"index;not null" json:"fiscal_period_id"`
	CurrencyCode      string            `gorm:"size:8;not null" json:"currency_code"`
	ExchangeRate      decimal.Decimal   `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	Status            TransactionStatus `gorm:"type:enum('DRAFT','POSTED');default:'POSTED';index;not null" json:"status"`
	Description       string            `gorm:"type:text" json:"description"`
	ReferenceNumber   string            `gorm:"size:255" json:"reference_number"`
	// IdempotencyKey is caller-generated; unique per business. Replays with
	// the same key return this row instead of posting again.
	IdempotencyKey string `gorm:"size:255;not null;index:uniq_txn_idem,unique,priority:2" json:"idempotency_key"`
	// ThreeWayMatchId is a traceability field for VENDOR_BILL transactions
	// posted from a three-way match; not a storage-layer constraint.
	ThreeWayMatchId *int `gorm:"index" json:"three_way_match_id"`
	// Reversal linkage. Posted transactions are never deleted; a reversal
	// transaction negates them and both rows stay.
	IsReversal              bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId   *int       `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int       `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt              *time.Time `json:"reversed_at"`
	// ReconciliationMatchId links a transaction claimed by a bank
	// reconciliation match. Nil means not yet reconciled.
	ReconciliationMatchId *int         `gorm:"index" json:"reconciliation_match_id"`
	Lines                 []LedgerLine `gorm:"foreignKey:TransactionId" json:"lines"`
	CreatedAt             time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerLine is one debit or credit entry within a transaction. Exactly one
// side, amount always positive. Append-only.
type LedgerLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id"`
	AccountId     int             `gorm:"index;not null" json:"account_id"`
	Side          LedgerSide      `gorm:"type:enum('DEBIT','CREDIT');not null" json:"side"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description   string          `gorm:"size:255" json:"description"`
	CostCentreId  *int            `gorm:"index" json:"cost_centre_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Ledger immutability guardrails, enforced at the ORM layer:
// - ledger_lines are append-only.
// - transactions must never be deleted; limited updates are allowed only for
//   reversal and reconciliation linkage fields.

func (l *LedgerLine) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_lines cannot be updated")
}

func (l *LedgerLine) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_lines cannot be deleted")
}

func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: transactions cannot be deleted")
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	allowed := map[string]bool{
		"IsReversal":              true,
		"ReversesTransactionId":   true,
		"ReversedByTransactionId": true,
		"ReversalReason":          true,
		"ReversedAt":              true,
		"ReconciliationMatchId":   true,
		"UpdatedAt":               true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only linkage fields may be updated on transactions")
		}
	}
	return nil
}

// DraftLine is the caller-facing shape of a ledger line before posting.
type DraftLine struct {
	AccountId    int             `json:"account_id" binding:"required"`
	Side         LedgerSide      `json:"side" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Description  string          `json:"description"`
	CostCentreId *int            `json:"cost_centre_id"`
}

// DraftTransaction is a candidate transaction built by an upstream workflow
// (manual journal, three-way match, forex calculator, bank import). It only
// becomes real by going through the posting engine.
type DraftTransaction struct {
	BusinessId      string          `json:"-"`
	Type            TransactionType `json:"type" binding:"required"`
	TransactionDate time.Time       `json:"transaction_date" binding:"required"`
	CurrencyCode    string          `json:"currency_code" binding:"required,currencycode"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number"`
	IdempotencyKey  string          `json:"idempotency_key" binding:"required"`
	ThreeWayMatchId *int            `json:"three_way_match_id"`
	Lines           []DraftLine     `json:"lines" binding:"required"`
}

func (d DraftTransaction) AccountIds() []int {
	ids := make([]int, 0, len(d.Lines))
	for _, line := range d.Lines {
		ids = append(ids, line.AccountId)
	}
	return utils.UniqueSlice(ids)
}

// TransactionSequence hands out per-business, per-type sequence numbers
// under a row lock, so transaction numbers stay gapless-per-run and unique.
type TransactionSequence struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index:uniq_seq,unique,priority:1" json:"business_id"`
	Type       TransactionType `gorm:"size:32;not null;index:uniq_seq,unique,priority:2" json:"type"`
	NextNo     int64           `gorm:"not null;default:1" json:"next_no"`
}

func NextTransactionNumber(tx *gorm.DB, businessId string, txType TransactionType) (string, int64, error) {
	var seq TransactionSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND type = ?", businessId, txType).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = TransactionSequence{BusinessId: businessId, Type: txType, NextNo: 1}
		if err := tx.Create(&seq).Error; err != nil {
			return "", 0, err
		}
	} else if err != nil {
		return "", 0, err
	}
	no := seq.NextNo
	if err := tx.Model(&TransactionSequence{}).
		Where("id = ?", seq.ID).
		Update("next_no", no+1).Error; err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%s%d", txType.NumberPrefix(), no), no, nil
}

// FindTransactionByIdempotencyKey returns the previously posted transaction
// for a replayed key, lines included, or nil when the key is unused.
func FindTransactionByIdempotencyKey(tx *gorm.DB, businessId string, key string) (*Transaction, error) {
	var txn Transaction
	err := tx.Preload("Lines").
		Where("business_id = ? AND idempotency_key = ?", businessId, key).
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
