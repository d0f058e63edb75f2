package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BankTransaction is one line from an imported bank statement. Amount is
// signed from the bank's point of view: positive for money in, negative for
// money out.
type BankTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null;index:uniq_bank_line,unique,priority:1" json:"business_id"`
	StatementRef    string          `gorm:"size:255;not null;index:uniq_bank_line,unique,priority:2" json:"statement_ref"`
	LineNo          int             `gorm:"not null;index:uniq_bank_line,unique,priority:3" json:"line_no"`
	BankAccountId   int             `gorm:"index;not null" json:"bank_account_id"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CurrencyCode    string          `gorm:"size:8;not null" json:"currency_code"`
	Reference       string          `gorm:"size:255" json:"reference"`
	Description     string          `gorm:"size:255" json:"description"`
	MatchStatus     BankMatchStatus `gorm:"type:enum('UNMATCHED','MATCHED','PARTIALLY_MATCHED');default:'UNMATCHED';index;not null" json:"match_status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReconciliationMatch pairs one bank transaction with one or more ledger
// transactions whose amounts sum to the bank amount.
type ReconciliationMatch struct {
	ID                int                       `gorm:"primary_key" json:"id"`
	BusinessId        string                    `gorm:"size:64;index;not null" json:"business_id"`
	BatchId           string                    `gorm:"size:64;index;not null" json:"batch_id"`
	BankTransactionId int                       `gorm:"index;not null" json:"bank_transaction_id"`
	Score             decimal.Decimal           `gorm:"type:decimal(10,4);not null" json:"score"`
	MatchedAmount     decimal.Decimal           `gorm:"type:decimal(20,4);not null" json:"matched_amount"`
	Lines             []ReconciliationMatchLine `gorm:"foreignKey:ReconciliationMatchId" json:"lines"`
	CreatedAt         time.Time                 `gorm:"autoCreateTime" json:"created_at"`
}

type ReconciliationMatchLine struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	BusinessId            string          `gorm:"size:64;index;not null" json:"business_id"`
	ReconciliationMatchId int             `gorm:"index;not null" json:"reconciliation_match_id"`
	TransactionId         int             `gorm:"index;not null" json:"transaction_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (m *ReconciliationMatch) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("reconciliation matches cannot be updated")
}

func (m *ReconciliationMatch) BeforeDelete(tx *gorm.DB) error {
	return errors.New("reconciliation matches cannot be deleted")
}

type NewBankTransaction struct {
	LineNo          int             `json:"line_no" binding:"required"`
	TransactionDate time.Time       `json:"transaction_date" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	CurrencyCode    string          `json:"currency_code" binding:"required,currencycode"`
	Reference       string          `json:"reference"`
	Description     string          `json:"description"`
}

type NewBankStatementImport struct {
	StatementRef  string               `json:"statement_ref" binding:"required"`
	BankAccountId int                  `json:"bank_account_id" binding:"required"`
	Lines         []NewBankTransaction `json:"lines" binding:"required,min=1,dive"`
}

// ImportBankStatement inserts statement lines as UNMATCHED bank
// transactions. The (statement_ref, line_no) unique index makes a re-import
// of the same statement fail instead of duplicating lines.
func ImportBankStatement(ctx context.Context, input NewBankStatementImport) ([]BankTransaction, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	rows := make([]BankTransaction, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.Amount.IsZero() {
			return nil, NewValidationError("INVALID_LINE", "bank transaction amount cannot be zero")
		}
		rows = append(rows, BankTransaction{
			BusinessId:      businessId,
			StatementRef:    input.StatementRef,
			LineNo:          line.LineNo,
			BankAccountId:   input.BankAccountId,
			TransactionDate: line.TransactionDate,
			Amount:          line.Amount,
			CurrencyCode:    line.CurrencyCode,
			Reference:       line.Reference,
			Description:     line.Description,
			MatchStatus:     BankMatchStatusUnmatched,
		})
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func GetUnmatchedBankTransactions(tx *gorm.DB, businessId string, bankAccountId int) ([]BankTransaction, error) {
	var rows []BankTransaction
	err := tx.Where("business_id = ? AND bank_account_id = ? AND match_status = ?",
		businessId, bankAccountId, BankMatchStatusUnmatched).
		Order("transaction_date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// GetUnreconciledBankLedgerTransactions returns posted transactions that
// touch the given bank GL account and are not yet claimed by a match.
func GetUnreconciledBankLedgerTransactions(tx *gorm.DB, businessId string, bankGLAccountId int) ([]Transaction, error) {
	var rows []Transaction
	err := tx.Preload("Lines").
		Joins("JOIN ledger_lines ON ledger_lines.transaction_id = transactions.id").
		Where("transactions.business_id = ? AND transactions.reconciliation_match_id IS NULL AND ledger_lines.account_id = ?",
			businessId, bankGLAccountId).
		Group("transactions.id").
		Order("transactions.transaction_date ASC, transactions.id ASC").
		Find(&rows).Error
	return rows, err
}
