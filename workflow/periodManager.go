package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// accountPeriodBalance is the net movement of one account within a period,
// signed debit-positive.
type accountPeriodBalance struct {
	AccountId int
	Net       decimal.Decimal
}

func periodIncomeExpenseBalances(tx *gorm.DB, businessId string, periodID int) ([]accountPeriodBalance, error) {
	rows := []accountPeriodBalance{}
	err := tx.Raw(`
		SELECT ledger_lines.account_id AS account_id,
		       COALESCE(SUM(CASE WHEN ledger_lines.side = 'DEBIT' THEN ledger_lines.amount ELSE -ledger_lines.amount END), 0) AS net
		FROM ledger_lines
		JOIN transactions ON transactions.id = ledger_lines.transaction_id
		JOIN accounts ON accounts.id = ledger_lines.account_id
		WHERE transactions.business_id = ?
		  AND transactions.fiscal_period_id = ?
		  AND accounts.main_type IN ('Income', 'Expense')
		GROUP BY ledger_lines.account_id
		HAVING net <> 0`, businessId, periodID).Scan(&rows).Error
	return rows, err
}

// ClosePeriod transitions an OPEN period to CLOSED. Income and expense
// balances accumulated in the period are swept into retained earnings by a
// closing journal entry posted inside the same transaction, so either both
// happen or neither does. Closing an already CLOSED period is a no-op.
func ClosePeriod(ctx context.Context, periodID int) (*models.FiscalPeriod, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseBusinessPostingLock(tx, businessId)

	period, err := models.LockPeriodRowForUpdate(tx, periodID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if period.BusinessId != businessId {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if period.Status == models.FiscalPeriodClosed || period.Status == models.FiscalPeriodLocked {
		tx.Rollback()
		return period, nil
	}
	if !models.CanTransitionPeriodStatus(period.Status, models.FiscalPeriodClosed) {
		tx.Rollback()
		return nil, &models.PeriodLockedError{PeriodName: period.Name, Status: period.Status}
	}

	var closingTransactionId *int
	balances, err := periodIncomeExpenseBalances(tx, businessId, period.ID)
	if err != nil {
		config.LogError(logger, "periodManager.go", "ClosePeriod", "periodIncomeExpenseBalances", period.ID, err)
		tx.Rollback()
		return nil, err
	}
	if len(balances) > 0 {
		retained, err := models.GetSystemAccount(tx, businessId, models.SystemAccountRetainedEarnings)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		draft := models.DraftTransaction{
			BusinessId:      businessId,
			Type:            models.TransactionTypeJournalEntry,
			TransactionDate: period.EndDate,
			CurrencyCode:    config.BaseCurrencyCode(),
			Description:     fmt.Sprintf("Closing entry for period %s", period.Name),
			IdempotencyKey:  fmt.Sprintf("period-close-%d", period.ID),
		}
		net := decimal.Zero
		for _, bal := range balances {
			// Zero out each P&L account with the opposite of its net
			// movement.
			side := models.LedgerSideCredit
			if bal.Net.Sign() < 0 {
				side = models.LedgerSideDebit
			}
			draft.Lines = append(draft.Lines, models.DraftLine{
				AccountId:   bal.AccountId,
				Side:        side,
				Amount:      bal.Net.Abs(),
				Description: "Period close sweep",
			})
			net = net.Add(bal.Net)
		}
		// Counter-entry to retained earnings carries the net result.
		if !net.IsZero() {
			side := models.LedgerSideDebit
			if net.Sign() < 0 {
				side = models.LedgerSideCredit
			}
			draft.Lines = append(draft.Lines, models.DraftLine{
				AccountId:   retained.ID,
				Side:        side,
				Amount:      net.Abs(),
				Description: "Net result to retained earnings",
			})
		}

		closing, err := postDraft(tx, businessId, draft)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		closingTransactionId = &closing.ID
	}

	period, err = models.TransitionPeriodStatus(tx, period.ID, models.FiscalPeriodClosed, closingTransactionId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(tx, businessId, models.EventTypePeriodClosed, period.ID, "PERIOD", period, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &models.StoreCommitError{Op: "ClosePeriod", Err: err}
	}
	return period, nil
}

// LockPeriod transitions a CLOSED period to LOCKED. Locking is terminal;
// there is no unlock. Locking an already LOCKED period is a no-op.
func LockPeriod(ctx context.Context, periodID int) (*models.FiscalPeriod, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	period, err := models.LockPeriodRowForUpdate(tx, periodID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if period.BusinessId != businessId {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if period.Status == models.FiscalPeriodLocked {
		tx.Rollback()
		return period, nil
	}
	if !models.CanTransitionPeriodStatus(period.Status, models.FiscalPeriodLocked) {
		tx.Rollback()
		return nil, models.NewValidationError("PERIOD_NOT_CLOSED", "period %s must be CLOSED before it can be locked", period.Name)
	}

	period, err = models.TransitionPeriodStatus(tx, period.ID, models.FiscalPeriodLocked, nil)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(tx, businessId, models.EventTypePeriodLocked, period.ID, "PERIOD", period, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &models.StoreCommitError{Op: "LockPeriod", Err: err}
	}
	return period, nil
}
