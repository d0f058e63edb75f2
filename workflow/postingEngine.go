package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const postingHandlerName = "PostTransaction"

// PostTransaction is the single write path into the ledger. Every workflow
// (manual journal, three-way match billing, forex adjustment, period close)
// funnels its draft through here, so the balance and immutability rules are
// enforced in exactly one place.
//
// The whole operation runs in one DB transaction under a per-business
// advisory lock: idempotency check, period gate, validation, numbering,
// insert and the outbox event all commit or roll back together.
func PostTransaction(ctx context.Context, draft models.DraftTransaction) (*models.Transaction, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId := draft.BusinessId
	if businessId == "" {
		fromCtx, ok := utils.GetBusinessIdFromContext(ctx)
		if !ok || fromCtx == "" {
			return nil, errors.New("business id is required")
		}
		businessId = fromCtx
	}
	draft.BusinessId = businessId
	if draft.ExchangeRate.IsZero() {
		draft.ExchangeRate = decimal.NewFromInt(1)
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
		config.LogError(logger, "postingEngine.go", "PostTransaction", "AcquireBusinessPostingLock", businessId, err)
		tx.Rollback()
		return nil, err
	}
	defer ReleaseBusinessPostingLock(tx, businessId)

	posted, err := postDraft(tx, businessId, draft)
	if err != nil {
		tx.Rollback()
		recordPostingFailure(db.WithContext(ctx), businessId, draft.IdempotencyKey, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "postingEngine.go", "PostTransaction", "Commit", draft.IdempotencyKey, err)
		return nil, &models.StoreCommitError{Op: postingHandlerName, Err: err}
	}
	return posted, nil
}

// recordPostingFailure writes the FAILED idempotency record on a fresh
// connection after the posting transaction rolled back. Replay collisions are
// skipped so an attempt that lost the race never clobbers the winner's row.
func recordPostingFailure(db *gorm.DB, businessId, requestKey string, cause error) {
	if requestKey == "" || errors.Is(cause, ErrIdempotencyInProgress) {
		return
	}
	var dup *models.DuplicateSubmissionError
	if errors.As(cause, &dup) {
		return
	}
	if err := MarkIdempotencyFailed(db, businessId, postingHandlerName, requestKey, cause); err != nil {
		config.LogError(config.GetLogger(), "postingEngine.go", "recordPostingFailure", "MarkIdempotencyFailed", requestKey, err)
	}
}

// postDraft does the work inside the caller's transaction. Split out so the
// period close workflow can post its closing entry and flip the period
// status in one atomic transaction.
func postDraft(tx *gorm.DB, businessId string, draft models.DraftTransaction) (*models.Transaction, error) {
	logger := config.GetLogger()

	idem, err := BeginIdempotency(tx, businessId, postingHandlerName, draft.IdempotencyKey)
	if err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "BeginIdempotency", draft.IdempotencyKey, err)
		return nil, err
	}
	if idem.AlreadyDone {
		// Replay: hand back the originally posted transaction untouched.
		original, err := models.FindTransactionByIdempotencyKey(tx, businessId, draft.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if original == nil {
			return nil, &models.DuplicateSubmissionError{
				Reference: draft.IdempotencyKey,
				Detail:    "idempotency key succeeded but transaction is missing",
			}
		}
		return original, nil
	}

	period, err := models.PeriodForDate(tx, businessId, draft.TransactionDate)
	if err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "PeriodForDate", draft.TransactionDate, err)
		return nil, err
	}
	// Re-read under a row lock so a concurrent close cannot slip between
	// the gate check and the insert.
	period, err = models.LockPeriodRowForUpdate(tx, period.ID)
	if err != nil {
		return nil, err
	}
	if err := models.AssertPeriodOpen(period); err != nil {
		return nil, err
	}

	accounts, err := models.LoadAccountIndex(tx, businessId, draft.AccountIds())
	if err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "LoadAccountIndex", draft.AccountIds(), err)
		return nil, err
	}
	if err := ValidateDraft(draft, accounts); err != nil {
		return nil, err
	}

	number, seqNo, err := models.NextTransactionNumber(tx, businessId, draft.Type)
	if err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "NextTransactionNumber", draft.Type, err)
		return nil, err
	}

	txn := models.Transaction{
		BusinessId:        businessId,
		TransactionNumber: number,
		SequenceNo:        seqNo,
		Type:              draft.Type,
		TransactionDate:   draft.TransactionDate,
		FiscalPeriodId:    period.ID,
		CurrencyCode:      draft.CurrencyCode,
		ExchangeRate:      draft.ExchangeRate,
		Status:            models.TransactionStatusPosted,
		Description:       draft.Description,
		ReferenceNumber:   draft.ReferenceNumber,
		IdempotencyKey:    draft.IdempotencyKey,
		ThreeWayMatchId:   draft.ThreeWayMatchId,
	}
	for _, line := range draft.Lines {
		txn.Lines = append(txn.Lines, models.LedgerLine{
			BusinessId:   businessId,
			AccountId:    line.AccountId,
			Side:         line.Side,
			Amount:       line.Amount,
			Description:  line.Description,
			CostCentreId: line.CostCentreId,
		})
	}
	if err := tx.Create(&txn).Error; err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "Create transaction", number, err)
		return nil, err
	}

	if err := MarkIdempotencySucceeded(tx, businessId, postingHandlerName, draft.IdempotencyKey, &txn.ID); err != nil {
		return nil, err
	}

	correlationId := ""
	if tx.Statement != nil && tx.Statement.Context != nil {
		correlationId, _ = utils.GetCorrelationIdFromContext(tx.Statement.Context)
	}
	if err := models.RecordEvent(tx, businessId, models.EventTypeTransactionPosted, txn.ID, "TXN", txn, correlationId); err != nil {
		config.LogError(logger, "postingEngine.go", "postDraft", "RecordEvent", txn.ID, err)
		return nil, err
	}
	return &txn, nil
}
