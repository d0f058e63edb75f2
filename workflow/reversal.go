package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"gorm.io/gorm"
)

// ReverseTransaction negates a posted transaction by posting a mirror-image
// transaction and cross-linking the two rows. Posted transactions are never
// deleted or edited.
//
// The reversal is dated reversalDate, so a transaction in a CLOSED period
// can still be undone through an open (or adjustment) period. Reversing an
// already reversed transaction returns the existing reversal.
func ReverseTransaction(ctx context.Context, transactionId int, reversalDate time.Time, reason string) (*models.Transaction, error) {
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

	var original models.Transaction
	if err := tx.Preload("Lines").
		Where("business_id = ? AND id = ?", businessId, transactionId).
		First(&original).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if original.ReversedByTransactionId != nil {
		existing, err := utils.FetchModelTx[models.Transaction](tx, businessId, *original.ReversedByTransactionId, "Lines")
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, &models.StoreCommitError{Op: "ReverseTransaction", Err: err}
		}
		return existing, nil
	}
	if original.IsReversal {
		tx.Rollback()
		return nil, models.NewValidationError("ALREADY_A_REVERSAL", "transaction %s is itself a reversal", original.TransactionNumber)
	}

	draft := models.DraftTransaction{
		BusinessId:      businessId,
		Type:            original.Type,
		TransactionDate: reversalDate,
		CurrencyCode:    original.CurrencyCode,
		ExchangeRate:    original.ExchangeRate,
		Description:     fmt.Sprintf("Reversal of %s: %s", original.TransactionNumber, reason),
		ReferenceNumber: original.TransactionNumber,
		IdempotencyKey:  fmt.Sprintf("reversal-of-%s", original.IdempotencyKey),
	}
	for _, line := range original.Lines {
		draft.Lines = append(draft.Lines, models.DraftLine{
			AccountId:    line.AccountId,
			Side:         line.Side.Opposite(),
			Amount:       line.Amount,
			Description:  line.Description,
			CostCentreId: line.CostCentreId,
		})
	}

	reversal, err := postDraft(tx, businessId, draft)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.Model(&models.Transaction{}).
		Where("id = ?", reversal.ID).
		Updates(map[string]interface{}{
			"is_reversal":             true,
			"reverses_transaction_id": original.ID,
			"reversal_reason":         reason,
		}).Error; err != nil {
		config.LogError(logger, "reversal.go", "ReverseTransaction", "link reversal", reversal.ID, err)
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.Transaction{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"reversed_by_transaction_id": reversal.ID,
			"reversed_at":                now,
		}).Error; err != nil {
		config.LogError(logger, "reversal.go", "ReverseTransaction", "link original", original.ID, err)
		tx.Rollback()
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(tx, businessId, models.EventTypeTransactionReversed, original.ID, "TXN", reversal, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &models.StoreCommitError{Op: "ReverseTransaction", Err: err}
	}
	reversal.IsReversal = true
	reversal.ReversesTransactionId = &original.ID
	reversal.ReversalReason = &reason
	return reversal, nil
}
