package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// IdempotencyResult tells the caller whether the operation already ran and,
// if it produced a transaction, which one.
type IdempotencyResult struct {
	AlreadyDone   bool
	TransactionId *int
}

// BeginIdempotency inserts STARTED for (business, handler, key). When the
// key has already SUCCEEDED, it returns the recorded result so the caller
// can replay the original response instead of re-running.
func BeginIdempotency(tx *gorm.DB, businessId, handlerName, requestKey string) (IdempotencyResult, error) {
	key := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		RequestKey:  requestKey,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return IdempotencyResult{}, nil
	} else if !isDuplicateKeyErr(err) {
		return IdempotencyResult{}, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("business_id = ? AND handler_name = ? AND request_key = ?", businessId, handlerName, requestKey).
		First(&existing).Error; err != nil {
		return IdempotencyResult{}, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return IdempotencyResult{AlreadyDone: true, TransactionId: existing.TransactionId}, nil
	case models.IdempotencyStatusStarted:
		// Another caller may still be processing. If the row is fresh, make
		// them retry later; if it is stale, take the row over.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return IdempotencyResult{}, ErrIdempotencyInProgress
		}
		fallthrough
	default:
		return IdempotencyResult{}, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
}

func MarkIdempotencySucceeded(tx *gorm.DB, businessId, handlerName, requestKey string, transactionId *int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND request_key = ?", businessId, handlerName, requestKey).
		Updates(map[string]interface{}{
			"status":         models.IdempotencyStatusSucceeded,
			"transaction_id": transactionId,
			"last_error":     nil,
		}).Error
}

// MarkIdempotencyFailed records the failure outside the rolled-back posting
// transaction. The STARTED row usually vanished with the rollback, so this
// upserts: retries then find FAILED and take the key over immediately.
func MarkIdempotencyFailed(db *gorm.DB, businessId, handlerName, requestKey string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	row := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		RequestKey:  requestKey,
		Status:      models.IdempotencyStatusFailed,
		LastError:   &msg,
	}
	return db.Clauses(clause.OnConflict{
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": msg,
		}),
	}).Create(&row).Error
}
