package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// RequeueDeadEvents puts DEAD outbox events back to PENDING with a fresh
// attempt budget. Operator action, used after the underlying publish
// failure (topic config, credentials) has been fixed.
func RequeueDeadEvents(ctx context.Context) (int64, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}

	now := time.Now().UTC()
	result := db.WithContext(ctx).Model(&models.EventRecord{}).
		Where("business_id = ? AND publish_status = ?", businessId, models.EventPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     models.EventPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if result.Error != nil {
		config.LogError(logger, "outboxAdmin.go", "RequeueDeadEvents", "requeue", businessId, result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.WithFields(logrus.Fields{
			"field":       "OutboxAdmin",
			"business_id": businessId,
			"requeued":    result.RowsAffected,
		}).Info("requeued DEAD outbox events")
	}
	return result.RowsAffected, nil
}
