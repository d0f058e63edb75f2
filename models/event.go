package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"gorm.io/gorm"
)

// EventRecord is the transactional outbox row. Workflows write one inside
// the same DB transaction as the state change; the dispatcher publishes to
// Pub/Sub after commit and stamps the publish metadata.
type EventRecord struct {
	ID            int       `gorm:"primary_key;index:idx_event_dispatch,priority:3" json:"id"`
	BusinessId    string    `gorm:"size:64;not null;index" json:"business_id"`
	EventType     string    `gorm:"size:100;not null;index" json:"event_type"`
	ReferenceId   int       `gorm:"not null" json:"reference_id"`
	ReferenceType string    `gorm:"size:50;not null" json:"reference_type"`
	OccurredAt    time.Time `gorm:"index;not null" json:"occurred_at"`
	Payload       []byte    `gorm:"type:blob" json:"payload"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    EventPublishStatus `gorm:"size:20;index;not null;default:'PENDING';index:idx_event_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time         `gorm:"index" json:"published_at"`
	PubSubMessageId  *string            `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time         `gorm:"index;index:idx_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time         `gorm:"index" json:"locked_at"`
	LockedBy         *string            `gorm:"size:100" json:"locked_by"`
	LastPublishError *string            `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string             `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToEventMessage(record EventRecord) config.EventMessage {
	return config.EventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		EventType:     record.EventType,
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// RecordEvent writes an outbox row inside the caller's transaction. The
// payload is marshalled here so workflows can pass their domain structs.
func RecordEvent(tx *gorm.DB, businessId, eventType string, referenceId int, referenceType string, payload interface{}, correlationId string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := EventRecord{
		BusinessId:    businessId,
		EventType:     eventType,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
		PublishStatus: EventPublishStatusPending,
		NextAttemptAt: utils.TimePtr(time.Now().UTC()),
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}
