package models

import "time"

// IdempotencyKey provides durable, DB-backed idempotency for posting
// operations and worker handlers. Unique constraint:
// (business_id, handler_name, request_key).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	RequestKey  string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	// TransactionId is set on success when the operation produced a ledger
	// transaction, so a replay can return the original result.
	TransactionId *int       `gorm:"index" json:"transaction_id"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
