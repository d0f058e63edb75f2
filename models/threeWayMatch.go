package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ThreeWayMatch is the persisted outcome of matching a vendor invoice
// against its purchase order and goods receipt. Once the match reaches a
// terminal status the row and its discrepancies are frozen; a new match run
// produces a new row.
type ThreeWayMatch struct {
	ID              int                `gorm:"primary_key" json:"id"`
	BusinessId      string             `gorm:"size:64;index;not null" json:"business_id"`
	PurchaseOrderId int                `gorm:"index;not null" json:"purchase_order_id"`
	GoodsReceiptId  int                `gorm:"index;not null" json:"goods_receipt_id"`
	VendorInvoiceId int                `gorm:"index;not null" json:"vendor_invoice_id"`
	Status          MatchStatus        `gorm:"type:enum('PENDING','AUTO_APPROVED','AWAITING_APPROVAL','APPROVED','REJECTED');index;not null" json:"status"`
	OverallSeverity MatchSeverity      `gorm:"size:20;not null" json:"overall_severity"`
	InvoiceAmount   decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"invoice_amount"`
	TransactionId   *int               `gorm:"index" json:"transaction_id"`
	DecidedBy       *string            `gorm:"size:64" json:"decided_by"`
	DecidedAt       *time.Time         `json:"decided_at"`
	DecisionNote    *string            `gorm:"type:text" json:"decision_note"`
	Discrepancies   []MatchDiscrepancy `gorm:"foreignKey:ThreeWayMatchId" json:"discrepancies"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchDiscrepancy records one variance found during matching, with the
// compared values snapshotted for audit.
type MatchDiscrepancy struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null" json:"business_id"`
	ThreeWayMatchId int             `gorm:"index;not null" json:"three_way_match_id"`
	ItemRef         string          `gorm:"size:255;not null" json:"item_ref"`
	Type            DiscrepancyType `gorm:"type:enum('QUANTITY','PRICE','AMOUNT','MISSING_IN_INVOICE','EXTRA_IN_INVOICE');not null" json:"type"`
	Severity        MatchSeverity   `gorm:"size:20;not null" json:"severity"`
	ExpectedValue   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"expected_value"`
	ActualValue     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"actual_value"`
	VariancePct     decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"variance_pct"`
	Detail          string          `gorm:"size:255" json:"detail"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (m *ThreeWayMatch) BeforeUpdate(tx *gorm.DB) error {
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil || m.ID == 0 {
		return nil
	}
	var prior ThreeWayMatch
	if err := tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
		Where("id = ?", m.ID).First(&prior).Error; err != nil {
		return err
	}
	if prior.Status.Terminal() {
		return errors.New("three-way match is final and cannot be modified")
	}
	return nil
}

func (d *MatchDiscrepancy) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("match discrepancies cannot be updated")
}

func (d *MatchDiscrepancy) BeforeDelete(tx *gorm.DB) error {
	return errors.New("match discrepancies cannot be deleted")
}

func GetThreeWayMatch(tx *gorm.DB, businessId string, id int) (*ThreeWayMatch, error) {
	var match ThreeWayMatch
	err := tx.Preload("Discrepancies").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ActiveMatchExists reports whether the invoice already has a match that is
// not REJECTED. Rejected matches may be retried after the documents change.
func ActiveMatchExists(tx *gorm.DB, businessId string, vendorInvoiceId int) (bool, error) {
	var count int64
	err := tx.Model(&ThreeWayMatch{}).
		Where("business_id = ? AND vendor_invoice_id = ? AND status <> ?",
			businessId, vendorInvoiceId, MatchStatusRejected).
		Count(&count).Error
	return count > 0, err
}
