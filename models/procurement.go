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

// Procurement documents are snapshots taken at submission time. Matching
// always runs against these rows, never against live master data, so a
// match decision can be replayed and audited later.

type PurchaseOrder struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	BusinessId  string              `gorm:"size:64;index;not null;index:uniq_po_number,unique,priority:1" json:"business_id"`
	OrderNumber string              `gorm:"size:255;not null;index:uniq_po_number,unique,priority:2" json:"order_number"`
	VendorName  string              `gorm:"size:255;not null" json:"vendor_name"`
	OrderDate   time.Time           `gorm:"index;not null" json:"order_date"`
	Status      PurchaseOrderStatus `gorm:"type:enum('OPEN','CANCELLED','FULLY_MATCHED');default:'OPEN';index;not null" json:"status"`
	Lines       []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderId" json:"lines"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null" json:"business_id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemRef         string          `gorm:"size:255;not null" json:"item_ref"`
	Description     string          `gorm:"size:255" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

func (l PurchaseOrderLine) LineAmount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

type GoodsReceipt struct {
	ID              int                `gorm:"primary_key" json:"id"`
	BusinessId      string             `gorm:"size:64;index;not null;index:uniq_gr_number,unique,priority:1" json:"business_id"`
	ReceiptNumber   string             `gorm:"size:255;not null;index:uniq_gr_number,unique,priority:2" json:"receipt_number"`
	PurchaseOrderId int                `gorm:"index;not null" json:"purchase_order_id"`
	ReceiptDate     time.Time          `gorm:"index;not null" json:"receipt_date"`
	Lines           []GoodsReceiptLine `gorm:"foreignKey:GoodsReceiptId" json:"lines"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type GoodsReceiptLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"size:64;index;not null" json:"business_id"`
	GoodsReceiptId   int             `gorm:"index;not null" json:"goods_receipt_id"`
	ItemRef          string          `gorm:"size:255;not null" json:"item_ref"`
	ReceivedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"received_quantity"`
}

type VendorInvoice struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	BusinessId      string              `gorm:"size:64;index;not null;index:uniq_vi_number,unique,priority:1" json:"business_id"`
	InvoiceNumber   string              `gorm:"size:255;not null;index:uniq_vi_number,unique,priority:2" json:"invoice_number"`
	VendorName      string              `gorm:"size:255;not null" json:"vendor_name"`
	PurchaseOrderId int                 `gorm:"index;not null" json:"purchase_order_id"`
	InvoiceDate     time.Time           `gorm:"index;not null" json:"invoice_date"`
	CurrencyCode    string              `gorm:"size:8;not null" json:"currency_code"`
	Lines           []VendorInvoiceLine `gorm:"foreignKey:VendorInvoiceId" json:"lines"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type VendorInvoiceLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null" json:"business_id"`
	VendorInvoiceId int             `gorm:"index;not null" json:"vendor_invoice_id"`
	ItemRef         string          `gorm:"size:255;not null" json:"item_ref"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

func (l VendorInvoiceLine) LineAmount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

func (v VendorInvoice) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range v.Lines {
		total = total.Add(line.LineAmount())
	}
	return total
}

type NewPurchaseOrderLine struct {
	ItemRef     string          `json:"item_ref" binding:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

type NewPurchaseOrder struct {
	OrderNumber string                 `json:"order_number" binding:"required"`
	VendorName  string                 `json:"vendor_name" binding:"required"`
	OrderDate   time.Time              `json:"order_date" binding:"required"`
	Lines       []NewPurchaseOrderLine `json:"lines" binding:"required,min=1,dive"`
}

func CreatePurchaseOrder(ctx context.Context, input NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	for _, line := range input.Lines {
		if line.Quantity.Sign() <= 0 || line.UnitPrice.Sign() < 0 {
			return nil, NewValidationError("INVALID_LINE", "order line quantity must be positive and unit price non-negative")
		}
	}

	order := PurchaseOrder{
		BusinessId:  businessId,
		OrderNumber: input.OrderNumber,
		VendorName:  input.VendorName,
		OrderDate:   input.OrderDate,
		Status:      PurchaseOrderStatusOpen,
	}
	for _, line := range input.Lines {
		order.Lines = append(order.Lines, PurchaseOrderLine{
			BusinessId:  businessId,
			ItemRef:     line.ItemRef,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	if err := db.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func CancelPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if order.Status != PurchaseOrderStatusOpen {
		return nil, NewValidationError("PO_NOT_OPEN", "only OPEN purchase orders can be cancelled")
	}
	if err := db.Model(&PurchaseOrder{}).
		Where("id = ? AND business_id = ?", id, businessId).
		Update("status", PurchaseOrderStatusCancelled).Error; err != nil {
		return nil, err
	}
	order.Status = PurchaseOrderStatusCancelled
	return order, nil
}

type NewGoodsReceiptLine struct {
	ItemRef          string          `json:"item_ref" binding:"required"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity" binding:"required"`
}

type NewGoodsReceipt struct {
	ReceiptNumber   string                `json:"receipt_number" binding:"required"`
	PurchaseOrderId int                   `json:"purchase_order_id" binding:"required"`
	ReceiptDate     time.Time             `json:"receipt_date" binding:"required"`
	Lines           []NewGoodsReceiptLine `json:"lines" binding:"required,min=1,dive"`
}

func CreateGoodsReceipt(ctx context.Context, input NewGoodsReceipt) (*GoodsReceipt, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if _, err := utils.FetchModel[PurchaseOrder](ctx, businessId, input.PurchaseOrderId); err != nil {
		return nil, err
	}
	for _, line := range input.Lines {
		if line.ReceivedQuantity.Sign() <= 0 {
			return nil, NewValidationError("INVALID_LINE", "received quantity must be positive")
		}
	}

	receipt := GoodsReceipt{
		BusinessId:      businessId,
		ReceiptNumber:   input.ReceiptNumber,
		PurchaseOrderId: input.PurchaseOrderId,
		ReceiptDate:     input.ReceiptDate,
	}
	for _, line := range input.Lines {
		receipt.Lines = append(receipt.Lines, GoodsReceiptLine{
			BusinessId:       businessId,
			ItemRef:          line.ItemRef,
			ReceivedQuantity: line.ReceivedQuantity,
		})
	}
	if err := db.Create(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

type NewVendorInvoiceLine struct {
	ItemRef   string          `json:"item_ref" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

type NewVendorInvoice struct {
	InvoiceNumber   string                 `json:"invoice_number" binding:"required"`
	VendorName      string                 `json:"vendor_name" binding:"required"`
	PurchaseOrderId int                    `json:"purchase_order_id" binding:"required"`
	InvoiceDate     time.Time              `json:"invoice_date" binding:"required"`
	CurrencyCode    string                 `json:"currency_code" binding:"required,currencycode"`
	Lines           []NewVendorInvoiceLine `json:"lines" binding:"required,min=1,dive"`
}

func CreateVendorInvoice(ctx context.Context, input NewVendorInvoice) (*VendorInvoice, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if _, err := utils.FetchModel[PurchaseOrder](ctx, businessId, input.PurchaseOrderId); err != nil {
		return nil, err
	}
	for _, line := range input.Lines {
		if line.Quantity.Sign() <= 0 || line.UnitPrice.Sign() < 0 {
			return nil, NewValidationError("INVALID_LINE", "invoice line quantity must be positive and unit price non-negative")
		}
	}

	invoice := VendorInvoice{
		BusinessId:      businessId,
		InvoiceNumber:   input.InvoiceNumber,
		VendorName:      input.VendorName,
		PurchaseOrderId: input.PurchaseOrderId,
		InvoiceDate:     input.InvoiceDate,
		CurrencyCode:    input.CurrencyCode,
	}
	for _, line := range input.Lines {
		invoice.Lines = append(invoice.Lines, VendorInvoiceLine{
			BusinessId: businessId,
			ItemRef:    line.ItemRef,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	if err := db.Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetVendorInvoiceByNumber is used for duplicate-invoice detection during
// matching. Returns nil when the number is unused.
func GetVendorInvoiceByNumber(tx *gorm.DB, businessId, invoiceNumber string) (*VendorInvoice, error) {
	var invoice VendorInvoice
	err := tx.Where("business_id = ? AND invoice_number = ?", businessId, invoiceNumber).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
