package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// ClassifyVariance maps a variance percentage to a severity under the given
// policy. Invoices at or above the high-value threshold are escalated one
// rank, so the same variance hurts more on a large invoice.
func ClassifyVariance(variancePct, invoiceTotal decimal.Decimal, cfg models.MatchToleranceConfig) models.MatchSeverity {
	pct := variancePct.Abs()
	var severity models.MatchSeverity
	switch {
	case pct.LessThanOrEqual(cfg.AutoApprovePct):
		severity = models.MatchSeverityNone
	case pct.LessThanOrEqual(cfg.LowMaxPct):
		severity = models.MatchSeverityLow
	case pct.LessThanOrEqual(cfg.MediumMaxPct):
		severity = models.MatchSeverityMedium
	default:
		severity = models.MatchSeverityHigh
	}
	if severity != models.MatchSeverityNone && invoiceTotal.GreaterThanOrEqual(cfg.HighValueThreshold) {
		severity = escalate(severity)
	}
	return severity
}

func escalate(s models.MatchSeverity) models.MatchSeverity {
	switch s {
	case models.MatchSeverityLow:
		return models.MatchSeverityMedium
	case models.MatchSeverityMedium:
		return models.MatchSeverityHigh
	default:
		return models.MatchSeverityCritical
	}
}

func variancePct(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		if actual.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return actual.Sub(expected).Div(expected).Mul(hundred)
}

// CompareDocuments pairs invoice lines against the purchase order and goods
// receipt by item reference and returns every discrepancy found. Pure: all
// three documents are snapshots, so a match run is reproducible.
func CompareDocuments(po models.PurchaseOrder, receipt models.GoodsReceipt, invoice models.VendorInvoice, cfg models.MatchToleranceConfig) []models.MatchDiscrepancy {
	poByItem := map[string]models.PurchaseOrderLine{}
	for _, line := range po.Lines {
		poByItem[line.ItemRef] = line
	}
	receivedByItem := map[string]decimal.Decimal{}
	for _, line := range receipt.Lines {
		receivedByItem[line.ItemRef] = receivedByItem[line.ItemRef].Add(line.ReceivedQuantity)
	}

	invoiceTotal := invoice.TotalAmount()
	discrepancies := []models.MatchDiscrepancy{}
	invoicedItems := map[string]bool{}

	for _, line := range invoice.Lines {
		invoicedItems[line.ItemRef] = true

		poLine, onOrder := poByItem[line.ItemRef]
		received, wasReceived := receivedByItem[line.ItemRef]
		if !onOrder && !wasReceived {
			discrepancies = append(discrepancies, models.MatchDiscrepancy{
				ItemRef:       line.ItemRef,
				Type:          models.DiscrepancyTypeExtraInInvoice,
				Severity:      models.MatchSeverityCritical,
				ExpectedValue: decimal.Zero,
				ActualValue:   line.Quantity,
				VariancePct:   hundred,
				Detail:        "invoiced item is on neither the purchase order nor the goods receipt",
			})
			continue
		}

		if wasReceived {
			qtyPct := variancePct(received, line.Quantity)
			if severity := ClassifyVariance(qtyPct, invoiceTotal, cfg); severity != models.MatchSeverityNone {
				discrepancies = append(discrepancies, models.MatchDiscrepancy{
					ItemRef:       line.ItemRef,
					Type:          models.DiscrepancyTypeQuantity,
					Severity:      severity,
					ExpectedValue: received,
					ActualValue:   line.Quantity,
					VariancePct:   qtyPct,
					Detail:        "invoiced quantity differs from received quantity",
				})
			}
		}

		if onOrder {
			pricePct := variancePct(poLine.UnitPrice, line.UnitPrice)
			if severity := ClassifyVariance(pricePct, invoiceTotal, cfg); severity != models.MatchSeverityNone {
				discrepancies = append(discrepancies, models.MatchDiscrepancy{
					ItemRef:       line.ItemRef,
					Type:          models.DiscrepancyTypePrice,
					Severity:      severity,
					ExpectedValue: poLine.UnitPrice,
					ActualValue:   line.UnitPrice,
					VariancePct:   pricePct,
					Detail:        "invoiced unit price differs from ordered unit price",
				})
			}

			// Amount compounds quantity and price, so a small drift on each
			// can still breach tolerance in combination.
			if wasReceived {
				expectedAmount := received.Mul(poLine.UnitPrice)
				amountPct := variancePct(expectedAmount, line.LineAmount())
				if severity := ClassifyVariance(amountPct, invoiceTotal, cfg); severity != models.MatchSeverityNone {
					discrepancies = append(discrepancies, models.MatchDiscrepancy{
						ItemRef:       line.ItemRef,
						Type:          models.DiscrepancyTypeAmount,
						Severity:      severity,
						ExpectedValue: expectedAmount,
						ActualValue:   line.LineAmount(),
						VariancePct:   amountPct,
						Detail:        "invoiced line amount differs from received quantity at ordered price",
					})
				}
			}
		}
	}

	for _, line := range receipt.Lines {
		if !invoicedItems[line.ItemRef] {
			discrepancies = append(discrepancies, models.MatchDiscrepancy{
				ItemRef:       line.ItemRef,
				Type:          models.DiscrepancyTypeMissingInInvoice,
				Severity:      models.MatchSeverityCritical,
				ExpectedValue: line.ReceivedQuantity,
				ActualValue:   decimal.Zero,
				VariancePct:   hundred.Neg(),
				Detail:        "received item is missing from the invoice",
			})
		}
	}
	return discrepancies
}

// OverallSeverity is the worst severity across all discrepancies.
func OverallSeverity(discrepancies []models.MatchDiscrepancy) models.MatchSeverity {
	overall := models.MatchSeverityNone
	for _, d := range discrepancies {
		overall = models.MaxSeverity(overall, d.Severity)
	}
	return overall
}

// DecideMatchStatus maps the overall severity to the match outcome. Clean
// matches auto-approve; any discrepancy, critical included, waits for a
// human. REJECTED is only ever a human decision or a structural guard,
// never a variance verdict.
func DecideMatchStatus(overall models.MatchSeverity) models.MatchStatus {
	if overall == models.MatchSeverityNone {
		return models.MatchStatusAutoApproved
	}
	return models.MatchStatusAwaitingApproval
}

type NewThreeWayMatch struct {
	PurchaseOrderId int `json:"purchase_order_id" binding:"required"`
	GoodsReceiptId  int `json:"goods_receipt_id" binding:"required"`
	VendorInvoiceId int `json:"vendor_invoice_id" binding:"required"`
}

// RunThreeWayMatch executes the match for one invoice against its purchase
// order and goods receipt. An AUTO_APPROVED outcome posts the vendor bill
// in the same transaction as the match row.
func RunThreeWayMatch(ctx context.Context, input NewThreeWayMatch) (*models.ThreeWayMatch, error) {
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

	po, err := utils.FetchModelTx[models.PurchaseOrder](tx, businessId, input.PurchaseOrderId, "Lines")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice, err := utils.FetchModelTx[models.VendorInvoice](tx, businessId, input.VendorInvoiceId, "Lines")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	receipt, err := utils.FetchModelTx[models.GoodsReceipt](tx, businessId, input.GoodsReceiptId, "Lines")
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &models.MatchRejectedError{Reason: "no goods receipt exists for the invoice"}
		}
		return nil, err
	}
	if receipt.PurchaseOrderId != po.ID || invoice.PurchaseOrderId != po.ID {
		tx.Rollback()
		return nil, &models.MatchRejectedError{Reason: "goods receipt and invoice must reference the same purchase order"}
	}

	switch po.Status {
	case models.PurchaseOrderStatusCancelled:
		tx.Rollback()
		return nil, &models.MatchRejectedError{Reason: fmt.Sprintf("purchase order %s is cancelled", po.OrderNumber)}
	case models.PurchaseOrderStatusFullyMatched:
		tx.Rollback()
		return nil, &models.MatchRejectedError{Reason: fmt.Sprintf("purchase order %s is already fully matched", po.OrderNumber)}
	}

	// Duplicate submission guards: same invoice number on another invoice,
	// or an active match already covering this invoice.
	var dupCount int64
	if err := tx.Model(&models.VendorInvoice{}).
		Where("business_id = ? AND invoice_number = ? AND id <> ?", businessId, invoice.InvoiceNumber, invoice.ID).
		Count(&dupCount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if dupCount > 0 {
		tx.Rollback()
		return nil, &models.DuplicateSubmissionError{
			Reference: invoice.InvoiceNumber,
			Detail:    "another invoice with the same number already exists",
		}
	}
	active, err := models.ActiveMatchExists(tx, businessId, invoice.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if active {
		tx.Rollback()
		return nil, &models.DuplicateSubmissionError{
			Reference: invoice.InvoiceNumber,
			Detail:    "invoice already has an active three-way match",
		}
	}

	cfg, err := models.GetMatchToleranceConfig(tx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	discrepancies := CompareDocuments(*po, *receipt, *invoice, cfg)
	overall := OverallSeverity(discrepancies)
	status := DecideMatchStatus(overall)

	// Created as PENDING and finalized below, so the terminal-state guard
	// on updates never has to be bypassed.
	match := models.ThreeWayMatch{
		BusinessId:      businessId,
		PurchaseOrderId: po.ID,
		GoodsReceiptId:  receipt.ID,
		VendorInvoiceId: invoice.ID,
		Status:          models.MatchStatusPending,
		OverallSeverity: overall,
		InvoiceAmount:   invoice.TotalAmount(),
	}
	for i := range discrepancies {
		discrepancies[i].BusinessId = businessId
	}
	match.Discrepancies = discrepancies
	if err := tx.Create(&match).Error; err != nil {
		config.LogError(logger, "threeWayMatch.go", "RunThreeWayMatch", "Create match", invoice.InvoiceNumber, err)
		tx.Rollback()
		return nil, err
	}

	eventType := models.EventTypeMatchAwaiting
	if status == models.MatchStatusAutoApproved {
		eventType = models.EventTypeMatchAutoApproved
		if err := postMatchedBill(tx, businessId, &match, invoice); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Model(&match).Update("status", status).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	match.Status = status

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(tx, businessId, eventType, match.ID, "3WM", match, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &models.StoreCommitError{Op: "RunThreeWayMatch", Err: err}
	}
	return &match, nil
}

// postMatchedBill posts the vendor bill for an approved match (debit
// expense, credit accounts payable) and marks the purchase order fully
// matched. Runs inside the caller's transaction.
func postMatchedBill(tx *gorm.DB, businessId string, match *models.ThreeWayMatch, invoice *models.VendorInvoice) error {
	expense, err := models.GetSystemAccount(tx, businessId, models.SystemAccountExpense)
	if err != nil {
		return err
	}
	payable, err := models.GetSystemAccount(tx, businessId, models.SystemAccountAccountsPayable)
	if err != nil {
		return err
	}

	total := invoice.TotalAmount()
	draft := models.DraftTransaction{
		BusinessId:      businessId,
		Type:            models.TransactionTypeVendorBill,
		TransactionDate: invoice.InvoiceDate,
		CurrencyCode:    invoice.CurrencyCode,
		Description:     fmt.Sprintf("Vendor bill %s (%s)", invoice.InvoiceNumber, invoice.VendorName),
		ReferenceNumber: invoice.InvoiceNumber,
		IdempotencyKey:  fmt.Sprintf("three-way-match-%d", match.ID),
		ThreeWayMatchId: &match.ID,
		Lines: []models.DraftLine{
			{AccountId: expense.ID, Side: models.LedgerSideDebit, Amount: total, Description: "Matched purchase expense"},
			{AccountId: payable.ID, Side: models.LedgerSideCredit, Amount: total, Description: "Accounts payable"},
		},
	}
	billed, err := postDraft(tx, businessId, draft)
	if err != nil {
		return err
	}

	if err := tx.Model(match).Update("transaction_id", billed.ID).Error; err != nil {
		return err
	}
	match.TransactionId = &billed.ID

	return tx.Model(&models.PurchaseOrder{}).
		Where("id = ? AND business_id = ?", match.PurchaseOrderId, businessId).
		Update("status", models.PurchaseOrderStatusFullyMatched).Error
}

// ApproveThreeWayMatch resolves an AWAITING_APPROVAL match in favour of the
// invoice: the vendor bill is posted and the match becomes final.
func ApproveThreeWayMatch(ctx context.Context, matchId int, note string) (*models.ThreeWayMatch, error) {
	return decideThreeWayMatch(ctx, matchId, note, true)
}

// RejectThreeWayMatch resolves an AWAITING_APPROVAL match against the
// invoice. No ledger entry is posted; the documents stay as they are.
func RejectThreeWayMatch(ctx context.Context, matchId int, note string) (*models.ThreeWayMatch, error) {
	return decideThreeWayMatch(ctx, matchId, note, false)
}

func decideThreeWayMatch(ctx context.Context, matchId int, note string, approve bool) (*models.ThreeWayMatch, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

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

	match, err := models.GetThreeWayMatch(tx, businessId, matchId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if match.Status != models.MatchStatusAwaitingApproval {
		tx.Rollback()
		return nil, models.NewValidationError("MATCH_NOT_PENDING",
			"match %d is %s and cannot be decided", match.ID, match.Status)
	}

	status := models.MatchStatusRejected
	eventType := models.EventTypeMatchRejected
	if approve {
		status = models.MatchStatusApproved
		eventType = models.EventTypeMatchApproved
		invoice, err := utils.FetchModelTx[models.VendorInvoice](tx, businessId, match.VendorInvoiceId, "Lines")
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := postMatchedBill(tx, businessId, match, invoice); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	decidedBy := fmt.Sprintf("user:%d", userId)
	if err := tx.Model(match).
		Updates(map[string]interface{}{
			"status":        status,
			"decided_by":    decidedBy,
			"decided_at":    now,
			"decision_note": note,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	match.Status = status
	match.DecidedBy = &decidedBy
	match.DecidedAt = &now
	match.DecisionNote = &note

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(tx, businessId, eventType, match.ID, "3WM", match, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &models.StoreCommitError{Op: "DecideThreeWayMatch", Err: err}
	}
	return match, nil
}
