package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

func defaultTolerance() models.MatchToleranceConfig {
	return models.DefaultMatchToleranceConfig("biz-1")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func matchDocs(poQty, poPrice, receivedQty, invQty, invPrice string) (models.PurchaseOrder, models.GoodsReceipt, models.VendorInvoice) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	po := models.PurchaseOrder{
		ID: 1, OrderNumber: "PO-1001", OrderDate: date,
		Lines: []models.PurchaseOrderLine{
			{ItemRef: "WIDGET", Quantity: dec(poQty), UnitPrice: dec(poPrice)},
		},
	}
	receipt := models.GoodsReceipt{
		ID: 1, PurchaseOrderId: 1, ReceiptDate: date,
		Lines: []models.GoodsReceiptLine{
			{ItemRef: "WIDGET", ReceivedQuantity: dec(receivedQty)},
		},
	}
	invoice := models.VendorInvoice{
		ID: 1, PurchaseOrderId: 1, InvoiceNumber: "INV-1001", InvoiceDate: date,
		Lines: []models.VendorInvoiceLine{
			{ItemRef: "WIDGET", Quantity: dec(invQty), UnitPrice: dec(invPrice)},
		},
	}
	return po, receipt, invoice
}

func TestClassifyVariance_TierBoundaries(t *testing.T) {
	cfg := defaultTolerance()
	smallInvoice := decimal.NewFromInt(500)

	tests := []struct {
		pct  string
		want models.MatchSeverity
	}{
		{"0", models.MatchSeverityNone},
		{"2", models.MatchSeverityNone},
		{"2.01", models.MatchSeverityLow},
		{"5", models.MatchSeverityLow},
		{"5.01", models.MatchSeverityMedium},
		{"10", models.MatchSeverityMedium},
		{"10.01", models.MatchSeverityHigh},
		{"-4", models.MatchSeverityLow}, // sign does not matter
	}
	for _, tc := range tests {
		got := ClassifyVariance(dec(tc.pct), smallInvoice, cfg)
		assert.Equal(t, tc.want, got, "variance %s%%", tc.pct)
	}
}

func TestClassifyVariance_HighValueEscalatesOneRank(t *testing.T) {
	cfg := defaultTolerance()
	bigInvoice := cfg.HighValueThreshold

	assert.Equal(t, models.MatchSeverityMedium, ClassifyVariance(dec("4"), bigInvoice, cfg))
	assert.Equal(t, models.MatchSeverityHigh, ClassifyVariance(dec("8"), bigInvoice, cfg))
	assert.Equal(t, models.MatchSeverityCritical, ClassifyVariance(dec("15"), bigInvoice, cfg))
	// A clean match stays clean regardless of invoice size.
	assert.Equal(t, models.MatchSeverityNone, ClassifyVariance(dec("1"), bigInvoice, cfg))
}

func TestCompareDocuments_CleanMatch(t *testing.T) {
	po, receipt, invoice := matchDocs("10", "100", "10", "10", "100")
	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.Empty(t, discrepancies)
	assert.Equal(t, models.MatchStatusAutoApproved, DecideMatchStatus(OverallSeverity(discrepancies)))
}

func TestCompareDocuments_PriceDriftWithinAutoApprove(t *testing.T) {
	// 1.5% over the ordered price sits inside the auto-approve band.
	po, receipt, invoice := matchDocs("10", "100", "10", "10", "101.50")
	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	assert.Empty(t, discrepancies)
}

func TestCompareDocuments_PriceVarianceAwaitsApproval(t *testing.T) {
	// 4% over the ordered price: price and line amount both drift LOW.
	po, receipt, invoice := matchDocs("10", "100", "10", "10", "104")
	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.Len(t, discrepancies, 2)

	byType := map[models.DiscrepancyType]models.MatchDiscrepancy{}
	for _, d := range discrepancies {
		byType[d.Type] = d
	}

	price := byType[models.DiscrepancyTypePrice]
	assert.Equal(t, models.MatchSeverityLow, price.Severity)
	assert.True(t, price.VariancePct.Equal(dec("4")), "price variance = %s", price.VariancePct)
	assert.True(t, price.ExpectedValue.Equal(dec("100")))
	assert.True(t, price.ActualValue.Equal(dec("104")))

	amount := byType[models.DiscrepancyTypeAmount]
	assert.Equal(t, models.MatchSeverityLow, amount.Severity)
	assert.True(t, amount.ExpectedValue.Equal(dec("1000")))

	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(OverallSeverity(discrepancies)))
}

func TestCompareDocuments_OverbilledQuantity(t *testing.T) {
	// Received 8, invoiced 10: 25% over on quantity and on the line amount.
	po, receipt, invoice := matchDocs("10", "100", "8", "10", "100")
	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.Len(t, discrepancies, 2)

	for _, d := range discrepancies {
		assert.Equal(t, models.MatchSeverityHigh, d.Severity, "type %s", d.Type)
	}
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(OverallSeverity(discrepancies)))
}

func TestCompareDocuments_ExtraInvoicedItemIsCritical(t *testing.T) {
	po, receipt, invoice := matchDocs("10", "100", "10", "10", "100")
	invoice.Lines = append(invoice.Lines, models.VendorInvoiceLine{
		ItemRef: "GADGET", Quantity: dec("1"), UnitPrice: dec("50"),
	})

	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.Len(t, discrepancies, 1)
	assert.Equal(t, models.DiscrepancyTypeExtraInInvoice, discrepancies[0].Type)
	assert.Equal(t, models.MatchSeverityCritical, discrepancies[0].Severity)
	// Even a critical discrepancy is routed to a human, never auto-rejected.
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(OverallSeverity(discrepancies)))
}

func TestCompareDocuments_ReceivedItemMissingFromInvoice(t *testing.T) {
	po, receipt, invoice := matchDocs("10", "100", "10", "10", "100")
	po.Lines = append(po.Lines, models.PurchaseOrderLine{
		ItemRef: "GADGET", Quantity: dec("5"), UnitPrice: dec("20"),
	})
	receipt.Lines = append(receipt.Lines, models.GoodsReceiptLine{
		ItemRef: "GADGET", ReceivedQuantity: dec("5"),
	})

	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.Len(t, discrepancies, 1)
	assert.Equal(t, models.DiscrepancyTypeMissingInInvoice, discrepancies[0].Type)
	assert.Equal(t, models.MatchSeverityCritical, discrepancies[0].Severity)
}

func TestCompareDocuments_HighValueInvoiceEscalates(t *testing.T) {
	// Same 4% price drift, but the invoice totals 104,000 and crosses the
	// high-value threshold, so LOW becomes MEDIUM.
	po, receipt, invoice := matchDocs("100", "1000", "100", "100", "1040")
	discrepancies := CompareDocuments(po, receipt, invoice, defaultTolerance())
	require.NotEmpty(t, discrepancies)
	for _, d := range discrepancies {
		assert.Equal(t, models.MatchSeverityMedium, d.Severity, "type %s", d.Type)
	}
}

func TestOverallSeverity_TakesWorst(t *testing.T) {
	discrepancies := []models.MatchDiscrepancy{
		{Severity: models.MatchSeverityLow},
		{Severity: models.MatchSeverityHigh},
		{Severity: models.MatchSeverityMedium},
	}
	assert.Equal(t, models.MatchSeverityHigh, OverallSeverity(discrepancies))
	assert.Equal(t, models.MatchSeverityNone, OverallSeverity(nil))
}

func TestDecideMatchStatus_Mapping(t *testing.T) {
	assert.Equal(t, models.MatchStatusAutoApproved, DecideMatchStatus(models.MatchSeverityNone))
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(models.MatchSeverityLow))
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(models.MatchSeverityMedium))
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(models.MatchSeverityHigh))
	// CRITICAL escalates the approval tier but is still a human call.
	assert.Equal(t, models.MatchStatusAwaitingApproval, DecideMatchStatus(models.MatchSeverityCritical))
}
