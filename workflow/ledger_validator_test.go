package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

func boolPtr(b bool) *bool { return &b }

func testAccountIndex() map[int]models.Account {
	return map[int]models.Account{
		1: {ID: 1, Code: "CASH", MainType: models.AccountMainTypeAsset, IsActive: boolPtr(true)},
		2: {ID: 2, Code: "SALES", MainType: models.AccountMainTypeIncome, IsActive: boolPtr(true)},
		3: {ID: 3, Code: "OLD", MainType: models.AccountMainTypeExpense, IsActive: boolPtr(false)},
	}
}

func balancedDraft() models.DraftTransaction {
	return models.DraftTransaction{
		Type:           models.TransactionTypeJournalEntry,
		IdempotencyKey: "je-001",
		Lines: []models.DraftLine{
			{AccountId: 1, Side: models.LedgerSideDebit, Amount: decimal.NewFromInt(100)},
			{AccountId: 2, Side: models.LedgerSideCredit, Amount: decimal.NewFromInt(100)},
		},
	}
}

func TestValidateDraft_BalancedDraftPasses(t *testing.T) {
	err := ValidateDraft(balancedDraft(), testAccountIndex())
	require.NoError(t, err)
}

func TestValidateDraft_RoundingResidueWithinTolerancePasses(t *testing.T) {
	draft := balancedDraft()
	draft.Lines[1].Amount = decimal.RequireFromString("99.99")
	require.NoError(t, ValidateDraft(draft, testAccountIndex()))
}

func TestValidateDraft_UnbalancedReportsExactImbalance(t *testing.T) {
	draft := balancedDraft()
	draft.Lines[1].Amount = decimal.RequireFromString("99.98")

	err := ValidateDraft(draft, testAccountIndex())
	require.Error(t, err)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "UNBALANCED", verr.Code)
	// Debits exceed credits by exactly 0.02; the sign tells which way.
	assert.True(t, verr.Imbalance.Equal(decimal.RequireFromString("0.02")),
		"imbalance = %s", verr.Imbalance)
}

func TestValidateDraft_RejectionCodes(t *testing.T) {
	accounts := testAccountIndex()

	tests := []struct {
		name     string
		mutate   func(*models.DraftTransaction)
		wantCode string
	}{
		{
			name:     "unknown type",
			mutate:   func(d *models.DraftTransaction) { d.Type = "WIRE_TRANSFER" },
			wantCode: "INVALID_TYPE",
		},
		{
			name:     "single line",
			mutate:   func(d *models.DraftTransaction) { d.Lines = d.Lines[:1] },
			wantCode: "TOO_FEW_LINES",
		},
		{
			name:     "missing idempotency key",
			mutate:   func(d *models.DraftTransaction) { d.IdempotencyKey = "" },
			wantCode: "MISSING_IDEMPOTENCY_KEY",
		},
		{
			name:     "bad side",
			mutate:   func(d *models.DraftTransaction) { d.Lines[0].Side = "BOTH" },
			wantCode: "INVALID_SIDE",
		},
		{
			name:     "zero amount",
			mutate:   func(d *models.DraftTransaction) { d.Lines[0].Amount = decimal.Zero },
			wantCode: "INVALID_AMOUNT",
		},
		{
			name:     "negative amount",
			mutate:   func(d *models.DraftTransaction) { d.Lines[0].Amount = decimal.NewFromInt(-5) },
			wantCode: "INVALID_AMOUNT",
		},
		{
			name:     "unknown account",
			mutate:   func(d *models.DraftTransaction) { d.Lines[0].AccountId = 99 },
			wantCode: "UNKNOWN_ACCOUNT",
		},
		{
			name:     "inactive account",
			mutate:   func(d *models.DraftTransaction) { d.Lines[0].AccountId = 3 },
			wantCode: "INACTIVE_ACCOUNT",
		},
		{
			name: "all debits",
			mutate: func(d *models.DraftTransaction) {
				d.Lines[1].Side = models.LedgerSideDebit
				// Keep it balanced-looking in total so ONE_SIDED fires first.
				d.Lines[1].Amount = d.Lines[0].Amount
			},
			wantCode: "ONE_SIDED",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			draft := balancedDraft()
			tc.mutate(&draft)

			err := ValidateDraft(draft, accounts)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantCode, verr.Code)
		})
	}
}

func TestComputeImbalance_SignConvention(t *testing.T) {
	lines := []models.DraftLine{
		{Side: models.LedgerSideDebit, Amount: decimal.NewFromInt(300)},
		{Side: models.LedgerSideCredit, Amount: decimal.NewFromInt(120)},
		{Side: models.LedgerSideCredit, Amount: decimal.NewFromInt(100)},
	}
	// Debits minus credits: positive means the debit side is heavy.
	assert.True(t, ComputeImbalance(lines).Equal(decimal.NewFromInt(80)))
}
