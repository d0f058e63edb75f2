package workflow

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

// BalanceTolerance absorbs rounding residue from upstream currency math.
// Anything at or below this is treated as balanced.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// ComputeImbalance returns total debits minus total credits.
func ComputeImbalance(lines []models.DraftLine) decimal.Decimal {
	imbalance := decimal.Zero
	for _, line := range lines {
		if line.Side == models.LedgerSideDebit {
			imbalance = imbalance.Add(line.Amount)
		} else {
			imbalance = imbalance.Sub(line.Amount)
		}
	}
	return imbalance
}

// ValidateDraft checks a candidate transaction against the ledger rules
// without touching the database. The caller supplies the account index for
// every account id the draft references.
func ValidateDraft(draft models.DraftTransaction, accounts map[int]models.Account) error {
	if !draft.Type.Valid() {
		return models.NewValidationError("INVALID_TYPE", "unknown transaction type %q", draft.Type)
	}
	if len(draft.Lines) < 2 {
		return models.NewValidationError("TOO_FEW_LINES", "a transaction needs at least two lines, got %d", len(draft.Lines))
	}
	if draft.IdempotencyKey == "" {
		return models.NewValidationError("MISSING_IDEMPOTENCY_KEY", "idempotency key is required")
	}

	hasDebit, hasCredit := false, false
	for i, line := range draft.Lines {
		if !line.Side.Valid() {
			return models.NewValidationError("INVALID_SIDE", "line %d: side must be DEBIT or CREDIT, got %q", i+1, line.Side)
		}
		if line.Amount.Sign() <= 0 {
			return models.NewValidationError("INVALID_AMOUNT", "line %d: amount must be positive, got %s", i+1, line.Amount.String())
		}
		account, found := accounts[line.AccountId]
		if !found {
			return models.NewValidationError("UNKNOWN_ACCOUNT", "line %d: account %d does not exist", i+1, line.AccountId)
		}
		if account.IsActive != nil && !*account.IsActive {
			return models.NewValidationError("INACTIVE_ACCOUNT", "line %d: account %s is inactive", i+1, account.Code)
		}
		if line.Side == models.LedgerSideDebit {
			hasDebit = true
		} else {
			hasCredit = true
		}
	}
	if !hasDebit || !hasCredit {
		return models.NewValidationError("ONE_SIDED", "a transaction needs at least one debit and one credit line")
	}

	imbalance := ComputeImbalance(draft.Lines)
	if imbalance.Abs().GreaterThan(BalanceTolerance) {
		err := models.NewValidationError("UNBALANCED",
			"debits and credits differ by %s", imbalance.Abs().String())
		err.Imbalance = imbalance
		return err
	}
	return nil
}
