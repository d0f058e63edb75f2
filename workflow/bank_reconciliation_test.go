package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

const bankGLAccount = 7

func day(d int) time.Time {
	return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
}

// ledgerTxn builds a posted transaction that moves `amount` on the bank GL
// account: positive debits the bank (money in), negative credits it.
func ledgerTxn(id int, date time.Time, ref, amount string) models.Transaction {
	amt := dec(amount)
	side := models.LedgerSideDebit
	other := models.LedgerSideCredit
	if amt.Sign() < 0 {
		amt = amt.Neg()
		side, other = other, side
	}
	return models.Transaction{
		ID:              id,
		TransactionDate: date,
		ReferenceNumber: ref,
		Lines: []models.LedgerLine{
			{AccountId: bankGLAccount, Side: side, Amount: amt},
			{AccountId: 99, Side: other, Amount: amt},
		},
	}
}

func bankLine(id int, date time.Time, ref, amount string) models.BankTransaction {
	return models.BankTransaction{
		ID:              id,
		BankAccountId:   1,
		TransactionDate: date,
		Reference:       ref,
		Amount:          dec(amount),
		MatchStatus:     models.BankMatchStatusUnmatched,
	}
}

func TestBankMovement_NetsBothSides(t *testing.T) {
	txn := models.Transaction{Lines: []models.LedgerLine{
		{AccountId: bankGLAccount, Side: models.LedgerSideDebit, Amount: dec("500")},
		{AccountId: bankGLAccount, Side: models.LedgerSideCredit, Amount: dec("120")},
		{AccountId: 42, Side: models.LedgerSideCredit, Amount: dec("380")},
	}}
	assert.True(t, bankMovement(txn, bankGLAccount).Equal(dec("380")))
}

func TestScoreCandidate_ExactEverything(t *testing.T) {
	bank := bankLine(1, day(10), "TRF-889", "2500")
	txn := ledgerTxn(1, day(10), "TRF-889", "2500")

	score := ScoreCandidate(bank, []models.Transaction{txn}, bankGLAccount)
	// 60 amount + 25 same-day + 15 exact reference.
	assert.True(t, score.Equal(dec("100")), "score = %s", score)
}

func TestScoreCandidate_DateDecay(t *testing.T) {
	tests := []struct {
		txnDay int
		want   string
	}{
		{10, "100"}, // same day
		{11, "95"},  // 1 day apart
		{13, "85"},  // 3 days apart
		{15, "75"},  // window exhausted, no date score
		{20, "75"},
	}
	for _, tc := range tests {
		bank := bankLine(1, day(10), "TRF-889", "2500")
		txn := ledgerTxn(1, day(tc.txnDay), "TRF-889", "2500")
		score := ScoreCandidate(bank, []models.Transaction{txn}, bankGLAccount)
		assert.True(t, score.Equal(dec(tc.want)), "day %d: score = %s", tc.txnDay, score)
	}
}

func TestScoreCandidate_DateWindowIsTunable(t *testing.T) {
	orig := matchDateWindowDays
	matchDateWindowDays = 3
	defer func() { matchDateWindowDays = orig }()

	bank := bankLine(1, day(10), "TRF-889", "2500")

	// 2 days apart inside a 3-day window: 60 + 25*(3-2)/3 + 15 = 83.
	near := ledgerTxn(1, day(12), "TRF-889", "2500")
	score := ScoreCandidate(bank, []models.Transaction{near}, bankGLAccount)
	assert.True(t, score.Equal(dec("83")), "score = %s", score)

	// 3 days apart exhausts the shortened window.
	far := ledgerTxn(2, day(13), "TRF-889", "2500")
	score = ScoreCandidate(bank, []models.Transaction{far}, bankGLAccount)
	assert.True(t, score.Equal(dec("75")), "score = %s", score)
}

func TestScoreCandidate_ReferenceTiers(t *testing.T) {
	bank := bankLine(1, day(10), "PMT/INV-42/BATCH", "900")

	exact := ledgerTxn(1, day(10), "pmt/inv-42/batch", "900") // case-insensitive
	fuzzy := ledgerTxn(2, day(10), "INV-42", "900")           // substring
	none := ledgerTxn(3, day(10), "CHQ-77", "900")

	assert.True(t, ScoreCandidate(bank, []models.Transaction{exact}, bankGLAccount).Equal(dec("100")))
	assert.True(t, ScoreCandidate(bank, []models.Transaction{fuzzy}, bankGLAccount).Equal(dec("92")))
	assert.True(t, ScoreCandidate(bank, []models.Transaction{none}, bankGLAccount).Equal(dec("85")))
}

func TestScoreCandidate_AmountGate(t *testing.T) {
	bank := bankLine(1, day(10), "", "1000")

	within := ledgerTxn(1, day(10), "", "999.99")
	score := ScoreCandidate(bank, []models.Transaction{within}, bankGLAccount)
	// Inside tolerance but not exact: 50 base + 25 date.
	assert.True(t, score.Equal(dec("75")), "score = %s", score)

	outside := ledgerTxn(2, day(10), "", "999.98")
	assert.True(t, ScoreCandidate(bank, []models.Transaction{outside}, bankGLAccount).IsZero())
}

func TestProposeMatches_OneToOne(t *testing.T) {
	bankTxns := []models.BankTransaction{bankLine(1, day(10), "TRF-1", "2500")}
	ledgerTxns := []models.Transaction{
		ledgerTxn(1, day(10), "TRF-1", "2500"),
		ledgerTxn(2, day(10), "TRF-2", "400"),
	}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	require.Len(t, proposals, 1)
	require.Len(t, proposals[0].Transactions, 1)
	assert.Equal(t, 1, proposals[0].Transactions[0].ID)
	assert.True(t, proposals[0].MatchedAmount.Equal(dec("2500")))
	assert.True(t, proposals[0].LineAmounts[0].Equal(dec("2500")))
}

func TestProposeMatches_CombinesUpToThreeTransactions(t *testing.T) {
	// One bank deposit covering three separate receipts.
	bankTxns := []models.BankTransaction{bankLine(1, day(10), "", "600")}
	ledgerTxns := []models.Transaction{
		ledgerTxn(1, day(9), "", "100"),
		ledgerTxn(2, day(9), "", "200"),
		ledgerTxn(3, day(9), "", "300"),
		ledgerTxn(4, day(9), "", "9999"),
	}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	require.Len(t, proposals, 1)
	require.Len(t, proposals[0].Transactions, 3)
	assert.True(t, proposals[0].MatchedAmount.Equal(dec("600")))
}

func TestProposeMatches_PrefersBetterReference(t *testing.T) {
	bankTxns := []models.BankTransaction{bankLine(1, day(10), "INV-500", "750")}
	ledgerTxns := []models.Transaction{
		ledgerTxn(1, day(10), "CHQ-9", "750"),
		ledgerTxn(2, day(10), "INV-500", "750"),
	}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	require.Len(t, proposals, 1)
	assert.Equal(t, 2, proposals[0].Transactions[0].ID)
}

func TestProposeMatches_LedgerTransactionClaimedOnce(t *testing.T) {
	// Two identical bank lines, one ledger transaction: only one match.
	bankTxns := []models.BankTransaction{
		bankLine(1, day(10), "", "300"),
		bankLine(2, day(10), "", "300"),
	}
	ledgerTxns := []models.Transaction{ledgerTxn(1, day(10), "", "300")}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	require.Len(t, proposals, 1)
	assert.Equal(t, 1, proposals[0].BankTransaction.ID)
}

func TestProposeMatches_IgnoresWithdrawalsForDeposits(t *testing.T) {
	// A credit-side ledger transaction must not match a deposit of the same
	// magnitude; movements are signed.
	bankTxns := []models.BankTransaction{bankLine(1, day(10), "", "450")}
	ledgerTxns := []models.Transaction{ledgerTxn(1, day(10), "", "-450")}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	assert.Empty(t, proposals)
}

func TestProposeMatches_MatchesWithdrawals(t *testing.T) {
	bankTxns := []models.BankTransaction{bankLine(1, day(10), "RENT", "-1200")}
	ledgerTxns := []models.Transaction{ledgerTxn(1, day(10), "RENT", "-1200")}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccount)
	require.Len(t, proposals, 1)
	assert.True(t, proposals[0].MatchedAmount.Equal(dec("-1200")))
}
