package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// maxCombinationSize caps how many ledger transactions can be combined
	// against one bank line. Larger subsets explode combinatorially and
	// rarely reflect real settlements.
	maxCombinationSize = 3
	// reconcileChunkSize is how many proposals commit per DB transaction.
	reconcileChunkSize = 20
)

// matchDateWindowDays is how far apart the bank date and ledger date may be
// before the date score bottoms out. Tunable per deployment through
// RECONCILE_DATE_WINDOW_DAYS.
var matchDateWindowDays = config.ReconcileDateWindowDays()

var ErrReconciliationInProgress = errors.New("a reconciliation batch is already running for this bank account")

// MatchProposal is one scored pairing of a bank transaction with ledger
// transactions whose bank-account movement sums to the bank amount.
type MatchProposal struct {
	BankTransaction models.BankTransaction
	Transactions    []models.Transaction
	// LineAmounts holds each transaction's bank-account movement, aligned
	// with Transactions.
	LineAmounts   []decimal.Decimal
	MatchedAmount decimal.Decimal
	Score         decimal.Decimal
}

// bankMovement is the net movement a transaction books on the bank GL
// account, signed the same way the bank statement is: debit means money in.
func bankMovement(txn models.Transaction, bankGLAccountId int) decimal.Decimal {
	net := decimal.Zero
	for _, line := range txn.Lines {
		if line.AccountId != bankGLAccountId {
			continue
		}
		if line.Side == models.LedgerSideDebit {
			net = net.Add(line.Amount)
		} else {
			net = net.Sub(line.Amount)
		}
	}
	return net
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

// ScoreCandidate rates a candidate pairing. Amount equality dominates, date
// proximity decays linearly inside the window, and reference agreement
// breaks ties: exact beats fuzzy beats none.
func ScoreCandidate(bank models.BankTransaction, txns []models.Transaction, bankGLAccountId int) decimal.Decimal {
	total := decimal.Zero
	latest := txns[0].TransactionDate
	refExact, refFuzzy := false, false
	bankRef := strings.TrimSpace(strings.ToUpper(bank.Reference))
	for _, txn := range txns {
		total = total.Add(bankMovement(txn, bankGLAccountId))
		if txn.TransactionDate.After(latest) {
			latest = txn.TransactionDate
		}
		txnRef := strings.TrimSpace(strings.ToUpper(txn.ReferenceNumber))
		if bankRef != "" && txnRef != "" {
			if txnRef == bankRef {
				refExact = true
			} else if strings.Contains(bankRef, txnRef) || strings.Contains(txnRef, bankRef) {
				refFuzzy = true
			}
		}
	}

	diff := total.Sub(bank.Amount).Abs()
	if diff.GreaterThan(BalanceTolerance) {
		return decimal.Zero
	}
	score := decimal.NewFromInt(60)
	if !diff.IsZero() {
		score = decimal.NewFromInt(50)
	}

	days := daysApart(bank.TransactionDate, latest)
	if days < matchDateWindowDays {
		dateScore := decimal.NewFromInt(int64(25 * (matchDateWindowDays - days) / matchDateWindowDays))
		score = score.Add(dateScore)
	}

	if refExact {
		score = score.Add(decimal.NewFromInt(15))
	} else if refFuzzy {
		score = score.Add(decimal.NewFromInt(7))
	}
	return score
}

// ProposeMatches pairs unmatched bank transactions with unreconciled ledger
// transactions. Pure: no DB access, deterministic given its inputs. Each
// ledger transaction is claimed by at most one proposal.
func ProposeMatches(bankTxns []models.BankTransaction, ledgerTxns []models.Transaction, bankGLAccountId int) []MatchProposal {
	claimed := map[int]bool{}
	proposals := []MatchProposal{}

	for _, bank := range bankTxns {
		available := make([]models.Transaction, 0, len(ledgerTxns))
		for _, txn := range ledgerTxns {
			if !claimed[txn.ID] && !bankMovement(txn, bankGLAccountId).IsZero() {
				available = append(available, txn)
			}
		}

		var best *MatchProposal
		var consider func(start int, picked []models.Transaction)
		consider = func(start int, picked []models.Transaction) {
			if len(picked) > 0 {
				score := ScoreCandidate(bank, picked, bankGLAccountId)
				if score.Sign() > 0 && (best == nil || score.GreaterThan(best.Score)) {
					total := decimal.Zero
					amounts := make([]decimal.Decimal, 0, len(picked))
					for _, txn := range picked {
						movement := bankMovement(txn, bankGLAccountId)
						amounts = append(amounts, movement)
						total = total.Add(movement)
					}
					candidate := MatchProposal{
						BankTransaction: bank,
						Transactions:    append([]models.Transaction{}, picked...),
						LineAmounts:     amounts,
						MatchedAmount:   total,
						Score:           score,
					}
					best = &candidate
				}
			}
			if len(picked) == maxCombinationSize {
				return
			}
			for i := start; i < len(available); i++ {
				consider(i+1, append(picked, available[i]))
			}
		}
		consider(0, nil)

		if best != nil {
			for _, txn := range best.Transactions {
				claimed[txn.ID] = true
			}
			proposals = append(proposals, *best)
		}
	}
	return proposals
}

// ReconciliationReport summarizes one batch run.
type ReconciliationReport struct {
	BatchId         string `json:"batch_id"`
	BankAccountId   int    `json:"bank_account_id"`
	ProposedMatches int    `json:"proposed_matches"`
	CommittedChunks int    `json:"committed_chunks"`
	MatchedBankTxns int    `json:"matched_bank_txns"`
	UnmatchedBank   int    `json:"unmatched_bank_txns"`
}

// ReconcileBankAccount runs one reconciliation batch for a bank account:
// load both unmatched sides, propose matches, then commit the proposals in
// chunks. Each chunk is one DB transaction that updates the match rows, the
// bank transactions and the ledger linkage together, so a failure can only
// lose whole chunks, never leave one side half-updated.
//
// A Redis lock keeps two batches for the same bank account from racing.
func ReconcileBankAccount(ctx context.Context, bankAccountId, bankGLAccountId int) (*ReconciliationReport, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("reconcile:%s:%d", businessId, bankAccountId)
		lock, err := locker.Obtain(ctx, lockKey, 5*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrReconciliationInProgress
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release(context.Background())
	}

	bankTxns, err := models.GetUnmatchedBankTransactions(db.WithContext(ctx), businessId, bankAccountId)
	if err != nil {
		config.LogError(logger, "bankReconciliation.go", "ReconcileBankAccount", "GetUnmatchedBankTransactions", bankAccountId, err)
		return nil, err
	}
	ledgerTxns, err := models.GetUnreconciledBankLedgerTransactions(db.WithContext(ctx), businessId, bankGLAccountId)
	if err != nil {
		config.LogError(logger, "bankReconciliation.go", "ReconcileBankAccount", "GetUnreconciledBankLedgerTransactions", bankGLAccountId, err)
		return nil, err
	}

	proposals := ProposeMatches(bankTxns, ledgerTxns, bankGLAccountId)

	batchId := uuid.NewString()
	report := &ReconciliationReport{
		BatchId:         batchId,
		BankAccountId:   bankAccountId,
		ProposedMatches: len(proposals),
		UnmatchedBank:   len(bankTxns) - len(proposals),
	}

	for start := 0; start < len(proposals); start += reconcileChunkSize {
		end := start + reconcileChunkSize
		if end > len(proposals) {
			end = len(proposals)
		}
		if err := commitReconciliationChunk(ctx, businessId, batchId, proposals[start:end]); err != nil {
			config.LogError(logger, "bankReconciliation.go", "ReconcileBankAccount", "commitReconciliationChunk", batchId, err)
			return report, err
		}
		report.CommittedChunks++
		report.MatchedBankTxns += end - start
	}

	// The batch summary event rides in its own transaction; the chunk
	// commits above are already durable.
	finalTx := db.WithContext(ctx).Begin()
	if finalTx.Error != nil {
		return report, finalTx.Error
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := models.RecordEvent(finalTx, businessId, models.EventTypeBankBatchReconciled, bankAccountId, "RECON_BATCH", report, correlationId); err != nil {
		finalTx.Rollback()
		return report, err
	}
	if err := finalTx.Commit().Error; err != nil {
		return report, &models.StoreCommitError{Op: "ReconcileBankAccount", Err: err}
	}
	return report, nil
}

func commitReconciliationChunk(ctx context.Context, businessId, batchId string, chunk []MatchProposal) error {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	for _, proposal := range chunk {
		match := models.ReconciliationMatch{
			BusinessId:        businessId,
			BatchId:           batchId,
			BankTransactionId: proposal.BankTransaction.ID,
			Score:             proposal.Score,
			MatchedAmount:     proposal.MatchedAmount,
		}
		for i, txn := range proposal.Transactions {
			match.Lines = append(match.Lines, models.ReconciliationMatchLine{
				BusinessId:    businessId,
				TransactionId: txn.ID,
				Amount:        proposal.LineAmounts[i],
			})
		}
		if err := tx.Create(&match).Error; err != nil {
			tx.Rollback()
			return err
		}

		bankStatus := models.BankMatchStatusMatched
		if !proposal.MatchedAmount.Equal(proposal.BankTransaction.Amount) {
			bankStatus = models.BankMatchStatusPartiallyMatched
		}
		claim := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND business_id = ? AND match_status = ?",
				proposal.BankTransaction.ID, businessId, models.BankMatchStatusUnmatched).
			Update("match_status", bankStatus)
		if claim.Error != nil {
			tx.Rollback()
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			tx.Rollback()
			return fmt.Errorf("bank transaction %d was claimed by another reconciliation", proposal.BankTransaction.ID)
		}

		for _, txn := range proposal.Transactions {
			result := tx.Model(&models.Transaction{}).
				Where("id = ? AND business_id = ? AND reconciliation_match_id IS NULL", txn.ID, businessId).
				Update("reconciliation_match_id", match.ID)
			if result.Error != nil {
				tx.Rollback()
				return result.Error
			}
			if result.RowsAffected == 0 {
				tx.Rollback()
				return fmt.Errorf("transaction %d was claimed by another reconciliation", txn.ID)
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return &models.StoreCommitError{Op: "commitReconciliationChunk", Err: err}
	}
	return nil
}
