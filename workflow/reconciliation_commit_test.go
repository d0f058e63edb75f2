package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
)

// newMockDB opens gorm over a sqlmock connection so workflow paths that
// touch the store can be exercised without a MySQL server.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(gormMysql.New(gormMysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                   gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction:   true,
		DisableNestedTransaction: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func singleTxnProposal() []MatchProposal {
	return []MatchProposal{{
		BankTransaction: bankLine(11, day(10), "TRF-881", "300"),
		Transactions:    []models.Transaction{ledgerTxn(41, day(10), "TRF-881", "300")},
		LineAmounts:     []decimal.Decimal{dec("300")},
		MatchedAmount:   dec("300"),
		Score:           dec("100"),
	}}
}

func TestCommitReconciliationChunk_HappyPathCommits(t *testing.T) {
	gdb, mock := newMockDB(t)
	config.SetDB(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_matches`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `reconciliation_match_lines`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `bank_transactions`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `transactions`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := commitReconciliationChunk(context.Background(), "biz-1", "batch-1", singleTxnProposal())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReconciliationChunk_MidChunkErrorRollsBackWholeChunk(t *testing.T) {
	gdb, mock := newMockDB(t)
	config.SetDB(gdb)

	// The match row and its lines go in, then the bank status update dies:
	// the whole chunk must roll back, match row included.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_matches`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `reconciliation_match_lines`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `bank_transactions`").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := commitReconciliationChunk(context.Background(), "biz-1", "batch-1", singleTxnProposal())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReconciliationChunk_BankLineAlreadyClaimed(t *testing.T) {
	gdb, mock := newMockDB(t)
	config.SetDB(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_matches`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `reconciliation_match_lines`").WillReturnResult(sqlmock.NewResult(1, 1))
	// Zero rows: a concurrent batch already flipped the line off UNMATCHED.
	mock.ExpectExec("UPDATE `bank_transactions`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := commitReconciliationChunk(context.Background(), "biz-1", "batch-1", singleTxnProposal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bank transaction 11 was claimed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReconciliationChunk_LedgerTransactionAlreadyClaimed(t *testing.T) {
	gdb, mock := newMockDB(t)
	config.SetDB(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_matches`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `reconciliation_match_lines`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `bank_transactions`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `transactions`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := commitReconciliationChunk(context.Background(), "biz-1", "batch-1", singleTxnProposal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction 41 was claimed")
	require.NoError(t, mock.ExpectationsWereMet())
}
