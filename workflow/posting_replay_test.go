package workflow

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostDraft_ReplaysOriginalTransaction(t *testing.T) {
	gdb, mock := newMockDB(t)

	// The STARTED insert collides with a SUCCEEDED key, so the draft must
	// come back as the originally posted transaction with no new insert,
	// no period gate and no numbering.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `idempotency_keys`").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery("SELECT .+ FROM `idempotency_keys`").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "business_id", "handler_name", "request_key", "status", "transaction_id"}).
			AddRow(3, "biz-1", "PostTransaction", "je-001", "SUCCEEDED", 41))
	mock.ExpectQuery("SELECT .+ FROM `transactions`").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "business_id", "transaction_number", "idempotency_key"}).
			AddRow(41, "biz-1", "JE-000041", "je-001"))
	mock.ExpectQuery("SELECT .+ FROM `ledger_lines`").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "transaction_id", "account_id", "side", "amount"}).
			AddRow(1, 41, 1, "DEBIT", "100").
			AddRow(2, 41, 2, "CREDIT", "100"))
	mock.ExpectRollback()

	tx := gdb.Begin()
	require.NoError(t, tx.Error)
	original, err := postDraft(tx, "biz-1", balancedDraft())
	tx.Rollback()

	require.NoError(t, err)
	require.NotNil(t, original)
	assert.Equal(t, 41, original.ID)
	assert.Equal(t, "JE-000041", original.TransactionNumber)
	assert.Len(t, original.Lines, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkIdempotencyFailed_UpsertsFailureRecord(t *testing.T) {
	gdb, mock := newMockDB(t)

	// Upsert: the STARTED row usually rolled back with the posting
	// transaction, so the failure record must insert-or-update.
	mock.ExpectExec("INSERT INTO `idempotency_keys`(.+)ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(5, 1))

	err := MarkIdempotencyFailed(gdb, "biz-1", "PostTransaction", "je-001",
		errors.New("period FY2026-03 is CLOSED"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
