package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction_Success(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE card_deliveries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE card_deliveries SET status = 'sent'")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionWithOptions_ReadCommitted(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	err := RunInTransactionWithOptions(context.Background(), db, opts, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_FunctionError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	expectedErr := errors.New("function failed")
	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return expectedErr
	})
	assert.Equal(t, expectedErr, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_BeginTransactionError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	expectedErr := errors.New("begin transaction failed")
	mock.ExpectBegin().WillReturnError(expectedErr)

	called := false
	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.ErrorIs(t, err, expectedErr)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_CommitError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	expectedErr := errors.New("commit failed")
	mock.ExpectCommit().WillReturnError(expectedErr)

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	assert.ErrorContains(t, err, "failed to commit transaction")
	assert.ErrorIs(t, err, expectedErr)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_RollbackError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	functionErr := errors.New("function failed")
	mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return functionErr
	})
	assert.ErrorContains(t, err, "error rolling back transaction")
	assert.ErrorContains(t, err, "rollback failed")
	assert.ErrorIs(t, err, functionErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_Panic(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			panic("test panic")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
