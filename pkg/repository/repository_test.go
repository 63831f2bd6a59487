package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/reconify/pkg/repository"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestMapError(t *testing.T) {
	other := errors.New("some other error")
	fk := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, errNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errDuplicate},
		{"other pg error", fk, fk},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapError(tt.err, errNotFound, errDuplicate)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPgCodeHelpers(t *testing.T) {
	require.True(t, repository.IsUndefinedTable(fmt.Errorf("select: %w", &pgconn.PgError{Code: "42P01"})))
	require.False(t, repository.IsUndefinedTable(errors.New("42P01")))
	require.True(t, repository.IsLockNotAvailable(&pgconn.PgError{Code: "55P03"}))
}

func TestLockKeyStable(t *testing.T) {
	require.Equal(t, repository.LockKey("hr_data"), repository.LockKey("hr_data"))
	require.NotEqual(t, repository.LockKey("hr_data"), repository.LockKey("finance"))
}

func TestWithTxCommits(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repository.WithTx(context.Background(), db, func(tx *sql.Tx) (int64, error) {
		return repository.ExecAffected(context.Background(), tx, "DELETE FROM t")
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repository.WithTx(context.Background(), db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSavepointRollsBackOnlyInner(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()
	boom := errors.New("backup failed")

	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT "backup"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT "backup"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	err = repository.WithSavepoint(ctx, tx, "backup", func() error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = tx.ExecContext(ctx, "DELETE FROM t")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSavepointReleases(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT "backup"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`RELEASE SAVEPOINT "backup"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repository.WithSavepoint(ctx, tx, "backup", func() error { return nil }))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryXactLock(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_xact_lock($1)").
		WithArgs(repository.LockKey("hr_data")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repository.AdvisoryXactLock(context.Background(), db, "hr_data"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryXactLockTimeout(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_xact_lock($1)").
		WithArgs(repository.LockKey("hr_data")).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})

	err := repository.AdvisoryXactLock(context.Background(), db, "hr_data")
	require.ErrorIs(t, err, repository.ErrLockTimeout)
	require.Contains(t, err.Error(), "advisory lock hr_data")

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

type item struct {
	ID   int
	Name string
}

func scanItem(s repository.Scanner) (item, error) {
	var it item
	err := s.Scan(&it.ID, &it.Name)
	return it, err
}

func TestQueryMany(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT id, name FROM items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))

	items, err := repository.QueryMany(context.Background(), db, "SELECT id, name FROM items", nil, scanItem)
	require.NoError(t, err)
	require.Equal(t, []item{{1, "a"}, {2, "b"}}, items)
}

func TestQueryOneNoRows(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT id, name FROM items WHERE id = $1").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repository.QueryOne(context.Background(), db, "SELECT id, name FROM items WHERE id = $1", []any{9}, scanItem)
	require.ErrorIs(t, repository.MapError(err, errNotFound, errDuplicate), errNotFound)
}
