package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(account_id,\s*token,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	mock.ExpectExec(q).WithArgs("acc-1", "tok", now.Add(30*time.Minute)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("acc-1", "tok2", sqlmock.AnyArg()).WillReturnError(errors.New("fk violation"))

	require.NoError(t, repo.Create(context.Background(), "acc-1", "tok", 30*time.Minute))

	err := repo.Create(context.Background(), "acc-1", "tok2", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: fk violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^\s*SELECT\s+account_id,\s*expires_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(q).WithArgs("tok").WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires_at"}).AddRow("acc-1", exp))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("boom").WillReturnError(errors.New("db down"))

	rt, err := repo.Find(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", rt.AccountID)
	assert.Equal(t, "tok", rt.Token)
	assert.Equal(t, exp, rt.Expires)

	_, err = repo.Find(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Find(context.Background(), "boom")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1$`).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+account_id\s*=\s*\$1$`).WithArgs("acc-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`^DELETE\s+FROM\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Delete(context.Background(), "tok"))
	require.NoError(t, repo.DeleteByAccount(context.Background(), "acc-1"))
	assert.Error(t, repo.Delete(context.Background(), "x"))
	require.NoError(t, mock.ExpectationsWereMet())
}
