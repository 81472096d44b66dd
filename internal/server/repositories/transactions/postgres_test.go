package transactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
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

const insertQ = `(?s)^INSERT\s+INTO\s+transactions\s*\(id,\s*account_id,.*destination\)\s*VALUES\s*\(\$1,.*\$9\)\s*RETURNING\s+created_at$`

func TestCreate_AssignsID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(insertQ).
		WithArgs(sqlmock.AnyArg(), "acc-1", "strict_send", "abc123", "XLM", "USDC", "100", "9.8", "GDEST").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	rec := &models.TransactionRecord{
		AccountID: "acc-1", Kind: "strict_send", Hash: "abc123",
		SourceAsset: "XLM", DestAsset: "USDC", Amount: "100", DestAmount: "9.8", Destination: "GDEST",
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.TransactionRecord{ID: "fixed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestListByAccount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id,.*FROM\s+transactions\s+WHERE\s+account_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2\s+OFFSET\s+\$3$`
	t1 := time.Now()
	t0 := t1.Add(-time.Hour)

	cols := []string{"id", "account_id", "kind", "hash", "source_asset", "dest_asset", "amount", "dest_amount", "destination", "created_at"}
	mock.ExpectQuery(q).WithArgs("acc-1", 20, 0).WillReturnRows(sqlmock.NewRows(cols).
		AddRow("t2", "acc-1", "payment", "h2", "USDC", "USDC", "5", "5", "GB", t1).
		AddRow("t1", "acc-1", "change_trust", "h1", "USDC", "", "", "", "", t0))
	mock.ExpectQuery(q).WithArgs("acc-1", maxPage, 0).WillReturnRows(sqlmock.NewRows(cols))

	got, err := repo.ListByAccount(context.Background(), "acc-1", 20, -5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h2", got[0].Hash)
	assert.Equal(t, "change_trust", got[1].Kind)

	got, err = repo.ListByAccount(context.Background(), "acc-1", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAccount_Errors(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("db down"))
	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("only-one-column"))

	_, err := repo.ListByAccount(context.Background(), "acc-1", 10, 0)
	assert.Error(t, err)

	_, err = repo.ListByAccount(context.Background(), "acc-1", 10, 0)
	assert.Error(t, err)
}
