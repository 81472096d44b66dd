// Package repomanager hands out repositories bound to a connection or a
// transaction, and applies schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/stellarkeeper/internal/dbx"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/transactions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Transactions(db dbx.DBTX) transactions.Repository
}
