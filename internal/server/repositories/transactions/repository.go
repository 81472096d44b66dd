// Package transactions stores the wallet's confirmed transaction history.
package transactions

import (
	"context"

	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.TransactionRecord) error
	// ListByAccount returns newest first.
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionRecord, error)
}
