package transactions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stellarkeeper/internal/dbx"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/google/uuid"
)

const maxPage = 200

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// Create inserts rec, assigning an ID when it has none.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.TransactionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query :=
		`INSERT INTO transactions (id, account_id, kind, hash, source_asset, dest_asset, amount, dest_amount, destination)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.AccountID, rec.Kind, rec.Hash, rec.SourceAsset, rec.DestAsset,
		rec.Amount, rec.DestAmount, rec.Destination,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionRecord, error) {
	if limit <= 0 || limit > maxPage {
		limit = maxPage
	}
	if offset < 0 {
		offset = 0
	}

	query :=
		`SELECT id, account_id, kind, hash, source_asset, dest_asset, amount, dest_amount, destination, created_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.TransactionRecord, 0)
	for rows.Next() {
		var rec models.TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Kind, &rec.Hash, &rec.SourceAsset, &rec.DestAsset,
			&rec.Amount, &rec.DestAmount, &rec.Destination, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
