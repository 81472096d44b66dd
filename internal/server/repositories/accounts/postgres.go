package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/dbx"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository works over dbx.DBTX, so it can run inside a
// transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const selectAccount = `SELECT id, email, username, password_hash, pin, public_key, encrypted_private_key, avatar_key, created_at
		 FROM accounts`

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (email, username, password_hash, pin)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, a.Email, a.Username, a.PasswordHash, a.PIN).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+" WHERE id = $1", id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+" WHERE email = $1", email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.PIN,
		&a.PublicKey, &a.EncryptedPrivateKey, &a.AvatarKey, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) SetWallet(ctx context.Context, id, publicKey, encryptedKey string) error {
	query :=
		`UPDATE accounts SET public_key = $2, encrypted_private_key = $3
		 WHERE id = $1 AND public_key = ''`

	res, err := r.db.ExecContext(ctx, query, id, publicKey, encryptedKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrWalletExists
	}
	return nil
}

func (r *PostgresRepository) UpdateSecrets(ctx context.Context, id, passwordHash, pin, prevKey, encryptedKey string) error {
	query :=
		`UPDATE accounts SET password_hash = $2, pin = $3, encrypted_private_key = $5
		 WHERE id = $1 AND encrypted_private_key = $4`

	err := r.execOne(ctx, query, id, passwordHash, pin, prevKey, encryptedKey)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrConflict
	}
	return err
}

func (r *PostgresRepository) SetAvatarKey(ctx context.Context, id, key string) error {
	return r.execOne(ctx, `UPDATE accounts SET avatar_key = $2 WHERE id = $1`, id, key)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
