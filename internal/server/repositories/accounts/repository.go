// Package accounts declares the repository contract for user accounts and
// their sealed wallet keys.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts a new account. A duplicate email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// SetWallet stores the wallet keys once. An account that already has a
	// wallet yields common.ErrWalletExists.
	SetWallet(ctx context.Context, id, publicKey, encryptedKey string) error
	// UpdateSecrets replaces the passphrase components together with the
	// key sealed under them. The row is only written while its sealed key
	// still equals prevKey; otherwise common.ErrConflict is returned.
	UpdateSecrets(ctx context.Context, id, passwordHash, pin, prevKey, encryptedKey string) error
	SetAvatarKey(ctx context.Context, id, key string) error
}
