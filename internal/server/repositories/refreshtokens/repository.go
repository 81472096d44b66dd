// Package refreshtokens declares the repository contract for rotating
// session refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
)

type Repository interface {
	// Create stores token for accountID, valid for validity from now.
	Create(ctx context.Context, accountID, token string, validity time.Duration) error
	// Find returns common.ErrorNotFound for unknown tokens.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
	// DeleteByAccount revokes every session of an account.
	DeleteByAccount(ctx context.Context, accountID string) error
}
