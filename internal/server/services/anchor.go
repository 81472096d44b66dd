package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep10"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep24"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/repomanager"
	"google.golang.org/protobuf/types/known/structpb"
)

// TransferServer is the anchor's interactive transfer API.
// *sep24.Client implements it.
type TransferServer interface {
	Info(ctx context.Context, creds sep10.Credentials) (*structpb.Struct, error)
	StartInteractive(ctx context.Context, creds sep10.Credentials, direction, assetCode string) (*sep24.Interactive, error)
	Transactions(ctx context.Context, creds sep10.Credentials, assetCode string) (*structpb.Struct, error)
}

// AnchorService runs anchor deposit and withdrawal flows for a wallet. The
// anchor session is opened with the wallet's own key.
type AnchorService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	transfers   TransferServer
}

func NewAnchorService(db *sql.DB, m repomanager.RepositoryManager, transfers TransferServer) *AnchorService {
	return &AnchorService{db: db, repomanager: m, transfers: transfers}
}

func (s *AnchorService) credentials(ctx context.Context, accountID string) (sep10.Credentials, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return sep10.Credentials{}, err
	}
	if !a.HasWallet() {
		return sep10.Credentials{}, common.ErrNoWallet
	}
	return sep10.Credentials{
		PublicKey:    a.PublicKey,
		EncryptedKey: a.EncryptedPrivateKey,
		Passphrase:   passphraseOf(a),
	}, nil
}

func (s *AnchorService) Info(ctx context.Context, accountID string) (*structpb.Struct, error) {
	creds, err := s.credentials(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.transfers.Info(ctx, creds)
}

// Interactive starts a deposit or withdrawal and returns the URL the user
// must open to finish it.
func (s *AnchorService) Interactive(ctx context.Context, accountID, direction, assetCode string) (*sep24.Interactive, error) {
	creds, err := s.credentials(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.transfers.StartInteractive(ctx, creds, direction, assetCode)
}

func (s *AnchorService) Transactions(ctx context.Context, accountID, assetCode string) (*structpb.Struct, error) {
	creds, err := s.credentials(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.transfers.Transactions(ctx, creds, assetCode)
}
