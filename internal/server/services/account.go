// Package services contains server-side business logic. This file implements
// AccountService: registration, login and session tokens, wallet creation
// and every change to the secrets the wallet key is sealed under.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/custody"
	"github.com/dmitrijs2005/stellarkeeper/internal/dbx"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/auth"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/config"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/stellarkeeper/internal/txengine"
	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// KeyVault is the part of custody.Vault the services use.
type KeyVault interface {
	Generate(ctx context.Context, p custody.Passphrase) (publicKey, ciphertext string, err error)
	Open(ctx context.Context, ciphertext string, p custody.Passphrase) (*custody.Signer, error)
	Reseal(ctx context.Context, ciphertext string, old, next custody.Passphrase) (string, error)
}

// Executor runs one ledger operation to a terminal state.
type Executor interface {
	Execute(ctx context.Context, in txengine.Intent, signer txengine.Signer) (*txengine.Receipt, error)
}

// Presigner issues short-lived object storage URLs.
type Presigner interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// fundingSigner signs wallet funding transactions with the server's own
// funding account.
type fundingSigner struct{ kp *keypair.Full }

func (f fundingSigner) Keypair() *keypair.Full { return f.kp }

// AccountService manages accounts and their wallet keys.
type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	vault                        KeyVault
	engine                       Executor
	chain                        AccountLoader
	presigner                    Presigner
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	funder                       *keypair.Full
	startingBalance              string
	now                          func() time.Time
}

// NewAccountService constructs an AccountService. Wallet creation stays
// disabled when cfg.FundingSecret is empty.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, vault KeyVault, engine Executor,
	chain AccountLoader, presigner Presigner, cfg *config.Config, l logging.Logger) (*AccountService, error) {

	s := &AccountService{
		db:                           db,
		repomanager:                  m,
		vault:                        vault,
		engine:                       engine,
		chain:                        chain,
		presigner:                    presigner,
		logger:                       l.With("module", "accounts"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		startingBalance:              cfg.StartingBalance,
		now:                          time.Now,
	}

	if cfg.FundingSecret != "" {
		kp, err := keypair.ParseFull(cfg.FundingSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: funding secret: %v", common.ErrMisconfigured, err)
		}
		s.funder = kp
	}
	return s, nil
}

func passphraseOf(a *models.Account) custody.Passphrase {
	return custody.Passphrase{Email: a.Email, PasswordHash: a.PasswordHash, PIN: a.PIN}
}

// Register creates an account. The password is stored as a bcrypt hash.
func (s *AccountService) Register(ctx context.Context, email, username, password, pin string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email", common.ErrInvalidArgument)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password required", common.ErrInvalidArgument)
	}
	if err := validatePIN(pin); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	a := &models.Account{Email: email, Username: username, PasswordHash: string(hash), PIN: pin}
	repo := s.repomanager.Accounts(s.db)
	a, err = repo.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	s.logger.Info(ctx, "account registered", "account", a.ID)
	return a, nil
}

// Login verifies the password and returns a new TokenPair. Unknown emails
// and wrong passwords are indistinguishable.
func (s *AccountService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	repo := s.repomanager.Accounts(s.db)
	a, err := repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, a.ID, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.AccountID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// CreateWallet generates the account's keypair, stores it sealed and funds
// it from the server's funding account.
//
// The sealed key is committed before the funding transaction is submitted,
// so a failed or unconfirmed funding never loses it. Calling CreateWallet
// again for a stored wallet that is not on the ledger yet retries the
// funding; a funded wallet yields common.ErrWalletExists.
func (s *AccountService) CreateWallet(ctx context.Context, accountID string) (string, error) {
	if s.funder == nil || s.chain == nil {
		return "", fmt.Errorf("%w: wallet funding is not configured", common.ErrMisconfigured)
	}

	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if a.HasWallet() {
		funded, err := s.onLedger(ctx, a.PublicKey)
		if err != nil {
			return "", err
		}
		if funded {
			return "", common.ErrWalletExists
		}
		s.logger.Info(ctx, "retrying wallet funding", "account", a.ID, "public_key", a.PublicKey)
	} else {
		publicKey, ciphertext, err := s.vault.Generate(ctx, passphraseOf(a))
		if err != nil {
			return "", err
		}
		if err := s.repomanager.Accounts(s.db).SetWallet(ctx, a.ID, publicKey, ciphertext); err != nil {
			return "", err
		}
		a.PublicKey = publicKey
	}

	_, err = s.engine.Execute(ctx, txengine.Intent{
		Source: s.funder.Address(),
		Kind:   txengine.KindCreateAccount,
		Operation: &txnbuild.CreateAccount{
			Destination: a.PublicKey,
			Amount:      s.startingBalance,
		},
	}, fundingSigner{kp: s.funder})
	if err != nil {
		return "", fmt.Errorf("fund wallet %s: %w", a.PublicKey, err)
	}

	s.logger.Info(ctx, "wallet created", "account", a.ID, "public_key", a.PublicKey)
	return a.PublicKey, nil
}

// onLedger reports whether accountID exists on the ledger.
func (s *AccountService) onLedger(ctx context.Context, accountID string) (bool, error) {
	_, err := s.chain.LoadAccount(ctx, accountID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ChangePassword replaces the password and re-seals the wallet key under
// the new passphrase in one transaction. All sessions are revoked.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password required", common.ErrInvalidArgument)
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(oldPassword)) != nil {
		return common.ErrorUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return common.ErrorInternal
	}

	next := *a
	next.PasswordHash = string(hash)
	if err := s.updateSecrets(ctx, a, &next); err != nil {
		return err
	}
	s.logger.Info(ctx, "password changed", "account", a.ID)
	return nil
}

// ChangePIN replaces the PIN and re-seals the wallet key.
func (s *AccountService) ChangePIN(ctx context.Context, accountID, oldPIN, newPIN string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !pinMatches(a.PIN, oldPIN) {
		return common.ErrInvalidPIN
	}

	next := *a
	next.PIN = newPIN
	if err := s.updateSecrets(ctx, a, &next); err != nil {
		return err
	}
	s.logger.Info(ctx, "pin changed", "account", a.ID)
	return nil
}

func (s *AccountService) updateSecrets(ctx context.Context, cur, next *models.Account) error {
	sealed := cur.EncryptedPrivateKey
	if cur.HasWallet() {
		var err error
		sealed, err = s.vault.Reseal(ctx, cur.EncryptedPrivateKey, passphraseOf(cur), passphraseOf(next))
		if err != nil {
			return err
		}
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := s.repomanager.Accounts(tx).UpdateSecrets(ctx, cur.ID, next.PasswordHash, next.PIN, cur.EncryptedPrivateKey, sealed)
		if err != nil {
			return err
		}
		return s.repomanager.RefreshTokens(tx).DeleteByAccount(ctx, cur.ID)
	})
}

// ExportPrivateKey returns the wallet's secret seed after a PIN check.
func (s *AccountService) ExportPrivateKey(ctx context.Context, accountID, pin string) (string, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !a.HasWallet() {
		return "", common.ErrNoWallet
	}
	if !pinMatches(a.PIN, pin) {
		return "", common.ErrInvalidPIN
	}

	signer, err := s.vault.Open(ctx, a.EncryptedPrivateKey, passphraseOf(a))
	if err != nil {
		return "", err
	}
	defer signer.Close()

	s.logger.Warn(ctx, "private key exported", "account", a.ID)
	return signer.Keypair().Seed(), nil
}

// AvatarUploadURL reserves a storage key for the account's profile picture
// and returns a presigned PUT URL for it.
func (s *AccountService) AvatarUploadURL(ctx context.Context, accountID string) (key, url string, err error) {
	if s.presigner == nil {
		return "", "", fmt.Errorf("%w: object storage is not configured", common.ErrMisconfigured)
	}
	key = avatarKey(accountID, s.now())
	url, err = s.presigner.PresignPut(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	if err := s.repomanager.Accounts(s.db).SetAvatarKey(ctx, accountID, key); err != nil {
		return "", "", err
	}
	return key, url, nil
}

// AvatarURL returns a presigned GET URL for the stored profile picture.
func (s *AccountService) AvatarURL(ctx context.Context, accountID string) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("%w: object storage is not configured", common.ErrMisconfigured)
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if a.AvatarKey == "" {
		return "", common.ErrorNotFound
	}
	return s.presigner.PresignGet(ctx, a.AvatarKey)
}

func avatarKey(accountID string, d time.Time) string {
	return fmt.Sprintf("avatars/%s/%d/%02d/%v", accountID, d.Year(), d.Month(), uuid.New())
}

func validatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return fmt.Errorf("%w: pin must be 4 to 8 digits", common.ErrInvalidArgument)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: pin must be digits only", common.ErrInvalidArgument)
		}
	}
	return nil
}

func pinMatches(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func (s *AccountService) generateTokenPair(ctx context.Context, accountID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(accountID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, accountID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
