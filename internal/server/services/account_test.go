package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/auth"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/config"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/dmitrijs2005/stellarkeeper/internal/txengine"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountFixture struct {
	svc    *AccountService
	rm     *fakeRepoManager
	vault  *countingVault
	ledger *fakeLedger
	mock   sqlmock.Sqlmock
	funder *keypair.Full
}

func testConfig(funder *keypair.Full) *config.Config {
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		StartingBalance:              "5",
		AppName:                      "StellarKeeper",
		OpsEmail:                     "ops@example.com",
	}
	if funder != nil {
		cfg.FundingSecret = funder.Seed()
	}
	return cfg
}

func newTestEngine(l *fakeLedger) *txengine.Engine {
	return txengine.New(l, txengine.Config{
		NetworkPassphrase: network.TestNetworkPassphrase,
		PollInterval:      time.Millisecond,
		PollTimeout:       time.Second,
	}, logging.NewNop())
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	db, mock := newMockDB(t)
	f := &accountFixture{
		rm:     newFakeRepoManager(),
		vault:  newCountingVault(),
		ledger: newFakeLedger(),
		mock:   mock,
		funder: keypair.MustRandom(),
	}
	svc, err := NewAccountService(db, f.rm, f.vault, newTestEngine(f.ledger), f.ledger, &fakePresigner{}, testConfig(f.funder), logging.NewNop())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *accountFixture) register(t *testing.T) *models.Account {
	t.Helper()
	a, err := f.svc.Register(context.Background(), "Alice@Example.com", "alice", "correct horse", "1234")
	require.NoError(t, err)
	return a
}

func (f *accountFixture) createWallet(t *testing.T, accountID string) string {
	t.Helper()
	pk, err := f.svc.CreateWallet(context.Background(), accountID)
	require.NoError(t, err)
	return pk
}

type fakePresigner struct {
	err  error
	keys []string
}

func (p *fakePresigner) PresignPut(ctx context.Context, key string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.keys = append(p.keys, key)
	return "https://s3.local/put/" + key, nil
}

func (p *fakePresigner) PresignGet(ctx context.Context, key string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.local/get/" + key, nil
}

func TestNewAccountService_BadFundingSecret(t *testing.T) {
	db, _ := newMockDB(t)
	cfg := testConfig(nil)
	cfg.FundingSecret = "SNOTASEED"

	_, err := NewAccountService(db, newFakeRepoManager(), newCountingVault(), nil, nil, nil, cfg, logging.NewNop())
	assert.ErrorIs(t, err, common.ErrMisconfigured)
}

func TestRegister(t *testing.T) {
	f := newAccountFixture(t)

	a := f.register(t)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.NotEqual(t, "correct horse", a.PasswordHash)
	assert.True(t, strings.HasPrefix(a.PasswordHash, "$2"))
	assert.False(t, a.HasWallet())

	_, err := f.svc.Register(context.Background(), "alice@example.com", "again", "pw", "1234")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	f := newAccountFixture(t)

	tests := []struct {
		name, email, password, pin string
	}{
		{"bad email", "not-an-email", "pw", "1234"},
		{"empty password", "a@b.c", "", "1234"},
		{"short pin", "a@b.c", "pw", "12"},
		{"letters in pin", "a@b.c", "pw", "12ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.email, "u", tt.password, tt.pin)
			assert.ErrorIs(t, err, common.ErrInvalidArgument)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)

	pair, err := f.svc.Login(context.Background(), " ALICE@example.com", "correct horse")
	require.NoError(t, err)
	id, err := auth.GetAccountIDFromToken(pair.AccessToken, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, id)
	assert.NotEmpty(t, pair.RefreshToken)

	_, err = f.svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Login(context.Background(), "bob@example.com", "correct horse")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefreshToken_Rotates(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t)
	pair, err := f.svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	next, err := f.svc.RefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = f.svc.RefreshToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefreshToken_Expired(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.rm.refresh.Create(context.Background(), "acc-1", "old", time.Minute))
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := f.svc.RefreshToken(context.Background(), "old")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestCreateWallet_FundsAndStores(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)

	pk := f.createWallet(t, a.ID)

	tx, op := f.ledger.lastOperation(t)
	assert.Equal(t, f.funder.Address(), tx.SourceAccount().AccountID)
	create, ok := op.(*txnbuild.CreateAccount)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, pk, create.Destination)
	assert.Equal(t, "5.0000000", create.Amount)

	stored, err := f.rm.accounts.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, stored.HasWallet())
	assert.Equal(t, pk, stored.PublicKey)

	s, err := f.vault.Open(context.Background(), stored.EncryptedPrivateKey, passphraseOf(stored))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, pk, s.Address())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWallet_AlreadyExists(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)
	f.createWallet(t, a.ID)

	_, err := f.svc.CreateWallet(context.Background(), a.ID)
	assert.ErrorIs(t, err, common.ErrWalletExists)
	assert.Equal(t, 1, f.ledger.submissions())
}

func TestCreateWallet_FundingRejectedKeepsKeyForRetry(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)
	f.ledger.submitStatus = ledger.StatusError

	_, err := f.svc.CreateWallet(ctx, a.ID)
	require.ErrorIs(t, err, common.ErrLedgerRejected)

	stored, err := f.rm.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, stored.HasWallet(), "sealed key is stored before funding")

	f.ledger.submitStatus = ledger.StatusPending
	f.ledger.unfunded[stored.PublicKey] = true

	pk, err := f.svc.CreateWallet(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.PublicKey, pk)
	assert.Equal(t, 2, f.ledger.submissions())

	_, op := f.ledger.lastOperation(t)
	create, ok := op.(*txnbuild.CreateAccount)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, pk, create.Destination)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWallet_ConfirmationTimeoutKeepsKey(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)

	f.svc.engine = txengine.New(f.ledger, txengine.Config{
		NetworkPassphrase: network.TestNetworkPassphrase,
		PollInterval:      time.Millisecond,
		PollTimeout:       20 * time.Millisecond,
	}, logging.NewNop())
	f.ledger.txStatus = ledger.StatusNotFound

	_, err := f.svc.CreateWallet(ctx, a.ID)
	require.ErrorIs(t, err, common.ErrLedgerTimeout)

	stored, err := f.rm.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, stored.HasWallet())
	s, err := f.vault.Open(ctx, stored.EncryptedPrivateKey, passphraseOf(stored))
	require.NoError(t, err)
	s.Close()

	// the funding transaction landed after all
	_, err = f.svc.CreateWallet(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrWalletExists)
	assert.Equal(t, 1, f.ledger.submissions())
}

func TestCreateWallet_NoFundingAccount(t *testing.T) {
	db, _ := newMockDB(t)
	svc, err := NewAccountService(db, newFakeRepoManager(), newCountingVault(), nil, nil, nil, testConfig(nil), logging.NewNop())
	require.NoError(t, err)

	_, err = svc.CreateWallet(context.Background(), "acc-1")
	assert.ErrorIs(t, err, common.ErrMisconfigured)
}

func TestChangePassword_ReencryptsKey(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)
	pk := f.createWallet(t, a.ID)
	before, _ := f.rm.accounts.GetByID(ctx, a.ID)

	pair, err := f.svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.ChangePassword(ctx, a.ID, "correct horse", "battery staple"))

	after, _ := f.rm.accounts.GetByID(ctx, a.ID)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	assert.NotEqual(t, before.EncryptedPrivateKey, after.EncryptedPrivateKey)

	s, err := f.vault.Open(ctx, after.EncryptedPrivateKey, passphraseOf(after))
	require.NoError(t, err)
	assert.Equal(t, pk, s.Address())
	s.Close()

	_, err = f.vault.Open(ctx, after.EncryptedPrivateKey, passphraseOf(before))
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)

	_, err = f.svc.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "sessions are revoked")

	_, err = f.svc.Login(ctx, "alice@example.com", "battery staple")
	assert.NoError(t, err)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)

	err := f.svc.ChangePassword(context.Background(), a.ID, "nope", "new")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestChangePIN(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)
	pk := f.createWallet(t, a.ID)

	assert.ErrorIs(t, f.svc.ChangePIN(ctx, a.ID, "0000", "5678"), common.ErrInvalidPIN)
	assert.ErrorIs(t, f.svc.ChangePIN(ctx, a.ID, "1234", "56"), common.ErrInvalidArgument)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.ChangePIN(ctx, a.ID, "1234", "5678"))

	after, _ := f.rm.accounts.GetByID(ctx, a.ID)
	assert.Equal(t, "5678", after.PIN)
	s, err := f.vault.Open(ctx, after.EncryptedPrivateKey, passphraseOf(after))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, pk, s.Address())
}

func TestChangePassword_StaleReadDoesNotClearNewWallet(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)

	// read before the wallet exists, write after it was created
	stale, err := f.rm.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	pk := f.createWallet(t, a.ID)

	next := *stale
	next.PasswordHash = "$2a$10$other"
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.updateSecrets(ctx, stale, &next)
	require.ErrorIs(t, err, common.ErrConflict)

	stored, err := f.rm.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, stored.HasWallet())
	assert.Equal(t, pk, stored.PublicKey)
	assert.Equal(t, a.PasswordHash, stored.PasswordHash)

	s, err := f.vault.Open(ctx, stored.EncryptedPrivateKey, passphraseOf(stored))
	require.NoError(t, err)
	s.Close()
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestChangePIN_WithoutWalletSkipsReseal(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.ChangePIN(context.Background(), a.ID, "1234", "4321"))

	after, _ := f.rm.accounts.GetByID(context.Background(), a.ID)
	assert.Equal(t, "4321", after.PIN)
	assert.Empty(t, after.EncryptedPrivateKey)
}

func TestExportPrivateKey(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)

	_, err := f.svc.ExportPrivateKey(ctx, a.ID, "1234")
	assert.ErrorIs(t, err, common.ErrNoWallet)

	pk := f.createWallet(t, a.ID)

	_, err = f.svc.ExportPrivateKey(ctx, a.ID, "9999")
	assert.ErrorIs(t, err, common.ErrInvalidPIN)
	assert.Zero(t, f.vault.openCalls())

	seed, err := f.svc.ExportPrivateKey(ctx, a.ID, "1234")
	require.NoError(t, err)
	kp, err := keypair.ParseFull(seed)
	require.NoError(t, err)
	assert.Equal(t, pk, kp.Address())
}

func TestAvatarUploadURL(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	a := f.register(t)

	_, err := f.svc.AvatarURL(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	key, url, err := f.svc.AvatarUploadURL(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "avatars/"+a.ID+"/"))
	assert.Equal(t, "https://s3.local/put/"+key, url)

	stored, _ := f.rm.accounts.GetByID(ctx, a.ID)
	assert.Equal(t, key, stored.AvatarKey)

	get, err := f.svc.AvatarURL(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/get/"+key, get)
}

func TestAvatarUploadURL_PresignFails(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t)
	f.svc.presigner = &fakePresigner{err: errors.New("no creds")}

	_, _, err := f.svc.AvatarUploadURL(context.Background(), a.ID)
	require.Error(t, err)

	stored, _ := f.rm.accounts.GetByID(context.Background(), a.ID)
	assert.Empty(t, stored.AvatarKey)
}
