package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/custody"
	"github.com/dmitrijs2005/stellarkeeper/internal/dbx"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/notify"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/transactions"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"
)

// ---- repositories ----

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*models.Account
	seq  int
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	m.seq++
	cp := *a
	cp.ID = fmt.Sprintf("acc-%d", m.seq)
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *a
	return &out, nil
}

func (m *memAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memAccounts) SetWallet(ctx context.Context, id, publicKey, encryptedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if a.PublicKey != "" {
		return common.ErrWalletExists
	}
	a.PublicKey, a.EncryptedPrivateKey = publicKey, encryptedKey
	return nil
}

func (m *memAccounts) UpdateSecrets(ctx context.Context, id, passwordHash, pin, prevKey, encryptedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.EncryptedPrivateKey != prevKey {
		return common.ErrConflict
	}
	a.PasswordHash, a.PIN, a.EncryptedPrivateKey = passwordHash, pin, encryptedKey
	return nil
}

func (m *memAccounts) SetAvatarKey(ctx context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.AvatarKey = key
	return nil
}

type memRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func (m *memRefreshTokens) Create(ctx context.Context, accountID, token string, validity time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = &models.RefreshToken{AccountID: accountID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (m *memRefreshTokens) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (m *memRefreshTokens) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *memRefreshTokens) DeleteByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.tokens {
		if t.AccountID == accountID {
			delete(m.tokens, k)
		}
	}
	return nil
}

type memTransactions struct {
	mu      sync.Mutex
	records []models.TransactionRecord
	err     error
}

func (m *memTransactions) Create(ctx context.Context, r *models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	r.ID = fmt.Sprintf("tx-%d", len(m.records)+1)
	r.CreatedAt = time.Now().Add(time.Duration(len(m.records)) * time.Second)
	m.records = append(m.records, *r)
	return nil
}

func (m *memTransactions) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionRecord
	for _, r := range m.records {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeRepoManager struct {
	accounts *memAccounts
	refresh  *memRefreshTokens
	txs      *memTransactions
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		accounts: &memAccounts{byID: map[string]*models.Account{}},
		refresh:  &memRefreshTokens{tokens: map[string]*models.RefreshToken{}},
		txs:      &memTransactions{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository           { return m.accounts }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRepoManager) Transactions(dbx.DBTX) transactions.Repository   { return m.txs }

// ---- ledger ----

// fakeLedger accepts every submission and confirms it on the first
// status lookup unless txStatus says otherwise. Accounts listed in unfunded
// do not exist.
type fakeLedger struct {
	mu sync.Mutex

	sendPaths    []ledger.PaymentPath
	receivePaths []ledger.PaymentPath
	balances     map[string][]ledger.Balance
	submitStatus ledger.Status
	txStatus     ledger.Status
	unfunded     map[string]bool

	submitted []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:     map[string][]ledger.Balance{},
		submitStatus: ledger.StatusPending,
		txStatus:     ledger.StatusSuccess,
		unfunded:     map[string]bool{},
	}
}

func (f *fakeLedger) LoadAccount(ctx context.Context, id string) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unfunded[id] {
		return nil, fmt.Errorf("load account: %w", common.ErrorNotFound)
	}
	return &ledger.Account{ID: id, Sequence: 100, Balances: f.balances[id]}, nil
}

func (f *fakeLedger) FetchBaseFee(context.Context) (int64, error) { return 100, nil }

func (f *fakeLedger) SubmitTransaction(ctx context.Context, env string) (*ledger.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, env)
	return &ledger.SubmitResult{Status: f.submitStatus}, nil
}

func (f *fakeLedger) GetTransactionStatus(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ledger.TxStatus{Status: f.txStatus, Ledger: 42}, nil
}

func (f *fakeLedger) FindStrictSendPaths(context.Context, ledger.StrictSendQuery) ([]ledger.PaymentPath, error) {
	return f.sendPaths, nil
}

func (f *fakeLedger) FindStrictReceivePaths(context.Context, ledger.StrictReceiveQuery) ([]ledger.PaymentPath, error) {
	return f.receivePaths, nil
}

// lastOperation decodes the most recent submission.
func (f *fakeLedger) lastOperation(t *testing.T) (*txnbuild.Transaction, txnbuild.Operation) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.submitted)

	gtx, err := txnbuild.TransactionFromXDR(f.submitted[len(f.submitted)-1])
	require.NoError(t, err)
	tx, ok := gtx.Transaction()
	require.True(t, ok)
	require.Len(t, tx.Operations(), 1)
	return tx, tx.Operations()[0]
}

func (f *fakeLedger) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// ---- custody ----

type countingVault struct {
	*custody.Vault
	mu    sync.Mutex
	opens int
}

func newCountingVault() *countingVault {
	return &countingVault{Vault: custody.NewVault(logging.NewNop(), nil)}
}

func (v *countingVault) Open(ctx context.Context, ct string, p custody.Passphrase) (*custody.Signer, error) {
	v.mu.Lock()
	v.opens++
	v.mu.Unlock()
	return v.Vault.Open(ctx, ct, p)
}

func (v *countingVault) openCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opens
}

// ---- notifications ----

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

// ---- db ----

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}
