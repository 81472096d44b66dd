package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/notify"
	"github.com/dmitrijs2005/stellarkeeper/internal/pathrouter"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletFixture struct {
	*accountFixture
	wallet   *WalletService
	registry *assets.Registry
	events   *recordingSink
	account  *models.Account
	pk       string
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()
	af := newAccountFixture(t)
	reg, err := assets.Default(assets.Testnet)
	require.NoError(t, err)

	f := &walletFixture{accountFixture: af, registry: reg, events: &recordingSink{}}
	f.wallet = NewWalletService(af.svc.db, af.rm, af.vault, newTestEngine(af.ledger),
		pathrouter.New(af.ledger, logging.NewNop()), reg, af.ledger, f.events, testConfig(nil), logging.NewNop())

	f.account = af.register(t)
	f.pk = af.createWallet(t, f.account.ID)
	return f
}

func (f *walletFixture) asset(t *testing.T, code string) assets.Asset {
	t.Helper()
	a, err := f.registry.Resolve(code)
	require.NoError(t, err)
	return a
}

func pathAsset(a assets.Asset) ledger.PathAsset {
	if a.IsNative() {
		return ledger.PathAsset{Type: "native"}
	}
	return ledger.PathAsset{Type: "credit_alphanum4", Code: a.Code, Issuer: a.Issuer}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestWallet_CreateFundTrustAndStrictSend(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()
	usdc := f.asset(t, "USDC")

	pub := &recordingPublisher{}
	notifier := notify.NewNotifier(pub, 0, logging.NewNop())
	f.wallet.events = notifier

	res, err := f.wallet.ChangeTrust(ctx, f.account.ID, "USDC", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hash)
	_, op := f.ledger.lastOperation(t)
	trust, ok := op.(*txnbuild.ChangeTrust)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, "USDC", trust.Line.GetCode())
	assert.Equal(t, usdc.Issuer, trust.Line.GetIssuer())

	f.ledger.sendPaths = []ledger.PaymentPath{{
		SourceAsset:       pathAsset(assets.Native),
		SourceAmount:      "100.0000000",
		DestinationAsset:  pathAsset(usdc),
		DestinationAmount: "12.5000000",
	}}

	res, err = f.wallet.StrictSend(ctx, f.account.ID, ConversionRequest{
		SourceAsset: "XLM", DestAsset: "USDC", Amount: "100", Slippage: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hash)
	assert.Equal(t, "12.2500000", res.Bound)

	tx, op := f.ledger.lastOperation(t)
	assert.Equal(t, f.pk, tx.SourceAccount().AccountID)
	send, ok := op.(*txnbuild.PathPaymentStrictSend)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, "100.0000000", send.SendAmount)
	assert.Equal(t, "12.2500000", send.DestMin)
	assert.Equal(t, f.pk, send.Destination)

	notifier.Wait()
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, notify.TypeWithdrawal, ev.Type)
	assert.Equal(t, "USDC", ev.Currency)
	assert.Equal(t, "12.2500000", ev.Amount, "amount is in the destination asset")
	assert.Equal(t, res.Hash, ev.TxHash)
	assert.Equal(t, "alice@example.com", ev.To)
	assert.NotEmpty(t, ev.ID)

	hist, err := f.wallet.History(ctx, f.account.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "strict_send", hist[0].Kind)
	assert.Equal(t, "change_trust", hist[1].Kind)
}

func TestWallet_SelfPaymentNeverOpensKey(t *testing.T) {
	f := newWalletFixture(t)

	_, err := f.wallet.Pay(context.Background(), f.account.ID, PaymentRequest{
		Destination: f.pk, AssetCode: "XLM", Amount: "1",
	})
	assert.ErrorIs(t, err, common.ErrInvalidAddress)
	assert.Zero(t, f.vault.openCalls())
	assert.Equal(t, 1, f.ledger.submissions(), "only the funding transaction")
}

func TestWallet_PayValidation(t *testing.T) {
	f := newWalletFixture(t)
	other := keypair.MustRandom().Address()

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"malformed destination", PaymentRequest{Destination: "GBAD", AssetCode: "XLM", Amount: "1"}, common.ErrInvalidAddress},
		{"secret seed as destination", PaymentRequest{Destination: keypair.MustRandom().Seed(), AssetCode: "XLM", Amount: "1"}, common.ErrInvalidAddress},
		{"unknown asset", PaymentRequest{Destination: other, AssetCode: "DOGE", Amount: "1"}, common.ErrUnknownAsset},
		{"zero amount", PaymentRequest{Destination: other, AssetCode: "XLM", Amount: "0"}, common.ErrInvalidAmount},
		{"too precise", PaymentRequest{Destination: other, AssetCode: "XLM", Amount: "0.00000001"}, common.ErrInvalidAmount},
		{"long memo", PaymentRequest{Destination: other, AssetCode: "XLM", Amount: "1", Memo: "0123456789012345678901234567890"}, common.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wallet.Pay(context.Background(), f.account.ID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.vault.openCalls())
}

func TestWallet_PayWithBankDetailsNotifiesOps(t *testing.T) {
	f := newWalletFixture(t)
	ngnc := f.asset(t, "NGNC")
	anchorAccount := keypair.MustRandom().Address()
	f.wallet.opsEmail = "ops@example.com"

	res, err := f.wallet.Pay(context.Background(), f.account.ID, PaymentRequest{
		Destination: anchorAccount,
		AssetCode:   "NGNC",
		Amount:      "2500",
		Memo:        "payout 17",
		Bank:        &BankDetails{AccountNumber: "0123456789", AccountName: "Alice A", BankName: "First Bank"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.vault.openCalls())

	tx, op := f.ledger.lastOperation(t)
	pay, ok := op.(*txnbuild.Payment)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, anchorAccount, pay.Destination)
	assert.Equal(t, "2500.0000000", pay.Amount)
	assert.Equal(t, ngnc.Code, pay.Asset.GetCode())
	assert.Equal(t, txnbuild.MemoText("payout 17"), tx.Memo())

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, notify.TypeWithdrawal, events[0].Type)
	assert.Equal(t, "NGNC", events[0].Currency)
	assert.Equal(t, "2500", events[0].Amount)

	assert.Equal(t, notify.TypeFiatWithdrawal, events[1].Type)
	assert.Equal(t, "ops@example.com", events[1].To)
	assert.Equal(t, "alice@example.com", events[1].Email)
	assert.Equal(t, "First Bank", events[1].BankName)
	assert.Equal(t, res.Hash, events[1].TxHash)
}

func TestWallet_StrictReceive(t *testing.T) {
	f := newWalletFixture(t)
	usdc := f.asset(t, "USDC")
	dest := keypair.MustRandom().Address()

	f.ledger.receivePaths = []ledger.PaymentPath{
		{SourceAsset: pathAsset(usdc), SourceAmount: "1", DestinationAsset: pathAsset(assets.Native), DestinationAmount: "100"},
		{SourceAsset: pathAsset(assets.Native), SourceAmount: "100", DestinationAsset: pathAsset(usdc), DestinationAmount: "12",
			Path: []ledger.PathAsset{pathAsset(f.asset(t, "BTC"))}},
	}

	res, err := f.wallet.StrictReceive(context.Background(), f.account.ID, ConversionRequest{
		Destination: dest, SourceAsset: "XLM", DestAsset: "USDC", Amount: "12", Slippage: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "101.0101010", res.Bound)

	_, op := f.ledger.lastOperation(t)
	recv, ok := op.(*txnbuild.PathPaymentStrictReceive)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, "101.0101010", recv.SendMax)
	assert.Equal(t, "12.0000000", recv.DestAmount)
	assert.Equal(t, dest, recv.Destination)
	require.Len(t, recv.Path, 1)
	assert.Equal(t, "BTC", recv.Path[0].GetCode())

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, "USDC", events[0].Currency)
	assert.Equal(t, "12", events[0].Amount)
	assert.Equal(t, dest, events[0].ReceiverAddress)
}

func TestWallet_NoPathFailsBeforeKeyIsOpened(t *testing.T) {
	f := newWalletFixture(t)

	_, err := f.wallet.Swap(context.Background(), f.account.ID, ConversionRequest{
		SourceAsset: "XLM", DestAsset: "USDC", Amount: "100", Slippage: 2,
	})
	assert.ErrorIs(t, err, common.ErrNoPathFound)
	assert.Zero(t, f.vault.openCalls())
	assert.Empty(t, f.events.all())
}

func TestWallet_ConversionValidation(t *testing.T) {
	f := newWalletFixture(t)

	tests := []struct {
		name string
		req  ConversionRequest
		want error
	}{
		{"same asset", ConversionRequest{SourceAsset: "XLM", DestAsset: "native", Amount: "1"}, common.ErrInvalidArgument},
		{"bad destination", ConversionRequest{Destination: "nope", SourceAsset: "XLM", DestAsset: "USDC", Amount: "1"}, common.ErrInvalidAddress},
		{"unknown source", ConversionRequest{SourceAsset: "DOGE", DestAsset: "USDC", Amount: "1"}, common.ErrUnknownAsset},
		{"bad slippage", ConversionRequest{SourceAsset: "XLM", DestAsset: "USDC", Amount: "1", DestAmount: "1", Slippage: 101}, common.ErrInvalidSlippage},
	}
	usdc := f.asset(t, "USDC")
	f.ledger.sendPaths = []ledger.PaymentPath{{SourceAsset: pathAsset(assets.Native), SourceAmount: "1",
		DestinationAsset: pathAsset(usdc), DestinationAmount: "1"}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wallet.StrictSend(context.Background(), f.account.ID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.vault.openCalls())
}

func TestWallet_ChangeTrustValidation(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	_, err := f.wallet.ChangeTrust(ctx, f.account.ID, "XLM", "")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = f.wallet.ChangeTrust(ctx, f.account.ID, "USDC", "-1")
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = f.wallet.ChangeTrust(ctx, f.account.ID, "DOGE", "")
	assert.ErrorIs(t, err, common.ErrUnknownAsset)
	assert.Zero(t, f.vault.openCalls())
}

func TestWallet_RemoveTrust(t *testing.T) {
	f := newWalletFixture(t)

	_, err := f.wallet.RemoveTrust(context.Background(), f.account.ID, "yUSDC")
	require.NoError(t, err)

	_, op := f.ledger.lastOperation(t)
	trust, ok := op.(*txnbuild.ChangeTrust)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, "0.0000000", trust.Limit)
	assert.Empty(t, f.events.all())
}

func TestWallet_NoWallet(t *testing.T) {
	f := newWalletFixture(t)
	other, err := f.svc.Register(context.Background(), "bob@example.com", "bob", "pw", "1111")
	require.NoError(t, err)

	_, err = f.wallet.Pay(context.Background(), other.ID, PaymentRequest{Destination: f.pk, AssetCode: "XLM", Amount: "1"})
	assert.ErrorIs(t, err, common.ErrNoWallet)

	_, err = f.wallet.Balances(context.Background(), other.ID)
	assert.ErrorIs(t, err, common.ErrNoWallet)
}

func TestWallet_Balances(t *testing.T) {
	f := newWalletFixture(t)
	f.ledger.balances[f.pk] = []ledger.Balance{
		{AssetType: "native", Balance: "5.0000000"},
		{AssetType: "credit_alphanum4", AssetCode: "USDC", AssetIssuer: "GA5Z", Balance: "12.2500000"},
		{AssetType: "credit_alphanum12", AssetCode: "yUSDC", AssetIssuer: "GDGT", Balance: "3.0000000"},
	}

	p, err := f.wallet.Balances(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pk, p.PublicKey)
	require.Len(t, p.Base, 2)
	assert.Equal(t, "XLM", p.Base[0].Code())
	assert.Equal(t, "USDC", p.Base[1].Code())
	require.Len(t, p.Yield, 1)
	assert.Equal(t, "yUSDC", p.Yield[0].Code())
}

func TestWallet_HistoryFailureDoesNotFailOperation(t *testing.T) {
	f := newWalletFixture(t)
	f.rm.txs.err = errors.New("db down")

	res, err := f.wallet.Pay(context.Background(), f.account.ID, PaymentRequest{
		Destination: keypair.MustRandom().Address(), AssetCode: "XLM", Amount: "1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hash)
}

func TestWallet_HistoryPaging(t *testing.T) {
	f := newWalletFixture(t)

	_, err := f.wallet.History(context.Background(), f.account.ID, -1, 0)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	hist, err := f.wallet.History(context.Background(), f.account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
