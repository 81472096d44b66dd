package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/notify"
	"github.com/dmitrijs2005/stellarkeeper/internal/pathrouter"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/config"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/models"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/stellarkeeper/internal/txengine"
	"github.com/stellar/go/amount"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
)

// maxMemoText is the ledger's limit for text memos, in bytes.
const maxMemoText = 28

// Planner prices conversions. *pathrouter.Router implements it.
type Planner interface {
	PlanStrictSend(ctx context.Context, src, dst assets.Asset, sendAmount, destEstimate string, slippage float64) (*pathrouter.Quote, error)
	PlanStrictReceive(ctx context.Context, src, dst assets.Asset, destAmount, sourceEstimate string, slippage float64) (*pathrouter.Quote, error)
}

// AccountLoader reads on-chain account state.
type AccountLoader interface {
	LoadAccount(ctx context.Context, accountID string) (*ledger.Account, error)
}

// EventSink takes notification events for background delivery.
type EventSink interface {
	Notify(ev notify.Event)
}

// PaymentRequest sends Amount of AssetCode to Destination. Bank details,
// when present, mark a fiat withdrawal through the anchor.
type PaymentRequest struct {
	Destination string
	AssetCode   string
	Amount      string
	Memo        string
	Bank        *BankDetails
}

// BankDetails identify the payout account of a fiat withdrawal.
type BankDetails struct {
	AccountNumber string
	AccountName   string
	BankName      string
}

// ConversionRequest describes a path payment. For strict-send Amount is
// what leaves the wallet and DestAmount an optional estimate of what
// arrives; for strict-receive Amount is what must arrive and DestAmount an
// optional estimate of the source cost. An empty Destination converts into
// the wallet itself.
type ConversionRequest struct {
	Destination string
	SourceAsset string
	DestAsset   string
	Amount      string
	DestAmount  string
	Slippage    float64
}

// OperationResult is returned by every mutating wallet operation.
type OperationResult struct {
	Hash   string
	Ledger int64
	// Bound is the slippage guard used by conversions.
	Bound string
}

// Portfolio splits balances into base assets and yield-bearing variants.
type Portfolio struct {
	PublicKey string
	Base      []ledger.Balance
	Yield     []ledger.Balance
}

// WalletService runs wallet operations for an authenticated account.
type WalletService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       KeyVault
	engine      Executor
	router      Planner
	registry    *assets.Registry
	accounts    AccountLoader
	events      EventSink
	appName     string
	opsEmail    string
	logger      logging.Logger
	now         func() time.Time
}

func NewWalletService(db *sql.DB, m repomanager.RepositoryManager, vault KeyVault, engine Executor,
	router Planner, registry *assets.Registry, accounts AccountLoader, events EventSink,
	cfg *config.Config, l logging.Logger) *WalletService {
	return &WalletService{
		db:          db,
		repomanager: m,
		vault:       vault,
		engine:      engine,
		router:      router,
		registry:    registry,
		accounts:    accounts,
		events:      events,
		appName:     cfg.AppName,
		opsEmail:    cfg.OpsEmail,
		logger:      l.With("module", "wallet"),
		now:         time.Now,
	}
}

func (s *WalletService) wallet(ctx context.Context, accountID string) (*models.Account, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.HasWallet() {
		return nil, common.ErrNoWallet
	}
	return a, nil
}

// execute opens the wallet key for exactly one engine call.
func (s *WalletService) execute(ctx context.Context, a *models.Account, in txengine.Intent) (*txengine.Receipt, error) {
	signer, err := s.vault.Open(ctx, a.EncryptedPrivateKey, passphraseOf(a))
	if err != nil {
		return nil, err
	}
	defer signer.Close()

	in.Source = a.PublicKey
	return s.engine.Execute(ctx, in, signer)
}

// ChangeTrust adds or updates a trust line. An empty limit trusts up to the
// ledger maximum.
func (s *WalletService) ChangeTrust(ctx context.Context, accountID, assetCode, limit string) (*OperationResult, error) {
	if limit != "" {
		v, err := amount.ParseInt64(limit)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: limit %q", common.ErrInvalidAmount, limit)
		}
	}
	return s.changeTrust(ctx, accountID, assetCode, limit, txengine.KindChangeTrust)
}

// RemoveTrust removes a trust line by setting its limit to zero. The
// balance must already be empty or the ledger refuses it.
func (s *WalletService) RemoveTrust(ctx context.Context, accountID, assetCode string) (*OperationResult, error) {
	return s.changeTrust(ctx, accountID, assetCode, "0", txengine.KindRemoveTrust)
}

func (s *WalletService) changeTrust(ctx context.Context, accountID, assetCode, limit string, kind txengine.Kind) (*OperationResult, error) {
	asset, err := s.registry.Resolve(assetCode)
	if err != nil {
		return nil, err
	}
	if asset.IsNative() {
		return nil, fmt.Errorf("%w: the native asset needs no trust line", common.ErrInvalidArgument)
	}
	line, err := asset.Txnbuild().ToChangeTrustAsset()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnknownAsset, err)
	}

	a, err := s.wallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	rec, err := s.execute(ctx, a, txengine.Intent{
		Kind:      kind,
		Operation: &txnbuild.ChangeTrust{Line: line, Limit: limit},
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &models.TransactionRecord{
		AccountID: a.ID, Kind: string(kind), Hash: rec.Hash,
		SourceAsset: asset.Code, DestAsset: asset.Code, Amount: limit,
	})
	return &OperationResult{Hash: rec.Hash, Ledger: rec.Ledger}, nil
}

// Pay sends a plain payment. The destination is checked before the wallet
// key is opened.
func (s *WalletService) Pay(ctx context.Context, accountID string, req PaymentRequest) (*OperationResult, error) {
	a, err := s.wallet(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := validateDestination(req.Destination); err != nil {
		return nil, err
	}
	if req.Destination == a.PublicKey {
		return nil, fmt.Errorf("%w: cannot pay yourself", common.ErrInvalidAddress)
	}
	asset, err := s.registry.Resolve(req.AssetCode)
	if err != nil {
		return nil, err
	}
	if err := pathrouter.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	memo, err := memoText(req.Memo)
	if err != nil {
		return nil, err
	}

	rec, err := s.execute(ctx, a, txengine.Intent{
		Kind: txengine.KindPayment,
		Operation: &txnbuild.Payment{
			Destination: req.Destination,
			Amount:      req.Amount,
			Asset:       asset.Txnbuild(),
		},
		Memo: memo,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &models.TransactionRecord{
		AccountID: a.ID, Kind: string(txengine.KindPayment), Hash: rec.Hash,
		SourceAsset: asset.Code, DestAsset: asset.Code,
		Amount: req.Amount, DestAmount: req.Amount, Destination: req.Destination,
	})
	s.notifyWithdrawal(a, rec.Hash, req.Amount, displayCode(asset), req.Destination, req.Bank)
	return &OperationResult{Hash: rec.Hash, Ledger: rec.Ledger}, nil
}

// StrictSend spends exactly req.Amount of the source asset and delivers at
// least the slippage bound of the destination asset.
func (s *WalletService) StrictSend(ctx context.Context, accountID string, req ConversionRequest) (*OperationResult, error) {
	a, src, dst, dest, err := s.prepareConversion(ctx, accountID, req)
	if err != nil {
		return nil, err
	}

	q, err := s.router.PlanStrictSend(ctx, src, dst, req.Amount, req.DestAmount, req.Slippage)
	if err != nil {
		return nil, err
	}

	rec, err := s.execute(ctx, a, txengine.Intent{
		Kind: txengine.KindStrictSend,
		Operation: &txnbuild.PathPaymentStrictSend{
			SendAsset:   src.Txnbuild(),
			SendAmount:  q.SendAmount,
			Destination: dest,
			DestAsset:   dst.Txnbuild(),
			DestMin:     q.Bound,
			Path:        pathAssets(q.Hops),
		},
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &models.TransactionRecord{
		AccountID: a.ID, Kind: string(txengine.KindStrictSend), Hash: rec.Hash,
		SourceAsset: src.Code, DestAsset: dst.Code,
		Amount: q.SendAmount, DestAmount: q.Bound, Destination: dest,
	})
	s.notifyWithdrawal(a, rec.Hash, q.Bound, displayCode(dst), dest, nil)
	return &OperationResult{Hash: rec.Hash, Ledger: rec.Ledger, Bound: q.Bound}, nil
}

// StrictReceive delivers exactly req.Amount of the destination asset and
// spends at most the slippage bound of the source asset.
func (s *WalletService) StrictReceive(ctx context.Context, accountID string, req ConversionRequest) (*OperationResult, error) {
	a, src, dst, dest, err := s.prepareConversion(ctx, accountID, req)
	if err != nil {
		return nil, err
	}

	q, err := s.router.PlanStrictReceive(ctx, src, dst, req.Amount, req.DestAmount, req.Slippage)
	if err != nil {
		return nil, err
	}

	rec, err := s.execute(ctx, a, txengine.Intent{
		Kind: txengine.KindStrictReceive,
		Operation: &txnbuild.PathPaymentStrictReceive{
			SendAsset:   src.Txnbuild(),
			SendMax:     q.Bound,
			Destination: dest,
			DestAsset:   dst.Txnbuild(),
			DestAmount:  q.DestAmount,
			Path:        pathAssets(q.Hops),
		},
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &models.TransactionRecord{
		AccountID: a.ID, Kind: string(txengine.KindStrictReceive), Hash: rec.Hash,
		SourceAsset: src.Code, DestAsset: dst.Code,
		Amount: q.Bound, DestAmount: q.DestAmount, Destination: dest,
	})
	s.notifyWithdrawal(a, rec.Hash, q.DestAmount, displayCode(dst), dest, nil)
	return &OperationResult{Hash: rec.Hash, Ledger: rec.Ledger, Bound: q.Bound}, nil
}

// Swap converts between two assets held by the wallet itself.
func (s *WalletService) Swap(ctx context.Context, accountID string, req ConversionRequest) (*OperationResult, error) {
	req.Destination = ""
	return s.StrictSend(ctx, accountID, req)
}

func (s *WalletService) prepareConversion(ctx context.Context, accountID string, req ConversionRequest) (
	a *models.Account, src, dst assets.Asset, dest string, err error) {

	a, err = s.wallet(ctx, accountID)
	if err != nil {
		return
	}

	dest = req.Destination
	if dest == "" {
		dest = a.PublicKey
	} else if err = validateDestination(dest); err != nil {
		return
	}

	if src, err = s.registry.Resolve(req.SourceAsset); err != nil {
		return
	}
	if dst, err = s.registry.Resolve(req.DestAsset); err != nil {
		return
	}
	if src == dst {
		err = fmt.Errorf("%w: source and destination asset are both %s", common.ErrInvalidArgument, src.String())
	}
	return
}

// Balances returns the wallet's on-chain balances grouped for display.
func (s *WalletService) Balances(ctx context.Context, accountID string) (*Portfolio, error) {
	a, err := s.wallet(ctx, accountID)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.LoadAccount(ctx, a.PublicKey)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{PublicKey: a.PublicKey}
	for _, b := range acc.Balances {
		if assets.IsYieldBearing(b.Code()) {
			p.Yield = append(p.Yield, b)
		} else {
			p.Base = append(p.Base, b)
		}
	}
	return p, nil
}

// History lists the wallet's recorded operations, newest first.
func (s *WalletService) History(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionRecord, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative page", common.ErrInvalidArgument)
	}
	return s.repomanager.Transactions(s.db).ListByAccount(ctx, accountID, limit, offset)
}

// record stores a history row. The transaction is already on the ledger,
// so a failed insert is logged and not returned.
func (s *WalletService) record(ctx context.Context, r *models.TransactionRecord) {
	if err := s.repomanager.Transactions(s.db).Create(ctx, r); err != nil {
		s.logger.Error(ctx, "history not recorded", "account", r.AccountID, "hash", r.Hash, "error", err)
	}
}

func (s *WalletService) notifyWithdrawal(a *models.Account, hash, amt, currency, receiver string, bank *BankDetails) {
	if s.events == nil {
		return
	}
	date := s.now().Format(notify.TxDateLayout)

	s.events.Notify(notify.Event{
		Type:            notify.TypeWithdrawal,
		To:              a.Email,
		Subject:         "New Withdrawal Confirmation",
		AppName:         s.appName,
		Username:        a.Username,
		Amount:          amt,
		Currency:        currency,
		UserAddress:     a.PublicKey,
		ReceiverAddress: receiver,
		TxHash:          hash,
		TxDate:          date,
	})

	if bank == nil || s.opsEmail == "" {
		return
	}
	s.events.Notify(notify.Event{
		Type:            notify.TypeFiatWithdrawal,
		To:              s.opsEmail,
		Subject:         "New Withdrawal Request",
		AppName:         s.appName,
		Username:        a.Username,
		Email:           a.Email,
		Amount:          amt,
		Currency:        currency,
		UserAddress:     a.PublicKey,
		ReceiverAddress: receiver,
		TxHash:          hash,
		TxDate:          date,
		AccountNumber:   bank.AccountNumber,
		AccountName:     bank.AccountName,
		BankName:        bank.BankName,
	})
}

func validateDestination(addr string) error {
	if !strkey.IsValidEd25519PublicKey(addr) {
		return fmt.Errorf("%w: %q", common.ErrInvalidAddress, addr)
	}
	return nil
}

func memoText(m string) (txnbuild.Memo, error) {
	if m == "" {
		return nil, nil
	}
	if len(m) > maxMemoText {
		return nil, fmt.Errorf("%w: memo longer than %d bytes", common.ErrInvalidArgument, maxMemoText)
	}
	return txnbuild.MemoText(m), nil
}

func displayCode(a assets.Asset) string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Code
}

func pathAssets(hops []ledger.PathAsset) []txnbuild.Asset {
	out := make([]txnbuild.Asset, 0, len(hops))
	for _, h := range hops {
		if strings.EqualFold(h.Type, "native") {
			out = append(out, txnbuild.NativeAsset{})
			continue
		}
		out = append(out, txnbuild.CreditAsset{Code: h.Code, Issuer: h.Issuer})
	}
	return out
}
