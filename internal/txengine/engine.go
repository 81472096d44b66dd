// Package txengine builds, signs, submits and confirms single-operation
// ledger transactions.
//
// Every execution walks the states
//
//	built -> signed -> submitted -> pending -> success | failed
//
// with two side exits: rejected (the network refused the submission, the
// transaction never became pending) and timed_out (it stayed pending past
// the poll deadline). The engine never retries; retrying is a caller
// decision.
package txengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/metrics"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Kind names the single operation an intent carries.
type Kind string

const (
	KindChangeTrust   Kind = "change_trust"
	KindRemoveTrust   Kind = "remove_trust"
	KindPayment       Kind = "payment"
	KindStrictSend    Kind = "strict_send"
	KindStrictReceive Kind = "strict_receive"
	KindCreateAccount Kind = "create_account"
)

// State is the position of an execution in the state machine.
type State string

const (
	StateBuilt     State = "built"
	StateSigned    State = "signed"
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateRejected  State = "rejected"
	StateTimedOut  State = "timed_out"
)

// Default timings.
const (
	DefaultTxTimeout    = 30 * time.Second
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 2 * time.Minute
)

// Intent is one operation to run on behalf of Source. It lives for a single
// Execute call.
type Intent struct {
	Source    string
	Kind      Kind
	Operation txnbuild.Operation
	Memo      txnbuild.Memo
	// Fee raises the per-operation fee above the configured floor.
	Fee int64
	// Timeout bounds the transaction's validity window. Zero uses the
	// engine default.
	Timeout time.Duration
}

// Receipt describes how an execution ended. It is returned even when
// Execute fails so callers can log the hash of a timed out transaction.
type Receipt struct {
	Kind        Kind
	State       State
	Hash        string
	Ledger      int64
	ReturnValue string
	Reason      string
}

// Signer provides the decrypted keypair for one signing call.
type Signer interface {
	Keypair() *keypair.Full
}

// Config holds engine settings.
type Config struct {
	NetworkPassphrase string
	// BaseFee is the minimum per-operation fee in stroops.
	BaseFee      int64
	TxTimeout    time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	// SerializePerAccount makes executions for the same source account run
	// one at a time.
	SerializePerAccount bool
}

// Engine executes intents against a ledger.Port.
type Engine struct {
	ledger ledger.Port
	cfg    Config
	logger logging.Logger
	locker *AccountLocker
}

// New returns an Engine. Zero timings are replaced by the defaults.
func New(port ledger.Port, cfg Config, l logging.Logger) *Engine {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.BaseFee < txnbuild.MinBaseFee {
		cfg.BaseFee = txnbuild.MinBaseFee
	}

	e := &Engine{ledger: port, cfg: cfg, logger: l.With("module", "txengine")}
	if cfg.SerializePerAccount {
		e.locker = NewAccountLocker()
	}
	return e
}

// NetworkPassphrase returns the passphrase transactions are signed for.
func (e *Engine) NetworkPassphrase() string { return e.cfg.NetworkPassphrase }

// Build loads the source account and assembles an unsigned transaction.
func (e *Engine) Build(ctx context.Context, in Intent) (*txnbuild.Transaction, error) {
	if in.Operation == nil {
		return nil, errors.New("intent has no operation")
	}

	acc, err := e.ledger.LoadAccount(ctx, in.Source)
	if err != nil {
		return nil, err
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TxTimeout
	}

	src := txnbuild.NewSimpleAccount(in.Source, acc.Sequence)
	return txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &src,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{in.Operation},
		BaseFee:              e.fee(ctx, in.Fee),
		Memo:                 in.Memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(timeout / time.Second)),
		},
	})
}

func (e *Engine) fee(ctx context.Context, requested int64) int64 {
	fee := e.cfg.BaseFee
	if requested > fee {
		fee = requested
	}
	network, err := e.ledger.FetchBaseFee(ctx)
	if err != nil {
		e.logger.Warn(ctx, "base fee lookup failed, using configured fee", "error", err, "fee", fee)
		return fee
	}
	if network > fee {
		fee = network
	}
	return fee
}

// Execute runs in to a terminal state, signing with signer's keypair.
//
// Errors match (errors.Is) one of:
//   - common.ErrLedgerRejected: the network refused or failed the transaction
//   - common.ErrLedgerTimeout: still pending when the poll deadline passed
//   - common.ErrTransactionFailed: anything else, with the underlying reason
func (e *Engine) Execute(ctx context.Context, in Intent, signer Signer) (rec *Receipt, err error) {
	start := time.Now()
	rec = &Receipt{Kind: in.Kind}
	log := e.logger.With("kind", string(in.Kind), "source", in.Source)

	defer func() {
		if p := recover(); p != nil {
			rec.State = StateFailed
			err = fmt.Errorf("%w: %v", common.ErrTransactionFailed, p)
		}
		if err != nil {
			rec.Reason = err.Error()
			log.Warn(ctx, "transaction not applied", "state", rec.State, "hash", rec.Hash, "reason", rec.Reason)
		} else {
			log.Info(ctx, "transaction applied", "hash", rec.Hash, "ledger", rec.Ledger)
		}
		metrics.RecordTx(string(in.Kind), string(rec.State), time.Since(start))
	}()

	fail := func(state State, cause error) (*Receipt, error) {
		rec.State = state
		if errors.Is(cause, common.ErrLedgerRejected) || errors.Is(cause, common.ErrLedgerTimeout) ||
			errors.Is(cause, common.ErrTransactionFailed) {
			return rec, cause
		}
		return rec, fmt.Errorf("%w: %v", common.ErrTransactionFailed, cause)
	}

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, in.Source)
		if err != nil {
			return fail(StateFailed, err)
		}
		defer unlock()
	}

	tx, err := e.Build(ctx, in)
	if err != nil {
		return fail(StateFailed, fmt.Errorf("build: %w", err))
	}
	rec.State = StateBuilt

	kp := signer.Keypair()
	if kp == nil {
		return fail(StateFailed, errors.New("signer is closed"))
	}
	if kp.Address() != in.Source {
		return fail(StateFailed, errors.New("signer does not match source account"))
	}

	tx, err = tx.Sign(e.cfg.NetworkPassphrase, kp)
	if err != nil {
		return fail(StateFailed, fmt.Errorf("sign: %w", err))
	}
	rec.State = StateSigned

	if rec.Hash, err = tx.HashHex(e.cfg.NetworkPassphrase); err != nil {
		return fail(StateFailed, fmt.Errorf("hash: %w", err))
	}
	envelope, err := tx.Base64()
	if err != nil {
		return fail(StateFailed, fmt.Errorf("encode: %w", err))
	}

	sub, err := e.ledger.SubmitTransaction(ctx, envelope)
	if err != nil {
		return fail(StateFailed, fmt.Errorf("submit: %w", err))
	}
	rec.State = StateSubmitted
	if sub.Hash != "" {
		rec.Hash = sub.Hash
	}

	switch sub.Status {
	case ledger.StatusPending, ledger.StatusDuplicate:
		rec.State = StatePending
	default:
		return fail(StateRejected, fmt.Errorf("%w: submission status %s %s", common.ErrLedgerRejected, sub.Status, sub.ErrorResultXDR))
	}
	log.Debug(ctx, "transaction pending", "hash", rec.Hash)

	st, err := e.waitForConfirmation(ctx, rec.Hash)
	if st != nil {
		rec.Ledger = st.Ledger
		rec.ReturnValue = st.ReturnValue
	}
	switch {
	case errors.Is(err, common.ErrLedgerTimeout):
		return fail(StateTimedOut, err)
	case err != nil:
		return fail(StateFailed, err)
	}

	rec.State = StateSuccess
	return rec, nil
}

// waitForConfirmation polls the status of hash until it leaves NOT_FOUND or
// the poll deadline passes. The first lookup is immediate.
func (e *Engine) waitForConfirmation(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := e.ledger.GetTransactionStatus(ctx, hash)
		metrics.RecordPoll()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", common.ErrLedgerTimeout, hash)
			}
			return nil, fmt.Errorf("status: %w", err)
		}

		switch st.Status {
		case ledger.StatusSuccess:
			return st, nil
		case ledger.StatusNotFound:
		default:
			return st, fmt.Errorf("%w: transaction failed with status %s", common.ErrLedgerRejected, st.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", common.ErrLedgerTimeout, hash)
		case <-ticker.C:
		}
	}
}
