// Package common defines shared constants and sentinel errors used across
// stellarkeeper layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	// ErrConflict reports a row that changed between read and write.
	ErrConflict = errors.New("concurrent update, retry")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Input validation, raised before any key material is touched.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidSlippage = errors.New("invalid slippage")
	ErrUnknownAsset    = errors.New("unknown asset")
	ErrNoPathFound     = errors.New("no path found")

	// Wallet lifecycle.
	ErrWalletExists = errors.New("wallet already exists")
	ErrNoWallet     = errors.New("wallet not created")
	ErrInvalidPIN   = errors.New("invalid pin")

	// Key custody.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Challenge protocol violations. Never retried.
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrDomainMismatch   = errors.New("challenge domain mismatch")
	ErrClientMismatch   = errors.New("challenge client account mismatch")
	ErrAuthRejected     = errors.New("anchor rejected authentication")

	// Anchor transport failure (network error or 5xx).
	ErrAnchorUnavailable = errors.New("anchor unavailable")

	// Ledger interaction.
	ErrLedgerRejected    = errors.New("ledger rejected transaction")
	ErrLedgerTimeout     = errors.New("ledger confirmation timed out")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// Misconfiguration of static data (asset registry, signing endpoints).
	ErrMisconfigured = errors.New("misconfigured")
)
