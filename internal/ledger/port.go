// Package ledger is the boundary between the wallet core and the Stellar
// network: account state and fees, transaction submission and status, and
// path finding.
package ledger

import (
	"context"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
)

// Status is a submission or lookup status as reported by the network.
type Status string

const (
	// Submission statuses.
	StatusPending       Status = "PENDING"
	StatusDuplicate     Status = "DUPLICATE"
	StatusTryAgainLater Status = "TRY_AGAIN_LATER"
	StatusError         Status = "ERROR"

	// Lookup statuses.
	StatusSuccess  Status = "SUCCESS"
	StatusNotFound Status = "NOT_FOUND"
	StatusFailed   Status = "FAILED"
)

// Account is the subset of account state the wallet needs.
type Account struct {
	ID       string
	Sequence int64
	Balances []Balance
}

// Balance is one line of an account's balances.
type Balance struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Balance     string `json:"balance"`
	Limit       string `json:"limit,omitempty"`
}

// Code returns the asset code of the balance, "XLM" for native.
func (b Balance) Code() string {
	if b.AssetType == "native" {
		return "XLM"
	}
	return b.AssetCode
}

// SubmitResult is the immediate outcome of a submission.
type SubmitResult struct {
	Status         Status
	Hash           string
	ErrorResultXDR string
}

// TxStatus is the outcome of a status lookup.
type TxStatus struct {
	Status      Status
	Ledger      int64
	ReturnValue string
	ResultXDR   string
}

// PathAsset is an asset as it appears in path finding records.
type PathAsset struct {
	Type   string `json:"asset_type"`
	Code   string `json:"asset_code,omitempty"`
	Issuer string `json:"asset_issuer,omitempty"`
}

// PaymentPath is one path finding record. It is an estimate only.
type PaymentPath struct {
	SourceAsset       PathAsset
	SourceAmount      string
	DestinationAsset  PathAsset
	DestinationAmount string
	Path              []PathAsset
}

// StrictSendQuery asks for paths that spend exactly SourceAmount.
type StrictSendQuery struct {
	SourceAsset  assets.Asset
	SourceAmount string
	DestAsset    assets.Asset
}

// StrictReceiveQuery asks for paths that deliver exactly DestAmount.
type StrictReceiveQuery struct {
	SourceAsset assets.Asset
	DestAsset   assets.Asset
	DestAmount  string
}

// Port is what the wallet core consumes from the network.
type Port interface {
	LoadAccount(ctx context.Context, accountID string) (*Account, error)
	FetchBaseFee(ctx context.Context) (int64, error)
	SubmitTransaction(ctx context.Context, envelopeXDR string) (*SubmitResult, error)
	GetTransactionStatus(ctx context.Context, hash string) (*TxStatus, error)
	FindStrictSendPaths(ctx context.Context, q StrictSendQuery) ([]PaymentPath, error)
	FindStrictReceivePaths(ctx context.Context, q StrictReceiveQuery) ([]PaymentPath, error)
}
