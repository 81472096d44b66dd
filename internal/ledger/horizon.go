package ledger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
)

// horizonAPI is the part of the Horizon client the ledger uses.
// *horizonclient.Client implements it.
type horizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	FeeStats() (hProtocol.FeeStats, error)
	StrictSendPaths(request horizonclient.StrictSendPathsRequest) (hProtocol.PathsPage, error)
	StrictReceivePaths(request horizonclient.PathsRequest) (hProtocol.PathsPage, error)
}

// horizonError wraps err with op. Missing resources become
// common.ErrorNotFound.
func horizonError(op string, err error) error {
	if horizonclient.IsNotFoundError(err) {
		return fmt.Errorf("%s: %w", op, common.ErrorNotFound)
	}
	if herr := horizonclient.GetError(err); herr != nil {
		if herr.Response != nil && herr.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, common.ErrorNotFound)
		}
		return fmt.Errorf("%s: horizon %q: %w", op, herr.Problem.Title, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// LoadAccount returns the sequence number and balances of accountID. An
// unfunded account yields common.ErrorNotFound.
func (c *Client) LoadAccount(ctx context.Context, accountID string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		return nil, horizonError("load account", err)
	}

	acc := &Account{ID: res.ID, Sequence: res.Sequence}
	for _, b := range res.Balances {
		acc.Balances = append(acc.Balances, Balance{
			AssetType:   b.Type,
			AssetCode:   b.Code,
			AssetIssuer: b.Issuer,
			Balance:     b.Balance,
			Limit:       b.Limit,
		})
	}
	return acc, nil
}

// FetchBaseFee returns the base fee of the last closed ledger in stroops.
func (c *Client) FetchBaseFee(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stats, err := c.horizon.FeeStats()
	if err != nil {
		return 0, horizonError("fee stats", err)
	}
	return stats.LastLedgerBaseFee, nil
}

// FindStrictSendPaths queries /paths/strict-send.
func (c *Client) FindStrictSendPaths(ctx context.Context, q StrictSendQuery) ([]PaymentPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.horizon.StrictSendPaths(horizonclient.StrictSendPathsRequest{
		SourceAssetType:   assetType(q.SourceAsset),
		SourceAssetCode:   q.SourceAsset.Code,
		SourceAssetIssuer: q.SourceAsset.Issuer,
		SourceAmount:      q.SourceAmount,
		DestinationAssets: assetList(q.DestAsset),
	})
	if err != nil {
		return nil, horizonError("strict-send paths", err)
	}
	return toPaths(page), nil
}

// FindStrictReceivePaths queries the strict-receive path endpoint.
func (c *Client) FindStrictReceivePaths(ctx context.Context, q StrictReceiveQuery) ([]PaymentPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.horizon.StrictReceivePaths(horizonclient.PathsRequest{
		SourceAssets:           assetList(q.SourceAsset),
		DestinationAssetType:   assetType(q.DestAsset),
		DestinationAssetCode:   q.DestAsset.Code,
		DestinationAssetIssuer: q.DestAsset.Issuer,
		DestinationAmount:      q.DestAmount,
	})
	if err != nil {
		return nil, horizonError("strict-receive paths", err)
	}
	return toPaths(page), nil
}

func assetType(a assets.Asset) horizonclient.AssetType {
	switch {
	case a.IsNative():
		return horizonclient.AssetTypeNative
	case len(a.Code) <= 4:
		return horizonclient.AssetType4
	default:
		return horizonclient.AssetType12
	}
}

func assetList(a assets.Asset) string {
	if a.IsNative() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

func toPaths(page hProtocol.PathsPage) []PaymentPath {
	var out []PaymentPath
	for _, r := range page.Embedded.Records {
		p := PaymentPath{
			SourceAsset: PathAsset{
				Type:   r.SourceAssetType,
				Code:   r.SourceAssetCode,
				Issuer: r.SourceAssetIssuer,
			},
			SourceAmount: r.SourceAmount,
			DestinationAsset: PathAsset{
				Type:   r.DestinationAssetType,
				Code:   r.DestinationAssetCode,
				Issuer: r.DestinationAssetIssuer,
			},
			DestinationAmount: r.DestinationAmount,
		}
		for _, h := range r.Path {
			p.Path = append(p.Path, PathAsset{Type: h.Type, Code: h.Code, Issuer: h.Issuer})
		}
		out = append(out, p)
	}
	return out
}
