// Package pathrouter estimates conversions between assets and turns the
// estimates into slippage guards for path payment operations.
//
// A path finding record is only an estimate. The executed rate is enforced
// by the ledger through the guard field of the submitted operation
// (destination minimum for strict-send, source maximum for strict-receive),
// so the guard is computed before the transaction is built.
package pathrouter

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/stellar/go/amount"
)

// Router queries the ledger for conversion paths.
type Router struct {
	ledger ledger.Port
	logger logging.Logger
}

func New(port ledger.Port, l logging.Logger) *Router {
	return &Router{ledger: port, logger: l.With("module", "pathrouter")}
}

// Quote is a planned conversion. Bound is the operation guard: the minimum
// destination amount for strict-send, the maximum source amount for
// strict-receive.
type Quote struct {
	SourceAsset assets.Asset
	DestAsset   assets.Asset
	SendAmount  string
	DestAmount  string
	Bound       string
	Slippage    float64
	Hops        []ledger.PathAsset
}

// FindSendPath returns strict-send records spending exactly sendAmount of src.
func (r *Router) FindSendPath(ctx context.Context, src, dst assets.Asset, sendAmount string) ([]ledger.PaymentPath, error) {
	paths, err := r.ledger.FindStrictSendPaths(ctx, ledger.StrictSendQuery{
		SourceAsset: src, SourceAmount: sendAmount, DestAsset: dst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerUnavailable, err)
	}
	r.logger.Debug(ctx, "strict-send paths", "source", src.String(), "dest", dst.String(), "records", len(paths))
	return paths, nil
}

// FindReceivePath returns strict-receive records delivering exactly
// destAmount of dst.
func (r *Router) FindReceivePath(ctx context.Context, src, dst assets.Asset, destAmount string) ([]ledger.PaymentPath, error) {
	paths, err := r.ledger.FindStrictReceivePaths(ctx, ledger.StrictReceiveQuery{
		SourceAsset: src, DestAsset: dst, DestAmount: destAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerUnavailable, err)
	}
	r.logger.Debug(ctx, "strict-receive paths", "source", src.String(), "dest", dst.String(), "records", len(paths))
	return paths, nil
}

// BestSendPath returns the first record whose destination is dst.
func BestSendPath(paths []ledger.PaymentPath, dst assets.Asset) (ledger.PaymentPath, error) {
	for _, p := range paths {
		if dst.Matches(p.DestinationAsset.Type, p.DestinationAsset.Code, p.DestinationAsset.Issuer) {
			return p, nil
		}
	}
	return ledger.PaymentPath{}, fmt.Errorf("%w: to %s", common.ErrNoPathFound, dst.String())
}

// BestReceivePath returns the first record whose source is src.
func BestReceivePath(paths []ledger.PaymentPath, src assets.Asset) (ledger.PaymentPath, error) {
	for _, p := range paths {
		if src.Matches(p.SourceAsset.Type, p.SourceAsset.Code, p.SourceAsset.Issuer) {
			return p, nil
		}
	}
	return ledger.PaymentPath{}, fmt.Errorf("%w: from %s", common.ErrNoPathFound, src.String())
}

// PlanStrictSend prices spending sendAmount of src for dst. destEstimate,
// when non-empty, replaces the path record's destination amount as the
// estimate; a matching path must exist either way.
func (r *Router) PlanStrictSend(ctx context.Context, src, dst assets.Asset, sendAmount, destEstimate string, slippage float64) (*Quote, error) {
	if err := ValidateAmount(sendAmount); err != nil {
		return nil, err
	}
	if destEstimate != "" {
		if err := ValidateAmount(destEstimate); err != nil {
			return nil, err
		}
	}
	paths, err := r.FindSendPath(ctx, src, dst, sendAmount)
	if err != nil {
		return nil, err
	}
	best, err := BestSendPath(paths, dst)
	if err != nil {
		return nil, err
	}

	estimate := destEstimate
	if estimate == "" {
		estimate = best.DestinationAmount
	}
	bound, err := MinDestination(estimate, slippage)
	if err != nil {
		return nil, err
	}

	return &Quote{
		SourceAsset: src, DestAsset: dst,
		SendAmount: sendAmount, DestAmount: estimate,
		Bound: bound, Slippage: slippage, Hops: best.Path,
	}, nil
}

// PlanStrictReceive prices receiving destAmount of dst paid in src.
func (r *Router) PlanStrictReceive(ctx context.Context, src, dst assets.Asset, destAmount, sourceEstimate string, slippage float64) (*Quote, error) {
	if err := ValidateAmount(destAmount); err != nil {
		return nil, err
	}
	if sourceEstimate != "" {
		if err := ValidateAmount(sourceEstimate); err != nil {
			return nil, err
		}
	}
	paths, err := r.FindReceivePath(ctx, src, dst, destAmount)
	if err != nil {
		return nil, err
	}
	best, err := BestReceivePath(paths, src)
	if err != nil {
		return nil, err
	}

	estimate := sourceEstimate
	if estimate == "" {
		estimate = best.SourceAmount
	}
	bound, err := MaxSource(estimate, slippage)
	if err != nil {
		return nil, err
	}

	return &Quote{
		SourceAsset: src, DestAsset: dst,
		SendAmount: estimate, DestAmount: destAmount,
		Bound: bound, Slippage: slippage, Hops: best.Path,
	}, nil
}

// MinDestination returns (100 - s) * d / 100 rounded to ledger precision.
func MinDestination(d string, s float64) (string, error) {
	est, pct, err := parseBoundInputs(d, s)
	if err != nil {
		return "", err
	}
	hundred := big.NewRat(100, 1)
	v := new(big.Rat).Sub(hundred, pct)
	v.Mul(v, est)
	v.Quo(v, hundred)
	return formatBound(v)
}

// MaxSource returns 100 * d / (100 - s) rounded to ledger precision. s must
// be below 100.
func MaxSource(d string, s float64) (string, error) {
	est, pct, err := parseBoundInputs(d, s)
	if err != nil {
		return "", err
	}
	hundred := big.NewRat(100, 1)
	denom := new(big.Rat).Sub(hundred, pct)
	if denom.Sign() <= 0 {
		return "", fmt.Errorf("%w: %v%% leaves no room for a source maximum", common.ErrInvalidSlippage, s)
	}
	v := new(big.Rat).Mul(hundred, est)
	v.Quo(v, denom)
	return formatBound(v)
}

// ValidateAmount checks that v is a positive amount with at most seven
// decimal places.
func ValidateAmount(v string) error {
	stroops, err := amount.ParseInt64(v)
	if err != nil {
		return fmt.Errorf("%w: %q", common.ErrInvalidAmount, v)
	}
	if stroops <= 0 {
		return fmt.Errorf("%w: %q must be positive", common.ErrInvalidAmount, v)
	}
	return nil
}

func parseBoundInputs(d string, s float64) (*big.Rat, *big.Rat, error) {
	if s < 0 || s > 100 {
		return nil, nil, fmt.Errorf("%w: %v is outside 0..100", common.ErrInvalidSlippage, s)
	}
	est, ok := new(big.Rat).SetString(d)
	if !ok || est.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: estimate %q", common.ErrInvalidAmount, d)
	}
	// the shortest decimal form keeps 0.1 exact instead of its binary approximation
	pct, ok := new(big.Rat).SetString(strconv.FormatFloat(s, 'f', -1, 64))
	if !ok {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidSlippage, s)
	}
	return est, pct, nil
}

// formatBound rounds half away from zero at seven decimals.
func formatBound(v *big.Rat) (string, error) {
	out := v.FloatString(common.AmountPrecision)
	if err := ValidateAmount(out); err != nil {
		return "", fmt.Errorf("%w: bound %s rounds to zero", common.ErrInvalidSlippage, out)
	}
	return out, nil
}
