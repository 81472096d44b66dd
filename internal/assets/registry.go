// Package assets is the network-scoped registry of assets the wallet knows
// how to route and hold.
package assets

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"gopkg.in/yaml.v3"
)

// NativeIssuer is the issuer sentinel of the ledger's native asset.
const NativeIssuer = "native"

// NativeCode is the registry code of the native asset. "XLM" is accepted as
// an alias by Resolve.
const NativeCode = "NATIVE"

// YieldPrefix marks a yield-bearing variant of a base asset. It only affects
// portfolio grouping.
const YieldPrefix = "y"

// Network modes.
const (
	Mainnet = "mainnet"
	Testnet = "testnet"
)

//go:embed assets.yaml
var defaultRegistry []byte

// Asset identifies a ledger asset by code and issuer.
type Asset struct {
	Code   string `yaml:"code" json:"code"`
	Issuer string `yaml:"issuer" json:"issuer"`
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool { return a.Issuer == NativeIssuer }

// Txnbuild converts a to the transaction builder representation.
func (a Asset) Txnbuild() txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}

// Matches reports whether the Horizon style (type, code, issuer) triple
// names the same asset as a.
func (a Asset) Matches(assetType, code, issuer string) bool {
	if a.IsNative() {
		return assetType == "native"
	}
	return assetType != "native" && code == a.Code && issuer == a.Issuer
}

func (a Asset) String() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Code + ":" + a.Issuer
}

// Native is the native ledger asset.
var Native = Asset{Code: NativeCode, Issuer: NativeIssuer}

// Registry maps asset codes to assets for one network.
type Registry struct {
	network string
	byCode  map[string]Asset
	ordered []Asset
}

// Load parses a YAML registry document and selects the entries for network.
// Every non-native entry must carry a valid issuer address.
func Load(doc []byte, network string) (*Registry, error) {
	var all map[string][]Asset
	if err := yaml.Unmarshal(doc, &all); err != nil {
		return nil, fmt.Errorf("%w: asset registry: %v", common.ErrMisconfigured, err)
	}
	list, ok := all[network]
	if !ok {
		return nil, fmt.Errorf("%w: no assets for network %q", common.ErrMisconfigured, network)
	}

	r := &Registry{network: network, byCode: make(map[string]Asset, len(list))}
	for _, a := range list {
		if a.Code == "" {
			return nil, fmt.Errorf("%w: asset without code", common.ErrMisconfigured)
		}
		if a.Issuer != NativeIssuer && !strkey.IsValidEd25519PublicKey(a.Issuer) {
			return nil, fmt.Errorf("%w: asset %s has invalid issuer", common.ErrMisconfigured, a.Code)
		}
		key := strings.ToUpper(a.Code)
		if _, dup := r.byCode[key]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", common.ErrMisconfigured, a.Code)
		}
		r.byCode[key] = a
		r.ordered = append(r.ordered, a)
	}
	return r, nil
}

// Default returns the embedded registry for network.
func Default(network string) (*Registry, error) {
	return Load(defaultRegistry, network)
}

// Network returns the network the registry was loaded for.
func (r *Registry) Network() string { return r.network }

// All returns registered assets in file order.
func (r *Registry) All() []Asset {
	out := make([]Asset, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Resolve looks code up case-insensitively. "XLM" and "native" resolve to the
// native asset.
func (r *Registry) Resolve(code string) (Asset, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch c {
	case "XLM", "NATIVE":
		return Native, nil
	case "":
		return Asset{}, fmt.Errorf("%w: empty asset code", common.ErrUnknownAsset)
	}
	a, ok := r.byCode[c]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", common.ErrUnknownAsset, code)
	}
	return a, nil
}

// IsYieldBearing reports whether code names a yield-bearing variant.
func IsYieldBearing(code string) bool {
	return len(code) > len(YieldPrefix) && strings.HasPrefix(code, YieldPrefix) &&
		strings.ToUpper(code[len(YieldPrefix):]) == code[len(YieldPrefix):]
}

// BaseCode strips the yield-bearing marker from code.
func BaseCode(code string) string {
	if IsYieldBearing(code) {
		return code[len(YieldPrefix):]
	}
	return code
}
