package id

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

var evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Asset is a registry token bound to the chain it was resolved on.
type Asset struct {
	Chain    registry.Chain `json:"chain"`
	Symbol   string         `json:"symbol"`
	Address  string         `json:"address"`
	Decimals int            `json:"decimals"`
	Native   bool           `json:"native"`
}

// CAIP19 returns the asset identifier used in logs and history metadata.
func (a Asset) CAIP19() string {
	if a.Native {
		return fmt.Sprintf("eip155:%d/slip44:60", a.Chain.ChainID)
	}
	return fmt.Sprintf("eip155:%d/erc20:%s", a.Chain.ChainID, strings.ToLower(a.Address))
}

// ParseChain resolves a chain slug, alias or numeric id. Empty input selects
// the default chain.
func ParseChain(input string) (registry.Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return registry.DefaultChain(), nil
	}
	if chain, ok := registry.ChainBySlug(raw); ok {
		return chain, nil
	}
	return registry.Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain: %s", input))
}

// ParseAsset resolves a symbol from the closed allowlist on chain.
func ParseAsset(symbol string, chain registry.Chain) (Asset, error) {
	raw := strings.ToUpper(strings.TrimSpace(symbol))
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "token is required")
	}
	if !registry.IsSupportedSymbol(raw) {
		return Asset{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported token %s; supported tokens: %s", symbol, strings.Join(registry.SupportedSymbols, ", ")))
	}
	tok, ok := registry.LookupToken(chain.ChainID, raw)
	if !ok {
		return Asset{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("token %s is not available on %s", raw, chain.Name))
	}
	return Asset{Chain: chain, Symbol: tok.Symbol, Address: tok.Address, Decimals: tok.Decimals, Native: tok.Native}, nil
}

func IsAddress(v string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(v))
}

// ChecksumAddress validates the 0x+40 hex format and returns the EIP-55 form.
func ChecksumAddress(v string) (string, error) {
	raw := strings.TrimSpace(v)
	if !IsAddress(raw) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid wallet address: %s", v))
	}
	return common.HexToAddress(raw).Hex(), nil
}
