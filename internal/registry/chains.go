package registry

import (
	"fmt"
	"sort"
	"strings"
)

// NativeCurrency mirrors the currency block a wallet needs to register a chain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type Chain struct {
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	ChainID     int64          `json:"chain_id"`
	Native      NativeCurrency `json:"native_currency"`
	RPCURL      string         `json:"rpc_url"`
	ExplorerURL string         `json:"explorer_url"`
}

// HexChainID is the 0x-prefixed chain id used by wallet chain-switch calls.
func (c Chain) HexChainID() string {
	return fmt.Sprintf("0x%x", c.ChainID)
}

// ExplorerTxURL returns the block explorer link for a transaction hash.
func (c Chain) ExplorerTxURL(txHash string) string {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" || c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.ExplorerURL, "/") + "/tx/" + txHash
}

const DefaultChainSlug = "base"

var chains = []Chain{
	{
		Slug:        "base",
		Name:        "Base",
		ChainID:     8453,
		Native:      NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:      "https://mainnet.base.org",
		ExplorerURL: "https://basescan.org",
	},
	{
		Slug:        "ethereum",
		Name:        "Ethereum",
		ChainID:     1,
		Native:      NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:      "https://eth.llamarpc.com",
		ExplorerURL: "https://etherscan.io",
	},
	{
		Slug:        "arbitrum",
		Name:        "Arbitrum One",
		ChainID:     42161,
		Native:      NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:      "https://arb1.arbitrum.io/rpc",
		ExplorerURL: "https://arbiscan.io",
	},
	{
		Slug:        "optimism",
		Name:        "OP Mainnet",
		ChainID:     10,
		Native:      NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:      "https://mainnet.optimism.io",
		ExplorerURL: "https://optimistic.etherscan.io",
	},
	{
		Slug:        "polygon",
		Name:        "Polygon",
		ChainID:     137,
		Native:      NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURL:      "https://polygon-rpc.com",
		ExplorerURL: "https://polygonscan.com",
	},
}

var (
	chainBySlug = map[string]Chain{}
	chainByID   = map[int64]Chain{}
)

func init() {
	aliases := map[string]string{
		"mainnet": "ethereum",
		"eth":     "ethereum",
		"arb":     "arbitrum",
		"op":      "optimism",
		"matic":   "polygon",
	}
	for _, c := range chains {
		chainBySlug[c.Slug] = c
		chainByID[c.ChainID] = c
	}
	for alias, slug := range aliases {
		chainBySlug[alias] = chainBySlug[slug]
	}
}

// ChainBySlug accepts a slug, an alias, or a decimal chain id.
func ChainBySlug(input string) (Chain, bool) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return Chain{}, false
	}
	if c, ok := chainBySlug[key]; ok {
		return c, true
	}
	var chainID int64
	if _, err := fmt.Sscanf(key, "%d", &chainID); err == nil && fmt.Sprintf("%d", chainID) == key {
		return ChainByID(chainID)
	}
	return Chain{}, false
}

func ChainByID(chainID int64) (Chain, bool) {
	c, ok := chainByID[chainID]
	return c, ok
}

func DefaultChain() Chain {
	return chainBySlug[DefaultChainSlug]
}

// Chains returns the supported chains ordered by slug.
func Chains() []Chain {
	out := append([]Chain(nil), chains...)
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ChainSlugs is used by the parser to recognize chain names in bridge commands.
func ChainSlugs() []string {
	out := make([]string, 0, len(chainBySlug))
	for slug := range chainBySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// ResolveRPCURL prefers an explicit override over the registry default.
func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if c, ok := ChainByID(chainID); ok && c.RPCURL != "" {
		return c.RPCURL, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set rpc.%d in config", chainID, chainID)
}
