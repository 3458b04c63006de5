package registry

import (
	"strings"
)

// NativeTokenAddress is the placeholder routing services use for a chain's
// native currency.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Native   bool   `json:"native"`
}

// SupportedSymbols is the closed allowlist of tokens a command may name.
var SupportedSymbols = []string{"ETH", "USDC", "USDT", "DAI", "WETH"}

var supportedSymbolSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(SupportedSymbols))
	for _, s := range SupportedSymbols {
		out[s] = struct{}{}
	}
	return out
}()

func IsSupportedSymbol(symbol string) bool {
	_, ok := supportedSymbolSet[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

var tokensByChainID = map[int64]map[string]Token{
	8453: {
		"ETH":  {Symbol: "ETH", Address: NativeTokenAddress, Decimals: 18, Native: true},
		"WETH": {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
	},
	1: {
		"ETH":  {Symbol: "ETH", Address: NativeTokenAddress, Decimals: 18, Native: true},
		"WETH": {Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
	},
	42161: {
		"ETH":  {Symbol: "ETH", Address: NativeTokenAddress, Decimals: 18, Native: true},
		"WETH": {Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
	},
	10: {
		"ETH":  {Symbol: "ETH", Address: NativeTokenAddress, Decimals: 18, Native: true},
		"WETH": {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
	},
	// ETH on Polygon is the bridged WETH token; the native currency is POL.
	137: {
		"ETH":  {Symbol: "ETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
	},
}

// LookupToken returns the token entry for symbol on chainID.
func LookupToken(chainID int64, symbol string) (Token, bool) {
	byChain, ok := tokensByChainID[chainID]
	if !ok {
		return Token{}, false
	}
	tok, ok := byChain[strings.ToUpper(strings.TrimSpace(symbol))]
	return tok, ok
}

// IsTokenContract reports whether address is a registered ERC-20 on chainID.
func IsTokenContract(chainID int64, address string) bool {
	for _, tok := range tokensByChainID[chainID] {
		if !tok.Native && strings.EqualFold(tok.Address, strings.TrimSpace(address)) {
			return true
		}
	}
	return false
}
