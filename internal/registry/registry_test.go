package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestChainLookups(t *testing.T) {
	base, ok := ChainBySlug("Base")
	if !ok || base.ChainID != 8453 {
		t.Fatalf("expected base chain, got %+v ok=%v", base, ok)
	}
	if got := base.HexChainID(); got != "0x2105" {
		t.Fatalf("unexpected hex chain id %q", got)
	}
	if got := base.ExplorerTxURL("0xabc"); got != "https://basescan.org/tx/0xabc" {
		t.Fatalf("unexpected explorer url %q", got)
	}
	if c, ok := ChainBySlug("10"); !ok || c.Slug != "optimism" {
		t.Fatalf("expected numeric lookup to resolve optimism, got %+v", c)
	}
	if c, ok := ChainBySlug("arb"); !ok || c.ChainID != 42161 {
		t.Fatalf("expected alias lookup to resolve arbitrum, got %+v", c)
	}
	if _, ok := ChainBySlug("solana"); ok {
		t.Fatal("did not expect unsupported chain to resolve")
	}
	if DefaultChain().Slug != "base" {
		t.Fatalf("unexpected default chain %+v", DefaultChain())
	}
}

func TestTokenTableIsConsistent(t *testing.T) {
	for chainID, byChain := range tokensByChainID {
		if _, ok := ChainByID(chainID); !ok {
			t.Fatalf("token table references unknown chain %d", chainID)
		}
		for symbol, tok := range byChain {
			if !IsSupportedSymbol(symbol) {
				t.Fatalf("chain %d lists unsupported symbol %s", chainID, symbol)
			}
			if tok.Symbol != symbol {
				t.Fatalf("chain %d symbol key %s does not match entry %s", chainID, symbol, tok.Symbol)
			}
			if !common.IsHexAddress(tok.Address) {
				t.Fatalf("chain %d token %s has invalid address %s", chainID, symbol, tok.Address)
			}
			if !tok.Native && common.HexToAddress(tok.Address).Hex() != tok.Address {
				t.Fatalf("chain %d token %s address is not checksummed: %s", chainID, symbol, tok.Address)
			}
		}
	}
}

func TestLookupToken(t *testing.T) {
	usdc, ok := LookupToken(8453, "usdc")
	if !ok || usdc.Decimals != 6 || usdc.Native {
		t.Fatalf("unexpected base usdc entry %+v", usdc)
	}
	eth, ok := LookupToken(8453, "ETH")
	if !ok || !eth.Native || eth.Decimals != 18 {
		t.Fatalf("unexpected base eth entry %+v", eth)
	}
	if _, ok := LookupToken(8453, "FAKE"); ok {
		t.Fatal("did not expect unknown symbol to resolve")
	}
	if !IsTokenContract(8453, strings.ToLower(usdc.Address)) {
		t.Fatal("expected usdc to be a registered token contract")
	}
	if IsTokenContract(8453, NativeTokenAddress) {
		t.Fatal("native placeholder must not count as a token contract")
	}
}

func TestResolveRPCURL(t *testing.T) {
	got, err := ResolveRPCURL(" https://custom.example ", 8453)
	if err != nil || got != "https://custom.example" {
		t.Fatalf("expected override, got %q err=%v", got, err)
	}
	got, err = ResolveRPCURL("", 8453)
	if err != nil || got != "https://mainnet.base.org" {
		t.Fatalf("expected base default, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL("", 999999); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}

func TestSettlementURLAllowlist(t *testing.T) {
	if !IsAllowedSettlementURL("https://li.quest/v1/status") {
		t.Fatal("expected canonical lifi status url to be allowed")
	}
	if !IsAllowedSettlementURL("http://127.0.0.1:8080/status") {
		t.Fatal("expected loopback url to be allowed")
	}
	if IsAllowedSettlementURL("https://evil.example/v1/status") {
		t.Fatal("did not expect foreign host to be allowed")
	}
	if IsAllowedSettlementURL("http://li.quest/v1/status") {
		t.Fatal("did not expect plain http to be allowed")
	}
}

func TestERC20ABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ERC20MinimalABI))
	if err != nil {
		t.Fatalf("failed to parse abi json: %v", err)
	}
	for _, method := range []string{"allowance", "approve", "transfer", "balanceOf"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("expected erc20 abi to include %s", method)
		}
	}
}
