package pipeline

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

type TokenBalance struct {
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	BaseUnits string `json:"base_units"`
}

type BalanceResult struct {
	Address string         `json:"address"`
	Chain   string         `json:"chain"`
	ETH     string         `json:"eth"`
	USDC    string         `json:"usdc"`
	Tokens  []TokenBalance `json:"tokens"`
}

// balanceTokens are shown with a fixed number of fractional digits.
var balanceTokens = []struct {
	symbol string
	places int
}{
	{"ETH", 4},
	{"USDC", 2},
}

// Balance reads the ETH and USDC balances of address on the default chain.
func (p *Pipeline) Balance(ctx context.Context, address string) (BalanceResult, error) {
	if err := requireDep(p.balances != nil, "balance reader"); err != nil {
		return BalanceResult{}, err
	}
	addr, err := id.ChecksumAddress(address)
	if err != nil {
		return BalanceResult{}, clierr.Wrap(clierr.CodeUsage, "wallet address is invalid", err)
	}
	chain := registry.DefaultChain()
	owner := common.HexToAddress(addr)

	tokens := make([]TokenBalance, len(balanceTokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, bt := range balanceTokens {
		token, ok := registry.LookupToken(chain.ChainID, bt.symbol)
		if !ok {
			return BalanceResult{}, clierr.New(clierr.CodeUnsupported, bt.symbol+" is not available on "+chain.Slug)
		}
		g.Go(func() error {
			raw, err := p.balances.Balance(gctx, chain.ChainID, owner, token)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read "+token.Symbol+" balance", err)
			}
			tokens[i] = TokenBalance{
				Symbol:    token.Symbol,
				Balance:   id.FormatFixed(raw, token.Decimals, bt.places),
				BaseUnits: raw.String(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{
		Address: addr,
		Chain:   chain.Slug,
		ETH:     tokens[0].Balance,
		USDC:    tokens[1].Balance,
		Tokens:  tokens,
	}, nil
}
