package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

// AllowanceReader reads current ERC-20 allowances. *execution.Clients
// implements it.
type AllowanceReader interface {
	Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error)
}

var plannerERC20ABI = mustPlannerABI(registry.ERC20MinimalABI)

// approvalIfNeeded returns an approve step for exactly amount when spender's
// current allowance is below it, or nil. Without a reader the approval is
// always included.
func (p *Planner) approvalIfNeeded(ctx context.Context, asset id.Asset, owner, spender common.Address, amount *big.Int) (*execution.Step, error) {
	if asset.Native {
		return nil, nil
	}
	token := common.HexToAddress(asset.Address)
	if spender == token {
		return nil, nil
	}
	if p.allowances != nil {
		current, err := p.allowances.Allowance(ctx, asset.Chain.ChainID, token, owner, spender)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "read token allowance", err)
		}
		if current.Cmp(amount) >= 0 {
			return nil, nil
		}
	}
	data, err := plannerERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return &execution.Step{
		ID:          fmt.Sprintf("approve-%s", strings.ToLower(asset.Symbol)),
		Type:        execution.StepTypeApproval,
		ChainID:     asset.Chain.ChainID,
		Description: fmt.Sprintf("Approve %s %s for %s", id.FormatUnits(amount, asset.Decimals), asset.Symbol, spender.Hex()),
		Target:      token.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
		Status:      execution.StepStatusPending,
	}, nil
}

func mustPlannerABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
