package execution

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

var (
	erc20ABI = mustABI(registry.ERC20MinimalABI)

	approveSelector  = erc20ABI.Methods["approve"].ID
	transferSelector = erc20ABI.Methods["transfer"].ID
)

// ValidatePlan checks every step before anything is sent to a wallet. A plan
// that fails here is never partially executed.
func ValidatePlan(plan *Plan) error {
	if plan == nil {
		return clierr.New(clierr.CodeInternal, "missing plan")
	}
	if len(plan.Steps) == 0 {
		return clierr.New(clierr.CodeActionPlan, "plan has no executable steps")
	}
	if _, ok := registry.ChainByID(plan.ChainID); !ok {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("plan targets unknown chain %d", plan.ChainID))
	}
	if plan.FinalStep().Type == StepTypeApproval {
		return clierr.New(clierr.CodeActionPlan, "plan cannot end with an approval")
	}
	for i := range plan.Steps {
		if err := validateStep(plan, &plan.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(plan *Plan, step *Step) error {
	if step.ChainID != plan.ChainID {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step %s chain %d does not match plan chain %d", step.ID, step.ChainID, plan.ChainID))
	}
	if !common.IsHexAddress(step.Target) || common.HexToAddress(step.Target) == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step %s has an invalid target address", step.ID))
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(step.Value), 10)
	if !ok || value.Sign() < 0 {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step %s has an invalid value", step.ID))
	}
	data, err := decodeHex(step.Data)
	if err != nil {
		return clierr.Wrap(clierr.CodeActionPlan, fmt.Sprintf("step %s has invalid calldata", step.ID), err)
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApproval(plan, step, value, data)
	case StepTypeTransfer:
		return validateTransfer(plan, step, value, data)
	case StepTypeSwap, StepTypeBridge:
		return validateRouted(plan, step, data)
	default:
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step %s has unknown type %q", step.ID, step.Type))
	}
}

func validateApproval(plan *Plan, step *Step, value *big.Int, data []byte) error {
	if len(data) < 4 || !bytes.Equal(data[:4], approveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must call approve(spender,amount)")
	}
	if value.Sign() != 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step must not carry value")
	}
	if !registry.IsTokenContract(plan.ChainID, step.Target) {
		return clierr.New(clierr.CodeActionPlan, "approval step target is not a known token contract")
	}
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := args[0].(common.Address)
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	amount, ok := args[1].(*big.Int)
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	requested, ok := new(big.Int).SetString(strings.TrimSpace(plan.AmountBaseUnits), 10)
	if !ok || requested.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "cannot bound approval without a plan amount")
	}
	if amount.Cmp(requested) > 0 {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("approval amount %s exceeds requested amount %s", amount, requested))
	}
	return nil
}

func validateTransfer(plan *Plan, step *Step, value *big.Int, data []byte) error {
	if len(data) == 0 {
		if value.Sign() <= 0 {
			return clierr.New(clierr.CodeActionPlan, "native transfer must carry a positive value")
		}
		if plan.Recipient != "" && !strings.EqualFold(step.Target, plan.Recipient) {
			return clierr.New(clierr.CodeActionPlan, "native transfer target does not match the recipient")
		}
		return nil
	}
	if len(data) < 4 || !bytes.Equal(data[:4], transferSelector) {
		return clierr.New(clierr.CodeActionPlan, "token transfer step must call transfer(to,amount)")
	}
	if value.Sign() != 0 {
		return clierr.New(clierr.CodeActionPlan, "token transfer step must not carry value")
	}
	if !registry.IsTokenContract(plan.ChainID, step.Target) {
		return clierr.New(clierr.CodeActionPlan, "token transfer target is not a known token contract")
	}
	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "token transfer calldata is invalid")
	}
	to, ok := args[0].(common.Address)
	if !ok || to == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "token transfer has invalid recipient")
	}
	if plan.Recipient != "" && to != common.HexToAddress(plan.Recipient) {
		return clierr.New(clierr.CodeActionPlan, "token transfer recipient does not match the plan")
	}
	return nil
}

func validateRouted(plan *Plan, step *Step, data []byte) error {
	if len(data) == 0 {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step has no calldata", step.Type))
	}
	if plan.Quote == nil || plan.Quote.Transaction == nil {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step has no quote", step.Type))
	}
	if !strings.EqualFold(plan.Quote.Transaction.To, step.Target) {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step target does not match the quoted route", step.Type))
	}
	return nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
