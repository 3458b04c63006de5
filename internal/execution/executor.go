package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

type ExecuteOptions struct {
	// ApprovalTimeout bounds the wait for each approval to be mined.
	ApprovalTimeout time.Duration
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{ApprovalTimeout: 2 * time.Minute}
}

type Executor struct {
	opts ExecuteOptions
	log  logrus.FieldLogger
}

func NewExecutor(opts ExecuteOptions, log logrus.FieldLogger) *Executor {
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{opts: opts, log: log}
}

// Execute validates plan, moves the session to the plan's chain and submits
// each step in order. Approvals must be mined successfully before the next
// step; the final step returns as soon as it is broadcast. The returned error
// is non-nil exactly when result.Success is false.
func (e *Executor) Execute(ctx context.Context, plan *Plan, session Session) (TxResult, error) {
	if err := ValidatePlan(plan); err != nil {
		return failed(plan, err), err
	}
	if session == nil {
		err := clierr.New(clierr.CodeSigner, "no wallet session")
		return failed(plan, err), err
	}
	if !strings.EqualFold(session.Address().Hex(), plan.FromAddress) && plan.FromAddress != "" {
		err := clierr.New(clierr.CodeSigner, fmt.Sprintf("wallet %s cannot execute a plan for %s", session.Address().Hex(), plan.FromAddress))
		return failed(plan, err), err
	}
	chain, _ := registry.ChainByID(plan.ChainID)
	if err := ensureChain(ctx, session, chain); err != nil {
		return failed(plan, err), err
	}

	log := e.log.WithFields(logrus.Fields{"plan_id": plan.ID, "kind": plan.Kind, "chain_id": plan.ChainID})
	for i := range plan.Steps {
		step := &plan.Steps[i]
		final := i == len(plan.Steps)-1

		hash, err := submit(ctx, session, step)
		if err != nil {
			markFailed(step, err)
			log.WithError(err).WithField("step", step.ID).Warn("step submission failed")
			return failed(plan, err), err
		}
		step.TxHash = hash
		step.Status = StepStatusSubmitted
		log.WithFields(logrus.Fields{"step": step.ID, "tx_hash": hash}).Info("step submitted")
		if final {
			break
		}

		if err := e.waitApproval(ctx, session, step); err != nil {
			markFailed(step, err)
			return failed(plan, err), err
		}
		step.Status = StepStatusConfirmed
	}

	last := plan.FinalStep()
	return TxResult{
		Success:     true,
		TxHash:      last.TxHash,
		ExplorerURL: chain.ExplorerTxURL(last.TxHash),
		Steps:       stepResults(plan, chain),
	}, nil
}

// ensureChain switches the wallet to chain, adding it first when the wallet
// does not know it, then re-reads the chain id to confirm.
func ensureChain(ctx context.Context, session Session, chain registry.Chain) error {
	current, err := session.ChainID(ctx)
	if err == nil && current == chain.ChainID {
		return nil
	}
	if err := session.SwitchChain(ctx, chain.ChainID); err != nil {
		if !errors.Is(err, ErrUnknownChain) {
			return clierr.Wrap(clierr.CodeWrongChain, "switch wallet chain", err)
		}
		if err := session.AddChain(ctx, chain); err != nil {
			return clierr.Wrap(clierr.CodeWrongChain, fmt.Sprintf("add %s to wallet", chain.Name), err)
		}
		if err := session.SwitchChain(ctx, chain.ChainID); err != nil {
			return clierr.Wrap(clierr.CodeWrongChain, "switch wallet chain", err)
		}
	}
	current, err = session.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeWrongChain, "verify wallet chain", err)
	}
	if current != chain.ChainID {
		return clierr.New(clierr.CodeWrongChain, fmt.Sprintf("wallet is on chain %d, expected %s (%d)", current, chain.Name, chain.ChainID))
	}
	return nil
}

func submit(ctx context.Context, session Session, step *Step) (string, error) {
	data, err := decodeHex(step.Data)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeActionPlan, "decode step calldata", err)
	}
	value, _ := new(big.Int).SetString(step.Value, 10)
	return session.SendTransaction(ctx, TxRequest{
		ChainID: step.ChainID,
		To:      common.HexToAddress(step.Target),
		Data:    data,
		Value:   value,
	})
}

func (e *Executor) waitApproval(ctx context.Context, session Session, step *Step) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ApprovalTimeout)
	defer cancel()
	receipt, err := session.WaitMined(waitCtx, step.TxHash)
	if err != nil {
		if waitCtx.Err() != nil {
			return clierr.Wrap(clierr.CodeTimeout, fmt.Sprintf("%s step was not mined in time", step.Type), err)
		}
		return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("wait for %s step", step.Type), err)
	}
	if !receipt.Succeeded() {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s transaction %s reverted on-chain", step.Type, step.TxHash))
	}
	return nil
}

func markFailed(step *Step, err error) {
	step.Status = StepStatusFailed
	step.Error = err.Error()
}

func failed(plan *Plan, err error) TxResult {
	res := TxResult{Success: false, Error: err.Error()}
	if plan != nil {
		chain, _ := registry.ChainByID(plan.ChainID)
		res.Steps = stepResults(plan, chain)
	}
	return res
}

func stepResults(plan *Plan, chain registry.Chain) []StepResult {
	out := make([]StepResult, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		r := StepResult{ID: s.ID, Type: s.Type, Status: s.Status, TxHash: s.TxHash, Error: s.Error}
		if s.TxHash != "" && chain.ExplorerURL != "" {
			r.ExplorerURL = chain.ExplorerTxURL(s.TxHash)
		}
		out = append(out, r)
	}
	return out
}
