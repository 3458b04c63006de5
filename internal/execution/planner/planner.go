// Package planner turns resolved intents into execution plans: direct
// transfers for sends, and quote-backed calls (plus any required approval)
// for swaps and bridges.
package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
)

type Planner struct {
	quoter     providers.Quoter
	allowances AllowanceReader
	slippage   float64
	log        logrus.FieldLogger
	now        func() time.Time
}

type Option func(*Planner)

func WithSlippage(v float64) Option {
	return func(p *Planner) {
		if v > 0 && v < 1 {
			p.slippage = v
		}
	}
}

func New(quoter providers.Quoter, allowances AllowanceReader, log logrus.FieldLogger, opts ...Option) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Planner{
		quoter:     quoter,
		allowances: allowances,
		slippage:   providers.DefaultSlippage,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type SendRequest struct {
	From           string
	Recipient      string
	RecipientPhone string
	Amount         string
	Token          string
	// Chain is a slug, alias or numeric id; empty means the default chain.
	Chain           string
	OriginalCommand string
	Language        string
}

// PlanSend builds a native or ERC-20 transfer to an already resolved address.
func (p *Planner) PlanSend(ctx context.Context, req SendRequest) (plan *execution.Plan, err error) {
	defer func() { observe(execution.PlanSend, err) }()

	from, err := id.ChecksumAddress(req.From)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid sender address", err)
	}
	to, err := id.ChecksumAddress(req.Recipient)
	if err != nil {
		return nil, err
	}
	chain, err := id.ParseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	asset, err := id.ParseAsset(req.Token, chain)
	if err != nil {
		return nil, err
	}
	amount, err := id.ToPositiveSmallestUnit(req.Amount, asset.Decimals)
	if err != nil {
		return nil, err
	}

	step := execution.Step{
		ID:          "transfer",
		Type:        execution.StepTypeTransfer,
		ChainID:     chain.ChainID,
		Description: fmt.Sprintf("Send %s %s to %s", id.FormatUnits(amount, asset.Decimals), asset.Symbol, to),
		Status:      execution.StepStatusPending,
	}
	if asset.Native {
		step.Target = to
		step.Data = "0x"
		step.Value = amount.String()
	} else {
		data, err := plannerERC20ABI.Pack("transfer", common.HexToAddress(to), amount)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
		}
		step.Target = common.HexToAddress(asset.Address).Hex()
		step.Data = "0x" + common.Bytes2Hex(data)
		step.Value = "0"
	}

	plan = &execution.Plan{
		ID:              execution.NewPlanID(),
		Kind:            execution.PlanSend,
		ChainID:         chain.ChainID,
		FromAddress:     from,
		Recipient:       to,
		RecipientPhone:  req.RecipientPhone,
		Amount:          id.NormalizeDecimal(req.Amount),
		AmountBaseUnits: amount.String(),
		Token:           asset.Symbol,
		OriginalCommand: req.OriginalCommand,
		Language:        req.Language,
		Steps:           []execution.Step{step},
		CreatedAt:       p.now(),
	}
	if err := execution.ValidatePlan(plan); err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"plan_id": plan.ID, "chain_id": plan.ChainID, "token": plan.Token}).Debug("send planned")
	return plan, nil
}

type SwapRequest struct {
	From      string
	Amount    string
	FromToken string
	// ToToken defaults to FromToken for bridges.
	ToToken         string
	FromChain       string
	ToChain         string
	OriginalCommand string
	Language        string
}

// PlanSwap quotes a same-chain swap.
func (p *Planner) PlanSwap(ctx context.Context, req SwapRequest) (plan *execution.Plan, err error) {
	defer func() { observe(execution.PlanSwap, err) }()

	chain, err := id.ParseChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ToChain) != "" {
		to, err := id.ParseChain(req.ToChain)
		if err != nil {
			return nil, err
		}
		if to.ChainID != chain.ChainID {
			return nil, clierr.New(clierr.CodeUsage, "swap must stay on one chain; use bridge to move between chains")
		}
	}
	if strings.EqualFold(strings.TrimSpace(req.FromToken), strings.TrimSpace(req.ToToken)) {
		return nil, clierr.New(clierr.CodeUsage, "swap needs two different tokens")
	}
	return p.planRouted(ctx, execution.PlanSwap, req, chain.Slug, chain.Slug)
}

// PlanBridge quotes a cross-chain transfer.
func (p *Planner) PlanBridge(ctx context.Context, req SwapRequest) (plan *execution.Plan, err error) {
	defer func() { observe(execution.PlanBridge, err) }()

	from, err := id.ParseChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ToChain) == "" {
		return nil, clierr.New(clierr.CodeUsage, "bridge requires a destination chain")
	}
	to, err := id.ParseChain(req.ToChain)
	if err != nil {
		return nil, err
	}
	if to.ChainID == from.ChainID {
		return nil, clierr.New(clierr.CodeUsage, "bridge destination must differ from the source chain")
	}
	if strings.TrimSpace(req.ToToken) == "" {
		req.ToToken = req.FromToken
	}
	return p.planRouted(ctx, execution.PlanBridge, req, from.Slug, to.Slug)
}

func (p *Planner) planRouted(ctx context.Context, kind execution.PlanKind, req SwapRequest, fromSlug, toSlug string) (*execution.Plan, error) {
	if p.quoter == nil {
		return nil, clierr.New(clierr.CodeUnavailable, "no quote provider configured")
	}
	from, err := id.ChecksumAddress(req.From)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid sender address", err)
	}
	fromChain, _ := id.ParseChain(fromSlug)
	toChain, _ := id.ParseChain(toSlug)
	fromAsset, err := id.ParseAsset(req.FromToken, fromChain)
	if err != nil {
		return nil, err
	}
	toAsset, err := id.ParseAsset(req.ToToken, toChain)
	if err != nil {
		return nil, err
	}
	amount, err := id.ToPositiveSmallestUnit(req.Amount, fromAsset.Decimals)
	if err != nil {
		return nil, err
	}

	quote, err := p.quoter.Quote(ctx, providers.QuoteRequest{
		FromChainID: fromChain.ChainID,
		ToChainID:   toChain.ChainID,
		FromToken:   fromAsset.Address,
		ToToken:     toAsset.Address,
		FromAmount:  amount.String(),
		FromAddress: from,
		ToAddress:   from,
		Slippage:    p.slippage,
	})
	if err != nil {
		if _, ok := clierr.As(err); ok {
			return nil, err
		}
		return nil, clierr.Wrap(clierr.CodeQuoteUnavailable, "quote request failed", err)
	}
	tx := quote.Transaction
	if tx == nil || strings.TrimSpace(tx.To) == "" || strings.TrimSpace(tx.Data) == "" {
		return nil, clierr.New(clierr.CodeQuoteUnavailable, "route has no executable transaction")
	}
	if tx.ChainID != 0 && tx.ChainID != fromChain.ChainID {
		return nil, clierr.New(clierr.CodeQuoteUnavailable, fmt.Sprintf("quote transaction targets chain %d, expected %d", tx.ChainID, fromChain.ChainID))
	}
	value := strings.TrimSpace(tx.Value)
	if value == "" {
		value = "0"
	}
	if _, ok := new(big.Int).SetString(value, 10); !ok {
		return nil, clierr.New(clierr.CodeQuoteUnavailable, "quote transaction has an invalid value")
	}

	spenderRaw := quote.ApprovalAddress
	if strings.TrimSpace(spenderRaw) == "" {
		spenderRaw = tx.To
	}
	if !common.IsHexAddress(spenderRaw) {
		return nil, clierr.New(clierr.CodeQuoteUnavailable, "quote has an invalid approval address")
	}
	var steps []execution.Step
	approval, err := p.approvalIfNeeded(ctx, fromAsset, common.HexToAddress(from), common.HexToAddress(spenderRaw), amount)
	if err != nil {
		return nil, err
	}
	if approval != nil {
		steps = append(steps, *approval)
	}

	stepType := execution.StepTypeSwap
	verb := "Swap"
	if kind == execution.PlanBridge {
		stepType = execution.StepTypeBridge
		verb = "Bridge"
	}
	desc := fmt.Sprintf("%s %s %s to %s", verb, id.FormatUnits(amount, fromAsset.Decimals), fromAsset.Symbol, toAsset.Symbol)
	if kind == execution.PlanBridge {
		desc = fmt.Sprintf("%s on %s", desc, toChain.Name)
	}
	if quote.Tool != "" {
		desc += " via " + quote.Tool
	}
	steps = append(steps, execution.Step{
		ID:          string(stepType),
		Type:        stepType,
		ChainID:     fromChain.ChainID,
		Description: desc,
		Target:      common.HexToAddress(tx.To).Hex(),
		Data:        tx.Data,
		Value:       value,
		Status:      execution.StepStatusPending,
	})

	plan := &execution.Plan{
		ID:              execution.NewPlanID(),
		Kind:            kind,
		ChainID:         fromChain.ChainID,
		FromAddress:     from,
		Amount:          id.NormalizeDecimal(req.Amount),
		AmountBaseUnits: amount.String(),
		Token:           fromAsset.Symbol,
		ToToken:         toAsset.Symbol,
		OriginalCommand: req.OriginalCommand,
		Language:        req.Language,
		Quote:           &quote,
		Steps:           steps,
		CreatedAt:       p.now(),
	}
	if kind == execution.PlanBridge {
		plan.ToChainID = toChain.ChainID
	}
	if err := execution.ValidatePlan(plan); err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"plan_id":  plan.ID,
		"kind":     kind,
		"provider": quote.Provider,
		"steps":    len(steps),
	}).Debug("routed plan built")
	return plan, nil
}

func observe(kind execution.PlanKind, err error) {
	metrics.PlansBuilt.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
}
