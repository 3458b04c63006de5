package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/claims"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/planner"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/phone"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
	"github.com/ggonzalez94/lingo-wallet/internal/resolver"
	"github.com/ggonzalez94/lingo-wallet/internal/sms"
)

func (p *Pipeline) Resolve(ctx context.Context, raw string) (resolver.Resolution, error) {
	if err := requireDep(p.resolver != nil, "recipient resolver"); err != nil {
		return resolver.Resolution{}, err
	}
	return p.resolver.Resolve(ctx, raw)
}

// ClaimNotice describes a claim created for a phone with no linked wallet.
type ClaimNotice struct {
	Claim    claims.Claim `json:"claim"`
	ClaimURL string       `json:"claim_url"`
	SMS      sms.Result   `json:"sms"`
}

type PhoneSendRequest struct {
	Phone  string `json:"phone"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
	Sender string `json:"senderAddress"`
}

type PhoneSendResult struct {
	HasWallet        bool         `json:"hasWallet"`
	RecipientAddress string       `json:"recipientAddress,omitempty"`
	Claim            *ClaimNotice `json:"claim,omitempty"`
	Message          string       `json:"message"`
}

// SendToPhone reports the wallet linked to a phone, or creates a claim for it
// and texts the claim link.
func (p *Pipeline) SendToPhone(ctx context.Context, req PhoneSendRequest) (PhoneSendResult, error) {
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Amount) == "" ||
		strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Sender) == "" {
		return PhoneSendResult{}, clierr.New(clierr.CodeUsage, "phone, amount, token and sender address are required")
	}
	if !resolver.IsPhone(req.Phone) {
		return PhoneSendResult{}, clierr.New(clierr.CodeUsage, "recipient phone number is invalid")
	}
	res, err := p.Resolve(ctx, req.Phone)
	if err != nil {
		return PhoneSendResult{}, err
	}
	if res.Recipient != nil {
		return PhoneSendResult{
			HasWallet:        true,
			RecipientAddress: res.Recipient.Checksummed(),
			Message:          fmt.Sprintf("Ready to send %s %s to %s's wallet", req.Amount, strings.ToUpper(req.Token), res.Phone),
		}, nil
	}
	notice, err := p.createClaim(ctx, res.Phone, req.Amount, req.Token, req.Sender, "")
	if err != nil {
		return PhoneSendResult{}, err
	}
	return PhoneSendResult{Claim: notice, Message: "Pending claim created"}, nil
}

func (p *Pipeline) createClaim(ctx context.Context, rawPhone, amount, token, sender, fundingID string) (*ClaimNotice, error) {
	if err := requireDep(p.claims != nil, "claim manager"); err != nil {
		return nil, err
	}
	c, err := p.claims.CreateFunded(ctx, rawPhone, amount, token, sender, fundingID)
	if err != nil {
		return nil, err
	}
	url := p.claims.ClaimURL(c.ClaimToken)
	result := p.sms.SendClaim(ctx, rawPhone, c.Amount, c.Token, url)
	if !result.Sent {
		p.log.WithFields(logrus.Fields{"claim_id": c.ID, "error": result.Error}).Warn("claim created without sms notification")
	}
	return &ClaimNotice{Claim: c, ClaimURL: url, SMS: result}, nil
}

type SendCommand struct {
	From            string `json:"from"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	Token           string `json:"token"`
	Chain           string `json:"chain,omitempty"`
	OriginalCommand string `json:"original_command,omitempty"`
	Language        string `json:"language,omitempty"`
}

// SendOutcome holds a staged plan, a claim, or both. A phone without a
// linked wallet gets a claim and nothing moves on chain, unless escrow
// funding is enabled; then the plan pays the payout wallet and the claim is
// backed by that transfer.
type SendOutcome struct {
	Resolution resolver.Resolution `json:"resolution"`
	Plan       *execution.Plan     `json:"plan,omitempty"`
	Claim      *ClaimNotice        `json:"claim,omitempty"`
	Message    string              `json:"message"`
}

func (p *Pipeline) PlanSend(ctx context.Context, cmd SendCommand) (SendOutcome, error) {
	if err := requireDep(p.planner != nil, "planner"); err != nil {
		return SendOutcome{}, err
	}
	res, err := p.Resolve(ctx, cmd.Recipient)
	if err != nil {
		return SendOutcome{}, err
	}
	out := SendOutcome{Resolution: res}
	if res.NeedsClaim && !p.escrow {
		notice, err := p.createClaim(ctx, res.Phone, cmd.Amount, cmd.Token, cmd.From, "")
		if err != nil {
			return SendOutcome{}, err
		}
		out.Claim = notice
		out.Message = fmt.Sprintf("%s has no wallet yet. A claim link was created", phone.Mask(res.Phone))
		return out, nil
	}

	req := planner.SendRequest{
		From:            cmd.From,
		Amount:          cmd.Amount,
		Token:           cmd.Token,
		Chain:           cmd.Chain,
		OriginalCommand: cmd.OriginalCommand,
		Language:        cmd.Language,
	}
	if res.Recipient != nil {
		req.Recipient = res.Recipient.Checksummed()
		req.RecipientPhone = res.Recipient.Phone
	} else {
		escrow, err := p.escrowAddress(ctx)
		if err != nil {
			return SendOutcome{}, clierr.Wrap(clierr.CodeSigner, "escrow funding needs a payout wallet", err)
		}
		req.Recipient = escrow
		req.RecipientPhone = res.Phone
	}
	plan, err := p.planner.PlanSend(ctx, req)
	if err != nil {
		return SendOutcome{}, err
	}

	chain, _ := registry.ChainByID(plan.ChainID)
	rec, err := p.recordPending(ctx, func() (history.Record, error) {
		return p.history.RecordSend(ctx, history.SendParams{
			Wallet:          plan.FromAddress,
			Amount:          plan.Amount,
			Token:           plan.Token,
			ToAddress:       sendCounterparty(plan, res),
			ToPhone:         plan.RecipientPhone,
			Chain:           chain.Slug,
			Language:        plan.Language,
			OriginalCommand: plan.OriginalCommand,
		})
	})
	if err != nil {
		return SendOutcome{}, err
	}
	if res.NeedsClaim {
		notice, err := p.createClaim(ctx, res.Phone, cmd.Amount, cmd.Token, cmd.From, rec.ID)
		if err != nil {
			p.markFailed(ctx, rec.ID, "claim could not be created")
			return SendOutcome{}, err
		}
		out.Claim = notice
		out.Message = fmt.Sprintf("%s has no wallet yet. Confirm to fund the claim link", phone.Mask(res.Phone))
	}
	if err := p.stage(ctx, plan, rec); err != nil {
		return SendOutcome{}, err
	}
	out.Plan = plan
	if out.Message == "" {
		out.Message = fmt.Sprintf("Confirm sending %s %s to %s", plan.Amount, plan.Token, plan.Recipient)
	}
	return out, nil
}

// sendCounterparty leaves the address empty for claim funding so history
// shows the phone, not the payout wallet.
func sendCounterparty(plan *execution.Plan, res resolver.Resolution) string {
	if res.NeedsClaim {
		return ""
	}
	return plan.Recipient
}

func (p *Pipeline) escrowAddress(ctx context.Context) (string, error) {
	s, err := p.session(ctx, signer.RolePayout)
	if err != nil {
		return "", err
	}
	return s.Address().Hex(), nil
}

type SwapCommand struct {
	From            string `json:"from"`
	Amount          string `json:"amount"`
	FromToken       string `json:"from_token"`
	ToToken         string `json:"to_token"`
	FromChain       string `json:"from_chain,omitempty"`
	ToChain         string `json:"to_chain,omitempty"`
	OriginalCommand string `json:"original_command,omitempty"`
	Language        string `json:"language,omitempty"`
}

func (c SwapCommand) request() planner.SwapRequest {
	return planner.SwapRequest{
		From:            c.From,
		Amount:          c.Amount,
		FromToken:       c.FromToken,
		ToToken:         c.ToToken,
		FromChain:       c.FromChain,
		ToChain:         c.ToChain,
		OriginalCommand: c.OriginalCommand,
		Language:        c.Language,
	}
}

func (p *Pipeline) PlanSwap(ctx context.Context, cmd SwapCommand) (*execution.Plan, error) {
	if err := requireDep(p.planner != nil, "planner"); err != nil {
		return nil, err
	}
	plan, err := p.planner.PlanSwap(ctx, cmd.request())
	if err != nil {
		return nil, err
	}
	chain, _ := registry.ChainByID(plan.ChainID)
	rec, err := p.recordPending(ctx, func() (history.Record, error) {
		return p.history.RecordSwap(ctx, history.SwapParams{
			Wallet:          plan.FromAddress,
			AmountIn:        plan.Amount,
			TokenIn:         plan.Token,
			AmountOut:       quotedOut(plan),
			TokenOut:        plan.ToToken,
			Chain:           chain.Slug,
			Language:        plan.Language,
			OriginalCommand: plan.OriginalCommand,
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, p.stage(ctx, plan, rec)
}

func (p *Pipeline) PlanBridge(ctx context.Context, cmd SwapCommand) (*execution.Plan, error) {
	if err := requireDep(p.planner != nil, "planner"); err != nil {
		return nil, err
	}
	plan, err := p.planner.PlanBridge(ctx, cmd.request())
	if err != nil {
		return nil, err
	}
	from, _ := registry.ChainByID(plan.ChainID)
	to, _ := registry.ChainByID(plan.ToChainID)
	rec, err := p.recordPending(ctx, func() (history.Record, error) {
		return p.history.RecordBridge(ctx, history.BridgeParams{
			Wallet:          plan.FromAddress,
			Amount:          plan.Amount,
			Token:           plan.Token,
			FromChain:       from.Slug,
			ToChain:         to.Slug,
			Language:        plan.Language,
			OriginalCommand: plan.OriginalCommand,
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, p.stage(ctx, plan, rec)
}

func quotedOut(plan *execution.Plan) string {
	if plan.Quote == nil || plan.Quote.ToAmount == "" {
		return ""
	}
	return id.FormatBaseUnits(plan.Quote.ToAmount, plan.Quote.ToDecimals)
}

func (p *Pipeline) recordPending(_ context.Context, record func() (history.Record, error)) (history.Record, error) {
	if err := requireDep(p.history != nil, "transaction history"); err != nil {
		return history.Record{}, err
	}
	return record()
}

// stage links the plan to its pending history record and persists it until
// the user confirms or cancels.
func (p *Pipeline) stage(ctx context.Context, plan *execution.Plan, rec history.Record) error {
	if err := requireDep(p.plans != nil, "plan store"); err != nil {
		return err
	}
	plan.HistoryID = rec.ID
	if err := p.plans.SavePlan(ctx, plan); err != nil {
		p.markFailed(ctx, rec.ID, "plan could not be saved")
		return clierr.Wrap(clierr.CodeInternal, "save plan", err)
	}
	p.log.WithFields(logrus.Fields{"plan_id": plan.ID, "history_id": rec.ID, "kind": plan.Kind}).Info("plan staged")
	return nil
}
