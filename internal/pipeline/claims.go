package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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
	"github.com/ggonzalez94/lingo-wallet/internal/store"
)

type LinkResult struct {
	Link          store.PhoneLink `json:"link"`
	PendingClaims []claims.Claim  `json:"pending_claims"`
}

// LinkPhone registers wallet for a phone number and lists the claims already
// waiting for it.
func (p *Pipeline) LinkPhone(ctx context.Context, rawPhone, wallet string) (LinkResult, error) {
	if err := requireDep(p.links != nil, "phone link store"); err != nil {
		return LinkResult{}, err
	}
	if !resolver.IsPhone(rawPhone) {
		return LinkResult{}, clierr.New(clierr.CodeUsage, "phone number is invalid")
	}
	addr, err := id.ChecksumAddress(wallet)
	if err != nil {
		return LinkResult{}, clierr.Wrap(clierr.CodeUsage, "wallet address is invalid", err)
	}
	link, err := p.links.UpsertLink(ctx, phone.Hash(phone.Digits(rawPhone)), addr, p.now())
	if err != nil {
		return LinkResult{}, clierr.Wrap(clierr.CodeInternal, "link phone", err)
	}
	out := LinkResult{Link: link, PendingClaims: []claims.Claim{}}
	if p.claims != nil {
		pending, err := p.claims.PendingForPhone(ctx, rawPhone)
		if err != nil {
			return LinkResult{}, err
		}
		out.PendingClaims = pending
	}
	p.log.WithFields(logrus.Fields{"phone": phone.Mask(rawPhone), "wallet": addr, "pending": len(out.PendingClaims)}).Info("phone linked")
	return out, nil
}

func (p *Pipeline) CreateClaim(ctx context.Context, rawPhone, amount, token, sender string) (*ClaimNotice, error) {
	return p.createClaim(ctx, rawPhone, amount, token, sender, "")
}

func (p *Pipeline) GetClaim(ctx context.Context, token string) (claims.Claim, error) {
	if err := requireDep(p.claims != nil, "claim manager"); err != nil {
		return claims.Claim{}, err
	}
	return p.claims.Get(ctx, token)
}

type RedeemResult struct {
	Claim       claims.Claim        `json:"claim"`
	Message     string              `json:"message"`
	Payout      *execution.TxResult `json:"payout,omitempty"`
	PayoutError string              `json:"payout_error,omitempty"`
}

// RedeemClaim marks the claim as taken by wallet, then pays it out from the
// payout wallet once its funding transfer is confirmed. The redemption stands
// even when nothing is paid; the reason is recorded on the claim and it shows
// up as unsettled.
func (p *Pipeline) RedeemClaim(ctx context.Context, token, wallet string) (RedeemResult, error) {
	if err := requireDep(p.claims != nil, "claim manager"); err != nil {
		return RedeemResult{}, err
	}
	c, err := p.claims.Redeem(ctx, token, wallet)
	if err != nil {
		return RedeemResult{}, err
	}
	out := RedeemResult{Claim: c, Message: fmt.Sprintf("You claimed %s %s", c.Amount, c.Token)}
	log := p.log.WithFields(logrus.Fields{"claim_id": c.ID, "wallet": c.RedeemedBy})

	var res execution.TxResult
	payErr := p.checkFunding(ctx, c)
	if payErr == nil {
		res, payErr = p.payout(ctx, c)
	}
	if payErr != nil {
		out.PayoutError = payErr.Error()
		log.WithError(payErr).Warn("claim payout failed")
	} else {
		out.Payout = &res
	}
	if err := p.claims.RecordPayout(ctx, c.ClaimToken, res.TxHash, payErr); err != nil {
		log.WithError(err).Warn("record claim payout")
	}
	out.Claim.PayoutTxHash, out.Claim.PayoutError = res.TxHash, out.PayoutError

	if p.history != nil && res.TxHash != "" {
		if _, err := p.history.RecordClaim(ctx, history.ClaimParams{
			Wallet:      c.RedeemedBy,
			Amount:      c.Amount,
			Token:       c.Token,
			FromAddress: c.SenderAddress,
			TxHash:      res.TxHash,
			Chain:       registry.DefaultChainSlug,
		}); err != nil {
			log.WithError(err).Warn("record claim history")
		}
	}
	return out, nil
}

var (
	errUnfunded         = errors.New("unfunded")
	errFundingUnsettled = errors.New("funding not confirmed")
)

// checkFunding allows a payout only for a claim whose funding transfer is
// confirmed in history.
func (p *Pipeline) checkFunding(ctx context.Context, c claims.Claim) error {
	if c.FundingID == "" || p.history == nil {
		return errUnfunded
	}
	rec, err := p.history.Get(ctx, c.FundingID)
	if err != nil {
		return errUnfunded
	}
	switch rec.Status {
	case history.StatusConfirmed:
		return nil
	case history.StatusPending:
		return errFundingUnsettled
	default:
		return errUnfunded
	}
}

func (p *Pipeline) payout(ctx context.Context, c claims.Claim) (execution.TxResult, error) {
	if p.planner == nil {
		return execution.TxResult{}, clierr.New(clierr.CodeUnavailable, "planner is not configured")
	}
	session, err := p.session(ctx, signer.RolePayout)
	if err != nil {
		return execution.TxResult{}, err
	}
	plan, err := p.planner.PlanSend(ctx, planner.SendRequest{
		From:      session.Address().Hex(),
		Recipient: c.RedeemedBy,
		Amount:    c.Amount,
		Token:     c.Token,
		Chain:     registry.DefaultChainSlug,
	})
	if err != nil {
		return execution.TxResult{}, err
	}
	return p.executor.Execute(ctx, plan, session)
}

// SettleClaim records a payout made outside the redeem flow.
func (p *Pipeline) SettleClaim(ctx context.Context, token, txHash string) error {
	if err := requireDep(p.claims != nil, "claim manager"); err != nil {
		return err
	}
	if strings.TrimSpace(txHash) == "" {
		return clierr.New(clierr.CodeUsage, "payout tx hash is required")
	}
	return p.claims.RecordPayout(ctx, token, txHash, nil)
}

func (p *Pipeline) UnsettledClaims(ctx context.Context, olderThan time.Duration) ([]claims.Claim, error) {
	if err := requireDep(p.claims != nil, "claim manager"); err != nil {
		return nil, err
	}
	return p.claims.Unsettled(ctx, olderThan)
}
