// Package pipeline runs a wallet command end to end: translate, parse,
// resolve, plan, confirm and execute. Every stage is also exposed on its
// own so the CLI and HTTP surfaces can drive them one step at a time.
package pipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/claims"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/planner"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
	"github.com/ggonzalez94/lingo-wallet/internal/resolver"
	"github.com/ggonzalez94/lingo-wallet/internal/sms"
	"github.com/ggonzalez94/lingo-wallet/internal/store"
	"github.com/ggonzalez94/lingo-wallet/internal/translate"
)

const DefaultPlanTTL = 15 * time.Minute

// PlanStore keeps plans between planning and confirmation.
type PlanStore interface {
	SavePlan(ctx context.Context, plan *execution.Plan) error
	GetPlan(ctx context.Context, id string) (*execution.Plan, error)
	DeletePlan(ctx context.Context, id string) error
	PurgePlans(ctx context.Context, cutoff time.Time) ([]*execution.Plan, error)
}

type LinkWriter interface {
	UpsertLink(ctx context.Context, phoneHash, wallet string, at time.Time) (store.PhoneLink, error)
}

// SessionProvider opens a wallet session for a signing role. Opening may
// fail when the role has no key configured.
type SessionProvider interface {
	Session(ctx context.Context, role signer.Role) (execution.Session, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, chainID int64, owner common.Address, token registry.Token) (*big.Int, error)
}

type Deps struct {
	Translator translate.Translator
	Resolver   *resolver.Resolver
	Links      LinkWriter
	Claims     *claims.Manager
	SMS        sms.Sender
	Planner    *planner.Planner
	Plans      PlanStore
	History    *history.Service
	Executor   *execution.Executor
	Sessions   SessionProvider
	Balances   BalanceReader
	PlanTTL    time.Duration

	// EscrowFunding makes sends to unlinked phones transfer the amount to
	// the payout wallet, which later pays the claim. Off, such sends only
	// create the claim.
	EscrowFunding bool
	Log           logrus.FieldLogger
}

type Pipeline struct {
	translator translate.Translator
	resolver   *resolver.Resolver
	links      LinkWriter
	claims     *claims.Manager
	sms        sms.Sender
	planner    *planner.Planner
	plans      PlanStore
	history    *history.Service
	executor   *execution.Executor
	sessions   SessionProvider
	balances   BalanceReader
	planTTL    time.Duration
	escrow     bool
	log        logrus.FieldLogger
	now        func() time.Time
}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		translator: d.Translator,
		resolver:   d.Resolver,
		links:      d.Links,
		claims:     d.Claims,
		sms:        d.SMS,
		planner:    d.Planner,
		plans:      d.Plans,
		history:    d.History,
		executor:   d.Executor,
		sessions:   d.Sessions,
		balances:   d.Balances,
		planTTL:    d.PlanTTL,
		escrow:     d.EscrowFunding,
		log:        d.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if p.translator == nil {
		p.translator = translate.Passthrough{}
	}
	if p.sms == nil {
		p.sms = sms.Noop{}
	}
	if p.executor == nil {
		p.executor = execution.NewExecutor(execution.DefaultExecuteOptions(), d.Log)
	}
	if p.planTTL <= 0 {
		p.planTTL = DefaultPlanTTL
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	return p
}

func (p *Pipeline) PlanTTL() time.Duration { return p.planTTL }

func (p *Pipeline) session(ctx context.Context, role signer.Role) (execution.Session, error) {
	if p.sessions == nil {
		return nil, clierr.New(clierr.CodeSigner, "no wallet session is configured")
	}
	s, err := p.sessions.Session(ctx, role)
	if err != nil {
		if _, ok := clierr.As(err); ok {
			return nil, err
		}
		return nil, clierr.Wrap(clierr.CodeSigner, "open "+string(role)+" wallet", err)
	}
	return s, nil
}

func requireDep(ok bool, name string) error {
	if ok {
		return nil
	}
	return clierr.New(clierr.CodeUnavailable, name+" is not configured")
}
