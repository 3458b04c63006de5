package app

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/cache"
	"github.com/ggonzalez94/lingo-wallet/internal/claims"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/events"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/planner"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/httpx"
	"github.com/ggonzalez94/lingo-wallet/internal/logging"
	"github.com/ggonzalez94/lingo-wallet/internal/pipeline"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/providers/lifi"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
	"github.com/ggonzalez94/lingo-wallet/internal/resolver"
	"github.com/ggonzalez94/lingo-wallet/internal/sms"
	"github.com/ggonzalez94/lingo-wallet/internal/store"
	"github.com/ggonzalez94/lingo-wallet/internal/translate"
)

// routing is the quote and transfer-status provider.
type routing interface {
	providers.Quoter
	providers.StatusChecker
}

// deps is everything a command may need, wired from settings.
type deps struct {
	log        *logrus.Logger
	store      *store.DB
	cache      *cache.Store
	events     events.Publisher
	clients    *execution.Clients
	translator translate.Translator
	routing    routing
	history    *history.Service
	claims     *claims.Manager
	pipeline   *pipeline.Pipeline
	reconciler *execution.Reconciler
}

func (d *deps) Close() {
	if d.events != nil {
		_ = d.events.Close()
	}
	if d.clients != nil {
		d.clients.Close()
	}
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// services returns the wired dependencies, building them on first use.
func (s *runtimeState) services() (*deps, error) {
	if s.deps != nil {
		return s.deps, nil
	}
	d, err := s.build(s)
	if err != nil {
		return nil, err
	}
	s.deps = d
	return d, nil
}

func buildDeps(s *runtimeState) (*deps, error) {
	settings := s.settings
	log, err := logging.New(settings.LogLevel, settings.LogFormat, s.runner.stderr)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "configure logging", err)
	}
	d := &deps{log: log}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	d.store, err = store.Open(context.Background(), settings.StoreDriver, settings.StoreDSN)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open store", err)
	}

	d.events = events.Noop{}
	if strings.TrimSpace(settings.NATSURL) != "" {
		pub, err := events.NewNATSPublisher(settings.NATSURL, settings.Timeout, log)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "connect nats", err)
		}
		d.events = pub
	}

	httpClient := httpx.New(settings.Timeout, settings.Retries)

	if settings.GoogleTranslateKey != "" {
		opts := []translate.Option{translate.WithLogger(log)}
		if settings.CacheEnabled {
			d.cache, err = cache.Open(settings.CachePath, settings.CacheLockPath)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, "open cache", err)
			}
			opts = append(opts, translate.WithCache(d.cache, settings.TranslationTTL))
		}
		d.translator = translate.New(httpClient, settings.GoogleTranslateKey, opts...)
	} else {
		d.translator = translate.New(httpClient, "", translate.WithLogger(log))
	}

	var lifiOpts []lifi.Option
	if settings.LiFiBaseURL != "" {
		lifiOpts = append(lifiOpts, lifi.WithBaseURL(settings.LiFiBaseURL))
	}
	if settings.LiFiAPIKey != "" {
		lifiOpts = append(lifiOpts, lifi.WithAPIKey(settings.LiFiAPIKey))
	}
	d.routing = lifi.New(httpClient, lifiOpts...)

	d.clients = execution.NewClients(settings.RPCURLs)
	for _, chain := range registry.Chains() {
		// Registry chains without a public endpoint stay unreachable.
		_ = d.clients.Register(chain)
	}

	d.history = history.NewService(d.store.History(), d.events, log)
	d.claims = claims.NewManager(d.store.Claims(),
		claims.WithBaseURL(settings.ClaimBaseURL),
		claims.WithTTL(settings.ClaimTTL),
		claims.WithPublisher(d.events),
		claims.WithLogger(log),
	)

	sessions := &signerSessions{
		clients:  d.clients,
		source:   settings.KeySource,
		override: s.privateKey,
		opts:     execution.DefaultSessionOptions(),
		open:     map[signer.Role]execution.Session{},
	}

	d.pipeline = pipeline.New(pipeline.Deps{
		Translator: d.translator,
		Resolver:   resolver.New(d.store.Links(), log),
		Links:      d.store.Links(),
		Claims:     d.claims,
		SMS:        sms.NewTwilio(httpClient, settings.TwilioAccountSID, settings.TwilioAuthToken, settings.TwilioFromNumber, sms.WithLogger(log)),
		Planner:    planner.New(d.routing, d.clients, log),
		Plans:      d.store.Plans(),
		History:    d.history,
		Executor:   execution.NewExecutor(execution.DefaultExecuteOptions(), log),
		Sessions:   sessions,
		Balances:   d.clients,
		PlanTTL:    settings.PlanTTL,

		EscrowFunding: settings.ClaimEscrow,
		Log:           log,
	})
	d.reconciler = execution.NewReconciler(d.history, d.clients, d.routing, log)

	ok = true
	return d, nil
}

// signerSessions opens one RPC session per signing role and reuses it for
// the rest of the process.
type signerSessions struct {
	clients  *execution.Clients
	source   string
	override string
	opts     execution.SessionOptions

	mu   sync.Mutex
	open map[signer.Role]execution.Session
}

func (p *signerSessions) Session(_ context.Context, role signer.Role) (execution.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.open[role]; ok {
		return s, nil
	}
	// --private-key only ever speaks for the user wallet.
	override := ""
	if role == signer.RoleUser {
		override = p.override
	}
	txSigner, err := signer.Load(role, p.source, override)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load "+string(role)+" signer", err)
	}
	s := execution.NewRPCSession(p.clients, txSigner, p.opts)
	p.open[role] = s
	return s, nil
}
