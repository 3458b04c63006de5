// Package server exposes the wallet pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/pipeline"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/translate"
	"github.com/ggonzalez94/lingo-wallet/internal/version"
)

const shutdownTimeout = 5 * time.Second

// BridgeStatus reports cross-chain transfer progress.
type BridgeStatus interface {
	Status(ctx context.Context, req providers.StatusRequest) (providers.TransferStatus, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Pipeline   *pipeline.Pipeline
	History    *history.Service
	Translator translate.Translator
	Bridge     BridgeStatus
	Store      Pinger
	JWTSecret  string
	Log        logrus.FieldLogger
}

type Server struct {
	pipeline   *pipeline.Pipeline
	history    *history.Service
	translator translate.Translator
	bridge     BridgeStatus
	store      Pinger
	jwtSecret  []byte
	log        logrus.FieldLogger
}

func New(d Deps) *Server {
	s := &Server{
		pipeline:   d.Pipeline,
		history:    d.History,
		translator: d.Translator,
		bridge:     d.Bridge,
		store:      d.Store,
		jwtSecret:  []byte(d.JWTSecret),
		log:        d.Log,
	}
	if s.translator == nil {
		s.translator = translate.Passthrough{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Post("/parse-command", s.parseCommand)
		r.Post("/resolve-recipient", s.resolveRecipient)
		r.Post("/send-to-phone", s.sendToPhone)
		r.Post("/link-phone", s.linkPhone)
		r.Get("/claims/{token}", s.getClaim)
		r.Post("/claims/{token}/redeem", s.redeemClaim)
		r.Post("/quote", s.quote)
		r.Post("/plans", s.planSend)
		r.Post("/plans/{id}/execute", s.executePlan)
		r.Delete("/plans/{id}", s.cancelPlan)
		r.Post("/message", s.message)
		r.Post("/transactions/record", s.recordTransaction)
		r.Get("/transactions", s.listTransactions)
		r.Get("/transactions/{id}", s.getTransaction)
		r.Post("/translate", s.translate)
		r.Get("/balance/{address}", s.balance)
		r.Get("/bridge/status", s.bridgeStatus)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "version": version.CLIVersion}
	if s.store != nil {
		if err := s.store.PingContext(r.Context()); err != nil {
			s.log.WithError(err).Warn("health check: store unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "status": "degraded", "error": "store unreachable"})
			return
		}
	}
	writeOK(w, body)
}
