package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
)

// requestLogger logs one line per request and feeds the HTTP metrics. The
// route label is the chi pattern so ids do not explode cardinality.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		s.log.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("http request")
	})
}

type walletClaims struct {
	Wallet string `json:"wallet,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// identity is the wallet a verified bearer token speaks for.
type identity struct {
	subject string
	wallet  string
}

func (id identity) allows(wallet string) bool {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return true
	}
	return strings.EqualFold(id.subject, wallet) || strings.EqualFold(id.wallet, wallet)
}

// requireToken verifies an HS256 bearer token when a secret is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if len(s.jwtSecret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.writeError(w, r, clierr.New(clierr.CodeAuth, "missing bearer token"))
			return
		}
		claims := &walletClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			s.writeError(w, r, clierr.Wrap(clierr.CodeAuth, "invalid bearer token", err))
			return
		}
		if claims.Subject == "" && claims.Wallet == "" {
			s.writeError(w, r, clierr.New(clierr.CodeAuth, "token does not name a wallet"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, identity{subject: claims.Subject, wallet: claims.Wallet})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize checks that the caller may act for wallet. Without auth
// configured every caller may.
func authorize(ctx context.Context, wallet string) error {
	id, ok := ctx.Value(ctxKey{}).(identity)
	if !ok || id.allows(wallet) {
		return nil
	}
	return clierr.New(clierr.CodeAuth, "token does not match wallet "+wallet)
}

// callerWallet is the wallet named by the token, used when a request omits it.
func callerWallet(ctx context.Context) string {
	id, ok := ctx.Value(ctxKey{}).(identity)
	if !ok {
		return ""
	}
	if id.wallet != "" {
		return id.wallet
	}
	return id.subject
}

// IssueToken signs a token for wallet. It backs the token command used to
// provision API clients.
func IssueToken(secret []byte, wallet string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := walletClaims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
