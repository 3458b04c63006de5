// Package sms notifies phone recipients that a claim is waiting for them.
package sms

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/httpx"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/phone"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

// Result is reported to callers instead of an error: a failed SMS never
// undoes the claim it announces.
type Result struct {
	Sent       bool   `json:"sent"`
	MessageSID string `json:"messageSid,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Sender interface {
	SendClaim(ctx context.Context, to, amount, token, claimURL string) Result
}

type Twilio struct {
	http       *httpx.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
	log        logrus.FieldLogger
}

type Option func(*Twilio)

func WithBaseURL(baseURL string) Option {
	return func(t *Twilio) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			t.baseURL = v
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Twilio) {
		if log != nil {
			t.log = log
		}
	}
}

func NewTwilio(httpClient *httpx.Client, accountSID, authToken, from string, opts ...Option) *Twilio {
	t := &Twilio{
		http:       httpClient,
		baseURL:    registry.TwilioBaseURL,
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		from:       strings.TrimSpace(from),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Twilio) Configured() bool {
	return t.accountSID != "" && t.authToken != "" && t.from != ""
}

func ClaimMessage(amount, token, claimURL string) string {
	return fmt.Sprintf("🎉 You received %s %s!\n\nClaim it here:\n%s\n\nDownload Lingo Wallet to get started!", amount, token, claimURL)
}

type messageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

func (t *Twilio) SendClaim(ctx context.Context, to, amount, token, claimURL string) Result {
	log := t.log.WithField("to", phone.Mask(to))
	if !t.Configured() {
		metrics.SMSSent.WithLabelValues(metrics.OutcomeSkipped).Inc()
		log.Warn("sms not configured, claim notification skipped")
		return Result{Error: "sms provider is not configured"}
	}

	form := url.Values{}
	form.Set("To", phone.Compact(to))
	form.Set("From", t.from)
	form.Set("Body", ClaimMessage(amount, token, claimURL))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	var resp messageResponse
	if _, err := httpx.DoForm(ctx, t.http, endpoint, form, t.accountSID, t.authToken, &resp); err != nil {
		metrics.SMSSent.WithLabelValues(metrics.OutcomeFailed).Inc()
		msg := httpx.ProviderMessage(err)
		if msg == "" {
			msg = err.Error()
		}
		log.WithError(err).Warn("claim sms failed")
		return Result{Error: msg}
	}
	metrics.SMSSent.WithLabelValues(metrics.OutcomeOK).Inc()
	log.WithField("sid", resp.SID).Info("claim sms sent")
	return Result{Sent: true, MessageSID: resp.SID}
}

// Noop drops every notification.
type Noop struct{}

func (Noop) SendClaim(context.Context, string, string, string, string) Result {
	return Result{Error: "sms disabled"}
}
