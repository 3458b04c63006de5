// Package claims holds value sent to phone numbers that have no linked wallet
// yet. A claim is redeemable exactly once, until it expires.
package claims

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/events"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/phone"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	tokenBytes = 32
)

var (
	ErrNotFound       = clierr.New(clierr.CodeNotFound, "claim not found or expired")
	ErrAlreadyClaimed = clierr.New(clierr.CodeAlreadyClaimed, "claim has already been redeemed")
)

type Claim struct {
	ID            string     `json:"id"`
	PhoneHash     string     `json:"phone_hash"`
	Amount        string     `json:"amount"`
	Token         string     `json:"token"`
	SenderAddress string     `json:"sender_address"`
	ClaimToken    string     `json:"claim_token"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Claimed       bool       `json:"claimed"`
	RedeemedBy    string     `json:"redeemed_by,omitempty"`
	RedeemedAt    *time.Time `json:"redeemed_at,omitempty"`
	PayoutTxHash  string     `json:"payout_tx_hash,omitempty"`
	PayoutError   string     `json:"payout_error,omitempty"`
	// FundingID is the history record of the transfer that backs the claim.
	// Empty means nobody funded it.
	FundingID string `json:"funding_id,omitempty"`
}

// Active reports whether the claim can still be redeemed at now.
func (c Claim) Active(now time.Time) bool {
	return !c.Claimed && now.Before(c.ExpiresAt)
}

// Store persists claims. MarkClaimed and RecordPayout must be conditional
// single-statement updates; they report whether a row changed.
type Store interface {
	InsertClaim(ctx context.Context, c Claim) error
	GetActiveClaim(ctx context.Context, token string, now time.Time) (Claim, bool, error)
	LookupClaim(ctx context.Context, token string) (Claim, bool, error)
	MarkClaimed(ctx context.Context, token, wallet string, now time.Time) (bool, error)
	ListActiveByPhone(ctx context.Context, phoneHash string, now time.Time) ([]Claim, error)
	RecordPayout(ctx context.Context, token, txHash, payoutErr string) (bool, error)
	ListUnsettled(ctx context.Context, redeemedBefore time.Time) ([]Claim, error)
	ExpireFunded(ctx context.Context, fundingID string, now time.Time) (int64, error)
}

type Manager struct {
	store   Store
	baseURL string
	ttl     time.Duration
	events  events.Publisher
	log     logrus.FieldLogger

	now    func() time.Time
	random io.Reader
}

type Option func(*Manager)

func WithBaseURL(baseURL string) Option {
	return func(m *Manager) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			m.baseURL = v
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		baseURL: registry.DefaultClaimBaseURL,
		ttl:     DefaultTTL,
		events:  events.Noop{},
		log:     logrus.StandardLogger(),
		now:     func() time.Time { return time.Now().UTC() },
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClaimURL is the link texted to the recipient.
func (m *Manager) ClaimURL(token string) string {
	return m.baseURL + "/claim/" + token
}

func (m *Manager) Create(ctx context.Context, rawPhone, amount, token, sender string) (Claim, error) {
	return m.CreateFunded(ctx, rawPhone, amount, token, sender, "")
}

// CreateFunded is Create for a claim backed by the transfer recorded under
// fundingID in history.
func (m *Manager) CreateFunded(ctx context.Context, rawPhone, amount, token, sender, fundingID string) (Claim, error) {
	digits := phone.Digits(rawPhone)
	if len(digits) < phone.MinDigits {
		return Claim{}, clierr.New(clierr.CodeUsage, "recipient phone number is invalid")
	}
	symbol := strings.ToUpper(strings.TrimSpace(token))
	// Claims pay out on the default chain, so its decimals bound the amount.
	asset, ok := registry.LookupToken(registry.DefaultChain().ChainID, symbol)
	if !ok {
		return Claim{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported token %q", token))
	}
	amount = id.NormalizeDecimal(amount)
	if err := exactAmount(amount, asset.Decimals); err != nil {
		return Claim{}, err
	}
	senderAddr, err := id.ChecksumAddress(sender)
	if err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeUsage, "sender address is invalid", err)
	}
	claimToken, err := m.newToken()
	if err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeInternal, "generate claim token", err)
	}

	now := m.now()
	c := Claim{
		ID:            uuid.NewString(),
		PhoneHash:     phone.Hash(digits),
		Amount:        amount,
		Token:         symbol,
		SenderAddress: senderAddr,
		ClaimToken:    claimToken,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
		FundingID:     strings.TrimSpace(fundingID),
	}
	if err := m.store.InsertClaim(ctx, c); err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeInternal, "store claim", err)
	}
	metrics.ClaimsCreated.Inc()
	m.publish(ctx, events.SubjectClaimCreated, c)
	m.log.WithFields(logrus.Fields{
		"claim_id": c.ID,
		"phone":    phone.Mask(digits),
		"amount":   c.Amount,
		"token":    c.Token,
	}).Info("claim created")
	return c, nil
}

// Get returns an unclaimed, unexpired claim. Missing, expired and redeemed
// claims are all reported as ErrNotFound.
func (m *Manager) Get(ctx context.Context, token string) (Claim, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claim{}, ErrNotFound
	}
	c, ok, err := m.store.GetActiveClaim(ctx, token, m.now())
	if err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeInternal, "read claim", err)
	}
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

// Redeem marks the claim as taken by wallet. Exactly one of any number of
// concurrent callers succeeds; the rest get ErrAlreadyClaimed.
func (m *Manager) Redeem(ctx context.Context, token, wallet string) (Claim, error) {
	token = strings.TrimSpace(token)
	walletAddr, err := id.ChecksumAddress(wallet)
	if err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeUsage, "wallet address is invalid", err)
	}
	if token == "" {
		return Claim{}, ErrNotFound
	}

	marked, err := m.store.MarkClaimed(ctx, token, walletAddr, m.now())
	if err != nil {
		metrics.ClaimRedemptions.WithLabelValues(metrics.OutcomeFailed).Inc()
		return Claim{}, clierr.Wrap(clierr.CodeInternal, "redeem claim", err)
	}
	current, found, err := m.store.LookupClaim(ctx, token)
	if err != nil {
		return Claim{}, clierr.Wrap(clierr.CodeInternal, "read claim", err)
	}
	if !marked {
		if found && current.Claimed {
			metrics.ClaimRedemptions.WithLabelValues("already_claimed").Inc()
			return Claim{}, ErrAlreadyClaimed
		}
		metrics.ClaimRedemptions.WithLabelValues("not_found").Inc()
		return Claim{}, ErrNotFound
	}
	if !found {
		return Claim{}, clierr.New(clierr.CodeInternal, "claim vanished after redemption")
	}

	metrics.ClaimRedemptions.WithLabelValues(metrics.OutcomeOK).Inc()
	m.publish(ctx, events.SubjectClaimRedeemed, current)
	m.log.WithFields(logrus.Fields{"claim_id": current.ID, "wallet": walletAddr}).Info("claim redeemed")
	return current, nil
}

// PendingForPhone lists the redeemable claims waiting for a phone number.
func (m *Manager) PendingForPhone(ctx context.Context, rawPhone string) ([]Claim, error) {
	digits := phone.Digits(rawPhone)
	if len(digits) < phone.MinDigits {
		return nil, clierr.New(clierr.CodeUsage, "phone number is invalid")
	}
	out, err := m.store.ListActiveByPhone(ctx, phone.Hash(digits), m.now())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "list claims", err)
	}
	return out, nil
}

// RecordPayout stores the result of the transfer that follows a successful
// Redeem. A failed transfer is recorded with an empty hash and may be
// recorded again; once a hash is stored the claim is settled.
func (m *Manager) RecordPayout(ctx context.Context, token, txHash string, payoutErr error) error {
	token = strings.TrimSpace(token)
	txHash = strings.TrimSpace(txHash)
	msg := ""
	if payoutErr != nil {
		msg = payoutErr.Error()
		txHash = ""
	}
	if txHash == "" && msg == "" {
		return clierr.New(clierr.CodeUsage, "payout tx hash or error is required")
	}
	changed, err := m.store.RecordPayout(ctx, token, txHash, msg)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "record claim payout", err)
	}
	if changed {
		return nil
	}
	c, found, err := m.store.LookupClaim(ctx, token)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "read claim", err)
	}
	switch {
	case !found:
		return ErrNotFound
	case !c.Claimed:
		return clierr.New(clierr.CodeConflict, "claim has not been redeemed")
	default:
		return clierr.New(clierr.CodeConflict, "claim payout is already settled: "+c.PayoutTxHash)
	}
}

// Invalidate expires the open claims backed by fundingID, for when that
// transfer will never land. It reports how many claims were ended.
func (m *Manager) Invalidate(ctx context.Context, fundingID string) (int, error) {
	fundingID = strings.TrimSpace(fundingID)
	if fundingID == "" {
		return 0, nil
	}
	n, err := m.store.ExpireFunded(ctx, fundingID, m.now())
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "invalidate claims", err)
	}
	if n > 0 {
		m.log.WithFields(logrus.Fields{"funding_id": fundingID, "count": n}).Info("claims invalidated")
	}
	return int(n), nil
}

// Unsettled lists redeemed claims with no recorded payout hash whose
// redemption is at least olderThan ago.
func (m *Manager) Unsettled(ctx context.Context, olderThan time.Duration) ([]Claim, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	out, err := m.store.ListUnsettled(ctx, m.now().Add(-olderThan))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "list unsettled claims", err)
	}
	return out, nil
}

// exactAmount rejects zero amounts and any precision the token cannot carry,
// which the payout would otherwise floor away.
func exactAmount(amount string, decimals int) error {
	if _, err := id.ToPositiveSmallestUnit(amount, decimals); err != nil {
		return err
	}
	if i := strings.IndexByte(amount, '.'); i >= 0 && len(amount)-i-1 > decimals {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %s has more than %d decimal places", amount, decimals))
	}
	return nil
}

func (m *Manager) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(m.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (m *Manager) publish(ctx context.Context, subject string, c Claim) {
	payload := map[string]any{
		"id":         c.ID,
		"amount":     c.Amount,
		"token":      c.Token,
		"claimed":    c.Claimed,
		"expires_at": c.ExpiresAt,
	}
	if c.RedeemedBy != "" {
		payload["redeemed_by"] = c.RedeemedBy
	}
	if err := m.events.Publish(ctx, subject, payload); err != nil {
		m.log.WithError(err).WithField("subject", subject).Warn("publish claim event")
	}
}
