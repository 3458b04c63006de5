package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/events"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Store interface {
	InsertRecord(ctx context.Context, r Record) error
	GetRecord(ctx context.Context, id string) (Record, bool, error)
	GetRecordByHash(ctx context.Context, txHash string) (Record, bool, error)
	// SetTxHash changes the hash only while the record is pending.
	SetTxHash(ctx context.Context, id, txHash string, at time.Time) (bool, error)
	TransitionStatus(ctx context.Context, t Transition) (bool, error)
	ListRecords(ctx context.Context, f Filter) ([]Record, int, error)
	CountRecords(ctx context.Context, wallet string, typ Type, status Status) (int, error)
	ListPendingWithHash(ctx context.Context, limit int) ([]Record, error)
}

type Service struct {
	store  Store
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store Store, publisher events.Publisher, log logrus.FieldLogger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:  store,
		events: publisher,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record inserts r after filling defaults. Callers mostly use the typed
// helpers below.
func (s *Service) Record(ctx context.Context, r Record) (Record, error) {
	r.WalletAddress = strings.ToLower(strings.TrimSpace(r.WalletAddress))
	if r.WalletAddress == "" {
		return Record{}, clierr.New(clierr.CodeUsage, "wallet address is required")
	}
	if _, err := ParseType(string(r.Type)); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction type", err)
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction status", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Chain == "" {
		r.Chain = registry.DefaultChainSlug
	}
	if r.Language == "" {
		r.Language = "en"
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == StatusConfirmed && r.ConfirmedAt == nil {
		r.ConfirmedAt = &now
	}
	if err := s.store.InsertRecord(ctx, r); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "store transaction", err)
	}
	s.log.WithFields(logrus.Fields{"id": r.ID, "type": r.Type, "status": r.Status}).Debug("transaction recorded")
	return r, nil
}

type SendParams struct {
	Wallet          string
	Amount          string
	Token           string
	ToAddress       string
	ToPhone         string
	Chain           string
	TxHash          string
	Language        string
	OriginalCommand string
}

func (s *Service) RecordSend(ctx context.Context, p SendParams) (Record, error) {
	return s.Record(ctx, Record{
		WalletAddress:       p.Wallet,
		Type:                TypeSend,
		TokenIn:             p.Token,
		AmountIn:            p.Amount,
		CounterpartyAddress: p.ToAddress,
		CounterpartyPhone:   p.ToPhone,
		Chain:               p.Chain,
		TxHash:              p.TxHash,
		Description:         sendDescription(p.Amount, p.Token, p.ToPhone, p.ToAddress),
		Language:            p.Language,
		OriginalCommand:     p.OriginalCommand,
	})
}

type SwapParams struct {
	Wallet          string
	AmountIn        string
	TokenIn         string
	AmountOut       string
	TokenOut        string
	Chain           string
	TxHash          string
	Language        string
	OriginalCommand string
}

func (s *Service) RecordSwap(ctx context.Context, p SwapParams) (Record, error) {
	return s.Record(ctx, Record{
		WalletAddress:   p.Wallet,
		Type:            TypeSwap,
		TokenIn:         p.TokenIn,
		TokenOut:        p.TokenOut,
		AmountIn:        p.AmountIn,
		AmountOut:       p.AmountOut,
		Chain:           p.Chain,
		TxHash:          p.TxHash,
		Description:     swapDescription(p.AmountIn, p.TokenIn, p.AmountOut, p.TokenOut),
		Language:        p.Language,
		OriginalCommand: p.OriginalCommand,
	})
}

type BridgeParams struct {
	Wallet          string
	Amount          string
	Token           string
	FromChain       string
	ToChain         string
	TxHash          string
	Language        string
	OriginalCommand string
}

func (s *Service) RecordBridge(ctx context.Context, p BridgeParams) (Record, error) {
	return s.Record(ctx, Record{
		WalletAddress:   p.Wallet,
		Type:            TypeBridge,
		TokenIn:         p.Token,
		TokenOut:        p.Token,
		AmountIn:        p.Amount,
		Chain:           p.FromChain,
		TxHash:          p.TxHash,
		Description:     fmt.Sprintf("Bridged %s %s from %s to %s", p.Amount, p.Token, p.FromChain, p.ToChain),
		Language:        p.Language,
		OriginalCommand: p.OriginalCommand,
	})
}

type ClaimParams struct {
	Wallet      string
	Amount      string
	Token       string
	FromAddress string
	TxHash      string
	Chain       string
}

// RecordClaim stores a redeemed claim. The redemption already happened, so
// the record starts confirmed.
func (s *Service) RecordClaim(ctx context.Context, p ClaimParams) (Record, error) {
	return s.Record(ctx, Record{
		WalletAddress:       p.Wallet,
		Type:                TypeClaim,
		Status:              StatusConfirmed,
		TokenIn:             p.Token,
		AmountIn:            p.Amount,
		CounterpartyAddress: p.FromAddress,
		Chain:               p.Chain,
		TxHash:              p.TxHash,
		Description:         fmt.Sprintf("Claimed %s %s", p.Amount, p.Token),
	})
}

// AttachTxHash links the submitted transaction to a pending record.
func (s *Service) AttachTxHash(ctx context.Context, id, txHash string) error {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return clierr.New(clierr.CodeUsage, "tx hash is required")
	}
	ok, err := s.store.SetTxHash(ctx, id, txHash, s.now())
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "attach tx hash", err)
	}
	if ok {
		return nil
	}
	if _, found, err := s.store.GetRecord(ctx, id); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "read transaction", err)
	} else if !found {
		return clierr.New(clierr.CodeNotFound, "transaction not found")
	}
	return clierr.New(clierr.CodeConflict, "transaction is no longer pending")
}

// UpdateStatus settles a pending record. txHash and errMsg are optional.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, txHash, errMsg string) (Record, error) {
	if _, err := ParseStatus(string(next)); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction status", err)
	}
	current, found, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "read transaction", err)
	}
	if !found {
		return Record{}, clierr.New(clierr.CodeNotFound, "transaction not found")
	}
	if !current.Status.CanTransitionTo(next) {
		return Record{}, clierr.New(clierr.CodeConflict, fmt.Sprintf("cannot move transaction from %s to %s", current.Status, next))
	}

	t := Transition{
		ID:           id,
		From:         current.Status,
		To:           next,
		TxHash:       strings.TrimSpace(txHash),
		ErrorMessage: strings.TrimSpace(errMsg),
		At:           s.now(),
	}
	ok, err := s.store.TransitionStatus(ctx, t)
	if err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "update transaction status", err)
	}
	if !ok {
		return Record{}, clierr.New(clierr.CodeConflict, "transaction status changed concurrently")
	}

	updated, _, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "read transaction", err)
	}
	s.publishStatus(ctx, updated)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	r, found, err := s.store.GetRecord(ctx, strings.TrimSpace(id))
	if err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "read transaction", err)
	}
	if !found {
		return Record{}, clierr.New(clierr.CodeNotFound, "transaction not found")
	}
	return r, nil
}

func (s *Service) GetByHash(ctx context.Context, txHash string) (Record, error) {
	r, found, err := s.store.GetRecordByHash(ctx, strings.TrimSpace(txHash))
	if err != nil {
		return Record{}, clierr.Wrap(clierr.CodeInternal, "read transaction", err)
	}
	if !found {
		return Record{}, clierr.New(clierr.CodeNotFound, "transaction not found")
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	f.Wallet = strings.ToLower(strings.TrimSpace(f.Wallet))
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	records, total, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return Page{}, clierr.Wrap(clierr.CodeInternal, "list transactions", err)
	}
	if records == nil {
		records = []Record{}
	}
	return Page{
		Records: records,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
		HasMore: f.Offset+len(records) < total,
	}, nil
}

// Stats counts settled activity. Sent, received and swap totals only include
// confirmed records; PendingCount covers every type.
func (s *Service) Stats(ctx context.Context, wallet string) (Stats, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	var out Stats
	counts := []struct {
		dst    *int
		typ    Type
		status Status
	}{
		{&out.TotalSent, TypeSend, StatusConfirmed},
		{&out.TotalReceived, TypeReceive, StatusConfirmed},
		{&out.TotalSwaps, TypeSwap, StatusConfirmed},
		{&out.PendingCount, "", StatusPending},
	}
	for _, c := range counts {
		n, err := s.store.CountRecords(ctx, wallet, c.typ, c.status)
		if err != nil {
			return Stats{}, clierr.Wrap(clierr.CodeInternal, "count transactions", err)
		}
		*c.dst = n
	}
	return out, nil
}

// PendingWithHash returns submitted records still awaiting settlement.
func (s *Service) PendingWithHash(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out, err := s.store.ListPendingWithHash(ctx, limit)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "list pending transactions", err)
	}
	return out, nil
}

func (s *Service) publishStatus(ctx context.Context, r Record) {
	payload := map[string]any{
		"id":      r.ID,
		"wallet":  r.WalletAddress,
		"type":    r.Type,
		"status":  r.Status,
		"chain":   r.Chain,
		"tx_hash": r.TxHash,
	}
	if r.ErrorMessage != "" {
		payload["error"] = r.ErrorMessage
	}
	if err := s.events.Publish(ctx, events.SubjectTransactionStatus, payload); err != nil {
		s.log.WithError(err).WithField("id", r.ID).Warn("publish transaction status")
	}
}

func sendDescription(amount, token, toPhone, toAddress string) string {
	to := toPhone
	if to == "" {
		to = shortAddress(toAddress)
	}
	return fmt.Sprintf("Sent %s %s to %s", amount, token, to)
}

func swapDescription(amountIn, tokenIn, amountOut, tokenOut string) string {
	if amountOut == "" {
		amountOut = "?"
	}
	return fmt.Sprintf("Swapped %s %s for %s %s", amountIn, tokenIn, amountOut, tokenOut)
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}
