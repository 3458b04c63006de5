package server

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/id"
	"github.com/ggonzalez94/lingo-wallet/internal/pipeline"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
)

type parseRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (s *Server) parseCommand(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, clierr.New(clierr.CodeUsage, "text is required"))
		return
	}
	res, err := s.pipeline.Parse(r.Context(), req.Text, req.Language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"intent": res.Intent, "english": res.English, "response": res.Response, "translation": res.Translation})
}

func (s *Server) resolveRecipient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.Resolve(r.Context(), req.Recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"resolution": res})
}

func (s *Server) sendToPhone(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PhoneSendRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Sender == "" {
		req.Sender = callerWallet(r.Context())
	}
	if err := authorize(r.Context(), req.Sender); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.SendToPhone(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{"hasWallet": res.HasWallet, "message": res.Message}
	if res.HasWallet {
		body["recipientAddress"] = res.RecipientAddress
	}
	if res.Claim != nil {
		body["claimToken"] = res.Claim.Claim.ClaimToken
		body["claimUrl"] = res.Claim.ClaimURL
		body["smsSent"] = res.Claim.SMS.Sent
		if res.Claim.SMS.Error != "" {
			body["smsError"] = res.Claim.SMS.Error
		}
	}
	writeOK(w, body)
}

type linkRequest struct {
	Phone         string `json:"phone"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) linkPhone(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authorize(r.Context(), req.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.LinkPhone(r.Context(), req.Phone, req.WalletAddress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"link": res.Link, "pendingClaims": res.PendingClaims})
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.pipeline.GetClaim(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"claim": map[string]any{
		"amount":        c.Amount,
		"token":         c.Token,
		"senderAddress": c.SenderAddress,
		"expiresAt":     c.ExpiresAt,
	}})
}

func (s *Server) redeemClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authorize(r.Context(), req.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.RedeemClaim(r.Context(), chi.URLParam(r, "token"), req.WalletAddress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"claim": res.Claim, "message": res.Message, "payout": res.Payout, "payoutError": res.PayoutError})
}

type quoteRequest struct {
	WalletAddress   string `json:"walletAddress"`
	Amount          string `json:"amount"`
	FromToken       string `json:"fromToken"`
	ToToken         string `json:"toToken"`
	FromChain       string `json:"fromChain"`
	ToChain         string `json:"toChain"`
	OriginalCommand string `json:"originalCommand"`
	Language        string `json:"language"`
}

// quote stages a swap, or a bridge when the destination chain differs.
func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.WalletAddress == "" {
		req.WalletAddress = callerWallet(r.Context())
	}
	if err := authorize(r.Context(), req.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd := pipeline.SwapCommand{
		From:            req.WalletAddress,
		Amount:          req.Amount,
		FromToken:       req.FromToken,
		ToToken:         req.ToToken,
		FromChain:       req.FromChain,
		ToChain:         req.ToChain,
		OriginalCommand: req.OriginalCommand,
		Language:        req.Language,
	}
	var (
		plan *execution.Plan
		err  error
	)
	if crossChain(req.FromChain, req.ToChain) {
		plan, err = s.pipeline.PlanBridge(r.Context(), cmd)
	} else {
		plan, err = s.pipeline.PlanSwap(r.Context(), cmd)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"plan": plan, "expiresIn": s.pipeline.PlanTTL().Seconds()})
}

func crossChain(from, to string) bool {
	if strings.TrimSpace(to) == "" {
		return false
	}
	toChain, err := id.ParseChain(to)
	if err != nil {
		// Let the planner report the bad chain.
		return true
	}
	fromChain, err := id.ParseChain(from)
	if err != nil {
		return true
	}
	return fromChain.ChainID != toChain.ChainID
}

type planSendRequest struct {
	WalletAddress   string `json:"walletAddress"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	Token           string `json:"token"`
	Chain           string `json:"chain"`
	OriginalCommand string `json:"originalCommand"`
	Language        string `json:"language"`
}

func (s *Server) planSend(w http.ResponseWriter, r *http.Request) {
	var req planSendRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.WalletAddress == "" {
		req.WalletAddress = callerWallet(r.Context())
	}
	if err := authorize(r.Context(), req.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.pipeline.PlanSend(r.Context(), pipeline.SendCommand{
		From:            req.WalletAddress,
		Recipient:       req.Recipient,
		Amount:          req.Amount,
		Token:           req.Token,
		Chain:           req.Chain,
		OriginalCommand: req.OriginalCommand,
		Language:        req.Language,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"resolution": out.Resolution, "plan": out.Plan, "claim": out.Claim, "message": out.Message})
}

func (s *Server) executePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	plan, err := s.pipeline.Plan(r.Context(), planID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authorize(r.Context(), plan.FromAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.Execute(r.Context(), planID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"txHash": res.Result.TxHash, "explorerUrl": res.Result.ExplorerURL, "steps": res.Result.Steps})
}

func (s *Server) cancelPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	plan, err := s.pipeline.Plan(r.Context(), planID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authorize(r.Context(), plan.FromAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.pipeline.Cancel(r.Context(), planID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"cancelled": planID})
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req pipeline.MessageRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, clierr.New(clierr.CodeUsage, "text is required"))
		return
	}
	if req.Wallet == "" {
		req.Wallet = callerWallet(r.Context())
	}
	if err := authorize(r.Context(), req.Wallet); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.HandleMessage(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{
		"reply":   res.Reply,
		"intent":  res.Parse.Intent,
		"missing": res.Missing,
		"plan":    res.Plan,
		"claim":   res.Claim,
		"balance": res.Balance,
	})
}

type recordRequest struct {
	Action string `json:"action"`

	WalletAddress    string `json:"walletAddress"`
	RecipientAddress string `json:"recipientAddress"`
	RecipientPhone   string `json:"recipientPhone"`
	SenderAddress    string `json:"senderAddress"`
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	TokenIn          string `json:"tokenIn"`
	TokenOut         string `json:"tokenOut"`
	AmountIn         string `json:"amountIn"`
	AmountOut        string `json:"amountOut"`
	Chain            string `json:"chain"`
	TxHash           string `json:"txHash"`
	OriginalCommand  string `json:"originalCommand"`
	Language         string `json:"language"`

	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage"`

	Type                string `json:"type"`
	CounterpartyAddress string `json:"counterpartyAddress"`
	CounterpartyPhone   string `json:"counterpartyPhone"`
	Description         string `json:"description"`
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.history == nil {
		s.writeError(w, r, clierr.New(clierr.CodeUnavailable, "transaction history is not configured"))
		return
	}
	ctx := r.Context()
	var (
		rec history.Record
		err error
	)
	switch req.Action {
	case "send":
		if err = requireFields(map[string]string{"walletAddress": req.WalletAddress, "amount": req.Amount, "token": req.Token}); err == nil {
			err = authorize(ctx, req.WalletAddress)
		}
		if err == nil {
			rec, err = s.history.RecordSend(ctx, history.SendParams{
				Wallet:          req.WalletAddress,
				Amount:          req.Amount,
				Token:           req.Token,
				ToAddress:       req.RecipientAddress,
				ToPhone:         req.RecipientPhone,
				Chain:           req.Chain,
				TxHash:          req.TxHash,
				Language:        req.Language,
				OriginalCommand: req.OriginalCommand,
			})
		}
	case "swap":
		if err = requireFields(map[string]string{"walletAddress": req.WalletAddress, "tokenIn": req.TokenIn, "tokenOut": req.TokenOut, "amountIn": req.AmountIn}); err == nil {
			err = authorize(ctx, req.WalletAddress)
		}
		if err == nil {
			rec, err = s.history.RecordSwap(ctx, history.SwapParams{
				Wallet:          req.WalletAddress,
				AmountIn:        req.AmountIn,
				TokenIn:         req.TokenIn,
				AmountOut:       req.AmountOut,
				TokenOut:        req.TokenOut,
				Chain:           req.Chain,
				TxHash:          req.TxHash,
				Language:        req.Language,
				OriginalCommand: req.OriginalCommand,
			})
		}
	case "claim":
		if err = requireFields(map[string]string{"walletAddress": req.WalletAddress, "senderAddress": req.SenderAddress, "amount": req.Amount, "token": req.Token}); err == nil {
			err = authorize(ctx, req.WalletAddress)
		}
		if err == nil {
			rec, err = s.history.RecordClaim(ctx, history.ClaimParams{
				Wallet:      req.WalletAddress,
				Amount:      req.Amount,
				Token:       req.Token,
				FromAddress: req.SenderAddress,
				TxHash:      req.TxHash,
				Chain:       req.Chain,
			})
		}
	case "update_status":
		rec, err = s.updateStatus(r, req)
	case "create":
		if err = requireFields(map[string]string{"walletAddress": req.WalletAddress, "type": req.Type}); err == nil {
			err = authorize(ctx, req.WalletAddress)
		}
		if err == nil {
			rec, err = s.createRecord(r, req)
		}
	default:
		err = clierr.New(clierr.CodeUsage, "invalid action, use send, swap, claim, update_status or create")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"transaction": rec})
}

func (s *Server) updateStatus(r *http.Request, req recordRequest) (history.Record, error) {
	if err := requireFields(map[string]string{"transactionId": req.TransactionID, "status": req.Status}); err != nil {
		return history.Record{}, err
	}
	status, err := history.ParseStatus(req.Status)
	if err != nil {
		return history.Record{}, clierr.Wrap(clierr.CodeUsage, "status must be pending, confirmed or failed", err)
	}
	current, err := s.history.Get(r.Context(), req.TransactionID)
	if err != nil {
		return history.Record{}, err
	}
	if err := authorize(r.Context(), current.WalletAddress); err != nil {
		return history.Record{}, err
	}
	return s.history.UpdateStatus(r.Context(), req.TransactionID, status, req.TxHash, req.ErrorMessage)
}

func (s *Server) createRecord(r *http.Request, req recordRequest) (history.Record, error) {
	typ, err := history.ParseType(req.Type)
	if err != nil {
		return history.Record{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction type", err)
	}
	var status history.Status
	if req.Status != "" {
		if status, err = history.ParseStatus(req.Status); err != nil {
			return history.Record{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction status", err)
		}
	}
	return s.history.Record(r.Context(), history.Record{
		WalletAddress:       req.WalletAddress,
		Type:                typ,
		Status:              status,
		TokenIn:             req.TokenIn,
		TokenOut:            req.TokenOut,
		AmountIn:            req.AmountIn,
		AmountOut:           req.AmountOut,
		CounterpartyAddress: req.CounterpartyAddress,
		CounterpartyPhone:   req.CounterpartyPhone,
		Chain:               req.Chain,
		TxHash:              req.TxHash,
		Description:         req.Description,
		Language:            req.Language,
		OriginalCommand:     req.OriginalCommand,
	})
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return clierr.New(clierr.CodeUsage, "missing required fields: "+strings.Join(missing, ", "))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := q.Get("wallet")
	if wallet == "" {
		wallet = callerWallet(r.Context())
	}
	if wallet == "" {
		s.writeError(w, r, clierr.New(clierr.CodeUsage, "wallet address is required"))
		return
	}
	if err := authorize(r.Context(), wallet); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.history == nil {
		s.writeError(w, r, clierr.New(clierr.CodeUnavailable, "transaction history is not configured"))
		return
	}
	f := history.Filter{Wallet: wallet, Chain: q.Get("chain")}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), history.DefaultLimit); err == nil {
		f.Offset, err = intParam(q.Get("offset"), 0)
	}
	if err == nil && q.Get("type") != "" {
		f.Type, err = history.ParseType(q.Get("type"))
	}
	if err == nil && q.Get("status") != "" {
		f.Status, err = history.ParseStatus(q.Get("status"))
	}
	if err != nil {
		s.writeError(w, r, clierr.Wrap(clierr.CodeUsage, "invalid query", err))
		return
	}
	page, err := s.history.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{
		"transactions": page.Records,
		"pagination":   map[string]any{"limit": page.Limit, "offset": page.Offset, "total": page.Total, "hasMore": page.HasMore},
	}
	if q.Get("stats") == "true" {
		stats, err := s.history.Stats(r.Context(), wallet)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body["stats"] = stats
	}
	writeOK(w, body)
}

func intParam(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, clierr.New(clierr.CodeUnavailable, "transaction history is not configured"))
		return
	}
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authorize(r.Context(), rec.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"transaction": rec})
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"targetLanguage"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.translator.Translate(r.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{
		"translatedText":   res.TranslatedText,
		"originalLanguage": res.OriginalLanguage,
		"targetLanguage":   res.TargetLanguage,
		"translated":       res.Translated,
		"note":             res.Note,
		"error":            res.Error,
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Balance(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"address": res.Address, "chain": res.Chain, "eth": res.ETH, "usdc": res.USDC, "tokens": res.Tokens})
}

func (s *Server) bridgeStatus(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		s.writeError(w, r, clierr.New(clierr.CodeUnavailable, "bridge status provider is not configured"))
		return
	}
	q := r.URL.Query()
	req := providers.StatusRequest{TxHash: q.Get("txHash"), Bridge: q.Get("bridge")}
	for _, c := range []struct {
		raw string
		dst *int64
	}{{q.Get("fromChain"), &req.FromChainID}, {q.Get("toChain"), &req.ToChainID}} {
		if c.raw == "" {
			continue
		}
		chain, err := id.ParseChain(c.raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		*c.dst = chain.ChainID
	}
	st, err := s.bridge.Status(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"status": st, "settled": st.Settled()})
}
