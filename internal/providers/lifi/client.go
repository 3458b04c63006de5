package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/httpx"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

const (
	ProviderName = "lifi"
	apiKeyHeader = "x-lifi-api-key"
)

type Client struct {
	http      *httpx.Client
	baseURL   string
	statusURL string
	apiKey    string
}

type Option func(*Client)

// WithBaseURL points quotes and status at another API root (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			c.baseURL = v
			c.statusURL = v + "/status"
		}
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func New(httpClient *httpx.Client, opts ...Option) *Client {
	c := &Client{http: httpClient, baseURL: registry.LiFiBaseURL, statusURL: registry.LiFiSettlementURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Action struct {
		FromChainID int64 `json:"fromChainId"`
		ToChainID   int64 `json:"toChainId"`
		ToToken     struct {
			Address  string `json:"address"`
			Decimals int    `json:"decimals"`
		} `json:"toToken"`
	} `json:"action"`
	Estimate struct {
		FromAmount      string `json:"fromAmount"`
		ToAmount        string `json:"toAmount"`
		ToAmountMin     string `json:"toAmountMin"`
		ApprovalAddress string `json:"approvalAddress"`
		FeeCosts        []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
		ExecutionDuration float64 `json:"executionDuration"`
	} `json:"estimate"`
	ToolDetails struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"toolDetails"`
	TransactionRequest *struct {
		To       string `json:"to"`
		From     string `json:"from"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		ChainID  int64  `json:"chainId"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

// Quote fetches a priced route with a ready-to-sign transaction. Any failure,
// including a route without a transaction request, is CodeQuoteUnavailable and
// carries the provider's own message when it sent one.
func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (quote providers.Quote, err error) {
	started := time.Now()
	defer func() {
		metrics.QuoteDuration.WithLabelValues(metrics.Outcome(err)).Observe(time.Since(started).Seconds())
	}()

	if req.FromChainID == 0 || req.ToChainID == 0 {
		return providers.Quote{}, clierr.New(clierr.CodeUsage, "quote requires source and destination chains")
	}
	if !common.IsHexAddress(req.FromToken) || !common.IsHexAddress(req.ToToken) {
		return providers.Quote{}, clierr.New(clierr.CodeUsage, "quote requires token addresses")
	}
	if !common.IsHexAddress(req.FromAddress) {
		return providers.Quote{}, clierr.New(clierr.CodeUsage, "quote requires a valid sender address")
	}
	if amount, ok := new(big.Int).SetString(strings.TrimSpace(req.FromAmount), 10); !ok || amount.Sign() <= 0 {
		return providers.Quote{}, clierr.New(clierr.CodeUsage, "quote amount must be a positive base-unit integer")
	}
	slippage := req.Slippage
	if slippage <= 0 {
		slippage = providers.DefaultSlippage
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("toChain", strconv.FormatInt(req.ToChainID, 10))
	vals.Set("fromToken", req.FromToken)
	vals.Set("toToken", req.ToToken)
	vals.Set("fromAmount", strings.TrimSpace(req.FromAmount))
	vals.Set("fromAddress", req.FromAddress)
	if common.IsHexAddress(req.ToAddress) {
		vals.Set("toAddress", req.ToAddress)
	}
	vals.Set("slippage", strconv.FormatFloat(slippage, 'f', -1, 64))

	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+vals.Encode(), nil)
	if err != nil {
		return providers.Quote{}, clierr.Wrap(clierr.CodeInternal, "build lifi quote request", err)
	}
	c.authorize(hReq)

	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		msg := httpx.ProviderMessage(err)
		if msg == "" {
			msg = "quote request failed"
		}
		return providers.Quote{}, clierr.Wrap(clierr.CodeQuoteUnavailable, msg, err)
	}
	tx := resp.TransactionRequest
	if tx == nil || strings.TrimSpace(tx.To) == "" || strings.TrimSpace(tx.Data) == "" {
		return providers.Quote{}, clierr.New(clierr.CodeQuoteUnavailable, "route has no executable transaction")
	}
	if !common.IsHexAddress(tx.To) {
		return providers.Quote{}, clierr.New(clierr.CodeQuoteUnavailable, "route returned an invalid transaction target")
	}
	if tx.ChainID != 0 && tx.ChainID != req.FromChainID {
		return providers.Quote{}, clierr.New(clierr.CodeQuoteUnavailable, "route transaction chain does not match source chain")
	}
	value, err := hexToDecimal(tx.Value)
	if err != nil {
		return providers.Quote{}, clierr.Wrap(clierr.CodeQuoteUnavailable, "route returned an invalid transaction value", err)
	}
	gasLimit, _ := hexToDecimal(tx.GasLimit)
	if strings.TrimSpace(tx.GasLimit) == "" {
		gasLimit = ""
	}

	fee := 0.0
	for _, item := range resp.Estimate.FeeCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		fee += v
	}
	for _, item := range resp.Estimate.GasCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		fee += v
	}

	chainID := tx.ChainID
	if chainID == 0 {
		chainID = req.FromChainID
	}
	return providers.Quote{
		ID:                resp.ID,
		Provider:          ProviderName,
		Tool:              firstNonEmpty(resp.ToolDetails.Key, resp.Tool),
		FromChainID:       req.FromChainID,
		ToChainID:         req.ToChainID,
		FromToken:         req.FromToken,
		ToToken:           req.ToToken,
		FromAmount:        firstNonEmpty(resp.Estimate.FromAmount, req.FromAmount),
		ToAmount:          resp.Estimate.ToAmount,
		ToAmountMin:       resp.Estimate.ToAmountMin,
		ToDecimals:        resp.Action.ToToken.Decimals,
		ApprovalAddress:   strings.TrimSpace(resp.Estimate.ApprovalAddress),
		FeeUSD:            fee,
		ExecutionDuration: int64(resp.Estimate.ExecutionDuration),
		Transaction: &providers.TransactionRequest{
			To:       common.HexToAddress(tx.To).Hex(),
			From:     tx.From,
			Data:     ensureHexPrefix(tx.Data),
			Value:    value,
			ChainID:  chainID,
			GasLimit: gasLimit,
		},
	}, nil
}

type statusResponse struct {
	Status           string `json:"status"`
	Substatus        string `json:"substatus"`
	SubstatusMessage string `json:"substatusMessage"`
	LiFiExplorerLink string `json:"lifiExplorerLink"`
	Sending          struct {
		TxHash string `json:"txHash"`
	} `json:"sending"`
	Receiving struct {
		TxHash string `json:"txHash"`
	} `json:"receiving"`
}

// Status reports the cross-chain settlement state of a bridge transaction.
func (c *Client) Status(ctx context.Context, req providers.StatusRequest) (providers.TransferStatus, error) {
	if strings.TrimSpace(req.TxHash) == "" {
		return providers.TransferStatus{}, clierr.New(clierr.CodeUsage, "status requires a transaction hash")
	}
	if !registry.IsAllowedSettlementURL(c.statusURL) {
		return providers.TransferStatus{}, clierr.New(clierr.CodeUsage, "settlement status endpoint is not allowed")
	}
	vals := url.Values{}
	vals.Set("txHash", strings.TrimSpace(req.TxHash))
	if req.Bridge != "" {
		vals.Set("bridge", req.Bridge)
	}
	if req.FromChainID != 0 {
		vals.Set("fromChain", strconv.FormatInt(req.FromChainID, 10))
	}
	if req.ToChainID != 0 {
		vals.Set("toChain", strconv.FormatInt(req.ToChainID, 10))
	}
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL+"?"+vals.Encode(), nil)
	if err != nil {
		return providers.TransferStatus{}, clierr.Wrap(clierr.CodeInternal, "build lifi status request", err)
	}
	c.authorize(hReq)

	var resp statusResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return providers.TransferStatus{}, err
	}
	state := providers.TransferState(strings.ToUpper(strings.TrimSpace(resp.Status)))
	switch state {
	case providers.TransferDone, providers.TransferPending, providers.TransferFailed, providers.TransferNotFound, providers.TransferInvalid:
	default:
		return providers.TransferStatus{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected lifi status %q", resp.Status))
	}
	return providers.TransferStatus{
		Status:          state,
		Substatus:       resp.Substatus,
		SubstatusDetail: resp.SubstatusMessage,
		SendingTxHash:   resp.Sending.TxHash,
		ReceivingTxHash: resp.Receiving.TxHash,
		ExplorerLink:    resp.LiFiExplorerLink,
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

// hexToDecimal accepts 0x-prefixed hex or plain decimal.
func hexToDecimal(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	base := 10
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
		base = 16
		if clean == "" {
			return "0", nil
		}
	}
	n := new(big.Int)
	if _, ok := n.SetString(clean, base); !ok {
		return "", fmt.Errorf("invalid numeric value %q", v)
	}
	return n.String(), nil
}
