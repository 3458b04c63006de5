package lifi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/httpx"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
)

const (
	baseUSDC = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	zeroAddr = "0x0000000000000000000000000000000000000000"
	sender   = "0x00000000000000000000000000000000000000AA"
)

func swapRequest() providers.QuoteRequest {
	return providers.QuoteRequest{
		FromChainID: 8453,
		ToChainID:   8453,
		FromToken:   baseUSDC,
		ToToken:     zeroAddr,
		FromAmount:  "10000000",
		FromAddress: sender,
	}
}

func TestQuote(t *testing.T) {
	var gotQuery string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-lifi-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"id": "quote-1",
			"tool": "uniswap",
			"action": {"toToken": {"address": "0x0000000000000000000000000000000000000000", "decimals": 18}},
			"estimate": {
				"fromAmount": "10000000",
				"toAmount": "3100000000000000",
				"toAmountMin": "3007000000000000",
				"approvalAddress": "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE",
				"feeCosts": [{"amountUSD":"0.03"}],
				"gasCosts": [{"amountUSD":"0.01"}],
				"executionDuration": 30
			},
			"transactionRequest": {
				"to": "0x1231deb6f5749ef6ce6943a275a1d3e7486f4eae",
				"data": "0xabcdef",
				"value": "0x0",
				"chainId": 8453,
				"gasLimit": "0x30d40"
			}
		}`)
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL), WithAPIKey("k1"))
	quote, err := c.Quote(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	for _, want := range []string{"fromChain=8453", "toChain=8453", "fromAmount=10000000", "slippage=0.03", "fromAddress=" + sender} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
	if gotKey != "k1" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if quote.Transaction == nil || quote.Transaction.To != "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE" {
		t.Fatalf("unexpected transaction request %+v", quote.Transaction)
	}
	if quote.Transaction.Value != "0" || quote.Transaction.GasLimit != "200000" {
		t.Fatalf("expected decoded value and gas, got %+v", quote.Transaction)
	}
	if quote.ToAmount != "3100000000000000" || quote.ToDecimals != 18 || quote.Tool != "uniswap" {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if quote.FeeUSD < 0.039 || quote.FeeUSD > 0.041 {
		t.Fatalf("unexpected fee %f", quote.FeeUSD)
	}
}

func TestQuoteUnavailable(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		msg    string
	}{
		"provider error": {
			status: http.StatusNotFound,
			body:   `{"message":"No available quotes for the requested transfer","code":1002}`,
			msg:    "No available quotes for the requested transfer",
		},
		"missing transaction": {
			status: http.StatusOK,
			body:   `{"estimate":{"toAmount":"1"}}`,
			msg:    "route has no executable transaction",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			c := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL))
			_, err := c.Quote(context.Background(), swapRequest())
			if !clierr.IsCode(err, clierr.CodeQuoteUnavailable) {
				t.Fatalf("expected quote unavailable, got %v", err)
			}
			if !strings.HasPrefix(err.Error(), tc.msg) {
				t.Fatalf("expected provider message %q, got %q", tc.msg, err.Error())
			}
		})
	}
}

func TestQuoteValidatesRequest(t *testing.T) {
	c := New(httpx.New(time.Second, 0))
	req := swapRequest()
	req.FromAmount = "0"
	if _, err := c.Quote(context.Background(), req); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	req = swapRequest()
	req.FromAddress = "nope"
	if _, err := c.Quote(context.Background(), req); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" || r.URL.Query().Get("txHash") != "0xsource" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("bridge") == "pending" {
			_, _ = fmt.Fprint(w, `{"status":"PENDING","substatus":"WAIT_DESTINATION_TRANSACTION"}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"status":"DONE","substatus":"COMPLETED","sending":{"txHash":"0xsource"},"receiving":{"txHash":"0xdestination"}}`)
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL))
	st, err := c.Status(context.Background(), providers.StatusRequest{TxHash: "0xsource", FromChainID: 8453, ToChainID: 42161})
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Status != providers.TransferDone || !st.Settled() || st.ReceivingTxHash != "0xdestination" {
		t.Fatalf("unexpected status %+v", st)
	}

	st, err = c.Status(context.Background(), providers.StatusRequest{TxHash: "0xsource", Bridge: "pending"})
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Settled() || st.Substatus != "WAIT_DESTINATION_TRANSACTION" {
		t.Fatalf("unexpected pending status %+v", st)
	}
}

func TestStatusRejectsForeignEndpoint(t *testing.T) {
	c := New(httpx.New(time.Second, 0), WithBaseURL("https://evil.example/v1"))
	_, err := c.Status(context.Background(), providers.StatusRequest{TxHash: "0x1"})
	if !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
