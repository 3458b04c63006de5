package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/lingo-wallet/internal/claims"
	"github.com/ggonzalez94/lingo-wallet/internal/events"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/planner"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/logging"
	"github.com/ggonzalez94/lingo-wallet/internal/pipeline"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
	"github.com/ggonzalez94/lingo-wallet/internal/resolver"
	"github.com/ggonzalez94/lingo-wallet/internal/store"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	other  = "0x2222222222222222222222222222222222222222"
	secret = "test-secret"
)

type fixedBalances struct{}

func (fixedBalances) Balance(_ context.Context, _ int64, _ common.Address, token registry.Token) (*big.Int, error) {
	if token.Native {
		return big.NewInt(500_000_000_000_000_000), nil
	}
	return big.NewInt(2_000_000), nil
}

type fakeBridge struct{ got providers.StatusRequest }

func (f *fakeBridge) Status(_ context.Context, req providers.StatusRequest) (providers.TransferStatus, error) {
	f.got = req
	return providers.TransferStatus{Status: providers.TransferDone, ReceivingTxHash: "0xdef"}, nil
}

func newTestServer(t *testing.T, jwtSecret string) (*httptest.Server, *fakeBridge) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "lingo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.Discard()
	hist := history.NewService(db.History(), events.Noop{}, log)
	p := pipeline.New(pipeline.Deps{
		Resolver: resolver.New(db.Links(), log),
		Links:    db.Links(),
		Claims:   claims.NewManager(db.Claims(), claims.WithLogger(log)),
		Planner:  planner.New(nil, nil, log),
		Plans:    db.Plans(),
		History:  hist,
		Balances: fixedBalances{},
		Log:      log,
	})
	bridge := &fakeBridge{}
	srv := httptest.NewServer(New(Deps{
		Pipeline:  p,
		History:   hist,
		Bridge:    bridge,
		Store:     db,
		JWTSecret: jwtSecret,
		Log:       log,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv, bridge
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "")
	status, body := call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseCommand(t *testing.T) {
	srv, _ := newTestServer(t, "")
	status, body := call(t, srv, http.MethodPost, "/api/parse-command", "", map[string]string{"text": "Swap 0.1 ETH to USDC", "language": "en"})
	require.Equal(t, http.StatusOK, status)
	intentBody := body["intent"].(map[string]any)
	assert.Equal(t, "swap", intentBody["kind"])
	assert.Equal(t, "USDC", intentBody["to_token"])

	status, body = call(t, srv, http.MethodPost, "/api/parse-command", "", map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestPhoneClaimFlow(t *testing.T) {
	srv, _ := newTestServer(t, "")

	status, body := call(t, srv, http.MethodPost, "/api/send-to-phone", "", map[string]string{
		"phone": "+1 555 123 4567", "amount": "10", "token": "USDC", "senderAddress": other,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["hasWallet"])
	assert.Equal(t, false, body["smsSent"])
	token, _ := body["claimToken"].(string)
	require.NotEmpty(t, token)
	assert.Contains(t, body["claimUrl"], "/claim/"+token)

	status, body = call(t, srv, http.MethodGet, "/api/claims/"+token, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10", body["claim"].(map[string]any)["amount"])

	status, body = call(t, srv, http.MethodPost, "/api/link-phone", "", map[string]string{"phone": "+15551234567", "walletAddress": wallet})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["pendingClaims"], 1)

	status, body = call(t, srv, http.MethodPost, "/api/send-to-phone", "", map[string]string{
		"phone": "+15551234567", "amount": "1", "token": "ETH", "senderAddress": other,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["hasWallet"])
	assert.Equal(t, wallet, body["recipientAddress"])

	status, body = call(t, srv, http.MethodPost, "/api/claims/"+token+"/redeem", "", map[string]string{"walletAddress": wallet})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unfunded", body["payoutError"], "nobody funded this claim")

	status, body = call(t, srv, http.MethodPost, "/api/claims/"+token+"/redeem", "", map[string]string{"walletAddress": wallet})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_claimed", body["code"])

	status, _ = call(t, srv, http.MethodGet, "/api/claims/"+token, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPlanAndCancel(t *testing.T) {
	srv, _ := newTestServer(t, "")
	status, body := call(t, srv, http.MethodPost, "/api/plans", "", map[string]string{
		"walletAddress": wallet, "recipient": other, "amount": "0.5", "token": "ETH",
	})
	require.Equal(t, http.StatusOK, status, body)
	plan := body["plan"].(map[string]any)
	planID := plan["id"].(string)

	status, _ = call(t, srv, http.MethodDelete, "/api/plans/"+planID, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = call(t, srv, http.MethodGet, "/api/transactions/"+plan["history_id"].(string), "", nil)
	require.Equal(t, http.StatusOK, status)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "failed", tx["status"])
	assert.Equal(t, "cancelled", tx["error_message"])

	status, _ = call(t, srv, http.MethodPost, "/api/plans/"+planID+"/execute", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRecordAndListTransactions(t *testing.T) {
	srv, _ := newTestServer(t, "")

	status, body := call(t, srv, http.MethodPost, "/api/transactions/record", "", map[string]string{
		"action": "send", "walletAddress": wallet, "amount": "5", "token": "USDC", "recipientPhone": "+15551234567",
	})
	require.Equal(t, http.StatusOK, status, body)
	id := body["transaction"].(map[string]any)["id"].(string)

	status, body = call(t, srv, http.MethodPost, "/api/transactions/record", "", map[string]string{
		"action": "update_status", "transactionId": id, "status": "confirmed", "txHash": "0xabc",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = call(t, srv, http.MethodPost, "/api/transactions/record", "", map[string]string{"action": "swap", "walletAddress": wallet})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "amountIn, tokenIn, tokenOut")

	status, body = call(t, srv, http.MethodPost, "/api/transactions/record", "", map[string]string{"action": "delete"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, srv, http.MethodGet, "/api/transactions?wallet="+wallet+"&stats=true&limit=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
	assert.Equal(t, float64(1), body["stats"].(map[string]any)["total_sent"])
	assert.Equal(t, false, body["pagination"].(map[string]any)["hasMore"])

	status, _ = call(t, srv, http.MethodGet, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBalanceAndBridgeStatus(t *testing.T) {
	srv, bridge := newTestServer(t, "")
	status, body := call(t, srv, http.MethodGet, "/api/balance/"+wallet, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.5000", body["eth"])
	assert.Equal(t, "2.00", body["usdc"])

	status, body = call(t, srv, http.MethodGet, "/api/bridge/status?txHash=0xabc&fromChain=base&toChain=arbitrum", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, int64(8453), bridge.got.FromChainID)
	assert.Equal(t, int64(42161), bridge.got.ToChainID)
}

func TestTranslateWithoutKey(t *testing.T) {
	srv, _ := newTestServer(t, "")
	status, body := call(t, srv, http.MethodPost, "/api/translate", "", map[string]string{"text": "hola", "targetLanguage": "en"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hola", body["translatedText"])
	assert.Equal(t, false, body["translated"])
}

func TestJWTAuth(t *testing.T) {
	srv, _ := newTestServer(t, secret)
	link := map[string]string{"phone": "+15551234567", "walletAddress": wallet}

	status, body := call(t, srv, http.MethodPost, "/api/link-phone", "", link)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "auth_error", body["code"])

	otherToken, err := IssueToken([]byte(secret), other, time.Hour)
	require.NoError(t, err)
	status, _ = call(t, srv, http.MethodPost, "/api/link-phone", otherToken, link)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged, err := IssueToken([]byte("wrong"), wallet, time.Hour)
	require.NoError(t, err)
	status, _ = call(t, srv, http.MethodPost, "/api/link-phone", forged, link)
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := IssueToken([]byte(secret), wallet, -time.Minute)
	require.NoError(t, err)
	status, _ = call(t, srv, http.MethodPost, "/api/link-phone", expired, link)
	assert.Equal(t, http.StatusUnauthorized, status)

	good, err := IssueToken([]byte(secret), strings.ToLower(wallet), time.Hour)
	require.NoError(t, err)
	status, body = call(t, srv, http.MethodPost, "/api/link-phone", good, link)
	assert.Equal(t, http.StatusOK, status, body)

	status, body = call(t, srv, http.MethodGet, "/api/transactions", good, nil)
	assert.Equal(t, http.StatusOK, status, body)

	status, _ = call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
