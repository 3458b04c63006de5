package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

type fakeChain struct {
	mu          sync.Mutex
	chainID     int64
	estimate    uint64
	estimateErr error
	tip         *big.Int
	baseFee     *big.Int
	nonce       uint64
	balance     *big.Int
	callResult  []byte
	receipts    map[common.Hash]*types.Receipt
	sent        []*types.Transaction
	closed      bool
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callResult, nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tip == nil {
		return nil, errors.New("method not supported")
	}
	return f.tip, nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) Close() { f.closed = true }

type revertErr struct{ data string }

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorData() interface{} { return e.data }

func newTestSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := signer.NewLocalSigner(signer.KeyMaterial{PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(key))})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s
}

func newTestClients(chains map[int64]*fakeChain) *Clients {
	overrides := map[int64]string{}
	for id := range chains {
		overrides[id] = "http://fake"
	}
	c := NewClients(overrides)
	c.dial = func(_ context.Context, _ string) (chainClient, error) {
		return nil, errors.New("dial not expected")
	}
	for id, fc := range chains {
		c.clients[id] = fc
	}
	return c
}

func TestRPCSessionSendTransaction(t *testing.T) {
	fc := &fakeChain{chainID: 8453, estimate: 100_000, tip: big.NewInt(5), baseFee: big.NewInt(100), nonce: 7}
	sgn := newTestSigner(t)
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), sgn, DefaultSessionOptions())

	hash, err := session.SendTransaction(context.Background(), TxRequest{
		ChainID: 8453,
		To:      common.HexToAddress(baseUSDC),
		Data:    []byte{0x01},
	})
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(fc.sent))
	}
	tx := fc.sent[0]
	if tx.Hash().Hex() != hash {
		t.Fatalf("returned hash %s does not match broadcast %s", hash, tx.Hash().Hex())
	}
	if tx.Nonce() != 7 || tx.Gas() != 120_000 || tx.ChainId().Int64() != 8453 {
		t.Fatalf("unexpected tx fields nonce=%d gas=%d chain=%s", tx.Nonce(), tx.Gas(), tx.ChainId())
	}
	if tx.GasFeeCap().Int64() != 205 || tx.GasTipCap().Int64() != 5 {
		t.Fatalf("unexpected fees cap=%s tip=%s", tx.GasFeeCap(), tx.GasTipCap())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	if err != nil || from != sgn.Address() {
		t.Fatalf("unexpected sender %s err=%v", from.Hex(), err)
	}
}

func TestRPCSessionFallsBackToDefaultTip(t *testing.T) {
	fc := &fakeChain{chainID: 8453, estimate: 21_000, baseFee: big.NewInt(10)}
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), newTestSigner(t), DefaultSessionOptions())
	if _, err := session.SendTransaction(context.Background(), TxRequest{ChainID: 8453, To: walletAddr, Value: big.NewInt(1)}); err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if got := fc.sent[0].GasTipCap().Int64(); got != 1_000_000 {
		t.Fatalf("expected default tip, got %d", got)
	}
}

func TestRPCSessionRejectsWrongChain(t *testing.T) {
	fc := &fakeChain{chainID: 8453}
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), newTestSigner(t), DefaultSessionOptions())
	_, err := session.SendTransaction(context.Background(), TxRequest{ChainID: 10, To: walletAddr})
	if !clierr.IsCode(err, clierr.CodeWrongChain) {
		t.Fatalf("expected wrong chain error, got %v", err)
	}
	if len(fc.sent) != 0 {
		t.Fatal("nothing may be broadcast for a foreign chain")
	}
}

func TestRPCSessionDecodesRevertReason(t *testing.T) {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("abi type: %v", err)
	}
	packed, err := abi.Arguments{{Type: stringType}}.Pack("insufficient balance")
	if err != nil {
		t.Fatalf("pack revert: %v", err)
	}
	data := "0x" + hex.EncodeToString(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
	fc := &fakeChain{chainID: 8453, estimateErr: revertErr{data: data}}
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), newTestSigner(t), DefaultSessionOptions())

	_, err = session.SendTransaction(context.Background(), TxRequest{ChainID: 8453, To: walletAddr})
	if !clierr.IsCode(err, clierr.CodeActionPlan) {
		t.Fatalf("expected action plan error, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("expected decoded reason in %q", err.Error())
	}

	if got := revertReason(revertErr{data: "0xdeadbeef"}); got != "custom error 0xdeadbeef" {
		t.Fatalf("unexpected custom error rendering %q", got)
	}
	if got := revertReason(errors.New("plain")); got != "" {
		t.Fatalf("expected no reason for plain error, got %q", got)
	}
}

func TestRPCSessionChains(t *testing.T) {
	clients := newTestClients(map[int64]*fakeChain{8453: {chainID: 8453}})
	session := NewRPCSession(clients, newTestSigner(t), DefaultSessionOptions())
	ctx := context.Background()

	if err := session.SwitchChain(ctx, 42161); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected unknown chain, got %v", err)
	}
	arb, _ := registry.ChainByID(42161)
	if err := session.AddChain(ctx, arb); err != nil {
		t.Fatalf("AddChain failed: %v", err)
	}
	if err := session.SwitchChain(ctx, 42161); err != nil {
		t.Fatalf("SwitchChain after add failed: %v", err)
	}
	clients.clients[42161] = &fakeChain{chainID: 42161}
	id, err := session.ChainID(ctx)
	if err != nil || id != 42161 {
		t.Fatalf("expected arbitrum, got %d err=%v", id, err)
	}
}

func TestRPCSessionBalance(t *testing.T) {
	packed, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(10_000_000))
	if err != nil {
		t.Fatalf("pack balance: %v", err)
	}
	fc := &fakeChain{chainID: 8453, balance: big.NewInt(42), callResult: packed}
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), newTestSigner(t), DefaultSessionOptions())
	ctx := context.Background()

	eth, _ := registry.LookupToken(8453, "ETH")
	bal, err := session.Balance(ctx, walletAddr, eth)
	if err != nil || bal.Int64() != 42 {
		t.Fatalf("unexpected native balance %v err=%v", bal, err)
	}
	usdc, _ := registry.LookupToken(8453, "USDC")
	bal, err = session.Balance(ctx, walletAddr, usdc)
	if err != nil || bal.Int64() != 10_000_000 {
		t.Fatalf("unexpected token balance %v err=%v", bal, err)
	}
}

func TestClientsReceipt(t *testing.T) {
	mined := common.HexToHash("0x01")
	fc := &fakeChain{chainID: 8453, receipts: map[common.Hash]*types.Receipt{
		mined: {TxHash: mined, Status: 1, BlockNumber: big.NewInt(99), GasUsed: 21000},
	}}
	clients := newTestClients(map[int64]*fakeChain{8453: fc})
	ctx := context.Background()

	r, found, err := clients.Receipt(ctx, 8453, mined.Hex())
	if err != nil || !found || !r.Succeeded() || r.BlockNumber != 99 {
		t.Fatalf("unexpected receipt %+v found=%v err=%v", r, found, err)
	}
	_, found, err = clients.Receipt(ctx, 8453, common.HexToHash("0x02").Hex())
	if err != nil || found {
		t.Fatalf("expected unmined tx to be not found, found=%v err=%v", found, err)
	}
	if _, _, err := clients.Receipt(ctx, 8453, "0x1234"); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for short hash, got %v", err)
	}
	if _, _, err := clients.Receipt(ctx, 10, mined.Hex()); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected unknown chain, got %v", err)
	}
	clients.Close()
	if !fc.closed {
		t.Fatal("expected Close to close dialed clients")
	}
}

func TestWaitMinedTimesOut(t *testing.T) {
	fc := &fakeChain{chainID: 8453}
	opts := DefaultSessionOptions()
	opts.PollInterval = 5 * time.Millisecond
	session := NewRPCSession(newTestClients(map[int64]*fakeChain{8453: fc}), newTestSigner(t), opts)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := session.WaitMined(ctx, common.HexToHash("0x03").Hex())
	if !clierr.IsCode(err, clierr.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestAcquireNonceLockSerializes(t *testing.T) {
	chainID := big.NewInt(8453)
	unlock := acquireNonceLock(chainID, walletAddr)
	acquired := make(chan struct{})
	go func() {
		release := acquireNonceLock(chainID, walletAddr)
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("second caller acquired the lock while it was held")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the lock")
	}

	// Different chains do not contend.
	other := acquireNonceLock(big.NewInt(10), walletAddr)
	other()
}

func TestClientsAllowance(t *testing.T) {
	packed, err := erc20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(5_000_000))
	if err != nil {
		t.Fatalf("pack allowance: %v", err)
	}
	clients := newTestClients(map[int64]*fakeChain{8453: {chainID: 8453, callResult: packed}})
	got, err := clients.Allowance(context.Background(), 8453, common.HexToAddress(baseUSDC), walletAddr, common.HexToAddress(router))
	if err != nil || got.Int64() != 5_000_000 {
		t.Fatalf("unexpected allowance %v err=%v", got, err)
	}
}
