package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

// chainClient is the subset of *ethclient.Client the session uses.
type chainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

type dialFunc func(ctx context.Context, rawURL string) (chainClient, error)

func dialEthclient(ctx context.Context, rawURL string) (chainClient, error) {
	return ethclient.DialContext(ctx, rawURL)
}

// Clients is a lazily dialed RPC connection per chain. Only chains with a
// known RPC URL are reachable; AddChain registers more.
type Clients struct {
	mu      sync.Mutex
	urls    map[int64]string
	clients map[int64]chainClient
	dial    dialFunc
}

// NewClients seeds the pool with the default chain plus every override.
func NewClients(overrides map[int64]string) *Clients {
	c := &Clients{urls: map[int64]string{}, clients: map[int64]chainClient{}, dial: dialEthclient}
	def := registry.DefaultChain()
	c.urls[def.ChainID] = def.RPCURL
	for chainID, url := range overrides {
		if strings.TrimSpace(url) != "" {
			c.urls[chainID] = strings.TrimSpace(url)
		}
	}
	return c
}

func (c *Clients) Known(chainID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.urls[chainID]
	return ok
}

// Register adds chain, keeping an existing URL if one is configured.
func (c *Clients) Register(chain registry.Chain) error {
	if strings.TrimSpace(chain.RPCURL) == "" {
		return fmt.Errorf("chain %s has no rpc url", chain.Slug)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.urls[chain.ChainID]; !ok {
		c.urls[chain.ChainID] = chain.RPCURL
	}
	return nil
}

func (c *Clients) client(ctx context.Context, chainID int64) (chainClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[chainID]; ok {
		return cl, nil
	}
	url, ok := c.urls[chainID]
	if !ok {
		return nil, ErrUnknownChain
	}
	cl, err := c.dial(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("connect rpc for chain %d", chainID), err)
	}
	c.clients[chainID] = cl
	return cl, nil
}

func (c *Clients) Receipt(ctx context.Context, chainID int64, txHash string) (Receipt, bool, error) {
	hash, ok := normalizeTxHash(txHash)
	if !ok {
		return Receipt{}, false, clierr.New(clierr.CodeUsage, "invalid transaction hash")
	}
	cl, err := c.client(ctx, chainID)
	if err != nil {
		return Receipt{}, false, err
	}
	r, err := cl.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, clierr.Wrap(clierr.CodeUnavailable, "fetch receipt", err)
	}
	return toReceipt(r), true, nil
}

func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.clients {
		cl.Close()
		delete(c.clients, id)
	}
}

type SessionOptions struct {
	PollInterval  time.Duration
	GasMultiplier float64
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{PollInterval: 2 * time.Second, GasMultiplier: 1.2}
}

// RPCSession is a Session backed by JSON-RPC endpoints and a local signer.
type RPCSession struct {
	clients *Clients
	signer  signer.Signer
	opts    SessionOptions

	mu      sync.Mutex
	current int64
}

func NewRPCSession(clients *Clients, txSigner signer.Signer, opts SessionOptions) *RPCSession {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &RPCSession{clients: clients, signer: txSigner, opts: opts, current: registry.DefaultChain().ChainID}
}

func (s *RPCSession) Address() common.Address { return s.signer.Address() }

func (s *RPCSession) currentChain() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ChainID asks the endpoint, so a misconfigured RPC URL shows up as a mismatch.
func (s *RPCSession) ChainID(ctx context.Context) (int64, error) {
	cl, err := s.clients.client(ctx, s.currentChain())
	if err != nil {
		return 0, err
	}
	id, err := cl.ChainID(ctx)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	return id.Int64(), nil
}

func (s *RPCSession) SwitchChain(_ context.Context, chainID int64) error {
	if !s.clients.Known(chainID) {
		return ErrUnknownChain
	}
	s.mu.Lock()
	s.current = chainID
	s.mu.Unlock()
	return nil
}

func (s *RPCSession) AddChain(_ context.Context, chain registry.Chain) error {
	return s.clients.Register(chain)
}

func (s *RPCSession) SendTransaction(ctx context.Context, req TxRequest) (string, error) {
	chainID := s.currentChain()
	if req.ChainID != 0 && req.ChainID != chainID {
		return "", clierr.New(clierr.CodeWrongChain, fmt.Sprintf("wallet is on chain %d, transaction targets %d", chainID, req.ChainID))
	}
	cl, err := s.clients.client(ctx, chainID)
	if err != nil {
		return "", err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	from := s.signer.Address()
	to := req.To
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data}

	gasLimit, err := cl.EstimateGas(ctx, msg)
	if err != nil {
		return "", wrapEVMError(clierr.CodeActionPlan, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * s.opts.GasMultiplier)

	tipCap, err := cl.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(1_000_000) // 0.001 gwei, enough on L2s
	}
	header, err := cl.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	chain := big.NewInt(chainID)
	unlock := acquireNonceLock(chain, from)
	defer unlock()
	nonce, err := cl.PendingNonceAt(ctx, from)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := s.signer.SignTx(chain, tx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := cl.SendTransaction(ctx, signed); err != nil {
		return "", wrapEVMError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash().Hex(), nil
}

// WaitMined polls for the receipt until ctx ends. Transient RPC errors are
// retried.
func (s *RPCSession) WaitMined(ctx context.Context, txHash string) (Receipt, error) {
	chainID := s.currentChain()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		r, found, err := s.clients.Receipt(ctx, chainID, txHash)
		if err == nil && found {
			return r, nil
		}
		if clierr.IsCode(err, clierr.CodeUsage) || errors.Is(err, ErrUnknownChain) {
			return Receipt{}, err
		}
		select {
		case <-ctx.Done():
			return Receipt{}, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *RPCSession) Balance(ctx context.Context, owner common.Address, token registry.Token) (*big.Int, error) {
	return s.clients.Balance(ctx, s.currentChain(), owner, token)
}

func (s *RPCSession) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	cl, err := s.clients.client(ctx, s.currentChain())
	if err != nil {
		return nil, err
	}
	out, err := cl.CallContract(ctx, ethereum.CallMsg{From: s.signer.Address(), To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMError(clierr.CodeUnavailable, "eth_call", err)
	}
	return out, nil
}

var nonceLocks sync.Map

// acquireNonceLock serializes nonce selection and broadcast per signer and chain.
func acquireNonceLock(chainID *big.Int, addr common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(addr.Hex())
	v, _ := nonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func normalizeTxHash(v string) (common.Hash, bool) {
	clean := strings.TrimSpace(v)
	if !strings.HasPrefix(clean, "0x") || len(clean) != 66 {
		return common.Hash{}, false
	}
	if _, err := decodeHex(clean); err != nil {
		return common.Hash{}, false
	}
	return common.HexToHash(clean), true
}

func toReceipt(r *types.Receipt) Receipt {
	out := Receipt{TxHash: r.TxHash.Hex(), Status: r.Status, GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

var errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// wrapEVMError keeps the node's message and appends a decoded revert reason
// when the error carries revert data.
func wrapEVMError(code clierr.Code, msg string, err error) error {
	if reason := revertReason(err); reason != "" {
		return clierr.Wrap(code, msg+": "+reason, err)
	}
	return clierr.Wrap(code, msg, err)
}

func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decodeErr := decodeHex(raw)
	if decodeErr != nil || len(data) < 4 {
		return ""
	}
	if string(data[:4]) == string(errorStringSelector) {
		if reason, err := abi.UnpackRevert(data); err == nil {
			return reason
		}
	}
	return fmt.Sprintf("custom error 0x%x", data[:4])
}

// Allowance reads the ERC-20 allowance owner has granted spender on chainID.
func (c *Clients) Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error) {
	cl, err := c.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance calldata", err)
	}
	raw, err := cl.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMError(clierr.CodeUnavailable, "read token allowance", err)
	}
	out, err := erc20ABI.Unpack("allowance", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode token allowance", err)
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid allowance response")
	}
	return allowance, nil
}

// Balance reads owner's native or ERC-20 balance on chainID without a signer.
func (c *Clients) Balance(ctx context.Context, chainID int64, owner common.Address, token registry.Token) (*big.Int, error) {
	cl, err := c.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if token.Native {
		bal, err := cl.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
		return bal, nil
	}
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf", err)
	}
	to := common.HexToAddress(token.Address)
	raw, err := cl.CallContract(ctx, ethereum.CallMsg{From: owner, To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMError(clierr.CodeUnavailable, "eth_call", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(vals) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode balanceOf", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid balanceOf response type")
	}
	return bal, nil
}
