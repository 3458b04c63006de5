package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

const (
	baseUSDC  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	router    = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
	recipient = "0x00000000000000000000000000000000000000bB"
)

var walletAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeSession struct {
	mu       sync.Mutex
	chain    int64
	known    map[int64]bool
	stuck    bool // ChainID keeps reporting the original chain
	calls    []string
	sent     []TxRequest
	reverted map[int]bool // by send index
	sendErr  error
}

func newFakeSession(chain int64, known ...int64) *fakeSession {
	s := &fakeSession{chain: chain, known: map[int64]bool{chain: true}, reverted: map[int]bool{}}
	for _, k := range known {
		s.known[k] = true
	}
	return s
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Address() common.Address { return walletAddr }

func (s *fakeSession) ChainID(context.Context) (int64, error) {
	s.record("ChainID")
	return s.chain, nil
}

func (s *fakeSession) SwitchChain(_ context.Context, chainID int64) error {
	s.record(fmt.Sprintf("SwitchChain(%d)", chainID))
	if !s.known[chainID] {
		return ErrUnknownChain
	}
	if !s.stuck {
		s.chain = chainID
	}
	return nil
}

func (s *fakeSession) AddChain(_ context.Context, chain registry.Chain) error {
	s.record(fmt.Sprintf("AddChain(%s)", chain.HexChainID()))
	s.known[chain.ChainID] = true
	return nil
}

func (s *fakeSession) SendTransaction(_ context.Context, req TxRequest) (string, error) {
	s.record("SendTransaction")
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, req)
	return hashFor(len(s.sent) - 1), nil
}

func (s *fakeSession) WaitMined(_ context.Context, txHash string) (Receipt, error) {
	s.record("WaitMined(" + txHash + ")")
	for i := range s.sent {
		if hashFor(i) == txHash {
			status := uint64(1)
			if s.reverted[i] {
				status = 0
			}
			return Receipt{TxHash: txHash, Status: status, BlockNumber: 10}, nil
		}
	}
	return Receipt{}, fmt.Errorf("unknown tx %s", txHash)
}

func (s *fakeSession) Balance(context.Context, common.Address, registry.Token) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *fakeSession) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, nil
}

func hashFor(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}

func mustPack(method string, args ...any) string {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return "0x" + common.Bytes2Hex(data)
}

func tokenSendPlan() *Plan {
	return &Plan{
		ID:              "plan_send",
		Kind:            PlanSend,
		ChainID:         8453,
		FromAddress:     walletAddr.Hex(),
		Recipient:       recipient,
		Amount:          "10",
		AmountBaseUnits: "10000000",
		Token:           "USDC",
		Steps: []Step{{
			ID:      "transfer",
			Type:    StepTypeTransfer,
			ChainID: 8453,
			Target:  baseUSDC,
			Data:    mustPack("transfer", common.HexToAddress(recipient), big.NewInt(10_000_000)),
			Value:   "0",
			Status:  StepStatusPending,
		}},
	}
}

func swapPlan() *Plan {
	return &Plan{
		ID:              "plan_swap",
		Kind:            PlanSwap,
		ChainID:         8453,
		FromAddress:     walletAddr.Hex(),
		Amount:          "10",
		AmountBaseUnits: "10000000",
		Token:           "USDC",
		ToToken:         "ETH",
		Quote: &providers.Quote{
			Provider:    "lifi",
			Transaction: &providers.TransactionRequest{To: router, Data: "0xabcdef", Value: "0", ChainID: 8453},
		},
		Steps: []Step{
			{
				ID:      "approve",
				Type:    StepTypeApproval,
				ChainID: 8453,
				Target:  baseUSDC,
				Data:    mustPack("approve", common.HexToAddress(router), big.NewInt(10_000_000)),
				Value:   "0",
				Status:  StepStatusPending,
			},
			{
				ID:      "swap",
				Type:    StepTypeSwap,
				ChainID: 8453,
				Target:  router,
				Data:    "0xabcdef",
				Value:   "0",
				Status:  StepStatusPending,
			},
		},
	}
}
