package execution

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

// ErrUnknownChain is returned by SwitchChain when the wallet has no
// configuration for the requested chain; AddChain fixes it.
var ErrUnknownChain = errors.New("chain is not configured in the wallet")

type TxRequest struct {
	ChainID int64
	To      common.Address
	Data    []byte
	Value   *big.Int
}

type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

func (r Receipt) Succeeded() bool { return r.Status == 1 }

// Session is a connected wallet: an account plus the chain it currently
// points at.
type Session interface {
	Address() common.Address
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, chain registry.Chain) error
	SendTransaction(ctx context.Context, req TxRequest) (string, error)
	WaitMined(ctx context.Context, txHash string) (Receipt, error)
	Balance(ctx context.Context, owner common.Address, token registry.Token) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// ReceiptSource looks up receipts on any configured chain without touching
// a session's current chain. found is false while the tx is unmined.
type ReceiptSource interface {
	Receipt(ctx context.Context, chainID int64, txHash string) (r Receipt, found bool, err error)
}
