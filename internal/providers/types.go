// Package providers defines the routing-service contract used to price and
// build swaps and bridges.
package providers

import "context"

// DefaultSlippage is the fractional slippage tolerance sent with every quote.
const DefaultSlippage = 0.03

type QuoteRequest struct {
	FromChainID int64
	ToChainID   int64
	FromToken   string
	ToToken     string
	// FromAmount is in the source token's smallest units.
	FromAmount  string
	FromAddress string
	ToAddress   string
	Slippage    float64
}

// TransactionRequest is the ready-to-sign call returned with a quote. Value is
// a decimal wei string.
type TransactionRequest struct {
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	ChainID  int64  `json:"chain_id"`
	GasLimit string `json:"gas_limit,omitempty"`
}

type Quote struct {
	ID                string              `json:"id"`
	Provider          string              `json:"provider"`
	Tool              string              `json:"tool,omitempty"`
	FromChainID       int64               `json:"from_chain_id"`
	ToChainID         int64               `json:"to_chain_id"`
	FromToken         string              `json:"from_token"`
	ToToken           string              `json:"to_token"`
	FromAmount        string              `json:"from_amount"`
	ToAmount          string              `json:"to_amount"`
	ToAmountMin       string              `json:"to_amount_min,omitempty"`
	ToDecimals        int                 `json:"to_decimals"`
	ApprovalAddress   string              `json:"approval_address,omitempty"`
	FeeUSD            float64             `json:"fee_usd"`
	ExecutionDuration int64               `json:"execution_duration_s"`
	Transaction       *TransactionRequest `json:"transaction_request,omitempty"`
}

type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
}

type TransferState string

const (
	TransferDone     TransferState = "DONE"
	TransferPending  TransferState = "PENDING"
	TransferFailed   TransferState = "FAILED"
	TransferNotFound TransferState = "NOT_FOUND"
	TransferInvalid  TransferState = "INVALID"
)

type StatusRequest struct {
	TxHash      string
	Bridge      string
	FromChainID int64
	ToChainID   int64
}

type TransferStatus struct {
	Status          TransferState `json:"status"`
	Substatus       string        `json:"substatus,omitempty"`
	SubstatusDetail string        `json:"substatus_message,omitempty"`
	SendingTxHash   string        `json:"sending_tx_hash,omitempty"`
	ReceivingTxHash string        `json:"receiving_tx_hash,omitempty"`
	ExplorerLink    string        `json:"explorer_link,omitempty"`
}

// Settled reports whether the transfer reached a final state.
func (s TransferStatus) Settled() bool {
	return s.Status == TransferDone || s.Status == TransferFailed || s.Status == TransferInvalid
}

type StatusChecker interface {
	Status(ctx context.Context, req StatusRequest) (TransferStatus, error)
}
