// Package history records wallet transactions and their settlement status.
package history

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeSend    Type = "send"
	TypeReceive Type = "receive"
	TypeSwap    Type = "swap"
	TypeBridge  Type = "bridge"
	TypeClaim   Type = "claim"
)

var Types = []Type{TypeSend, TypeReceive, TypeSwap, TypeBridge, TypeClaim}

func ParseType(v string) (Type, error) {
	for _, t := range Types {
		if string(t) == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", v)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusPending, StatusConfirmed, StatusFailed:
		return Status(v), nil
	}
	return "", fmt.Errorf("unknown transaction status %q", v)
}

// CanTransitionTo reports whether s may move to next. Status only moves
// forward: pending settles once as confirmed or failed.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusConfirmed || next == StatusFailed)
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type Record struct {
	ID                  string     `json:"id"`
	WalletAddress       string     `json:"wallet_address"`
	Type                Type       `json:"type"`
	Status              Status     `json:"status"`
	TokenIn             string     `json:"token_in,omitempty"`
	TokenOut            string     `json:"token_out,omitempty"`
	AmountIn            string     `json:"amount_in,omitempty"`
	AmountOut           string     `json:"amount_out,omitempty"`
	CounterpartyAddress string     `json:"counterparty_address,omitempty"`
	CounterpartyPhone   string     `json:"counterparty_phone,omitempty"`
	Chain               string     `json:"chain"`
	TxHash              string     `json:"tx_hash,omitempty"`
	Description         string     `json:"description"`
	Language            string     `json:"language"`
	OriginalCommand     string     `json:"original_command,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
}

type Filter struct {
	Wallet string
	Type   Type
	Status Status
	Chain  string
	Limit  int
	Offset int
}

type Page struct {
	Records []Record `json:"transactions"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	HasMore bool     `json:"has_more"`
}

type Stats struct {
	TotalSent     int `json:"total_sent"`
	TotalReceived int `json:"total_received"`
	TotalSwaps    int `json:"total_swaps"`
	PendingCount  int `json:"pending_count"`
}

// Transition is a conditional status change applied only when the stored
// status still equals From.
type Transition struct {
	ID           string
	From         Status
	To           Status
	TxHash       string
	ErrorMessage string
	At           time.Time
}
