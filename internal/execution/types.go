// Package execution submits planned transactions through a wallet session
// and reconciles their on-chain outcome.
package execution

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ggonzalez94/lingo-wallet/internal/providers"
)

type PlanKind string

const (
	PlanSend   PlanKind = "send"
	PlanSwap   PlanKind = "swap"
	PlanBridge PlanKind = "bridge"
)

type StepType string

const (
	StepTypeApproval StepType = "approval"
	StepTypeTransfer StepType = "transfer"
	StepTypeSwap     StepType = "swap"
	StepTypeBridge   StepType = "bridge"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

// Step is one transaction. Value is a decimal wei string and Data is
// 0x-prefixed calldata.
type Step struct {
	ID          string     `json:"id"`
	Type        StepType   `json:"type"`
	ChainID     int64      `json:"chain_id"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Data        string     `json:"data"`
	Value       string     `json:"value"`
	Status      StepStatus `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Plan is a transaction sequence awaiting user confirmation.
type Plan struct {
	ID          string   `json:"id"`
	Kind        PlanKind `json:"kind"`
	ChainID     int64    `json:"chain_id"`
	ToChainID   int64    `json:"to_chain_id,omitempty"`
	FromAddress string   `json:"from_address"`
	Recipient   string   `json:"recipient,omitempty"`
	// RecipientPhone is set when the recipient was resolved from a phone link.
	RecipientPhone  string           `json:"recipient_phone,omitempty"`
	Amount          string           `json:"amount"`
	AmountBaseUnits string           `json:"amount_base_units"`
	Token           string           `json:"token"`
	ToToken         string           `json:"to_token,omitempty"`
	OriginalCommand string           `json:"original_command,omitempty"`
	Language        string           `json:"language,omitempty"`
	HistoryID       string           `json:"history_id,omitempty"`
	Quote           *providers.Quote `json:"quote,omitempty"`
	Steps           []Step           `json:"steps"`
	CreatedAt       time.Time        `json:"created_at"`
}

// FinalStep is the step whose hash identifies the plan on-chain.
func (p *Plan) FinalStep() *Step {
	if p == nil || len(p.Steps) == 0 {
		return nil
	}
	return &p.Steps[len(p.Steps)-1]
}

// Expired reports whether the plan is older than ttl at now. A zero ttl never expires.
func (p *Plan) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.CreatedAt) > ttl
}

func NewPlanID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("plan_%d", time.Now().UnixNano())
	}
	return "plan_" + hex.EncodeToString(b)
}

type StepResult struct {
	ID          string     `json:"id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	ExplorerURL string     `json:"explorer_url,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TxResult is the outcome of executing a plan. On success TxHash is the final
// step's hash; it may not be mined yet.
type TxResult struct {
	Success     bool         `json:"success"`
	TxHash      string       `json:"tx_hash,omitempty"`
	ExplorerURL string       `json:"explorer_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps"`
}
