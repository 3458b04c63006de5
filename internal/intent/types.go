// Package intent turns free-text wallet commands into structured intents.
//
// Parsing is deterministic keyword and pattern matching. A fixed, ordered
// list of matchers is tried and the first hit wins; anything unmatched
// becomes a chat intent carrying a help prompt.
package intent

import "fmt"

type Kind string

const (
	KindSend    Kind = "send"
	KindSwap    Kind = "swap"
	KindBridge  Kind = "bridge"
	KindBalance Kind = "balance"
	KindBuy     Kind = "buy"
	KindChat    Kind = "chat"
	KindUnknown Kind = "unknown"
)

// Kinds lists every intent kind. Callers that switch on Kind must handle all of them.
var Kinds = []Kind{KindSend, KindSwap, KindBridge, KindBalance, KindBuy, KindChat, KindUnknown}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

func ParseKind(v string) (Kind, error) {
	k := Kind(v)
	if !k.Valid() {
		return "", fmt.Errorf("unknown intent kind %q", v)
	}
	return k, nil
}

type RecipientKind string

const (
	RecipientNone    RecipientKind = ""
	RecipientAddress RecipientKind = "address"
	RecipientPhone   RecipientKind = "phone"
)

// Intent is created per message and never mutated after Parse returns it.
type Intent struct {
	Kind          Kind          `json:"kind"`
	Amount        *string       `json:"amount"`
	Token         string        `json:"token,omitempty"`
	FromToken     string        `json:"from_token,omitempty"`
	ToToken       string        `json:"to_token,omitempty"`
	FromChain     string        `json:"from_chain,omitempty"`
	ToChain       string        `json:"to_chain,omitempty"`
	RecipientRaw  *string       `json:"recipient_raw"`
	RecipientKind RecipientKind `json:"recipient_kind,omitempty"`
	Confidence    float64       `json:"confidence"`
	ResponseText  string        `json:"response_text"`
	// Language is the language ResponseText is written in.
	Language string `json:"language"`
}

// AmountValue returns the captured amount or "".
func (i Intent) AmountValue() string {
	if i.Amount == nil {
		return ""
	}
	return *i.Amount
}

// Recipient returns the captured recipient or "".
func (i Intent) Recipient() string {
	if i.RecipientRaw == nil {
		return ""
	}
	return *i.RecipientRaw
}

// Missing names the fields a follow-up prompt must collect before the intent
// can be planned. Non-actionable kinds report nothing.
func (i Intent) Missing() []string {
	var out []string
	switch i.Kind {
	case KindSend:
		if i.Amount == nil {
			out = append(out, "amount")
		}
		if i.Token == "" {
			out = append(out, "token")
		}
		if i.RecipientRaw == nil {
			out = append(out, "recipient")
		}
	case KindSwap:
		if i.Amount == nil {
			out = append(out, "amount")
		}
		if i.FromToken == "" {
			out = append(out, "from_token")
		}
		if i.ToToken == "" {
			out = append(out, "to_token")
		}
	case KindBridge:
		if i.Amount == nil {
			out = append(out, "amount")
		}
		if i.Token == "" {
			out = append(out, "token")
		}
		if i.ToChain == "" {
			out = append(out, "to_chain")
		}
	case KindBalance, KindBuy, KindChat, KindUnknown:
	}
	return out
}

// Actionable reports whether the intent can go straight to the planner.
func (i Intent) Actionable() bool {
	switch i.Kind {
	case KindSend, KindSwap, KindBridge:
		return len(i.Missing()) == 0
	case KindBalance, KindBuy, KindChat, KindUnknown:
		return false
	}
	return false
}

// Fallback reports whether no matcher recognized the text and the intent is
// the default chat reply.
func (i Intent) Fallback() bool {
	return i.Kind == KindUnknown || (i.Kind == KindChat && i.Confidence <= confidenceDefault)
}

func strPtr(v string) *string {
	return &v
}
