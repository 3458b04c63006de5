// Package resolver maps a recipient reference from a parsed command to a
// wallet address, or reports that the recipient has to be paid by claim.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/phone"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	phonePattern   = regexp.MustCompile(`^\+?[\d\-\s().]+$`)
)

// LinkReader looks up the wallet linked to a phone hash.
type LinkReader interface {
	GetLink(ctx context.Context, phoneHash string) (wallet string, found bool, err error)
}

type ResolvedRecipient struct {
	// Address is the input address verbatim, or the linked wallet.
	Address  string `json:"address"`
	ViaPhone bool   `json:"via_phone"`
	Phone    string `json:"phone,omitempty"`
}

// Checksummed is the EIP-55 form used when building transactions.
func (r ResolvedRecipient) Checksummed() string {
	return common.HexToAddress(r.Address).Hex()
}

// Resolution holds exactly one of Recipient or NeedsClaim.
type Resolution struct {
	Recipient  *ResolvedRecipient `json:"recipient,omitempty"`
	NeedsClaim bool               `json:"needs_claim"`
	// Phone is the compact phone number whenever the input was one.
	Phone string `json:"phone,omitempty"`
}

type Resolver struct {
	links LinkReader
	log   logrus.FieldLogger
}

func New(links LinkReader, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{links: links, log: log}
}

func IsAddress(raw string) bool {
	return addressPattern.MatchString(strings.TrimSpace(raw))
}

func IsPhone(raw string) bool {
	v := strings.TrimSpace(raw)
	return phonePattern.MatchString(v) && len(phone.Digits(v)) >= phone.MinDigits
}

// Resolve never writes. Addresses are trusted after format validation; phone
// numbers are looked up on every call.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return Resolution{}, clierr.New(clierr.CodeUsage, "recipient is required")
	case IsAddress(v):
		return Resolution{Recipient: &ResolvedRecipient{Address: v}}, nil
	case strings.HasPrefix(strings.ToLower(v), "0x"):
		return Resolution{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid wallet address %q", v))
	case IsPhone(v):
	default:
		return Resolution{}, clierr.New(clierr.CodeUsage, "recipient must be a wallet address or a phone number")
	}

	compact := phone.Compact(v)
	wallet, found, err := r.links.GetLink(ctx, phone.Hash(v))
	if err != nil {
		return Resolution{}, clierr.Wrap(clierr.CodeUnavailable, "look up phone link", err)
	}
	log := r.log.WithField("phone", phone.Mask(v))
	if !found {
		log.Debug("phone has no linked wallet")
		return Resolution{NeedsClaim: true, Phone: compact}, nil
	}
	if !IsAddress(wallet) {
		return Resolution{}, clierr.New(clierr.CodeInternal, "linked wallet is not a valid address")
	}
	log.Debug("phone resolved to linked wallet")
	return Resolution{
		Recipient: &ResolvedRecipient{Address: wallet, ViaPhone: true, Phone: compact},
		Phone:     compact,
	}, nil
}
