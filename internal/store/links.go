package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PhoneLink maps a phone hash to the wallet registered for it.
type PhoneLink struct {
	PhoneHash     string    `json:"phone_hash"`
	WalletAddress string    `json:"wallet_address"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Links struct {
	db *DB
}

// UpsertLink registers wallet for phoneHash, replacing any previous wallet.
func (l *Links) UpsertLink(ctx context.Context, phoneHash, wallet string, at time.Time) (PhoneLink, error) {
	phoneHash = strings.TrimSpace(phoneHash)
	wallet = strings.TrimSpace(wallet)
	if phoneHash == "" || wallet == "" {
		return PhoneLink{}, fmt.Errorf("upsert link: phone hash and wallet are required")
	}
	at = at.UTC()
	_, err := l.db.exec(ctx, `
		INSERT INTO phone_wallets (phone_hash, wallet_address, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(phone_hash) DO UPDATE SET
			wallet_address=excluded.wallet_address,
			updated_at=excluded.updated_at
	`, phoneHash, wallet, toMillis(at))
	if err != nil {
		return PhoneLink{}, fmt.Errorf("upsert link: %w", err)
	}
	return PhoneLink{PhoneHash: phoneHash, WalletAddress: wallet, UpdatedAt: fromMillis(toMillis(at))}, nil
}

// GetLink returns the wallet linked to phoneHash. found is false when the
// phone has never been linked.
func (l *Links) GetLink(ctx context.Context, phoneHash string) (string, bool, error) {
	var wallet string
	err := l.db.queryRow(ctx, "SELECT wallet_address FROM phone_wallets WHERE phone_hash = ?", phoneHash).Scan(&wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read link: %w", err)
	}
	return wallet, true, nil
}
