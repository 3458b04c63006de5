package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ggonzalez94/lingo-wallet/internal/claims"
)

const claimColumns = `id, claim_token, phone_hash, amount, token, sender_address, created_at, expires_at,
	claimed, redeemed_by, redeemed_at, payout_tx_hash, payout_error, funding_id`

// Claims implements claims.Store.
type Claims struct {
	db *DB
}

var _ claims.Store = (*Claims)(nil)

func (s *Claims) InsertClaim(ctx context.Context, c claims.Claim) error {
	_, err := s.db.exec(ctx, `INSERT INTO pending_claims (`+claimColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClaimToken, c.PhoneHash, c.Amount, c.Token, c.SenderAddress,
		toMillis(c.CreatedAt), toMillis(c.ExpiresAt), boolInt(c.Claimed),
		c.RedeemedBy, optionalMillis(c.RedeemedAt), c.PayoutTxHash, c.PayoutError, c.FundingID)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *Claims) GetActiveClaim(ctx context.Context, token string, now time.Time) (claims.Claim, bool, error) {
	row := s.db.queryRow(ctx, "SELECT "+claimColumns+" FROM pending_claims WHERE claim_token = ? AND claimed = 0 AND expires_at > ?",
		token, toMillis(now))
	return scanClaimRow(row)
}

func (s *Claims) LookupClaim(ctx context.Context, token string) (claims.Claim, bool, error) {
	row := s.db.queryRow(ctx, "SELECT "+claimColumns+" FROM pending_claims WHERE claim_token = ?", token)
	return scanClaimRow(row)
}

// MarkClaimed flips claimed in a single conditional statement so concurrent
// redeemers cannot both succeed.
func (s *Claims) MarkClaimed(ctx context.Context, token, wallet string, now time.Time) (bool, error) {
	res, err := s.db.exec(ctx, `
		UPDATE pending_claims SET claimed = 1, redeemed_by = ?, redeemed_at = ?
		WHERE claim_token = ? AND claimed = 0 AND expires_at > ?
	`, wallet, toMillis(now), token, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("mark claim redeemed: %w", err)
	}
	return changed(res)
}

func (s *Claims) ListActiveByPhone(ctx context.Context, phoneHash string, now time.Time) ([]claims.Claim, error) {
	rows, err := s.db.query(ctx, "SELECT "+claimColumns+" FROM pending_claims WHERE phone_hash = ? AND claimed = 0 AND expires_at > ? ORDER BY created_at",
		phoneHash, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return scanClaimRows(rows)
}

// RecordPayout stores the payout outcome of a redeemed claim. Once a payout
// hash is recorded it is never overwritten.
func (s *Claims) RecordPayout(ctx context.Context, token, txHash, payoutErr string) (bool, error) {
	res, err := s.db.exec(ctx, `
		UPDATE pending_claims SET payout_tx_hash = ?, payout_error = ?
		WHERE claim_token = ? AND claimed = 1 AND payout_tx_hash = ''
	`, txHash, payoutErr, token)
	if err != nil {
		return false, fmt.Errorf("record payout: %w", err)
	}
	return changed(res)
}

// ExpireFunded ends every open claim backed by fundingID. Redeemed claims
// are left alone.
func (s *Claims) ExpireFunded(ctx context.Context, fundingID string, now time.Time) (int64, error) {
	res, err := s.db.exec(ctx, `
		UPDATE pending_claims SET expires_at = ?
		WHERE funding_id = ? AND claimed = 0 AND expires_at > ?
	`, toMillis(now), fundingID, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("expire funded claims: %w", err)
	}
	return res.RowsAffected()
}

func (s *Claims) ListUnsettled(ctx context.Context, redeemedBefore time.Time) ([]claims.Claim, error) {
	rows, err := s.db.query(ctx, "SELECT "+claimColumns+" FROM pending_claims WHERE claimed = 1 AND payout_tx_hash = '' AND redeemed_at <= ? ORDER BY redeemed_at",
		toMillis(redeemedBefore))
	if err != nil {
		return nil, fmt.Errorf("list unsettled claims: %w", err)
	}
	return scanClaimRows(rows)
}

func scanClaimRow(row scanner) (claims.Claim, bool, error) {
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return claims.Claim{}, false, nil
	}
	if err != nil {
		return claims.Claim{}, false, fmt.Errorf("read claim: %w", err)
	}
	return c, true, nil
}

func scanClaimRows(rows *sql.Rows) ([]claims.Claim, error) {
	defer rows.Close()
	out := make([]claims.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}
	return out, nil
}

func scanClaim(row scanner) (claims.Claim, error) {
	var (
		c                            claims.Claim
		created, expires, redeemedAt int64
		claimed                      int
	)
	err := row.Scan(&c.ID, &c.ClaimToken, &c.PhoneHash, &c.Amount, &c.Token, &c.SenderAddress,
		&created, &expires, &claimed, &c.RedeemedBy, &redeemedAt, &c.PayoutTxHash, &c.PayoutError, &c.FundingID)
	if err != nil {
		return claims.Claim{}, err
	}
	c.CreatedAt = fromMillis(created)
	c.ExpiresAt = fromMillis(expires)
	c.Claimed = claimed == 1
	c.RedeemedAt = optionalTime(redeemedAt)
	return c, nil
}
