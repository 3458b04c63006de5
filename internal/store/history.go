package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/lingo-wallet/internal/history"
)

const recordColumns = `id, wallet_address, type, status, token_in, token_out, amount_in, amount_out,
	counterparty_address, counterparty_phone, chain, tx_hash, description, language,
	original_command, error_message, created_at, updated_at, confirmed_at`

// History implements history.Store.
type History struct {
	db *DB
}

var _ history.Store = (*History)(nil)

func (s *History) InsertRecord(ctx context.Context, r history.Record) error {
	_, err := s.db.exec(ctx, `INSERT INTO transactions (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WalletAddress, string(r.Type), string(r.Status), r.TokenIn, r.TokenOut, r.AmountIn, r.AmountOut,
		r.CounterpartyAddress, r.CounterpartyPhone, r.Chain, r.TxHash, r.Description, r.Language,
		r.OriginalCommand, r.ErrorMessage, toMillis(r.CreatedAt), toMillis(r.UpdatedAt), optionalMillis(r.ConfirmedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *History) GetRecord(ctx context.Context, id string) (history.Record, bool, error) {
	return scanRecordRow(s.db.queryRow(ctx, "SELECT "+recordColumns+" FROM transactions WHERE id = ?", id))
}

// GetRecordByHash matches the hash case-insensitively; the newest record wins.
func (s *History) GetRecordByHash(ctx context.Context, txHash string) (history.Record, bool, error) {
	return scanRecordRow(s.db.queryRow(ctx,
		"SELECT "+recordColumns+" FROM transactions WHERE LOWER(tx_hash) = ? ORDER BY created_at DESC LIMIT 1",
		strings.ToLower(txHash)))
}

func (s *History) SetTxHash(ctx context.Context, id, txHash string, at time.Time) (bool, error) {
	res, err := s.db.exec(ctx, "UPDATE transactions SET tx_hash = ?, updated_at = ? WHERE id = ? AND status = 'pending'",
		txHash, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("set transaction hash: %w", err)
	}
	return changed(res)
}

// TransitionStatus applies t only while the stored status equals t.From.
// An empty hash or error message keeps the stored value.
func (s *History) TransitionStatus(ctx context.Context, t history.Transition) (bool, error) {
	var confirmedAt int64
	if t.To == history.StatusConfirmed {
		confirmedAt = toMillis(t.At)
	}
	res, err := s.db.exec(ctx, `
		UPDATE transactions SET
			status = ?,
			tx_hash = COALESCE(NULLIF(?, ''), tx_hash),
			error_message = COALESCE(NULLIF(?, ''), error_message),
			updated_at = ?,
			confirmed_at = CASE WHEN CAST(? AS BIGINT) > 0 THEN ? ELSE confirmed_at END
		WHERE id = ? AND status = ?
	`, string(t.To), t.TxHash, t.ErrorMessage, toMillis(t.At), confirmedAt, confirmedAt, t.ID, string(t.From))
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	return changed(res)
}

func (s *History) ListRecords(ctx context.Context, f history.Filter) ([]history.Record, int, error) {
	where, args := recordFilter(f.Wallet, f.Type, f.Status, f.Chain)

	var total int
	if err := s.db.queryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	rows, err := s.db.query(ctx, "SELECT "+recordColumns+" FROM transactions"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	out, err := scanRecordRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *History) CountRecords(ctx context.Context, wallet string, typ history.Type, status history.Status) (int, error) {
	where, args := recordFilter(wallet, typ, status, "")
	var n int
	if err := s.db.queryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *History) ListPendingWithHash(ctx context.Context, limit int) ([]history.Record, error) {
	rows, err := s.db.query(ctx, "SELECT "+recordColumns+" FROM transactions WHERE status = 'pending' AND tx_hash <> '' ORDER BY created_at LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return scanRecordRows(rows)
}

func recordFilter(wallet string, typ history.Type, status history.Status, chain string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if wallet != "" {
		clauses = append(clauses, "wallet_address = ?")
		args = append(args, strings.ToLower(wallet))
	}
	if typ != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(typ))
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}
	if chain != "" {
		clauses = append(clauses, "chain = ?")
		args = append(args, chain)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecordRow(row scanner) (history.Record, bool, error) {
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Record{}, false, nil
	}
	if err != nil {
		return history.Record{}, false, fmt.Errorf("read transaction: %w", err)
	}
	return r, true, nil
}

func scanRecordRows(rows *sql.Rows) ([]history.Record, error) {
	defer rows.Close()
	out := make([]history.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return out, nil
}

func scanRecord(row scanner) (history.Record, error) {
	var (
		r                             history.Record
		typ, status                   string
		created, updated, confirmedAt int64
	)
	err := row.Scan(&r.ID, &r.WalletAddress, &typ, &status, &r.TokenIn, &r.TokenOut, &r.AmountIn, &r.AmountOut,
		&r.CounterpartyAddress, &r.CounterpartyPhone, &r.Chain, &r.TxHash, &r.Description, &r.Language,
		&r.OriginalCommand, &r.ErrorMessage, &created, &updated, &confirmedAt)
	if err != nil {
		return history.Record{}, err
	}
	r.Type = history.Type(typ)
	r.Status = history.Status(status)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	r.ConfirmedAt = optionalTime(confirmedAt)
	return r, nil
}
