package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/lingo-wallet/internal/execution"
)

// Plans keeps execution plans between planning and confirmation. The plan is
// stored whole as JSON; only lookup columns are broken out.
type Plans struct {
	db *DB
}

func (s *Plans) SavePlan(ctx context.Context, plan *execution.Plan) error {
	if plan == nil || strings.TrimSpace(plan.ID) == "" {
		return fmt.Errorf("save plan: missing plan id")
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	created := toMillis(plan.CreatedAt)
	if created == 0 {
		created = time.Now().UTC().UnixMilli()
	}
	_, err = s.db.exec(ctx, `
		INSERT INTO pending_plans (id, kind, from_address, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			from_address=excluded.from_address,
			payload=excluded.payload
	`, plan.ID, string(plan.Kind), strings.ToLower(plan.FromAddress), created, string(payload))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// GetPlan returns ErrNotFound for unknown ids.
func (s *Plans) GetPlan(ctx context.Context, id string) (*execution.Plan, error) {
	var payload string
	err := s.db.queryRow(ctx, "SELECT payload FROM pending_plans WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan execution.Plan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("decode plan payload: %w", err)
	}
	return &plan, nil
}

// DeletePlan removes the plan. Deleting an unknown id returns ErrNotFound, so
// two callers racing to execute the same plan cannot both proceed.
func (s *Plans) DeletePlan(ctx context.Context, id string) error {
	res, err := s.db.exec(ctx, "DELETE FROM pending_plans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	ok, err := changed(res)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// PurgePlans deletes plans created before cutoff and returns the ones it
// removed. A plan claimed concurrently by DeletePlan is skipped.
func (s *Plans) PurgePlans(ctx context.Context, cutoff time.Time) ([]*execution.Plan, error) {
	rows, err := s.db.query(ctx, "SELECT payload FROM pending_plans WHERE created_at < ?", toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list expired plans: %w", err)
	}
	var expired []*execution.Plan
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		var plan execution.Plan
		if err := json.Unmarshal([]byte(payload), &plan); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode plan payload: %w", err)
		}
		expired = append(expired, &plan)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	removed := make([]*execution.Plan, 0, len(expired))
	for _, plan := range expired {
		err := s.DeletePlan(ctx, plan.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed = append(removed, plan)
	}
	return removed, nil
}
