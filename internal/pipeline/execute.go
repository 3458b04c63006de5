package pipeline

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/store"
)

type ExecuteResult struct {
	Plan   *execution.Plan    `json:"plan"`
	Result execution.TxResult `json:"result"`
}

// Plan returns a staged plan without consuming it.
func (p *Pipeline) Plan(ctx context.Context, planID string) (*execution.Plan, error) {
	if err := requireDep(p.plans != nil, "plan store"); err != nil {
		return nil, err
	}
	return p.plans.GetPlan(ctx, planID)
}

// Execute runs a confirmed plan with the user wallet. The plan is removed
// before submission so a plan id broadcasts at most once.
func (p *Pipeline) Execute(ctx context.Context, planID string) (ExecuteResult, error) {
	if err := requireDep(p.plans != nil, "plan store"); err != nil {
		return ExecuteResult{}, err
	}
	plan, err := p.plans.GetPlan(ctx, planID)
	if err != nil {
		return ExecuteResult{}, err
	}
	log := p.log.WithFields(logrus.Fields{"plan_id": plan.ID, "kind": plan.Kind})

	if plan.Expired(p.now(), p.planTTL) {
		if err := p.plans.DeletePlan(ctx, plan.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("delete expired plan")
		}
		p.markFailed(ctx, plan.HistoryID, "plan expired")
		metrics.Executions.WithLabelValues(string(plan.Kind), metrics.OutcomeSkipped).Inc()
		return ExecuteResult{}, clierr.New(clierr.CodeTimeout, "plan expired, request a new quote")
	}

	session, err := p.session(ctx, signer.RoleUser)
	if err != nil {
		return ExecuteResult{}, err
	}
	if err := p.plans.DeletePlan(ctx, plan.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ExecuteResult{}, clierr.New(clierr.CodeConflict, "plan is already being executed")
		}
		return ExecuteResult{}, clierr.Wrap(clierr.CodeInternal, "claim plan for execution", err)
	}

	res, execErr := p.executor.Execute(ctx, plan, session)
	metrics.Executions.WithLabelValues(string(plan.Kind), metrics.Outcome(execErr)).Inc()
	if execErr != nil {
		p.markFailed(ctx, plan.HistoryID, res.Error)
		log.WithError(execErr).Warn("plan execution failed")
		return ExecuteResult{Plan: plan, Result: res}, execErr
	}
	if plan.HistoryID != "" && p.history != nil {
		if err := p.history.AttachTxHash(ctx, plan.HistoryID, res.TxHash); err != nil {
			log.WithError(err).Warn("attach tx hash to history")
		}
	}
	log.WithField("tx_hash", res.TxHash).Info("plan executed")
	return ExecuteResult{Plan: plan, Result: res}, nil
}

// Cancel discards a staged plan and fails its history record.
func (p *Pipeline) Cancel(ctx context.Context, planID string) error {
	if err := requireDep(p.plans != nil, "plan store"); err != nil {
		return err
	}
	plan, err := p.plans.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if err := p.plans.DeletePlan(ctx, plan.ID); err != nil {
		return err
	}
	p.markFailed(ctx, plan.HistoryID, "cancelled")
	p.log.WithField("plan_id", plan.ID).Info("plan cancelled")
	return nil
}

// PurgeExpired drops plans older than the plan TTL and fails their history
// records. It returns how many plans were removed.
func (p *Pipeline) PurgeExpired(ctx context.Context) (int, error) {
	if err := requireDep(p.plans != nil, "plan store"); err != nil {
		return 0, err
	}
	removed, err := p.plans.PurgePlans(ctx, p.now().Add(-p.planTTL))
	if err != nil {
		return 0, err
	}
	for _, plan := range removed {
		p.markFailed(ctx, plan.HistoryID, "plan expired")
	}
	if len(removed) > 0 {
		p.log.WithField("count", len(removed)).Info("expired plans purged")
	}
	return len(removed), nil
}

// markFailed fails a plan's history record and ends any claim it was going
// to fund.
func (p *Pipeline) markFailed(ctx context.Context, historyID, reason string) {
	if historyID == "" {
		return
	}
	if p.claims != nil {
		if _, err := p.claims.Invalidate(ctx, historyID); err != nil {
			p.log.WithError(err).WithField("history_id", historyID).Warn("invalidate funded claims")
		}
	}
	if p.history == nil {
		return
	}
	if _, err := p.history.UpdateStatus(ctx, historyID, history.StatusFailed, "", reason); err != nil {
		p.log.WithError(err).WithField("history_id", historyID).Warn("mark history record failed")
	}
}
