package execution

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

// HistoryUpdater is the part of history.Service the reconciler drives.
type HistoryUpdater interface {
	PendingWithHash(ctx context.Context, limit int) ([]history.Record, error)
	UpdateStatus(ctx context.Context, id string, next history.Status, txHash, errMsg string) (history.Record, error)
}

type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// Reconciler settles pending history records from chain receipts. Bridge
// records also wait for the routing provider to report delivery.
type Reconciler struct {
	history  HistoryUpdater
	receipts ReceiptSource
	status   providers.StatusChecker
	log      logrus.FieldLogger
	batch    int
}

func NewReconciler(h HistoryUpdater, receipts ReceiptSource, status providers.StatusChecker, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{history: h, receipts: receipts, status: status, log: log, batch: 100}
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	records, err := r.history.PendingWithHash(ctx, r.batch)
	if err != nil {
		return sum, err
	}
	for _, rec := range records {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		next, msg, err := r.resolve(ctx, rec)
		if err != nil {
			sum.Errors++
			r.log.WithError(err).WithFields(logrus.Fields{"id": rec.ID, "tx_hash": rec.TxHash}).Warn("reconcile lookup failed")
			continue
		}
		if next == history.StatusPending {
			sum.Pending++
			continue
		}
		if _, err := r.history.UpdateStatus(ctx, rec.ID, next, "", msg); err != nil {
			sum.Errors++
			r.log.WithError(err).WithField("id", rec.ID).Warn("reconcile update failed")
			continue
		}
		metrics.Reconciled.WithLabelValues(string(next)).Inc()
		if next == history.StatusConfirmed {
			sum.Confirmed++
		} else {
			sum.Failed++
		}
	}
	return sum, nil
}

func (r *Reconciler) resolve(ctx context.Context, rec history.Record) (history.Status, string, error) {
	chain, ok := registry.ChainBySlug(rec.Chain)
	if !ok {
		return history.StatusFailed, "unknown chain " + rec.Chain, nil
	}
	receipt, found, err := r.receipts.Receipt(ctx, chain.ChainID, rec.TxHash)
	if err != nil {
		return "", "", err
	}
	if !found {
		return history.StatusPending, "", nil
	}
	if !receipt.Succeeded() {
		return history.StatusFailed, "transaction reverted on-chain", nil
	}
	if rec.Type != history.TypeBridge || r.status == nil {
		return history.StatusConfirmed, "", nil
	}

	st, err := r.status.Status(ctx, providers.StatusRequest{TxHash: rec.TxHash, FromChainID: chain.ChainID})
	if err != nil {
		return "", "", err
	}
	switch st.Status {
	case providers.TransferDone:
		return history.StatusConfirmed, "", nil
	case providers.TransferFailed, providers.TransferInvalid:
		msg := st.SubstatusDetail
		if msg == "" {
			msg = "bridge transfer " + string(st.Status)
		}
		return history.StatusFailed, msg, nil
	default:
		return history.StatusPending, "", nil
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sum, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.WithError(err).Warn("reconcile pass failed")
		} else if sum.Checked > 0 {
			r.log.WithFields(logrus.Fields{
				"checked":   sum.Checked,
				"confirmed": sum.Confirmed,
				"failed":    sum.Failed,
			}).Info("reconcile pass")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
