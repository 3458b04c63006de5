package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ggonzalez94/lingo-wallet/internal/history"
	"github.com/ggonzalez94/lingo-wallet/internal/logging"
	"github.com/ggonzalez94/lingo-wallet/internal/providers"
)

type fakeHistory struct {
	mu      sync.Mutex
	pending []history.Record
	updates map[string]history.Status
	msgs    map[string]string
	listed  int
}

func (f *fakeHistory) PendingWithHash(context.Context, int) ([]history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	var out []history.Record
	for _, r := range f.pending {
		if _, done := f.updates[r.ID]; !done {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) UpdateStatus(_ context.Context, id string, next history.Status, _ string, errMsg string) (history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]history.Status{}
		f.msgs = map[string]string{}
	}
	f.updates[id] = next
	f.msgs[id] = errMsg
	return history.Record{ID: id, Status: next}, nil
}

func (f *fakeHistory) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed
}

type fakeReceipts map[string]Receipt

func (f fakeReceipts) Receipt(_ context.Context, _ int64, txHash string) (Receipt, bool, error) {
	if txHash == "0xbroken" {
		return Receipt{}, false, errors.New("rpc down")
	}
	r, ok := f[txHash]
	return r, ok, nil
}

type fakeStatus struct {
	status providers.TransferStatus
	calls  int
}

func (f *fakeStatus) Status(context.Context, providers.StatusRequest) (providers.TransferStatus, error) {
	f.calls++
	return f.status, nil
}

func TestReconcilerRunOnce(t *testing.T) {
	h := &fakeHistory{pending: []history.Record{
		{ID: "mined", Type: history.TypeSend, Chain: "base", TxHash: "0xa"},
		{ID: "reverted", Type: history.TypeSwap, Chain: "base", TxHash: "0xb"},
		{ID: "unmined", Type: history.TypeSend, Chain: "base", TxHash: "0xc"},
		{ID: "bridging", Type: history.TypeBridge, Chain: "base", TxHash: "0xd"},
		{ID: "lookup-error", Type: history.TypeSend, Chain: "base", TxHash: "0xbroken"},
		{ID: "bad-chain", Type: history.TypeSend, Chain: "moonchain", TxHash: "0xe"},
	}}
	receipts := fakeReceipts{
		"0xa": {Status: 1},
		"0xb": {Status: 0},
		"0xd": {Status: 1},
	}
	status := &fakeStatus{status: providers.TransferStatus{Status: providers.TransferPending}}
	r := NewReconciler(h, receipts, status, logging.Discard())

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 6, Confirmed: 1, Failed: 2, Pending: 2, Errors: 1}, sum)
	assert.Equal(t, history.StatusConfirmed, h.updates["mined"])
	assert.Equal(t, history.StatusFailed, h.updates["reverted"])
	assert.Equal(t, "transaction reverted on-chain", h.msgs["reverted"])
	assert.Equal(t, history.StatusFailed, h.updates["bad-chain"])
	assert.NotContains(t, h.updates, "unmined")
	assert.NotContains(t, h.updates, "bridging")
	assert.Equal(t, 1, status.calls)
}

func TestReconcilerBridgeOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		status providers.TransferStatus
		want   history.Status
	}{
		{"done", providers.TransferStatus{Status: providers.TransferDone}, history.StatusConfirmed},
		{"failed", providers.TransferStatus{Status: providers.TransferFailed, SubstatusDetail: "refunded"}, history.StatusFailed},
		{"invalid", providers.TransferStatus{Status: providers.TransferInvalid}, history.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &fakeHistory{pending: []history.Record{{ID: "b", Type: history.TypeBridge, Chain: "base", TxHash: "0xd"}}}
			r := NewReconciler(h, fakeReceipts{"0xd": {Status: 1}}, &fakeStatus{status: tc.status}, logging.Discard())
			_, err := r.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, h.updates["b"])
		})
	}

	h := &fakeHistory{pending: []history.Record{{ID: "b", Type: history.TypeBridge, Chain: "base", TxHash: "0xd"}}}
	r := NewReconciler(h, fakeReceipts{"0xd": {Status: 1}}, &fakeStatus{status: providers.TransferStatus{Status: providers.TransferFailed, SubstatusDetail: "refunded"}}, logging.Discard())
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refunded", h.msgs["b"])
}

func TestReconcilerWithoutStatusCheckerConfirmsBridgeOnReceipt(t *testing.T) {
	h := &fakeHistory{pending: []history.Record{{ID: "b", Type: history.TypeBridge, Chain: "base", TxHash: "0xd"}}}
	r := NewReconciler(h, fakeReceipts{"0xd": {Status: 1}}, nil, logging.Discard())
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, history.StatusConfirmed, h.updates["b"])
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &fakeHistory{}
	r := NewReconciler(h, fakeReceipts{}, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return h.listCount() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
