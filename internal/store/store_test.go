package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/lingo-wallet/internal/claims"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "nested", "lingo.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lingo.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), DriverSQLite, path)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i, err)
		}
		if db.Driver() != DriverSQLite {
			t.Fatalf("unexpected driver %s", db.Driver())
		}
		_ = db.Close()
	}
	if _, err := Open(context.Background(), Driver("mysql"), path); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported driver, got %v", err)
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); !errors.Is(err, ErrOpenDatabase) {
		t.Fatalf("expected open error for empty dsn, got %v", err)
	}
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{"": DriverSQLite, "SQLite": DriverSQLite, "postgresql": DriverPostgres, "pgx": DriverPostgres} {
		got, err := ParseDriver(in)
		if err != nil || got != want {
			t.Fatalf("ParseDriver(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseDriver("oracle"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	got := pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	if got != "UPDATE t SET a = $1, b = $2 WHERE id = $3" {
		t.Fatalf("unexpected postgres rebind %q", got)
	}
	lite := &DB{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite queries must not be rewritten, got %q", got)
	}
}

func TestLinksUpsert(t *testing.T) {
	links := openTestDB(t).Links()
	ctx := context.Background()

	if _, found, err := links.GetLink(ctx, "hash-1"); err != nil || found {
		t.Fatalf("expected no link, found=%v err=%v", found, err)
	}
	if _, err := links.UpsertLink(ctx, "hash-1", "0x00000000000000000000000000000000000000aA", t0); err != nil {
		t.Fatalf("UpsertLink failed: %v", err)
	}
	link, err := links.UpsertLink(ctx, "hash-1", "0x00000000000000000000000000000000000000bB", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertLink replace failed: %v", err)
	}
	if !link.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected updated_at %v", link.UpdatedAt)
	}
	wallet, found, err := links.GetLink(ctx, "hash-1")
	if err != nil || !found || wallet != "0x00000000000000000000000000000000000000bB" {
		t.Fatalf("expected replaced wallet, got %q found=%v err=%v", wallet, found, err)
	}
	if _, err := links.UpsertLink(ctx, "", "0xabc", t0); err == nil {
		t.Fatal("expected missing phone hash to fail")
	}
}

func testClaim(token string, created time.Time) claims.Claim {
	return claims.Claim{
		ID:            "id-" + token,
		PhoneHash:     "phone-hash",
		Amount:        "10",
		Token:         "USDC",
		SenderAddress: "0x00000000000000000000000000000000000000aA",
		ClaimToken:    token,
		CreatedAt:     created,
		ExpiresAt:     created.Add(claims.DefaultTTL),
	}
}

func TestClaimsConditionalUpdates(t *testing.T) {
	store := openTestDB(t).Claims()
	ctx := context.Background()

	if err := store.InsertClaim(ctx, testClaim("tok-a", t0)); err != nil {
		t.Fatalf("InsertClaim failed: %v", err)
	}
	if err := store.InsertClaim(ctx, testClaim("tok-a", t0)); err == nil {
		t.Fatal("expected duplicate claim token to fail")
	}
	if err := store.InsertClaim(ctx, testClaim("tok-b", t0.Add(-8*24*time.Hour))); err != nil {
		t.Fatalf("InsertClaim expired failed: %v", err)
	}

	c, found, err := store.GetActiveClaim(ctx, "tok-a", t0.Add(time.Hour))
	if err != nil || !found || c.Amount != "10" || !c.ExpiresAt.Equal(t0.Add(claims.DefaultTTL)) {
		t.Fatalf("unexpected active claim %+v found=%v err=%v", c, found, err)
	}
	if _, found, _ := store.GetActiveClaim(ctx, "tok-b", t0); found {
		t.Fatal("expired claim must not be active")
	}
	active, err := store.ListActiveByPhone(ctx, "phone-hash", t0)
	if err != nil || len(active) != 1 || active[0].ClaimToken != "tok-a" {
		t.Fatalf("unexpected active list %+v err=%v", active, err)
	}

	if ok, err := store.RecordPayout(ctx, "tok-a", "0xpay", ""); err != nil || ok {
		t.Fatalf("payout must not be recorded before redemption, ok=%v err=%v", ok, err)
	}
	redeemAt := t0.Add(2 * time.Hour)
	if ok, err := store.MarkClaimed(ctx, "tok-a", "0xwallet", redeemAt); err != nil || !ok {
		t.Fatalf("expected first redeem to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.MarkClaimed(ctx, "tok-a", "0xother", redeemAt); ok {
		t.Fatal("second redeem must not change the row")
	}
	if ok, _ := store.MarkClaimed(ctx, "tok-b", "0xwallet", t0); ok {
		t.Fatal("expired claim must not be redeemable")
	}

	unsettled, err := store.ListUnsettled(ctx, redeemAt)
	if err != nil || len(unsettled) != 1 || unsettled[0].RedeemedBy != "0xwallet" {
		t.Fatalf("unexpected unsettled list %+v err=%v", unsettled, err)
	}
	if unsettled[0].RedeemedAt == nil || !unsettled[0].RedeemedAt.Equal(redeemAt) {
		t.Fatalf("unexpected redeemed_at %v", unsettled[0].RedeemedAt)
	}
	if ok, _ := store.RecordPayout(ctx, "tok-a", "", "rpc down"); !ok {
		t.Fatal("expected failed payout to be recorded")
	}
	if ok, _ := store.RecordPayout(ctx, "tok-a", "0xpay", ""); !ok {
		t.Fatal("expected retry payout to be recorded")
	}
	if ok, _ := store.RecordPayout(ctx, "tok-a", "0xsecond", ""); ok {
		t.Fatal("payout hash must not be overwritten")
	}
	c, _, _ = store.LookupClaim(ctx, "tok-a")
	if !c.Claimed || c.PayoutTxHash != "0xpay" {
		t.Fatalf("unexpected settled claim %+v", c)
	}
	if unsettled, _ := store.ListUnsettled(ctx, redeemAt); len(unsettled) != 0 {
		t.Fatalf("settled claim must leave the unsettled list, got %d", len(unsettled))
	}
}

func TestClaimsExpireFunded(t *testing.T) {
	store := openTestDB(t).Claims()
	ctx := context.Background()

	funded := testClaim("tok-funded", t0)
	funded.FundingID = "tx_fund"
	redeemed := testClaim("tok-redeemed", t0)
	redeemed.FundingID = "tx_fund"
	for _, c := range []claims.Claim{funded, redeemed, testClaim("tok-plain", t0)} {
		if err := store.InsertClaim(ctx, c); err != nil {
			t.Fatalf("InsertClaim %s failed: %v", c.ClaimToken, err)
		}
	}
	if ok, err := store.MarkClaimed(ctx, "tok-redeemed", "0xwallet", t0.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("MarkClaimed failed ok=%v err=%v", ok, err)
	}

	at := t0.Add(time.Hour)
	n, err := store.ExpireFunded(ctx, "tx_fund", at)
	if err != nil || n != 1 {
		t.Fatalf("expected one open funded claim expired, got %d err=%v", n, err)
	}
	if _, found, _ := store.GetActiveClaim(ctx, "tok-funded", at); found {
		t.Fatal("invalidated claim must not be active")
	}
	c, _, _ := store.LookupClaim(ctx, "tok-funded")
	if c.FundingID != "tx_fund" || !c.ExpiresAt.Equal(at) {
		t.Fatalf("unexpected invalidated claim %+v", c)
	}
	if c, _, _ := store.LookupClaim(ctx, "tok-redeemed"); !c.Claimed || !c.ExpiresAt.Equal(t0.Add(claims.DefaultTTL)) {
		t.Fatalf("redeemed claim must be untouched, got %+v", c)
	}
	if _, found, _ := store.GetActiveClaim(ctx, "tok-plain", at); !found {
		t.Fatal("unfunded claim must stay active")
	}
}

func TestClaimsConcurrentRedeemHasOneWinner(t *testing.T) {
	store := openTestDB(t).Claims()
	ctx := context.Background()
	if err := store.InsertClaim(ctx, testClaim("race", t0)); err != nil {
		t.Fatalf("InsertClaim failed: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkClaimed(ctx, "race", "0xwallet", t0.Add(time.Minute))
			if err != nil {
				t.Errorf("MarkClaimed failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func testRecord(id, wallet string, typ history.Type, created time.Time) history.Record {
	return history.Record{
		ID:            id,
		WalletAddress: wallet,
		Type:          typ,
		Status:        history.StatusPending,
		TokenIn:       "USDC",
		AmountIn:      "10",
		Chain:         "base",
		Description:   "Sent 10 USDC",
		Language:      "en",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestHistoryTransitions(t *testing.T) {
	store := openTestDB(t).History()
	ctx := context.Background()
	if err := store.InsertRecord(ctx, testRecord("r1", "0xaa", history.TypeSend, t0)); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}

	if ok, err := store.SetTxHash(ctx, "r1", "0xABC", t0.Add(time.Second)); err != nil || !ok {
		t.Fatalf("SetTxHash failed ok=%v err=%v", ok, err)
	}
	r, found, err := store.GetRecordByHash(ctx, "0xabc")
	if err != nil || !found || r.ID != "r1" {
		t.Fatalf("expected case-insensitive hash lookup, got %+v found=%v err=%v", r, found, err)
	}
	pending, err := store.ListPendingWithHash(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending record with hash, got %d err=%v", len(pending), err)
	}

	confirmAt := t0.Add(time.Minute)
	ok, err := store.TransitionStatus(ctx, history.Transition{ID: "r1", From: history.StatusPending, To: history.StatusConfirmed, At: confirmAt})
	if err != nil || !ok {
		t.Fatalf("expected transition, ok=%v err=%v", ok, err)
	}
	r, _, _ = store.GetRecord(ctx, "r1")
	if r.Status != history.StatusConfirmed || r.TxHash != "0xABC" {
		t.Fatalf("empty hash must keep the stored hash, got %+v", r)
	}
	if r.ConfirmedAt == nil || !r.ConfirmedAt.Equal(confirmAt) {
		t.Fatalf("unexpected confirmed_at %v", r.ConfirmedAt)
	}

	ok, _ = store.TransitionStatus(ctx, history.Transition{ID: "r1", From: history.StatusPending, To: history.StatusFailed, At: confirmAt})
	if ok {
		t.Fatal("stale transition must not apply")
	}
	if ok, _ := store.SetTxHash(ctx, "r1", "0xother", confirmAt); ok {
		t.Fatal("hash of a settled record must not change")
	}
	if _, found, _ := store.GetRecord(ctx, "missing"); found {
		t.Fatal("did not expect missing record")
	}
}

func TestHistoryListAndCount(t *testing.T) {
	store := openTestDB(t).History()
	ctx := context.Background()
	rows := []history.Record{
		testRecord("a", "0xaa", history.TypeSend, t0),
		testRecord("b", "0xaa", history.TypeSwap, t0.Add(time.Minute)),
		testRecord("c", "0xaa", history.TypeReceive, t0.Add(2*time.Minute)),
		testRecord("d", "0xbb", history.TypeSend, t0.Add(3*time.Minute)),
	}
	rows[1].Status = history.StatusConfirmed
	for _, r := range rows {
		if err := store.InsertRecord(ctx, r); err != nil {
			t.Fatalf("InsertRecord %s failed: %v", r.ID, err)
		}
	}

	got, total, err := store.ListRecords(ctx, history.Filter{Wallet: "0xAA", Limit: 2})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if total != 3 || len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected page total=%d ids=%v", total, ids(got))
	}
	got, _, _ = store.ListRecords(ctx, history.Filter{Wallet: "0xaa", Limit: 2, Offset: 2})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected second page %v", ids(got))
	}
	got, total, _ = store.ListRecords(ctx, history.Filter{Type: history.TypeSend, Limit: 10})
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected type filter across wallets, got total=%d", total)
	}

	n, err := store.CountRecords(ctx, "0xaa", "", history.StatusPending)
	if err != nil || n != 2 {
		t.Fatalf("expected two pending records, got %d err=%v", n, err)
	}
	n, _ = store.CountRecords(ctx, "0xaa", history.TypeSwap, "")
	if n != 1 {
		t.Fatalf("expected one swap, got %d", n)
	}
}

func ids(records []history.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestPlansSaveGetDelete(t *testing.T) {
	plans := openTestDB(t).Plans()
	ctx := context.Background()

	plan := &execution.Plan{
		ID:          execution.NewPlanID(),
		Kind:        execution.PlanSend,
		ChainID:     8453,
		FromAddress: "0x00000000000000000000000000000000000000aA",
		Amount:      "10",
		Token:       "USDC",
		CreatedAt:   t0,
		Steps: []execution.Step{{
			ID: "transfer", Type: execution.StepTypeTransfer, ChainID: 8453,
			Target: "0x00000000000000000000000000000000000000bB", Data: "0x", Value: "1",
			Status: execution.StepStatusPending,
		}},
	}
	if err := plans.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	got, err := plans.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Kind != execution.PlanSend || len(got.Steps) != 1 || !got.CreatedAt.Equal(t0) {
		t.Fatalf("unexpected plan %+v", got)
	}

	if err := plans.DeletePlan(ctx, plan.ID); err != nil {
		t.Fatalf("DeletePlan failed: %v", err)
	}
	if err := plans.DeletePlan(ctx, plan.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
	_, err = plans.GetPlan(ctx, plan.ID)
	if !errors.Is(err, ErrNotFound) || !clierr.IsCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlansPurge(t *testing.T) {
	plans := openTestDB(t).Plans()
	ctx := context.Background()
	for i, created := range []time.Time{t0, t0.Add(30 * time.Minute)} {
		p := &execution.Plan{ID: "plan_" + string(rune('a'+i)), Kind: execution.PlanSwap, CreatedAt: created}
		if err := plans.SavePlan(ctx, p); err != nil {
			t.Fatalf("SavePlan failed: %v", err)
		}
	}
	removed, err := plans.PurgePlans(ctx, t0.Add(15*time.Minute))
	if err != nil || len(removed) != 1 || removed[0].ID != "plan_a" {
		t.Fatalf("unexpected purge %v err=%v", removed, err)
	}
	if _, err := plans.GetPlan(ctx, "plan_b"); err != nil {
		t.Fatalf("fresh plan must survive purge: %v", err)
	}
}
