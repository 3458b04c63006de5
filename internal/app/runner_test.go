package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	userKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	userAddr  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	payoutKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	payoutAdr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	friend    = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

// isolate points config, cache, store and keys at a temp dir so runs never
// read the developer's environment.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	t.Setenv("LINGO_STORE_DSN", filepath.Join(tmp, "lingo.db"))
	t.Setenv("LINGO_LOG_LEVEL", "error")
	for _, name := range []string{
		"LINGO_OUTPUT", "LINGO_STORE_DRIVER", "DATABASE_URL", "LINGO_NATS_URL", "LINGO_JWT_SECRET",
		"GOOGLE_TRANSLATE_API_KEY", "LINGO_GOOGLE_TRANSLATE_API_KEY",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER",
		"LINGO_PRIVATE_KEY", "LINGO_PRIVATE_KEY_FILE", "LINGO_KEYSTORE_PATH",
		"LINGO_PAYOUT_PRIVATE_KEY", "LINGO_PAYOUT_PRIVATE_KEY_FILE", "LINGO_PAYOUT_KEYSTORE_PATH",
		"LINGO_CLAIM_ESCROW_FUNDING",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return tmp
}

func run(t *testing.T, args ...string) (int, []byte, []byte) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.Bytes(), stderr.Bytes()
}

// runData runs a command expected to succeed and decodes its data payload.
func runData(t *testing.T, dst any, args ...string) {
	t.Helper()
	code, stdout, stderr := run(t, append(args, "--results-only")...)
	if code != 0 {
		t.Fatalf("%v: expected exit 0, got %d stderr=%s", args, code, stderr)
	}
	if err := json.Unmarshal(stdout, dst); err != nil {
		t.Fatalf("%v: failed to parse output json: %v output=%s", args, err, stdout)
	}
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("lingo claims redeem"); got != "claims redeem" {
		t.Fatalf("unexpected trim result: %s", got)
	}
	if got := trimRootPath("lingo"); got != "lingo" {
		t.Fatalf("unexpected trim result for root: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "version")
	if code != 0 || strings.TrimSpace(string(stdout)) == "" {
		t.Fatalf("unexpected version output code=%d stdout=%s stderr=%s", code, stdout, stderr)
	}
}

func TestRunnerSchema(t *testing.T) {
	isolate(t)
	var s struct {
		Path        string `json:"path"`
		Subcommands []struct {
			Path string `json:"path"`
		} `json:"subcommands"`
	}
	runData(t, &s, "schema", "claims")
	if s.Path != "lingo claims" || len(s.Subcommands) != 5 {
		t.Fatalf("unexpected schema %+v", s)
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "parse", "hello", "--enable-commands", "claims", "--results-only")
	if code != 24 {
		t.Fatalf("expected exit 24, got %d stderr=%s", code, stderr)
	}
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Type string `json:"type"`
		} `json:"error"`
		Meta struct {
			Command string `json:"command"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(stderr, &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr)
	}
	if env.Success || env.Error.Type != "command_blocked" || env.Meta.Command != "parse" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestRunnerUsageErrors(t *testing.T) {
	isolate(t)
	if code, _, stderr := run(t, "resolve"); code != 2 {
		t.Fatalf("expected usage exit for missing arg, got %d stderr=%s", code, stderr)
	}
	if code, _, stderr := run(t, "history", "list", "--wallet", userAddr, "--type", "lend"); code != 2 {
		t.Fatalf("expected usage exit for bad type, got %d stderr=%s", code, stderr)
	}
	if code, _, _ := run(t, "version", "--json", "--plain"); code != 2 {
		t.Fatalf("expected usage exit for conflicting output flags, got %d", code)
	}
}

func TestRunnerParse(t *testing.T) {
	isolate(t)
	var res struct {
		Intent struct {
			Kind   string  `json:"kind"`
			Amount *string `json:"amount"`
			Token  string  `json:"token"`
		} `json:"intent"`
		Response string `json:"response"`
	}
	runData(t, &res, "parse", "send", "10", "USDC", "to", friend)
	if res.Intent.Kind != "send" || res.Intent.Amount == nil || *res.Intent.Amount != "10" || res.Intent.Token != "USDC" {
		t.Fatalf("unexpected intent %+v", res.Intent)
	}
}

func TestRunnerLinkThenResolve(t *testing.T) {
	isolate(t)
	var link struct {
		Link struct {
			WalletAddress string `json:"wallet_address"`
		} `json:"link"`
	}
	runData(t, &link, "link", "+1 (415) 555-0123", strings.ToLower(friend))
	var res struct {
		Recipient *struct {
			Address  string `json:"address"`
			ViaPhone bool   `json:"via_phone"`
		} `json:"recipient"`
		NeedsClaim bool `json:"needs_claim"`
	}
	runData(t, &res, "resolve", "+14155550123")
	if res.Recipient == nil || !res.Recipient.ViaPhone || !strings.EqualFold(res.Recipient.Address, friend) {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestRunnerClaimCreateUsesSigningKey(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "claims", "create", "--phone", "+14155550199", "--amount", "5", "--private-key", userKey)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var env struct {
		Data struct {
			Claim struct {
				ClaimToken    string `json:"claim_token"`
				SenderAddress string `json:"sender_address"`
			} `json:"claim"`
			ClaimURL string `json:"claim_url"`
		} `json:"data"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("parse envelope: %v output=%s", err, stdout)
	}
	if env.Data.Claim.ClaimToken == "" || !strings.Contains(env.Data.ClaimURL, env.Data.Claim.ClaimToken) {
		t.Fatalf("unexpected claim %+v", env.Data)
	}
	if !strings.EqualFold(env.Data.Claim.SenderAddress, userAddr) {
		t.Fatalf("expected sender from signing key, got %s", env.Data.Claim.SenderAddress)
	}
	if len(env.Warnings) != 1 || !strings.Contains(env.Warnings[0], "sms") {
		t.Fatalf("expected sms warning, got %v", env.Warnings)
	}

	var got struct {
		Amount string `json:"amount"`
	}
	runData(t, &got, "claims", "get", env.Data.Claim.ClaimToken)
	if got.Amount != "5" {
		t.Fatalf("unexpected claim amount %q", got.Amount)
	}
}

func TestRunnerPlanSendThenCancel(t *testing.T) {
	isolate(t)
	var outcome struct {
		Plan struct {
			ID        string `json:"id"`
			HistoryID string `json:"history_id"`
			Recipient string `json:"recipient"`
		} `json:"plan"`
	}
	runData(t, &outcome, "plan", "send", "--from", userAddr, "--to", friend, "--amount", "1.5")
	if outcome.Plan.ID == "" || outcome.Plan.HistoryID == "" || !strings.EqualFold(outcome.Plan.Recipient, friend) {
		t.Fatalf("unexpected plan %+v", outcome.Plan)
	}

	var page struct {
		Transactions []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transactions"`
		Total int `json:"total"`
	}
	runData(t, &page, "history", "list", "--wallet", userAddr)
	if page.Total != 1 || page.Transactions[0].Status != "pending" {
		t.Fatalf("unexpected history %+v", page)
	}

	var cancelled map[string]any
	runData(t, &cancelled, "cancel", outcome.Plan.ID)

	var rec struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	runData(t, &rec, "history", "get", outcome.Plan.HistoryID)
	if rec.Status != "failed" || rec.ErrorMessage != "cancelled" {
		t.Fatalf("unexpected record after cancel %+v", rec)
	}

	if code, _, stderr := run(t, "execute", outcome.Plan.ID); code != 15 {
		t.Fatalf("expected not found for cancelled plan, got %d stderr=%s", code, stderr)
	}
}

type phoneSendOutcome struct {
	Plan *struct {
		Recipient      string `json:"recipient"`
		RecipientPhone string `json:"recipient_phone"`
	} `json:"plan"`
	Claim *struct {
		ClaimURL string `json:"claim_url"`
	} `json:"claim"`
}

func TestRunnerPlanSendToPhoneCreatesClaimOnly(t *testing.T) {
	isolate(t)
	t.Setenv("LINGO_PAYOUT_PRIVATE_KEY", payoutKey)
	var outcome phoneSendOutcome
	runData(t, &outcome, "plan", "send", "--from", userAddr, "--to", "+14155550111", "--amount", "2")
	if outcome.Claim == nil || outcome.Claim.ClaimURL == "" {
		t.Fatalf("expected a claim, got %+v", outcome)
	}
	if outcome.Plan != nil {
		t.Fatalf("expected no transfer plan for an unlinked phone, got %+v", outcome.Plan)
	}
}

func TestRunnerPlanSendToPhoneWithEscrowFundsPayoutWallet(t *testing.T) {
	isolate(t)
	t.Setenv("LINGO_PAYOUT_PRIVATE_KEY", payoutKey)
	t.Setenv("LINGO_CLAIM_ESCROW_FUNDING", "true")
	var outcome phoneSendOutcome
	runData(t, &outcome, "plan", "send", "--from", userAddr, "--to", "+14155550111", "--amount", "2")
	if outcome.Claim == nil || outcome.Claim.ClaimURL == "" {
		t.Fatalf("expected a claim, got %+v", outcome)
	}
	if outcome.Plan == nil || !strings.EqualFold(outcome.Plan.Recipient, payoutAdr) {
		t.Fatalf("expected plan funding the payout wallet, got %+v", outcome.Plan)
	}
}

func TestRunnerHistoryUpdateAndStats(t *testing.T) {
	isolate(t)
	var outcome struct {
		Plan struct {
			HistoryID string `json:"history_id"`
		} `json:"plan"`
	}
	runData(t, &outcome, "plan", "send", "--from", userAddr, "--to", friend, "--amount", "3")

	hash := "0x" + strings.Repeat("ab", 32)
	var rec struct {
		Status string `json:"status"`
		TxHash string `json:"tx_hash"`
	}
	runData(t, &rec, "history", "update", outcome.Plan.HistoryID, "--status", "confirmed", "--tx-hash", hash)
	if rec.Status != "confirmed" || rec.TxHash != hash {
		t.Fatalf("unexpected record %+v", rec)
	}
	if code, _, _ := run(t, "history", "update", outcome.Plan.HistoryID, "--status", "failed"); code == 0 {
		t.Fatal("expected confirmed record to reject a second transition")
	}

	var stats struct {
		TotalSent    int `json:"total_sent"`
		PendingCount int `json:"pending_count"`
	}
	runData(t, &stats, "history", "stats", "--wallet", userAddr)
	if stats.TotalSent != 1 || stats.PendingCount != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunnerTokenRequiresSecret(t *testing.T) {
	isolate(t)
	if code, _, _ := run(t, "token", userAddr); code != 2 {
		t.Fatalf("expected usage error without secret, got %d", code)
	}
	t.Setenv("LINGO_JWT_SECRET", "test-secret")
	var tok struct {
		Token  string `json:"token"`
		Wallet string `json:"wallet"`
	}
	runData(t, &tok, "token", userAddr, "--ttl", "1h")
	if strings.Count(tok.Token, ".") != 2 || tok.Wallet != userAddr {
		t.Fatalf("unexpected token %+v", tok)
	}
}
