package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	otherKey       = "8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba"
)

func clearEnv(t *testing.T, role Role) {
	t.Helper()
	env := role.Env()
	for _, name := range []string{env.PrivateKey, env.PrivateKeyFile, env.KeystorePath, env.KeystorePassword, env.KeystorePasswordFile} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadFromEnvHexAndSign(t *testing.T) {
	clearEnv(t, RoleUser)
	t.Setenv("LINGO_PRIVATE_KEY", testPrivateKey)
	s, err := Load(RoleUser, KeySourceEnv, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Gas:       21_000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		To:        &to,
		Value:     big.NewInt(0),
	})
	signed, err := s.SignTx(big.NewInt(8453), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), signed)
	if err != nil || from != s.Address() {
		t.Fatalf("expected recovered sender %s, got %s err=%v", s.Address(), from, err)
	}
}

func TestRolesReadSeparateKeys(t *testing.T) {
	clearEnv(t, RoleUser)
	clearEnv(t, RolePayout)
	t.Setenv("LINGO_PRIVATE_KEY", testPrivateKey)
	t.Setenv("LINGO_PAYOUT_PRIVATE_KEY", otherKey)

	user, err := Load(RoleUser, KeySourceAuto, "")
	if err != nil {
		t.Fatalf("load user signer: %v", err)
	}
	payout, err := Load(RolePayout, KeySourceAuto, "")
	if err != nil {
		t.Fatalf("load payout signer: %v", err)
	}
	if user.Address() == payout.Address() {
		t.Fatal("expected distinct user and payout wallets")
	}
}

func TestLoadFromFileSource(t *testing.T) {
	clearEnv(t, RoleUser)
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("0x"+testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("LINGO_PRIVATE_KEY_FILE", keyFile)
	t.Setenv("LINGO_PRIVATE_KEY", otherKey)

	fromFile, err := Load(RoleUser, KeySourceFile, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	fromHex, err := Load(RoleUser, KeySourceEnv, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if fromFile.Address() == fromHex.Address() {
		t.Fatal("file source must ignore LINGO_PRIVATE_KEY")
	}
}

func TestLoadAutoUsesDefaultKeyFile(t *testing.T) {
	clearEnv(t, RolePayout)
	cfgDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgDir)
	if err := os.MkdirAll(filepath.Join(cfgDir, "lingo"), 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "lingo", "payout.hex"), []byte(testPrivateKey), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	if got := RolePayout.DefaultKeyPath(); got != filepath.Join(cfgDir, "lingo", "payout.hex") {
		t.Fatalf("unexpected default key path %q", got)
	}
	if _, err := Load(RolePayout, KeySourceAuto, ""); err != nil {
		t.Fatalf("expected default payout key to load: %v", err)
	}
}

func TestLoadOverrideWins(t *testing.T) {
	clearEnv(t, RoleUser)
	t.Setenv("LINGO_PRIVATE_KEY_FILE", "/tmp/does-not-exist")
	if _, err := Load(RoleUser, KeySourceFile, testPrivateKey); err != nil {
		t.Fatalf("expected override to win over file source: %v", err)
	}
}

func TestLoadMissingKeyHints(t *testing.T) {
	clearEnv(t, RoleUser)
	_, err := Load(RoleUser, KeySourceAuto, "")
	if err == nil {
		t.Fatal("expected missing key error")
	}
	for _, want := range []string{"LINGO_PRIVATE_KEY", "--private-key", "lingo/key.hex"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
	if _, err := Load(RoleUser, "vault", ""); err == nil {
		t.Fatal("expected unsupported key source error")
	}
}
