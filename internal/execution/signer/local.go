package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"
)

// Role selects which wallet a key belongs to. Each role reads its own
// environment variables and default key file.
type Role string

const (
	// RoleUser signs the sender's own sends, swaps and bridges.
	RoleUser Role = "user"
	// RolePayout releases claimed funds to recipients.
	RolePayout Role = "payout"
)

func (r Role) envPrefix() string {
	if r == RolePayout {
		return "LINGO_PAYOUT_"
	}
	return "LINGO_"
}

func (r Role) keyFileName() string {
	if r == RolePayout {
		return "payout.hex"
	}
	return "key.hex"
}

// EnvNames lists the variables consulted for a role, in precedence order.
type EnvNames struct {
	PrivateKey           string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

func (r Role) Env() EnvNames {
	p := r.envPrefix()
	return EnvNames{
		PrivateKey:           p + "PRIVATE_KEY",
		PrivateKeyFile:       p + "PRIVATE_KEY_FILE",
		KeystorePath:         p + "KEYSTORE_PATH",
		KeystorePassword:     p + "KEYSTORE_PASSWORD",
		KeystorePasswordFile: p + "KEYSTORE_PASSWORD_FILE",
	}
}

// DefaultKeyPath is $XDG_CONFIG_HOME/lingo/<role key file>.
func (r Role) DefaultKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lingo", r.keyFileName())
}

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// KeyMaterial is every place a key may come from. The first non-empty of
// PrivateKeyHex, PrivateKeyFile and KeystorePath wins.
type KeyMaterial struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// Load builds the signer for role. source restricts which inputs count;
// override, when set, wins over everything.
func Load(role Role, source, override string) (*LocalSigner, error) {
	km, err := material(role, source)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(override); v != "" {
		km = KeyMaterial{PrivateKeyHex: v}
	}
	s, err := NewLocalSigner(km)
	if err != nil {
		var missing *missingKeyError
		if errors.As(err, &missing) {
			env := role.Env()
			return nil, fmt.Errorf("missing %s signing key: set %s, %s or %s, pass --private-key, or write the key to %s",
				role, env.PrivateKey, env.PrivateKeyFile, env.KeystorePath, role.DefaultKeyPath())
		}
		return nil, err
	}
	return s, nil
}

func material(role Role, source string) (KeyMaterial, error) {
	env := role.Env()
	km := KeyMaterial{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(env.PrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(env.PrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(env.KeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(env.KeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(env.KeystorePasswordFile)),
	}
	if km.PrivateKeyFile == "" {
		if path := role.DefaultKeyPath(); isRegularFile(path) {
			km.PrivateKeyFile = path
		}
	}

	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		return km, nil
	case KeySourceEnv:
		return KeyMaterial{PrivateKeyHex: km.PrivateKeyHex}, nil
	case KeySourceFile:
		return KeyMaterial{PrivateKeyFile: km.PrivateKeyFile}, nil
	case KeySourceKeystore:
		km.PrivateKeyHex = ""
		km.PrivateKeyFile = ""
		return km, nil
	default:
		return KeyMaterial{}, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
}

func NewLocalSigner(km KeyMaterial) (*LocalSigner, error) {
	pk, err := loadPrivateKey(km)
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

type missingKeyError struct{}

func (*missingKeyError) Error() string { return "missing signing key" }

func loadPrivateKey(km KeyMaterial) (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(km.PrivateKeyHex) != "":
		return parseHexKey(km.PrivateKeyHex)
	case strings.TrimSpace(km.PrivateKeyFile) != "":
		buf, err := os.ReadFile(km.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	case strings.TrimSpace(km.KeystorePath) != "":
		password := km.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(km.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(km.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		buf, err := os.ReadFile(km.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, &missingKeyError{}
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
