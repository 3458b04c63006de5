package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/lingo-wallet/internal/registry"
	"github.com/ggonzalez94/lingo-wallet/internal/store"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Timeout        string
	Retries        int
	NoCache        bool
	StoreDriver    string
	StoreDSN       string
	LogLevel       string
	LogFormat      string
	KeySource      string
	EnableCommands string // comma-separated allowlist of command paths
}

type Settings struct {
	OutputMode         string
	Timeout            time.Duration
	Retries            int
	StoreDriver        store.Driver
	StoreDSN           string
	CacheEnabled       bool
	CachePath          string
	CacheLockPath      string
	TranslationTTL     time.Duration
	RPCURLs            map[int64]string
	LiFiBaseURL        string
	LiFiAPIKey         string
	GoogleTranslateKey string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	ClaimBaseURL       string
	ClaimTTL           time.Duration
	ClaimEscrow        bool
	JWTSecret          string
	HTTPAddr           string
	ReconcileInterval  time.Duration
	PlanTTL            time.Duration
	NATSURL            string
	LogLevel           string
	LogFormat          string
	KeySource          string
	EnableCommands     []string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Store   struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	RPC       map[string]string `yaml:"rpc"`
	Providers struct {
		LiFi struct {
			BaseURL   string `yaml:"base_url"`
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"lifi"`
		Google struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"google"`
		Twilio struct {
			AccountSID   string `yaml:"account_sid"`
			AuthToken    string `yaml:"auth_token"`
			AuthTokenEnv string `yaml:"auth_token_env"`
			From         string `yaml:"from"`
		} `yaml:"twilio"`
	} `yaml:"providers"`
	Claims struct {
		BaseURL       string `yaml:"base_url"`
		TTL           string `yaml:"ttl"`
		EscrowFunding *bool  `yaml:"escrow_funding"`
	} `yaml:"claims"`
	Server struct {
		Addr         string `yaml:"addr"`
		JWTSecret    string `yaml:"jwt_secret"`
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"server"`
	Execution struct {
		ReconcileInterval string `yaml:"reconcile_interval"`
		PlanTTL           string `yaml:"plan_ttl"`
		KeySource         string `yaml:"key_source"`
	} `yaml:"execution"`
	Events struct {
		NATSURL string `yaml:"nats_url"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load(flags GlobalFlags) (Settings, error) {
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PlanTTL <= 0 {
		settings.PlanTTL = 15 * time.Minute
	}
	if settings.ReconcileInterval <= 0 {
		settings.ReconcileInterval = 30 * time.Second
	}
	if settings.StoreDriver == store.DriverSQLite && settings.StoreDSN == "" {
		settings.StoreDSN = filepath.Join(filepath.Dir(settings.CachePath), "lingo.db")
	}
	if settings.StoreDriver == store.DriverPostgres && settings.StoreDSN == "" {
		return Settings{}, fmt.Errorf("store driver postgres requires a dsn")
	}

	return settings, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file: %w", err)
	}
	return nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           10 * time.Second,
		Retries:           2,
		StoreDriver:       store.DriverSQLite,
		CacheEnabled:      true,
		CachePath:         cachePath,
		CacheLockPath:     lockPath,
		TranslationTTL:    7 * 24 * time.Hour,
		RPCURLs:           map[int64]string{},
		ClaimBaseURL:      registry.DefaultClaimBaseURL,
		ClaimTTL:          7 * 24 * time.Hour,
		HTTPAddr:          ":8080",
		ReconcileInterval: 30 * time.Second,
		PlanTTL:           15 * time.Minute,
		LogLevel:          "info",
		LogFormat:         "text",
		KeySource:         "auto",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lingo", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "lingo")
	return filepath.Join(dir, "translations.db"), filepath.Join(dir, "translations.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "config timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Store.Driver != "" {
		d, err := store.ParseDriver(cfg.Store.Driver)
		if err != nil {
			return fmt.Errorf("config store.driver: %w", err)
		}
		settings.StoreDriver = d
	}
	setString(&settings.StoreDSN, cfg.Store.DSN)
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	if err := setDuration(&settings.TranslationTTL, cfg.Cache.TTL, "config cache.ttl"); err != nil {
		return err
	}
	for slug, url := range cfg.RPC {
		chain, ok := registry.ChainBySlug(slug)
		if !ok {
			return fmt.Errorf("config rpc: unsupported chain %q", slug)
		}
		settings.RPCURLs[chain.ChainID] = strings.TrimSpace(url)
	}

	setString(&settings.LiFiBaseURL, cfg.Providers.LiFi.BaseURL)
	setString(&settings.LiFiAPIKey, cfg.Providers.LiFi.APIKey)
	if cfg.Providers.LiFi.APIKeyEnv != "" {
		settings.LiFiAPIKey = os.Getenv(cfg.Providers.LiFi.APIKeyEnv)
	}
	setString(&settings.GoogleTranslateKey, cfg.Providers.Google.APIKey)
	if cfg.Providers.Google.APIKeyEnv != "" {
		settings.GoogleTranslateKey = os.Getenv(cfg.Providers.Google.APIKeyEnv)
	}
	setString(&settings.TwilioAccountSID, cfg.Providers.Twilio.AccountSID)
	setString(&settings.TwilioAuthToken, cfg.Providers.Twilio.AuthToken)
	if cfg.Providers.Twilio.AuthTokenEnv != "" {
		settings.TwilioAuthToken = os.Getenv(cfg.Providers.Twilio.AuthTokenEnv)
	}
	setString(&settings.TwilioFromNumber, cfg.Providers.Twilio.From)

	setString(&settings.ClaimBaseURL, cfg.Claims.BaseURL)
	if err := setDuration(&settings.ClaimTTL, cfg.Claims.TTL, "config claims.ttl"); err != nil {
		return err
	}
	if cfg.Claims.EscrowFunding != nil {
		settings.ClaimEscrow = *cfg.Claims.EscrowFunding
	}
	setString(&settings.HTTPAddr, cfg.Server.Addr)
	setString(&settings.JWTSecret, cfg.Server.JWTSecret)
	if cfg.Server.JWTSecretEnv != "" {
		settings.JWTSecret = os.Getenv(cfg.Server.JWTSecretEnv)
	}
	if err := setDuration(&settings.ReconcileInterval, cfg.Execution.ReconcileInterval, "config execution.reconcile_interval"); err != nil {
		return err
	}
	if err := setDuration(&settings.PlanTTL, cfg.Execution.PlanTTL, "config execution.plan_ttl"); err != nil {
		return err
	}
	setString(&settings.KeySource, cfg.Execution.KeySource)
	setString(&settings.NATSURL, cfg.Events.NATSURL)
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)

	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("LINGO_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("LINGO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("LINGO_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("LINGO_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	setString(&settings.CachePath, os.Getenv("LINGO_CACHE_PATH"))
	setString(&settings.CacheLockPath, os.Getenv("LINGO_CACHE_LOCK_PATH"))

	// DATABASE_URL selects postgres unless a driver is named explicitly.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		settings.StoreDriver = store.DriverPostgres
		settings.StoreDSN = v
	}
	if v := os.Getenv("LINGO_STORE_DRIVER"); v != "" {
		d, err := store.ParseDriver(v)
		if err != nil {
			return fmt.Errorf("LINGO_STORE_DRIVER: %w", err)
		}
		settings.StoreDriver = d
	}
	setString(&settings.StoreDSN, os.Getenv("LINGO_STORE_DSN"))

	for _, chain := range registry.Chains() {
		suffix := strings.ToUpper(chain.Slug)
		for _, name := range []string{"ETHEREUM_PROVIDER_" + suffix, "LINGO_RPC_" + suffix} {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				settings.RPCURLs[chain.ChainID] = v
			}
		}
	}

	setString(&settings.LiFiBaseURL, os.Getenv("LINGO_LIFI_BASE_URL"))
	setString(&settings.LiFiAPIKey, os.Getenv("LINGO_LIFI_API_KEY"))
	setString(&settings.GoogleTranslateKey, os.Getenv("GOOGLE_TRANSLATE_API_KEY"))
	setString(&settings.GoogleTranslateKey, os.Getenv("LINGO_GOOGLE_TRANSLATE_API_KEY"))
	setString(&settings.TwilioAccountSID, os.Getenv("TWILIO_ACCOUNT_SID"))
	setString(&settings.TwilioAuthToken, os.Getenv("TWILIO_AUTH_TOKEN"))
	setString(&settings.TwilioFromNumber, os.Getenv("TWILIO_PHONE_NUMBER"))
	setString(&settings.ClaimBaseURL, os.Getenv("LINGO_CLAIM_BASE_URL"))
	if v := os.Getenv("LINGO_CLAIM_ESCROW_FUNDING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LINGO_CLAIM_ESCROW_FUNDING: %w", err)
		}
		settings.ClaimEscrow = b
	}
	setString(&settings.JWTSecret, os.Getenv("LINGO_JWT_SECRET"))
	setString(&settings.HTTPAddr, os.Getenv("LINGO_HTTP_ADDR"))
	setString(&settings.NATSURL, os.Getenv("LINGO_NATS_URL"))
	setString(&settings.LogLevel, os.Getenv("LINGO_LOG_LEVEL"))
	setString(&settings.LogFormat, os.Getenv("LINGO_LOG_FORMAT"))
	setString(&settings.KeySource, os.Getenv("LINGO_KEY_SOURCE"))
	for name, target := range map[string]*time.Duration{
		"LINGO_RECONCILE_INTERVAL": &settings.ReconcileInterval,
		"LINGO_PLAN_TTL":           &settings.PlanTTL,
		"LINGO_CLAIM_TTL":          &settings.ClaimTTL,
		"LINGO_TRANSLATION_TTL":    &settings.TranslationTTL,
	} {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*target = d
			}
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.StoreDriver != "" {
		d, err := store.ParseDriver(flags.StoreDriver)
		if err != nil {
			return fmt.Errorf("parse --store-driver: %w", err)
		}
		settings.StoreDriver = d
	}
	setString(&settings.StoreDSN, flags.StoreDSN)
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.KeySource, flags.KeySource)
	if v := strings.TrimSpace(flags.EnableCommands); v != "" {
		settings.EnableCommands = splitCSV(v)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func splitCSV(v string) []string {
	var items []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
