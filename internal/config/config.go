// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Ceremony providers.
const (
	CeremonyMock  = "mock"
	CeremonyRelay = "relay"
)

// Paymaster provider names accepted in PASSKEYWALLET_PAYMASTER_ORDER.
const (
	ProviderBiconomy = "biconomy"
	ProviderPimlico  = "pimlico"
)

// ProviderConfig is the endpoint of one paymaster backend.
type ProviderConfig struct {
	URL    string
	APIKey string
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	LogLevel   slog.Level

	StoreDriver string
	DBPath      string
	DatabaseURL string
	// SecretKey is the 32-byte AES-256 key sealing credential material at
	// rest. Nil when PASSKEYWALLET_SECRET_KEY is unset.
	SecretKey    []byte
	IdentitySalt []byte

	RPID             string
	RPName           string
	CeremonyProvider string
	CeremonyRelayURL string
	CeremonyTimeout  time.Duration
	WalletSLA        time.Duration

	PaymasterOrder     []string
	Providers          map[string]ProviderConfig
	EntryPoint         string
	ChainID            uint64
	ProviderTimeout    time.Duration
	ProviderMaxRetries uint64
	HealthInterval     time.Duration

	SessionTTL     time.Duration
	AdminToken     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables and returns a validated Config.
// PASSKEYWALLET_IDENTITY_SALT is always required. PASSKEYWALLET_SECRET_KEY is
// required for the sqlite and postgres stores, and PASSKEYWALLET_DATABASE_URL
// for postgres. Every other variable has a default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("PASSKEYWALLET_LISTEN_ADDR", "127.0.0.1:8080"),
		StoreDriver:        strings.ToLower(envOr("PASSKEYWALLET_STORE_DRIVER", StoreSQLite)),
		DBPath:             envOr("PASSKEYWALLET_DB_PATH", "passkeywallet.db"),
		DatabaseURL:        os.Getenv("PASSKEYWALLET_DATABASE_URL"),
		RPID:               envOr("PASSKEYWALLET_RP_ID", "localhost"),
		RPName:             envOr("PASSKEYWALLET_RP_NAME", "Passkey Wallet"),
		CeremonyProvider:   strings.ToLower(envOr("PASSKEYWALLET_CEREMONY_PROVIDER", CeremonyMock)),
		CeremonyRelayURL:   os.Getenv("PASSKEYWALLET_CEREMONY_RELAY_URL"),
		EntryPoint:         envOr("PASSKEYWALLET_ENTRY_POINT", "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		AdminToken:         os.Getenv("PASSKEYWALLET_ADMIN_TOKEN"),
		CeremonyTimeout:    60 * time.Second,
		WalletSLA:          15 * time.Second,
		ProviderTimeout:    10 * time.Second,
		ProviderMaxRetries: 2,
		HealthInterval:     30 * time.Second,
		ChainID:            84532,
		SessionTTL:         5 * time.Minute,
		RateLimitRPS:       5,
		RateLimitBurst:     20,
		Providers: map[string]ProviderConfig{
			ProviderBiconomy: {URL: os.Getenv("PASSKEYWALLET_BICONOMY_URL"), APIKey: os.Getenv("PASSKEYWALLET_BICONOMY_API_KEY")},
			ProviderPimlico:  {URL: os.Getenv("PASSKEYWALLET_PIMLICO_URL"), APIKey: os.Getenv("PASSKEYWALLET_PIMLICO_API_KEY")},
		},
	}

	var err error
	if cfg.LogLevel, err = parseLevel(envOr("PASSKEYWALLET_LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	for key, dst := range map[string]*time.Duration{
		"PASSKEYWALLET_CEREMONY_TIMEOUT": &cfg.CeremonyTimeout,
		"PASSKEYWALLET_WALLET_SLA":       &cfg.WalletSLA,
		"PASSKEYWALLET_PROVIDER_TIMEOUT": &cfg.ProviderTimeout,
		"PASSKEYWALLET_SESSION_TTL":      &cfg.SessionTTL,
		"PASSKEYWALLET_HEALTH_INTERVAL":  &cfg.HealthInterval,
	} {
		if err := parseDuration(key, dst); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv("PASSKEYWALLET_CHAIN_ID"); ok {
		if cfg.ChainID, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("PASSKEYWALLET_CHAIN_ID has invalid value %q: %w", v, err)
		}
	}
	if v, ok := os.LookupEnv("PASSKEYWALLET_PROVIDER_MAX_RETRIES"); ok {
		if cfg.ProviderMaxRetries, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("PASSKEYWALLET_PROVIDER_MAX_RETRIES has invalid value %q: %w", v, err)
		}
	}
	if v, ok := os.LookupEnv("PASSKEYWALLET_RATE_LIMIT_RPS"); ok {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil || cfg.RateLimitRPS <= 0 {
			return nil, fmt.Errorf("PASSKEYWALLET_RATE_LIMIT_RPS must be a positive number, got %q", v)
		}
	}
	if v, ok := os.LookupEnv("PASSKEYWALLET_RATE_LIMIT_BURST"); ok {
		if cfg.RateLimitBurst, err = strconv.Atoi(v); err != nil || cfg.RateLimitBurst <= 0 {
			return nil, fmt.Errorf("PASSKEYWALLET_RATE_LIMIT_BURST must be a positive integer, got %q", v)
		}
	}

	if cfg.SecretKey, err = parseSecretKey(os.Getenv("PASSKEYWALLET_SECRET_KEY")); err != nil {
		return nil, err
	}

	salt := os.Getenv("PASSKEYWALLET_IDENTITY_SALT")
	if salt == "" {
		return nil, errors.New("PASSKEYWALLET_IDENTITY_SALT is required")
	}
	cfg.IdentitySalt = []byte(salt)

	if cfg.PaymasterOrder, err = parseOrder(envOr("PASSKEYWALLET_PAYMASTER_ORDER", "biconomy,pimlico")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasProvider reports whether name has an endpoint configured.
func (c *Config) HasProvider(name string) bool {
	return c.Providers[name].URL != ""
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreSQLite:
		if c.SecretKey == nil {
			return errors.New("PASSKEYWALLET_SECRET_KEY is required for the sqlite store")
		}
	case StorePostgres:
		if c.SecretKey == nil {
			return errors.New("PASSKEYWALLET_SECRET_KEY is required for the postgres store")
		}
		if c.DatabaseURL == "" {
			return errors.New("PASSKEYWALLET_DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("PASSKEYWALLET_STORE_DRIVER must be sqlite, postgres or memory, got %q", c.StoreDriver)
	}

	switch c.CeremonyProvider {
	case CeremonyMock:
	case CeremonyRelay:
		if c.CeremonyRelayURL == "" {
			return errors.New("PASSKEYWALLET_CEREMONY_RELAY_URL is required for the relay ceremony provider")
		}
	default:
		return fmt.Errorf("PASSKEYWALLET_CEREMONY_PROVIDER must be mock or relay, got %q", c.CeremonyProvider)
	}

	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be positive, got %q", key, v)
	}
	*dst = parsed
	return nil
}

func parseLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("PASSKEYWALLET_LOG_LEVEL has invalid level %q: %w", v, err)
	}
	return level, nil
}

// parseSecretKey decodes a 64-character hex key. An empty value yields nil.
func parseSecretKey(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("PASSKEYWALLET_SECRET_KEY must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PASSKEYWALLET_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", len(key))
	}
	return key, nil
}

func parseOrder(v string) ([]string, error) {
	var order []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(v, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name != ProviderBiconomy && name != ProviderPimlico {
			return nil, fmt.Errorf("PASSKEYWALLET_PAYMASTER_ORDER has unknown provider %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("PASSKEYWALLET_PAYMASTER_ORDER lists %q twice", name)
		}
		seen[name] = true
		order = append(order, name)
	}
	if order == nil {
		order = []string{}
	}
	return order, nil
}
