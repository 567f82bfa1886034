package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecretKey = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

// allConfigKeys lists every PASSKEYWALLET_ env var that Load() reads.
var allConfigKeys = []string{
	"PASSKEYWALLET_LISTEN_ADDR",
	"PASSKEYWALLET_LOG_LEVEL",
	"PASSKEYWALLET_STORE_DRIVER",
	"PASSKEYWALLET_DB_PATH",
	"PASSKEYWALLET_DATABASE_URL",
	"PASSKEYWALLET_SECRET_KEY",
	"PASSKEYWALLET_IDENTITY_SALT",
	"PASSKEYWALLET_RP_ID",
	"PASSKEYWALLET_RP_NAME",
	"PASSKEYWALLET_CEREMONY_PROVIDER",
	"PASSKEYWALLET_CEREMONY_RELAY_URL",
	"PASSKEYWALLET_CEREMONY_TIMEOUT",
	"PASSKEYWALLET_WALLET_SLA",
	"PASSKEYWALLET_PAYMASTER_ORDER",
	"PASSKEYWALLET_BICONOMY_URL",
	"PASSKEYWALLET_BICONOMY_API_KEY",
	"PASSKEYWALLET_PIMLICO_URL",
	"PASSKEYWALLET_PIMLICO_API_KEY",
	"PASSKEYWALLET_ENTRY_POINT",
	"PASSKEYWALLET_CHAIN_ID",
	"PASSKEYWALLET_PROVIDER_TIMEOUT",
	"PASSKEYWALLET_PROVIDER_MAX_RETRIES",
	"PASSKEYWALLET_HEALTH_INTERVAL",
	"PASSKEYWALLET_SESSION_TTL",
	"PASSKEYWALLET_ADMIN_TOKEN",
	"PASSKEYWALLET_RATE_LIMIT_RPS",
	"PASSKEYWALLET_RATE_LIMIT_BURST",
}

// isolateConfigEnv saves and unsets all PASSKEYWALLET_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

// minimalEnv sets the variables required by the default sqlite store.
func minimalEnv(t *testing.T) {
	t.Helper()
	isolateConfigEnv(t)
	t.Setenv("PASSKEYWALLET_SECRET_KEY", testSecretKey)
	t.Setenv("PASSKEYWALLET_IDENTITY_SALT", "pepper")
}

func TestLoad_Defaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "passkeywallet.db", cfg.DBPath)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, []byte("pepper"), cfg.IdentitySalt)
	assert.Equal(t, "localhost", cfg.RPID)
	assert.Equal(t, "Passkey Wallet", cfg.RPName)
	assert.Equal(t, CeremonyMock, cfg.CeremonyProvider)
	assert.Equal(t, 60*time.Second, cfg.CeremonyTimeout)
	assert.Equal(t, 15*time.Second, cfg.WalletSLA)
	assert.Equal(t, []string{"biconomy", "pimlico"}, cfg.PaymasterOrder)
	assert.Equal(t, "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789", cfg.EntryPoint)
	assert.Equal(t, uint64(84532), cfg.ChainID)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, uint64(2), cfg.ProviderMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.False(t, cfg.HasProvider(ProviderBiconomy))
}

func TestLoad_Overrides(t *testing.T) {
	minimalEnv(t)
	t.Setenv("PASSKEYWALLET_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("PASSKEYWALLET_LOG_LEVEL", "debug")
	t.Setenv("PASSKEYWALLET_PAYMASTER_ORDER", " Pimlico , biconomy ")
	t.Setenv("PASSKEYWALLET_PIMLICO_URL", "https://api.pimlico.io/v1/base-sepolia/rpc")
	t.Setenv("PASSKEYWALLET_PIMLICO_API_KEY", "pim_123")
	t.Setenv("PASSKEYWALLET_WALLET_SLA", "20s")
	t.Setenv("PASSKEYWALLET_CHAIN_ID", "8453")
	t.Setenv("PASSKEYWALLET_PROVIDER_MAX_RETRIES", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"pimlico", "biconomy"}, cfg.PaymasterOrder)
	assert.True(t, cfg.HasProvider(ProviderPimlico))
	assert.Equal(t, "pim_123", cfg.Providers[ProviderPimlico].APIKey)
	assert.Equal(t, 20*time.Second, cfg.WalletSLA)
	assert.Equal(t, uint64(8453), cfg.ChainID)
	assert.Equal(t, uint64(0), cfg.ProviderMaxRetries)
}

func TestLoad_MissingIdentitySalt(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PASSKEYWALLET_SECRET_KEY", testSecretKey)

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSKEYWALLET_IDENTITY_SALT")
}

func TestLoad_SecretKey(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "absent", value: "", wantErr: true},
		{name: "too short", value: "deadbeef", wantErr: true},
		{name: "not hex", value: "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", wantErr: true},
		{name: "valid", value: testSecretKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("PASSKEYWALLET_IDENTITY_SALT", "pepper")
			if tt.value != "" {
				t.Setenv("PASSKEYWALLET_SECRET_KEY", tt.value)
			}

			_, err := Load()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "PASSKEYWALLET_SECRET_KEY")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoad_MemoryStoreNeedsNoKey(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PASSKEYWALLET_IDENTITY_SALT", "pepper")
	t.Setenv("PASSKEYWALLET_STORE_DRIVER", "memory")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Nil(t, cfg.SecretKey)
}

func TestLoad_PostgresNeedsURL(t *testing.T) {
	minimalEnv(t)
	t.Setenv("PASSKEYWALLET_STORE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSKEYWALLET_DATABASE_URL")

	t.Setenv("PASSKEYWALLET_DATABASE_URL", "postgres://localhost/passkeywallet?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
}

func TestLoad_RelayNeedsURL(t *testing.T) {
	minimalEnv(t)
	t.Setenv("PASSKEYWALLET_CEREMONY_PROVIDER", "relay")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSKEYWALLET_CEREMONY_RELAY_URL")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "PASSKEYWALLET_STORE_DRIVER", value: "mysql"},
		{key: "PASSKEYWALLET_CEREMONY_PROVIDER", value: "yubikey"},
		{key: "PASSKEYWALLET_CEREMONY_TIMEOUT", value: "sixty"},
		{key: "PASSKEYWALLET_WALLET_SLA", value: "-1s"},
		{key: "PASSKEYWALLET_LOG_LEVEL", value: "chatty"},
		{key: "PASSKEYWALLET_PAYMASTER_ORDER", value: "biconomy,stackup"},
		{key: "PASSKEYWALLET_PAYMASTER_ORDER", value: "pimlico,pimlico"},
		{key: "PASSKEYWALLET_CHAIN_ID", value: "base"},
		{key: "PASSKEYWALLET_HEALTH_INTERVAL", value: "0s"},
		{key: "PASSKEYWALLET_PROVIDER_MAX_RETRIES", value: "-1"},
		{key: "PASSKEYWALLET_RATE_LIMIT_RPS", value: "0"},
		{key: "PASSKEYWALLET_RATE_LIMIT_BURST", value: "many"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			minimalEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
