package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "full.json", map[string]any{
		"endpoint_addr_grpc":              "www.example:9000",
		"database_dsn":                    "postgres://x",
		"secret_key":                      "my_secret_key",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": 180000000000,
		"s3_bucket":                       "bucket",
		"network":                         "mainnet",
		"horizon_url":                     "https://horizon.stellar.org",
		"base_fee":                        300,
		"poll_interval":                   "2s",
		"anchor_signing_key":              "GANCHOR",
		"funding_secret":                  "SFUND",
		"redis_addr":                      "redis:6379",
		"serialize_per_account":           false,
		"rate_limit":                      2.5,
	})

	t.Run("overlays present fields", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJSON(cfg, []string{"-config", path}))

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "mainnet", cfg.Network)
		assert.Equal(t, "https://horizon.stellar.org", cfg.HorizonURL)
		assert.Equal(t, int64(300), cfg.BaseFee)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, "GANCHOR", cfg.AnchorSigningKey)
		assert.Equal(t, "SFUND", cfg.FundingSecret)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.False(t, cfg.SerializePerAccount)
		assert.Equal(t, 2.5, cfg.RateLimit)
	})

	t.Run("absent fields keep earlier values", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJSON(cfg, []string{"-c", path}))

		assert.Equal(t, "admin", cfg.S3RootUser)
		assert.Equal(t, 2*time.Minute, cfg.PollTimeout)
		assert.Equal(t, "always", cfg.TokenStrategy)
		assert.Equal(t, 10, cfg.RateBurst)
	})

	t.Run("no file flag leaves config alone", func(t *testing.T) {
		cfg := &Config{EndpointAddrGRPC: "defaults:1234"}
		require.NoError(t, parseJSON(cfg, []string{"-a", ":1"}))
		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		assert.Error(t, parseJSON(&Config{}, []string{"-config", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, parseJSON(&Config{}, []string{"-c", filepath.Join(dir, "absent.json")}))
	})
}
