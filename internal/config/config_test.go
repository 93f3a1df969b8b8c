package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
store:
  path: /tmp/policies.db
`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Store.RetryAttempts)
	assert.Equal(t, "USDT", cfg.Market.QuoteAsset)
	assert.Equal(t, 20, cfg.Market.CandidateLimit)
	assert.Equal(t, []string{"1h", "4h"}, cfg.Market.Timeframes)
	assert.Equal(t, 200, cfg.Market.KlineLimit)
	assert.InDelta(t, 1, cfg.Engine.DefaultLeverage, 1e-9)
}

func TestLoad_FullDocument(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
log_level: debug
store:
  path: /data/policies.db
  retry_attempts: 5
  retry_min_delay: 50ms
  retry_max_delay: 1s
policies:
  file_path: /data/policies.yaml
market:
  rest_base_url: https://fapi.example.com
  http_timeout: 3s
  quote_asset: USDC
  candidate_limit: 10
  timeframes: ["15m", "1h"]
  kline_limit: 100
engine:
  default_leverage: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Store.RetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Store.RetryMinDelay)
	assert.Equal(t, time.Second, cfg.Store.RetryMaxDelay)
	assert.Equal(t, "/data/policies.yaml", cfg.Policies.FilePath)
	assert.Equal(t, "USDC", cfg.Market.QuoteAsset)
	assert.Equal(t, 3*time.Second, cfg.Market.HTTPTimeout)
	assert.Equal(t, []string{"15m", "1h"}, cfg.Market.Timeframes)
	assert.InDelta(t, 3, cfg.Engine.DefaultLeverage, 1e-9)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"NoPolicySource", "log_level: info\n"},
		{"EmptyTimeframe", `
store:
  path: /tmp/policies.db
market:
  timeframes: ["1h", "  "]
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_PathErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
