package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-grid-bot-go/internal/models"
)

func clearKeys(t *testing.T) {
	for _, k := range []string{"BINANCE_API_KEY", "BINANCE_SECRET_KEY", "EXCHANGE_API_KEY", "EXCHANGE_API_SECRET"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearKeys(t)

	cfg, err := LoadConfig("", false)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, models.ModeLong, cfg.Mode)
	assert.Equal(t, 100.0, cfg.InitialCapitalAmount)
	assert.Equal(t, 20, cfg.GridIntervals)
	assert.Equal(t, 300, cfg.CheckIntervalSec)
	assert.Equal(t, 0.001, cfg.FeeRate)
	assert.True(t, cfg.DryRun)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearKeys(t)
	path := writeFile(t, "grid.yaml", `
symbol: ETHBTC
quote_asset: BTC
mode: SHORT_INVERTED
initial_capital_amount: 2.5
grid_intervals: 10
dry_run: false
log:
  level: debug
`)

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "ETHBTC", cfg.Symbol)
	assert.Equal(t, models.ModeShortInverted, cfg.Mode)
	assert.Equal(t, 2.5, cfg.InitialCapitalAmount)
	assert.Equal(t, 10, cfg.GridIntervals)
	assert.Equal(t, -0.10, cfg.RangePctBottom, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.True(t, cfg.DryRun, "--dry-run overrides the file")
}

func TestLoadConfig_JSONWithKeys(t *testing.T) {
	clearKeys(t)
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_SECRET_KEY", "secret")
	path := writeFile(t, "config.json", `{"symbol":"BNBUSDT","dry_run":false,"is_testnet":true,"check_interval_sec":30}`)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "BNBUSDT", cfg.Symbol)
	assert.False(t, cfg.DryRun)
	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "secret", cfg.SecretKey)
}

func TestLoadConfig_MissingKeysForceDryRun(t *testing.T) {
	clearKeys(t)
	path := writeFile(t, "config.json", `{"dry_run":false}`)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoadConfig_FallbackEnvNames(t *testing.T) {
	clearKeys(t)
	t.Setenv("EXCHANGE_API_KEY", "k2")
	t.Setenv("EXCHANGE_API_SECRET", "s2")

	cfg, err := LoadConfig("", false)
	require.NoError(t, err)
	assert.Equal(t, "k2", cfg.APIKey)
	assert.Equal(t, "s2", cfg.SecretKey)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	clearKeys(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))

	_, err = LoadConfig(writeFile(t, "bad.json", `{"symbol":`), false)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))

	_, err = LoadConfig(writeFile(t, "bad.yml", "grid_intervals: [1, 2"), false)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *models.Config)
	}{
		{"invalid mode", func(c *models.Config) { c.Mode = "INVALID_MODE" }},
		{"zero capital", func(c *models.Config) { c.InitialCapitalAmount = 0 }},
		{"one interval", func(c *models.Config) { c.GridIntervals = 1 }},
		{"inverted range", func(c *models.Config) { c.RangePctBottom, c.RangePctTop = 0.20, 0.10 }},
		{"bottom at -100%", func(c *models.Config) { c.RangePctBottom = -1 }},
		{"negative fee", func(c *models.Config) { c.FeeRate = -0.1 }},
		{"fee of 100%", func(c *models.Config) { c.FeeRate = 1 }},
		{"zero interval", func(c *models.Config) { c.CheckIntervalSec = 0 }},
		{"symbol without quote", func(c *models.Config) { c.Symbol = "BTCEUR" }},
		{"symbol equals quote", func(c *models.Config) { c.Symbol = "USDT" }},
		{"empty state file", func(c *models.Config) { c.StateFile = "" }},
		{"stream without max age", func(c *models.Config) { c.UsePriceStream, c.PriceStreamMaxAgeS = true, 0 }},
	}

	require.NoError(t, Validate(Default()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Equal(t, models.KindConfiguration, models.KindOf(err))
		})
	}
}

func TestValidate_InvalidModeIsMarked(t *testing.T) {
	cfg := Default()
	cfg.Mode = "SIDEWAYS"
	assert.ErrorIs(t, Validate(cfg), models.ErrInvalidMode)
}
