package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"spot-grid-bot-go/internal/logger"
	"spot-grid-bot-go/internal/models"
)

// Default 返回所有参数的默认值。默认开启 dry run。
func Default() *models.Config {
	return &models.Config{
		Symbol:               "BTCUSDT",
		QuoteAsset:           "USDT",
		Mode:                 models.ModeLong,
		InitialCapitalAmount: 100,
		RangePctBottom:       -0.10,
		RangePctTop:          0.10,
		GridIntervals:        20,
		CheckIntervalSec:     300,
		FeeRate:              0.001,
		DryRun:               true,
		StateFile:            "grid_state.json",
		PriceStreamMaxAgeS:   10,
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// LoadConfig 加载配置：默认值 <- 配置文件(JSON或YAML，按扩展名区分) <- 环境变量中的密钥 <- 命令行 --dry-run。
// path 为空时只使用默认值。返回的配置已经通过校验。
func LoadConfig(path string, cliDryRun bool) (*models.Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.S().Debug("未找到 .env 文件，将从系统环境变量中读取。")
	}

	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, models.NewError(models.KindConfiguration, "load config", err)
		}
	}

	cfg.APIKey = firstEnv("BINANCE_API_KEY", "EXCHANGE_API_KEY")
	cfg.SecretKey = firstEnv("BINANCE_SECRET_KEY", "EXCHANGE_API_SECRET")

	if cliDryRun {
		cfg.DryRun = true
	}
	if !cfg.DryRun && (cfg.APIKey == "" || cfg.SecretKey == "") {
		logger.S().Warn("未设置 API 密钥，已自动切换到 dry run 模式。")
		cfg.DryRun = true
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *models.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "读取配置文件 %s 失败", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "解析YAML配置 %s 失败", path)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "解析JSON配置 %s 失败", path)
		}
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate 检查配置是否可用，错误归类为配置错误。
func Validate(cfg *models.Config) error {
	var problem error
	switch {
	case cfg.Mode != models.ModeLong && cfg.Mode != models.ModeShortInverted:
		problem = errors.Wrapf(models.ErrInvalidMode, "mode must be LONG or SHORT_INVERTED, got %q", cfg.Mode)
	case cfg.Symbol == "" || cfg.QuoteAsset == "":
		problem = errors.New("symbol and quote_asset are required")
	case !strings.HasSuffix(cfg.Symbol, cfg.QuoteAsset) || cfg.BaseAsset() == "":
		problem = errors.Errorf("symbol %s does not end with quote asset %s", cfg.Symbol, cfg.QuoteAsset)
	case cfg.InitialCapitalAmount <= 0:
		problem = errors.Errorf("initial_capital_amount must be > 0, got %v", cfg.InitialCapitalAmount)
	case cfg.GridIntervals < 2:
		problem = errors.Errorf("grid_intervals must be >= 2, got %d", cfg.GridIntervals)
	case cfg.RangePctBottom >= cfg.RangePctTop:
		problem = errors.Errorf("range_pct_bottom (%v) must be < range_pct_top (%v)", cfg.RangePctBottom, cfg.RangePctTop)
	case cfg.RangePctBottom <= -1:
		problem = errors.Errorf("range_pct_bottom must be > -1, got %v", cfg.RangePctBottom)
	case cfg.FeeRate < 0 || cfg.FeeRate >= 1:
		problem = errors.Errorf("fee_rate must be in [0, 1), got %v", cfg.FeeRate)
	case cfg.CheckIntervalSec <= 0:
		problem = errors.Errorf("check_interval_sec must be > 0, got %d", cfg.CheckIntervalSec)
	case cfg.StateFile == "":
		problem = errors.New("state_file is required")
	case cfg.UsePriceStream && cfg.PriceStreamMaxAgeS <= 0:
		problem = errors.Errorf("price_stream_max_age_sec must be > 0, got %d", cfg.PriceStreamMaxAgeS)
	}
	return models.NewError(models.KindConfiguration, "validate config", problem)
}
