package models

import (
	"strings"
	"time"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbol               string  `json:"symbol" yaml:"symbol"`                                 // 交易对，如 "BTCUSDT"
	QuoteAsset           string  `json:"quote_asset" yaml:"quote_asset"`                       // 计价货币，如 "USDT"
	Mode                 Mode    `json:"mode" yaml:"mode"`                                     // LONG 或 SHORT_INVERTED
	InitialCapitalAmount float64 `json:"initial_capital_amount" yaml:"initial_capital_amount"` // 初始资金，LONG为计价货币，SHORT_INVERTED为基础货币
	RangePctBottom       float64 `json:"range_pct_bottom" yaml:"range_pct_bottom"`             // 网格下沿相对P0的比例，如 -0.10
	RangePctTop          float64 `json:"range_pct_top" yaml:"range_pct_top"`                   // 网格上沿相对P0的比例，如 0.10
	GridIntervals        int     `json:"grid_intervals" yaml:"grid_intervals"`                 // 网格区间数量（价格档位数量减一）
	CheckIntervalSec     int     `json:"check_interval_sec" yaml:"check_interval_sec"`         // 两次tick之间的间隔(秒)
	FeeRate              float64 `json:"fee_rate" yaml:"fee_rate"`                             // 手续费率，用于估算盈亏和余额
	DryRun               bool    `json:"dry_run" yaml:"dry_run"`                               // 模拟下单
	IsTestnet            bool    `json:"is_testnet" yaml:"is_testnet"`                         // 是否使用现货测试网
	BaseURL              string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`         // 覆盖REST地址
	StateFile            string  `json:"state_file" yaml:"state_file"`                         // 状态文件路径
	JournalPath          string  `json:"journal_path,omitempty" yaml:"journal_path,omitempty"` // 成交日志(BadgerDB)目录，为空则不记录
	MetricsAddr          string  `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"` // Prometheus 监听地址，为空则不启动

	UsePriceStream     bool      `json:"use_price_stream" yaml:"use_price_stream"`                     // 使用WebSocket价格流
	PriceStreamURL     string    `json:"price_stream_url,omitempty" yaml:"price_stream_url,omitempty"` // WebSocket基础地址
	PriceStreamMaxAgeS int       `json:"price_stream_max_age_sec" yaml:"price_stream_max_age_sec"`     // 价格流数据的最大有效期(秒)
	APIKey             string    `json:"-" yaml:"-"`                                                   // 来自环境变量
	SecretKey          string    `json:"-" yaml:"-"`                                                   // 来自环境变量
	LogConfig          LogConfig `json:"log" yaml:"log"`                                               // 日志配置
}

// BaseAsset 从交易对中去掉计价货币得到基础货币
func (c *Config) BaseAsset() string {
	return strings.TrimSuffix(c.Symbol, c.QuoteAsset)
}

// CapitalAsset 返回初始资金所属的币种
func (c *Config) CapitalAsset() string {
	if c.Mode == ModeShortInverted {
		return c.BaseAsset()
	}
	return c.QuoteAsset
}

// CheckInterval 返回tick间隔
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSec) * time.Second
}

// PriceStreamMaxAge 返回价格流数据的最大有效期
func (c *Config) PriceStreamMaxAge() time.Duration {
	return time.Duration(c.PriceStreamMaxAgeS) * time.Second
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}

// FillRecord 记录一笔成交，写入成交日志用于审计和回测报告
type FillRecord struct {
	OrderID     string    `json:"order_id"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Qty         float64   `json:"qty"`
	GridIndex   int       `json:"grid_index"`
	RealizedPnL float64   `json:"realized_pnl"`
	FilledAt    time.Time `json:"filled_at"`
}

// Kline 是一根K线，回测时按 开->低->高->收 的路径回放
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Path 返回K线内部模拟的价格路径
func (k Kline) Path() []float64 {
	return []float64{k.Open, k.Low, k.High, k.Close}
}
