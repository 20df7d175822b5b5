package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"spot-grid-bot-go/internal/bot"
	"spot-grid-bot-go/internal/config"
	"spot-grid-bot-go/internal/downloader"
	"spot-grid-bot-go/internal/exchange"
	"spot-grid-bot-go/internal/logger"
	"spot-grid-bot-go/internal/metrics"
	"spot-grid-bot-go/internal/models"
	"spot-grid-bot-go/internal/persistence"
	"spot-grid-bot-go/internal/reporter"
)

// 无法从交易所获取规则时回测使用的保守规则
var fallbackBacktestRules = models.SymbolRules{TickSize: 0.01, StepSize: 0.00001, MinNotional: 5, MinQty: 0.00001}

type flags struct {
	configPath string
	statePath  string
	dryRun     bool
	runOnce    bool
	mode       string
	dataPath   string
	symbol     string
	startDate  string
	endDate    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to the config file (YAML or JSON)")
	flag.StringVar(&f.statePath, "state", "", "path to the state file, overrides state_file in the config")
	flag.BoolVar(&f.dryRun, "dry-run", false, "simulate orders without sending them to the exchange")
	flag.BoolVar(&f.runOnce, "run-once", false, "run a single tick and exit")
	flag.StringVar(&f.mode, "mode", "live", "running mode: live or backtest")
	flag.StringVar(&f.dataPath, "data", "", "path to historical data file for backtesting")
	flag.StringVar(&f.symbol, "symbol", "", "symbol to backtest (e.g., BNBUSDT)")
	flag.StringVar(&f.startDate, "start", "", "start date for backtesting (YYYY-MM-DD)")
	flag.StringVar(&f.endDate, "end", "", "end date for backtesting (YYYY-MM-DD)")
	flag.Parse()

	os.Exit(run(f))
}

func run(f flags) int {
	// 加载配置前先用默认配置初始化日志
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	cfg, err := config.LoadConfig(f.configPath, f.dryRun)
	if err != nil {
		logger.S().Errorf("无法加载配置文件: %v", err)
		return 1
	}
	if f.statePath != "" {
		cfg.StateFile = f.statePath
	}

	log := logger.InitLogger(cfg.LogConfig)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch f.mode {
	case "live":
		err = runLiveMode(ctx, cfg, f.runOnce, log)
	case "backtest":
		err = runBacktestMode(ctx, cfg, f, log)
	default:
		err = fmt.Errorf("未知的运行模式: %s。请选择 'live' 或 'backtest'。", f.mode)
	}
	if err != nil {
		log.Error("运行失败", zap.Error(err))
		return 1
	}
	return 0
}

// runLiveMode 运行实盘或模拟盘，直到收到停止信号
func runLiveMode(ctx context.Context, cfg *models.Config, runOnce bool, log *zap.Logger) error {
	log.Info("--- 启动网格交易 ---",
		zap.String("symbol", cfg.Symbol),
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("dryRun", cfg.DryRun),
		zap.Bool("testnet", cfg.IsTestnet))

	lock, err := persistence.AcquireLock(cfg.StateFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	spot := exchange.NewBinanceSpot(cfg.APIKey, cfg.SecretKey, cfg.BaseURL, cfg.IsTestnet, log)
	if cfg.APIKey != "" {
		if err := spot.SyncTime(ctx); err != nil {
			log.Warn("时间同步失败，签名请求可能被拒绝", zap.Error(err))
		}
	}

	var ex exchange.Exchange = spot
	if cfg.UsePriceStream {
		feed := exchange.NewPriceFeed(cfg.PriceStreamURL, cfg.Symbol, log)
		go feed.Run(ctx)
		ex = exchange.NewStreamedPrices(ex, feed, cfg.PriceStreamMaxAge())
	}
	if cfg.DryRun {
		log.Info("[DRY RUN] 订单只在本地模拟，不会发送到交易所")
		ex = exchange.NewPaper(ex, cfg.BaseAsset(), cfg.QuoteAsset, cfg.FeeRate,
			map[string]float64{cfg.CapitalAsset(): cfg.InitialCapitalAmount}, log)
	}

	var opts []bot.Option
	if cfg.MetricsAddr != "" {
		rec := metrics.NewRecorder()
		opts = append(opts, bot.WithMetrics(rec))
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.Error("指标服务退出", zap.Error(err))
			}
		}()
	}
	if cfg.JournalPath != "" {
		journal, err := persistence.NewBadgerJournal(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, bot.WithJournal(journal))
	}

	repo := persistence.NewFileRepository(cfg.StateFile)
	defer repo.Close()

	orch := bot.NewOrchestrator(cfg, ex, repo, log, opts...)
	defer orch.PrintSummary(os.Stdout)

	if runOnce {
		return orch.Tick(ctx)
	}
	if err := orch.Run(ctx); err != nil {
		return err
	}
	log.Info("机器人已停止，状态已保存。")
	return nil
}

// runBacktestMode 下载或读取K线数据，在模拟交易所上回放并打印报告
func runBacktestMode(ctx context.Context, cfg *models.Config, f flags, log *zap.Logger) error {
	log.Info("--- 启动回测模式 ---")

	dataPath, err := prepareBacktestData(ctx, f, log)
	if err != nil {
		return err
	}

	// 交易对以数据文件为准
	if symbol := downloader.SymbolFromPath(dataPath); symbol != "" {
		cfg.Symbol = symbol
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	klines, skipped, err := downloader.ReadKlines(dataPath)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warn("跳过了无法解析的K线", zap.Int("skipped", skipped))
	}

	rules, err := exchange.NewBinanceSpot("", "", cfg.BaseURL, cfg.IsTestnet, log).GetSymbolRules(ctx, cfg.Symbol)
	if err != nil {
		log.Warn("无法获取交易规则，使用默认规则", zap.Error(err), zap.Any("rules", fallbackBacktestRules))
		rules = fallbackBacktestRules
	}

	result, err := bot.RunBacktest(ctx, cfg, klines, rules, nil, log)
	if err != nil {
		return err
	}
	result.DataPath = dataPath
	reporter.GenerateReport(os.Stdout, result)
	return nil
}

// prepareBacktestData 返回数据文件路径。给出 -symbol/-start/-end 时先下载数据。
func prepareBacktestData(ctx context.Context, f flags, log *zap.Logger) (string, error) {
	if f.symbol != "" && f.startDate != "" && f.endDate != "" {
		startTime, err1 := time.Parse("2006-01-02", f.startDate)
		endTime, err2 := time.Parse("2006-01-02", f.endDate)
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式。start: %v, end: %v", err1, err2)
		}

		fileName := fmt.Sprintf("data/%s-%s-%s.csv", f.symbol, f.startDate, f.endDate)
		if err := downloader.NewKlineDownloader("", log).DownloadKlines(ctx, f.symbol, fileName, startTime, endTime); err != nil {
			return "", fmt.Errorf("下载数据失败: %w", err)
		}
		return fileName, nil
	}

	if f.dataPath == "" {
		return "", fmt.Errorf("回测模式需要通过 --data 或 --symbol/start/end 参数指定数据源")
	}
	return f.dataPath, nil
}
