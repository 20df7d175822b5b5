package bot

import (
	"context"

	"go.uber.org/zap"

	"spot-grid-bot-go/internal/exchange"
	"spot-grid-bot-go/internal/models"
	"spot-grid-bot-go/internal/persistence"
	"spot-grid-bot-go/internal/reporter"
)

// RunBacktest 在模拟交易所上回放 K 线。每根 K 线按 开->低->高->收 推进四次价格，每个价格点执行一次 tick。
// 状态只保存在内存中，不会碰到实盘的状态文件。journal 为 nil 时使用内存中的成交日志。
func RunBacktest(ctx context.Context, cfg *models.Config, klines []models.Kline, rules models.SymbolRules, journal persistence.FillJournal, logger *zap.Logger) (reporter.BacktestInput, error) {
	if len(klines) == 0 {
		return reporter.BacktestInput{}, models.Errorf(models.KindConfiguration, "backtest", "no klines to replay")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if journal == nil {
		mem, err := persistence.NewInMemoryJournal()
		if err != nil {
			return reporter.BacktestInput{}, err
		}
		defer mem.Close()
		journal = mem
	}

	btCfg := *cfg
	btCfg.DryRun = false
	balances := map[string]float64{btCfg.CapitalAsset(): btCfg.InitialCapitalAmount}
	sim := exchange.NewSimulatedExchange(btCfg.Symbol, btCfg.BaseAsset(), btCfg.QuoteAsset, rules, btCfg.FeeRate, balances)

	first := klines[0]
	sim.SetPrice(first.Open, first.OpenTime)
	initialEquity := sim.Equity()

	orch := NewOrchestrator(&btCfg, sim, persistence.NewMemoryRepository(), logger,
		WithJournal(journal),
		WithClock(sim.CurrentTime),
		WithModeLabel("backtest"))
	if err := orch.Initialize(ctx); err != nil {
		return reporter.BacktestInput{}, err
	}

	logger.Info("开始回测", zap.Int("klines", len(klines)), zap.Float64("initialEquity", initialEquity))
	for _, k := range klines {
		for _, price := range k.Path() {
			if err := ctx.Err(); err != nil {
				return reporter.BacktestInput{}, err
			}
			sim.SetPrice(price, k.OpenTime)
			if err := orch.Tick(ctx); err != nil {
				if !models.IsRetryable(err) {
					return reporter.BacktestInput{}, err
				}
				logger.Debug("回测 tick 失败", zap.Time("time", k.OpenTime), zap.Error(err))
			}
		}
	}

	fills, err := journal.List()
	if err != nil {
		return reporter.BacktestInput{}, err
	}
	finalBalances, err := sim.GetBalances(ctx)
	if err != nil {
		return reporter.BacktestInput{}, err
	}
	state, _ := orch.State()

	last := klines[len(klines)-1]
	result := reporter.BacktestInput{
		Symbol:        btCfg.Symbol,
		StartTime:     first.OpenTime,
		EndTime:       last.OpenTime,
		InitialEquity: initialEquity,
		FinalEquity:   sim.Equity(),
		RealizedPnL:   state.RealizedPnL,
		TotalFees:     sim.TotalFees,
		Fills:         fills,
		EquityCurve:   sim.EquityCurve,
		Balances:      finalBalances,
	}
	logger.Info("回测结束", zap.Int("fills", len(fills)), zap.Float64("finalEquity", result.FinalEquity))
	return result, nil
}
