// Package bot 编排一个 tick：读取价格、结算活动订单、决定并提交下一笔订单、持久化状态。
package bot

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"spot-grid-bot-go/internal/exchange"
	"spot-grid-bot-go/internal/grid"
	"spot-grid-bot-go/internal/metrics"
	"spot-grid-bot-go/internal/models"
	"spot-grid-bot-go/internal/persistence"
	"spot-grid-bot-go/internal/reporter"
	"spot-grid-bot-go/internal/strategy"
)

// Orchestrator 驱动单个交易对的几何网格。它不是并发安全的，Tick 和 Run 只能在一个 goroutine 中调用。
type Orchestrator struct {
	cfg     *models.Config
	ex      exchange.Exchange
	repo    persistence.StateRepository
	journal persistence.FillJournal
	metrics *metrics.Recorder
	logger  *zap.Logger
	clock   func() time.Time

	idPrefix  string
	modeLabel string
	state     *models.GridState
	levels    []float64
	rules     models.SymbolRules
}

// Option 配置 Orchestrator 的可选依赖
type Option func(*Orchestrator)

// WithJournal 在每次成交后追加一条成交记录
func WithJournal(j persistence.FillJournal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithMetrics 导出下单、成交和错误计数
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithClock 替换成交时间的来源，回测时使用模拟交易所的时间
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithModeLabel 覆盖指标中的运行模式标签（live、dry_run、backtest）
func WithModeLabel(label string) Option {
	return func(o *Orchestrator) { o.modeLabel = label }
}

// NewOrchestrator 创建编排器。cfg.DryRun 决定客户端订单号的前缀。
func NewOrchestrator(cfg *models.Config, ex exchange.Exchange, repo persistence.StateRepository, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:       cfg,
		ex:        ex,
		repo:      repo,
		logger:    logger.With(zap.String("symbol", cfg.Symbol)),
		clock:     time.Now,
		idPrefix:  livePrefix,
		modeLabel: "live",
	}
	if cfg.DryRun {
		o.idPrefix = dryRunPrefix
		o.modeLabel = "dry_run"
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize 加载或创建状态，获取交易规则并生成网格。
// 全新启动时以当前价格为 P0，并立即保存状态，保证重启后网格不变。
func (o *Orchestrator) Initialize(ctx context.Context) error {
	loaded, err := o.repo.LoadState()
	if err != nil {
		return err
	}

	rules, err := o.ex.GetSymbolRules(ctx, o.cfg.Symbol)
	if err != nil {
		return err
	}
	o.rules = rules

	var state models.GridState
	if loaded != nil {
		state = *loaded
		if adopter, ok := o.ex.(exchange.OrderAdopter); ok && state.ActiveOrder != nil {
			adopter.Adopt(*state.ActiveOrder)
		}
		o.logger.Info("从状态文件恢复",
			zap.String("phase", string(state.Phase)),
			zap.String("state", string(state.State)),
			zap.Float64("p0", state.ReferencePrice),
			zap.Float64("realizedPnL", state.RealizedPnL))
	} else {
		price, err := o.ex.GetPrice(ctx, o.cfg.Symbol)
		if err != nil {
			return err
		}
		balances, err := o.ex.GetBalances(ctx)
		if err != nil {
			return err
		}
		state = models.NewGridState(o.cfg.Mode.InitialPhase(), price, balances)
		if err := o.repo.SaveState(state); err != nil {
			return err
		}
		o.logger.Info("全新启动，以当前价格作为网格参考价",
			zap.Float64("p0", price),
			zap.String("phase", string(state.Phase)))
	}

	levels, err := grid.BuildGrid(state.ReferencePrice, o.cfg.RangePctBottom, o.cfg.RangePctTop, o.cfg.GridIntervals)
	if err != nil {
		return err
	}
	o.levels = levels
	o.state = &state
	o.metrics.SetPosition(state.RealizedPnL, state.LastFilledIndex)

	o.logger.Info("网格已生成",
		zap.Float64("bottom", levels[0]),
		zap.Float64("top", levels[len(levels)-1]),
		zap.Int("intervals", len(levels)-1))
	return nil
}

// Tick 执行一次完整的检查。活动订单结束后，同一个 tick 内会继续挂出下一笔订单。
func (o *Orchestrator) Tick(ctx context.Context) error {
	if o.state == nil {
		if err := o.Initialize(ctx); err != nil {
			return err
		}
	}

	price, err := o.ex.GetPrice(ctx, o.cfg.Symbol)
	if err != nil {
		return err
	}

	if o.state.ActiveOrder != nil {
		pending, err := o.resolveActiveOrder(ctx)
		if err != nil || pending {
			return err
		}
	}
	return o.placeNext(ctx, price)
}

// resolveActiveOrder 查询活动订单。订单仍未结束时返回 pending=true。
func (o *Orchestrator) resolveActiveOrder(ctx context.Context) (pending bool, err error) {
	order := *o.state.ActiveOrder
	log := o.logger.With(zap.String("orderID", order.OrderID), zap.String("side", string(order.Side)))

	status, err := o.ex.GetOrderStatus(ctx, o.cfg.Symbol, order.OrderID)
	if err != nil {
		// 写入状态后下单请求没有到达交易所
		if order.Status == models.StatusNew && errors.Is(err, models.ErrOrderNotFound) {
			log.Warn("交易所没有这笔待提交的订单，回到空闲状态")
			o.metrics.OrderResolved("NOT_SUBMITTED")
			return false, o.commit(o.state.WithoutActiveOrder())
		}
		return true, err
	}

	switch status {
	case models.StatusFilled:
		return false, o.handleFill(order, log)
	case models.StatusCanceled, models.StatusRejected:
		log.Warn("订单已失效，回到空闲状态", zap.String("status", string(status)))
		o.metrics.OrderResolved(string(status))
		return false, o.commit(o.state.WithoutActiveOrder())
	default:
		if status != order.Status {
			if err := o.commit(o.state.WithOrderStatus(status)); err != nil {
				return true, err
			}
		}
		log.Debug("订单等待成交", zap.Float64("price", order.Price), zap.String("status", string(status)))
		return true, nil
	}
}

func (o *Orchestrator) handleFill(order models.ActiveOrder, log *zap.Logger) error {
	pnl := strategy.RealizedPnL(o.cfg.Mode, order, o.levels, o.cfg.FeeRate)
	balances := strategy.ApplyFill(o.state.EstimatedBalances, o.cfg.BaseAsset(), o.cfg.QuoteAsset,
		order.Side, order.Price, order.Qty, o.cfg.FeeRate)
	next := strategy.TransitionOnFill(o.state.WithBalances(balances), order.GridIndex, pnl)
	if err := o.commit(next); err != nil {
		return err
	}

	log.Info("订单成交",
		zap.Float64("price", order.Price),
		zap.Float64("qty", order.Qty),
		zap.Int("gridIndex", order.GridIndex),
		zap.Float64("realizedPnL", pnl),
		zap.Float64("totalPnL", next.RealizedPnL),
		zap.String("nextPhase", string(next.Phase)))

	if o.journal != nil {
		record := models.FillRecord{
			OrderID:     order.OrderID,
			Side:        order.Side,
			Price:       order.Price,
			Qty:         order.Qty,
			GridIndex:   order.GridIndex,
			RealizedPnL: pnl,
			FilledAt:    o.clock(),
		}
		if err := o.journal.Append(record); err != nil {
			log.Error("写入成交日志失败", zap.Error(err))
		}
	}

	o.metrics.OrderResolved(string(models.StatusFilled))
	o.metrics.Fill(string(order.Side))
	o.metrics.SetPosition(next.RealizedPnL, next.LastFilledIndex)
	return nil
}

// placeNext 计算、取整并提交下一笔订单。订单先以 NEW 状态写入磁盘，再发送到交易所。
func (o *Orchestrator) placeNext(ctx context.Context, price float64) error {
	intent, err := strategy.NextOrderIntent(*o.state, price, o.levels, o.cfg.Mode, o.cfg.InitialCapitalAmount)
	if err != nil {
		return err
	}
	if intent == nil {
		o.logger.Debug("没有可挂的订单", zap.String("phase", string(o.state.Phase)), zap.Float64("price", price))
		return nil
	}

	roundedPrice := grid.RoundTickSize(intent.Price, o.rules.TickSize)
	roundedQty := grid.RoundStepSize(intent.Qty, o.rules.StepSize)
	if !o.rules.Admits(roundedPrice, roundedQty) {
		o.logger.Warn("订单低于交易所最小下单要求，跳过",
			zap.String("side", string(intent.Side)),
			zap.Float64("price", roundedPrice),
			zap.Float64("qty", roundedQty),
			zap.Float64("minQty", o.rules.MinQty),
			zap.Float64("minNotional", o.rules.MinNotional))
		o.metrics.IntentSkipped("below_minimums")
		return nil
	}

	pending := o.state.WithActiveOrder(models.ActiveOrder{
		OrderID:   newClientOrderID(o.idPrefix),
		Side:      intent.Side,
		Price:     roundedPrice,
		Qty:       roundedQty,
		GridIndex: intent.GridIndex,
		Status:    models.StatusNew,
	})
	if err := o.commit(pending); err != nil {
		return err
	}

	order := pending.ActiveOrder
	log := o.logger.With(zap.String("orderID", order.OrderID), zap.String("side", string(order.Side)))
	if _, err := o.ex.PlaceLimitOrder(ctx, o.cfg.Symbol, order.Side, order.Price, order.Qty, order.OrderID); err != nil {
		log.Warn("下单失败，下一个 tick 将核对订单状态", zap.Error(err))
		return err
	}
	if err := o.commit(pending.WithOrderStatus(models.StatusOpen)); err != nil {
		return err
	}

	o.metrics.OrderPlaced(string(order.Side), o.modeLabel)
	log.Info("挂单成功",
		zap.Float64("price", order.Price),
		zap.Float64("qty", order.Qty),
		zap.Int("gridIndex", order.GridIndex))
	return nil
}

// commit 先持久化再替换内存中的状态
func (o *Orchestrator) commit(next models.GridState) error {
	if err := o.repo.SaveState(next); err != nil {
		return err
	}
	o.state = &next
	return nil
}

// Run 初始化后立即执行一次 tick，之后按配置的间隔循环，直到 ctx 被取消。
// 初始化阶段的任何错误都是致命的。之后交易所错误只记录日志，下一个 tick 重试；其他错误终止循环并返回。
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.state == nil {
		if err := o.Initialize(ctx); err != nil {
			o.logger.Error("初始化失败", zap.Error(err))
			return err
		}
	}

	ticker := time.NewTicker(o.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		if err := o.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.metrics.TickError(models.KindOf(err).String())
			if !models.IsRetryable(err) {
				o.logger.Error("tick 失败，停止运行", zap.Error(err))
				return err
			}
			o.logger.Warn("tick 失败，将在下一个周期重试", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			o.logger.Info("收到停止信号，主循环退出")
			return nil
		case <-ticker.C:
		}
	}
}

// State 返回当前状态的副本，尚未初始化时 ok 为 false
func (o *Orchestrator) State() (state models.GridState, ok bool) {
	if o.state == nil {
		return models.GridState{}, false
	}
	return o.state.Clone(), true
}

// Levels 返回网格价格档位
func (o *Orchestrator) Levels() []float64 {
	return append([]float64(nil), o.levels...)
}

// PrintSummary 输出阶段、累计盈亏和活动订单
func (o *Orchestrator) PrintSummary(w io.Writer) {
	state, ok := o.State()
	if !ok {
		o.logger.Info("机器人未完成初始化，没有可输出的摘要")
		return
	}
	reporter.PrintSummary(w, reporter.Summary{
		Symbol:   o.cfg.Symbol,
		Mode:     o.cfg.Mode,
		DryRun:   o.cfg.DryRun,
		State:    state,
		Levels:   o.Levels(),
		Balances: state.EstimatedBalances,
	})
}
