package exchange

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"spot-grid-bot-go/internal/models"
)

type paperOrder struct {
	side   models.Side
	price  float64
	qty    float64
	status models.OrderStatus
}

// Paper 是 dry run 模式下的交易所：行情和交易规则来自内层交易所，
// 订单只在本地记账，并在查询状态时用最新价格判断是否成交。
type Paper struct {
	inner   Exchange
	base    string
	quote   string
	feeRate float64
	logger  *zap.Logger

	mu       sync.Mutex
	orders   map[string]*paperOrder
	balances map[string]float64
}

// NewPaper 创建一个模拟盘交易所，balances 为初始的模拟余额。
func NewPaper(inner Exchange, base, quote string, feeRate float64, balances map[string]float64, logger *zap.Logger) *Paper {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &Paper{
		inner:    inner,
		base:     base,
		quote:    quote,
		feeRate:  feeRate,
		logger:   logger,
		orders:   make(map[string]*paperOrder),
		balances: b,
	}
}

func (p *Paper) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return p.inner.GetPrice(ctx, symbol)
}

func (p *Paper) GetSymbolRules(ctx context.Context, symbol string) (models.SymbolRules, error) {
	return p.inner.GetSymbolRules(ctx, symbol)
}

func (p *Paper) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, qty float64, clientOrderID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.orders[clientOrderID]; dup {
		return "", exchangeError("place order", fmt.Errorf("duplicate client order id %s", clientOrderID))
	}
	p.orders[clientOrderID] = &paperOrder{side: side, price: price, qty: qty, status: models.StatusOpen}
	p.logger.Info("[DRY RUN] 模拟下单",
		zap.String("clientOrderId", clientOrderID),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("qty", qty))
	return clientOrderID, nil
}

// Adopt 接回重启前已挂出的订单。NEW 状态的订单从未确认提交，不接回，
// 由编排器按未提交订单处理；已知的订单号不会被覆盖。
func (p *Paper) Adopt(order models.ActiveOrder) {
	if order.Status != models.StatusOpen {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[order.OrderID]; ok {
		return
	}
	p.orders[order.OrderID] = &paperOrder{side: order.Side, price: order.Price, qty: order.Qty, status: models.StatusOpen}
	p.logger.Info("[DRY RUN] 接回重启前的模拟挂单",
		zap.String("clientOrderId", order.OrderID),
		zap.String("side", string(order.Side)),
		zap.Float64("price", order.Price),
		zap.Float64("qty", order.Qty))
}

// GetOrderStatus 用内层交易所的最新价格撮合本地挂单
func (p *Paper) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	p.mu.Lock()
	order, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		return "", exchangeError("get order status", fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID))
	}
	if order.status != models.StatusOpen {
		status := order.status
		p.mu.Unlock()
		return status, nil
	}
	p.mu.Unlock()

	price, err := p.inner.GetPrice(ctx, symbol)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if order.status == models.StatusOpen &&
		((order.side == models.Buy && price <= order.price) || (order.side == models.Sell && price >= order.price)) {
		order.status = models.StatusFilled
		p.applyFill(order)
		p.logger.Info("[DRY RUN] 模拟成交",
			zap.String("clientOrderId", orderID),
			zap.Float64("marketPrice", price))
	}
	return order.status, nil
}

func (p *Paper) applyFill(order *paperOrder) {
	notional := order.price * order.qty
	fee := notional * p.feeRate
	if order.side == models.Buy {
		p.balances[p.base] += order.qty
		p.balances[p.quote] -= notional + fee
	} else {
		p.balances[p.base] -= order.qty
		p.balances[p.quote] += notional - fee
	}
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok || order.status != models.StatusOpen {
		return false, nil
	}
	order.status = models.StatusCanceled
	return true, nil
}

func (p *Paper) GetBalances(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}
