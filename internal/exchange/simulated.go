package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spot-grid-bot-go/internal/models"
)

// SimOrder 是模拟交易所中的一笔限价单
type SimOrder struct {
	ID       string
	Side     models.Side
	Price    float64
	Qty      float64
	Status   models.OrderStatus
	PlacedAt time.Time
	FilledAt time.Time
}

// SimulatedExchange 实现了 Exchange 接口，在内存中撮合限价单，用于回测和测试。
// 价格由调用方通过 SetPrice 推进，价格穿过挂单价时按挂单价成交。
type SimulatedExchange struct {
	mu sync.Mutex

	Symbol  string
	Base    string
	Quote   string
	FeeRate float64

	rules       models.SymbolRules
	price       float64
	currentTime time.Time
	balances    map[string]float64
	orders      map[string]*SimOrder
	orderIDs    []string // 按下单顺序
	failures    map[string]error

	TotalFees   float64
	EquityCurve []float64
}

// NewSimulatedExchange 创建一个新的模拟交易所实例
func NewSimulatedExchange(symbol, base, quote string, rules models.SymbolRules, feeRate float64, balances map[string]float64) *SimulatedExchange {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &SimulatedExchange{
		Symbol:      symbol,
		Base:        base,
		Quote:       quote,
		FeeRate:     feeRate,
		rules:       rules,
		balances:    b,
		orders:      make(map[string]*SimOrder),
		failures:    make(map[string]error),
		EquityCurve: make([]float64, 0, 1024),
	}
}

// SetPrice 推进价格，并检查是否有挂单在这个价格点成交。
func (e *SimulatedExchange) SetPrice(price float64, timestamp time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.price = price
	e.currentTime = timestamp
	e.checkLimitOrdersAtPrice(price)
	e.EquityCurve = append(e.EquityCurve, e.equity())
}

// FailNext 让下一次调用 method（如 "GetPrice"、"PlaceLimitOrder"）返回 err，只生效一次。
func (e *SimulatedExchange) FailNext(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[method] = err
}

// FillOrder 直接以挂单价成交一笔挂单，模拟订单在两次查询之间成交。
func (e *SimulatedExchange) FillOrder(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok || order.Status != models.StatusOpen {
		return fmt.Errorf("订单 %s 不是挂单状态", orderID)
	}
	e.handleFilledOrder(order)
	return nil
}

// SetOrderStatus 强制设置订单状态，用于模拟交易所侧的撤单或拒单。
func (e *SimulatedExchange) SetOrderStatus(orderID string, status models.OrderStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if order, ok := e.orders[orderID]; ok {
		order.Status = status
	}
}

// Orders 返回按下单顺序排列的订单副本
func (e *SimulatedExchange) Orders() []SimOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SimOrder, 0, len(e.orderIDs))
	for _, id := range e.orderIDs {
		out = append(out, *e.orders[id])
	}
	return out
}

// Equity 返回按当前价格计算的账户总权益（计价货币）
func (e *SimulatedExchange) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equity()
}

// CurrentTime 返回最近一次 SetPrice 的时间
func (e *SimulatedExchange) CurrentTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *SimulatedExchange) equity() float64 {
	return e.balances[e.Quote] + e.balances[e.Base]*e.price
}

// checkLimitOrdersAtPrice 按下单顺序检查挂单是否在 price 成交。必须在持有锁的情况下调用。
func (e *SimulatedExchange) checkLimitOrdersAtPrice(price float64) {
	for _, id := range e.orderIDs {
		order := e.orders[id]
		if order.Status != models.StatusOpen {
			continue
		}
		if (order.Side == models.Buy && price <= order.Price) || (order.Side == models.Sell && price >= order.Price) {
			e.handleFilledOrder(order)
		}
	}
}

// handleFilledOrder 以挂单价成交并更新余额。必须在持有锁的情况下调用。
func (e *SimulatedExchange) handleFilledOrder(order *SimOrder) {
	order.Status = models.StatusFilled
	order.FilledAt = e.currentTime

	notional := order.Price * order.Qty
	fee := notional * e.FeeRate
	e.TotalFees += fee

	if order.Side == models.Buy {
		e.balances[e.Base] += order.Qty
		e.balances[e.Quote] -= notional + fee
	} else {
		e.balances[e.Base] -= order.Qty
		e.balances[e.Quote] += notional - fee
	}
}

func (e *SimulatedExchange) takeFailure(method string) error {
	err, ok := e.failures[method]
	if !ok {
		return nil
	}
	delete(e.failures, method)
	return exchangeError(method, err)
}

// --- Exchange 接口实现 ---

func (e *SimulatedExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("GetPrice"); err != nil {
		return 0, err
	}
	if e.price <= 0 {
		return 0, exchangeError("GetPrice", errors.New("no price has been set"))
	}
	return e.price, nil
}

func (e *SimulatedExchange) GetSymbolRules(ctx context.Context, symbol string) (models.SymbolRules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("GetSymbolRules"); err != nil {
		return models.SymbolRules{}, err
	}
	return e.rules, nil
}

func (e *SimulatedExchange) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, qty float64, clientOrderID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("PlaceLimitOrder"); err != nil {
		return "", err
	}
	if _, dup := e.orders[clientOrderID]; dup {
		return "", exchangeError("PlaceLimitOrder", fmt.Errorf("duplicate client order id %s", clientOrderID))
	}
	if price <= 0 || qty <= 0 {
		return "", exchangeError("PlaceLimitOrder", fmt.Errorf("invalid price %v or quantity %v", price, qty))
	}
	if !e.rules.Admits(price, qty) {
		return "", exchangeError("PlaceLimitOrder", fmt.Errorf("order %v @ %v is below the symbol minimums", qty, price))
	}
	if side == models.Buy && e.balances[e.Quote] < price*qty {
		return "", exchangeError("PlaceLimitOrder", fmt.Errorf("insufficient %s balance", e.Quote))
	}
	if side == models.Sell && e.balances[e.Base] < qty {
		return "", exchangeError("PlaceLimitOrder", fmt.Errorf("insufficient %s balance", e.Base))
	}

	e.orders[clientOrderID] = &SimOrder{
		ID:       clientOrderID,
		Side:     side,
		Price:    price,
		Qty:      qty,
		Status:   models.StatusOpen,
		PlacedAt: e.currentTime,
	}
	e.orderIDs = append(e.orderIDs, clientOrderID)
	return clientOrderID, nil
}

func (e *SimulatedExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("GetOrderStatus"); err != nil {
		return "", err
	}
	order, ok := e.orders[orderID]
	if !ok {
		return "", exchangeError("GetOrderStatus", fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID))
	}
	return order.Status, nil
}

func (e *SimulatedExchange) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("CancelOrder"); err != nil {
		return false, err
	}
	order, ok := e.orders[orderID]
	if !ok || order.Status != models.StatusOpen {
		return false, nil
	}
	order.Status = models.StatusCanceled
	return true, nil
}

func (e *SimulatedExchange) GetBalances(ctx context.Context) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("GetBalances"); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out, nil
}
