package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"

	"spot-grid-bot-go/internal/models"
)

const (
	// TestnetBaseURL 是币安现货测试网的 REST 地址
	TestnetBaseURL = "https://testnet.binance.vision"

	// 币安对未知订单返回的错误码
	codeUnknownOrder = -2013
)

// BinanceSpot 通过币安现货 REST API 实现 Exchange 接口。
type BinanceSpot struct {
	client  *binance.Client
	hasKeys bool
	logger  *zap.Logger

	mu    sync.Mutex
	rules map[string]models.SymbolRules
}

// NewBinanceSpot 创建一个现货适配器。baseURL 为空时使用主网地址，testnet 为真时使用现货测试网。
// 没有密钥时只能调用行情类接口，下单和查询账户会返回交易所错误。
func NewBinanceSpot(apiKey, secretKey, baseURL string, testnet bool, logger *zap.Logger) *BinanceSpot {
	client := binance.NewClient(apiKey, secretKey)
	switch {
	case baseURL != "":
		client.BaseURL = baseURL
	case testnet:
		client.BaseURL = TestnetBaseURL
	}

	return &BinanceSpot{
		client:  client,
		hasKeys: apiKey != "" && secretKey != "",
		logger:  logger,
		rules:   make(map[string]models.SymbolRules),
	}
}

// SyncTime 与币安服务器同步时间，签名请求的时间戳会带上这个偏移。
func (e *BinanceSpot) SyncTime(ctx context.Context) error {
	offset, err := e.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return exchangeError("sync time", err)
	}
	e.logger.Info("与币安服务器时间同步完成", zap.Int64("timeOffset (ms)", offset))
	return nil
}

// GetPrice 获取最新成交价
func (e *BinanceSpot) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, e.wrap("get price", err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, exchangeError("get price", fmt.Errorf("parse price %q: %w", p.Price, err))
		}
		return price, nil
	}
	return 0, exchangeError("get price", fmt.Errorf("no price returned for %s", symbol))
}

// GetSymbolRules 从 exchangeInfo 中解析价格、数量和最小名义价值约束。结果会被缓存。
func (e *BinanceSpot) GetSymbolRules(ctx context.Context, symbol string) (models.SymbolRules, error) {
	e.mu.Lock()
	cached, ok := e.rules[symbol]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	info, err := e.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.SymbolRules{}, e.wrap("get symbol rules", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules, err := parseFilters(s.Filters)
		if err != nil {
			return models.SymbolRules{}, exchangeError("get symbol rules", err)
		}
		e.mu.Lock()
		e.rules[symbol] = rules
		e.mu.Unlock()
		return rules, nil
	}
	return models.SymbolRules{}, exchangeError("get symbol rules", fmt.Errorf("symbol %s not found in exchange info", symbol))
}

func parseFilters(filters []map[string]interface{}) (models.SymbolRules, error) {
	var rules models.SymbolRules
	for _, f := range filters {
		var err error
		switch f["filterType"] {
		case "PRICE_FILTER":
			rules.TickSize, err = filterValue(f, "tickSize")
		case "LOT_SIZE":
			if rules.StepSize, err = filterValue(f, "stepSize"); err == nil {
				rules.MinQty, err = filterValue(f, "minQty")
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			var v float64
			if v, err = filterValue(f, "minNotional"); err == nil && v > rules.MinNotional {
				rules.MinNotional = v
			}
		}
		if err != nil {
			return rules, err
		}
	}
	return rules, nil
}

func filterValue(f map[string]interface{}, key string) (float64, error) {
	raw, ok := f[key]
	if !ok {
		return 0, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("filter %v: %s is %T, want string", f["filterType"], key, raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("filter %v: parse %s: %w", f["filterType"], key, err)
	}
	return v, nil
}

// PlaceLimitOrder 下一个 GTC 限价单，使用调用方给出的客户端订单号。
func (e *BinanceSpot) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, qty float64, clientOrderID string) (string, error) {
	if err := e.requireKeys("place order"); err != nil {
		return "", err
	}

	sideType := binance.SideTypeBuy
	if side == models.Sell {
		sideType = binance.SideTypeSell
	}

	resp, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatFloat(qty)).
		Price(formatFloat(price)).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", e.wrap("place order", err)
	}

	e.logger.Info("订单已提交",
		zap.String("clientOrderId", resp.ClientOrderID),
		zap.Int64("orderId", resp.OrderID),
		zap.String("status", string(resp.Status)))
	return clientOrderID, nil
}

// GetOrderStatus 按客户端订单号查询订单状态
func (e *BinanceSpot) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	if err := e.requireKeys("get order status"); err != nil {
		return "", err
	}

	order, err := e.client.NewGetOrderService().Symbol(symbol).OrigClientOrderID(orderID).Do(ctx)
	if err != nil {
		return "", e.wrap("get order status", err)
	}
	return mapOrderStatus(order.Status), nil
}

// CancelOrder 撤销订单。订单已不存在时返回 false 而不是错误。
func (e *BinanceSpot) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if err := e.requireKeys("cancel order"); err != nil {
		return false, err
	}

	_, err := e.client.NewCancelOrderService().Symbol(symbol).OrigClientOrderID(orderID).Do(ctx)
	if err != nil {
		wrapped := e.wrap("cancel order", err)
		if errors.Is(wrapped, models.ErrOrderNotFound) {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

// GetBalances 返回所有非零资产余额（可用+冻结）
func (e *BinanceSpot) GetBalances(ctx context.Context) (map[string]float64, error) {
	if err := e.requireKeys("get balances"); err != nil {
		return nil, err
	}

	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, e.wrap("get balances", err)
	}

	balances := make(map[string]float64)
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return nil, exchangeError("get balances", fmt.Errorf("parse free %s: %w", b.Asset, err))
		}
		locked, err := strconv.ParseFloat(b.Locked, 64)
		if err != nil {
			return nil, exchangeError("get balances", fmt.Errorf("parse locked %s: %w", b.Asset, err))
		}
		if total := free + locked; total > 0 {
			balances[b.Asset] = total
		}
	}
	return balances, nil
}

func (e *BinanceSpot) requireKeys(op string) error {
	if !e.hasKeys {
		return exchangeError(op, errors.New("API key and secret are required for signed endpoints"))
	}
	return nil
}

// wrap 将 SDK 错误归类为交易所错误，未知订单额外包装 ErrOrderNotFound。
func (e *BinanceSpot) wrap(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		e.logger.Warn("币安API返回错误",
			zap.String("op", op),
			zap.Int64("code", apiErr.Code),
			zap.String("msg", apiErr.Message))
		if apiErr.Code == codeUnknownOrder {
			return exchangeError(op, fmt.Errorf("%w: %s", models.ErrOrderNotFound, apiErr.Message))
		}
	}
	return exchangeError(op, err)
}

func mapOrderStatus(s binance.OrderStatusType) models.OrderStatus {
	switch s {
	// 撤单中的订单仍可能成交，继续等待最终状态
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled, binance.OrderStatusTypePendingCancel:
		return models.StatusOpen
	case binance.OrderStatusTypeFilled:
		return models.StatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return models.StatusCanceled
	case binance.OrderStatusTypeRejected:
		return models.StatusRejected
	default:
		if s == "EXPIRED_IN_MATCH" {
			return models.StatusCanceled
		}
		return models.StatusOpen
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
