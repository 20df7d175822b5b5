package exchange

import (
	"context"

	"spot-grid-bot-go/internal/models"
)

// Exchange 定义了机器人需要的全部交易所能力。
// 实盘、模拟盘(dry run)和回测都实现这个接口，编排器不关心背后是哪一种。
//
// 订单以客户端订单号标识：PlaceLimitOrder 返回的 orderID 就是传入的 clientOrderID，
// 这样在下单请求结果未知时，重启后仍然可以查询到这笔订单。
// 所有失败都以 models.KindExchange 分类返回；交易所不认识的订单包装 models.ErrOrderNotFound。
type Exchange interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetSymbolRules(ctx context.Context, symbol string) (models.SymbolRules, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, qty float64, clientOrderID string) (string, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	GetBalances(ctx context.Context) (map[string]float64, error)
}

// OrderAdopter 由只在本地记账的交易所实现，重启后编排器把状态文件中的活动订单交还给它。
type OrderAdopter interface {
	Adopt(order models.ActiveOrder)
}

func exchangeError(op string, err error) error {
	return models.NewError(models.KindExchange, op, err)
}
