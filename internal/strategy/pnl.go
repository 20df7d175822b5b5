package strategy

import "spot-grid-bot-go/internal/models"

// RealizedPnL 计算一笔成交实现的盈亏（计价货币）。
//
// 只有平仓腿会实现盈亏：LONG 在 k 档卖出平掉 k-1 档的买入，SHORT_INVERTED
// 在 k 档买回平掉 k+1 档的卖出。两条腿的手续费都从盈亏中扣除。开仓腿返回 0。
func RealizedPnL(mode models.Mode, order models.ActiveOrder, levels []float64, feeRate float64) float64 {
	k := order.GridIndex
	n := len(levels) - 1

	switch {
	case mode == models.ModeLong && order.Side == models.Sell && k >= 1 && k <= n:
		entry := levels[k-1]
		gross := (order.Price - entry) * order.Qty
		return gross - fee(entry, order.Qty, feeRate) - fee(order.Price, order.Qty, feeRate)
	case mode == models.ModeShortInverted && order.Side == models.Buy && k >= 0 && k < n:
		entry := levels[k+1]
		gross := (entry - order.Price) * order.Qty
		return gross - fee(entry, order.Qty, feeRate) - fee(order.Price, order.Qty, feeRate)
	default:
		return 0
	}
}

// ApplyFill 返回按成交调整后的估算余额，手续费以计价货币扣除。
func ApplyFill(balances map[string]float64, base, quote string, side models.Side, price, qty, feeRate float64) map[string]float64 {
	out := make(map[string]float64, len(balances)+2)
	for k, v := range balances {
		out[k] = v
	}

	notional := price * qty
	commission := fee(price, qty, feeRate)
	switch side {
	case models.Buy:
		out[base] += qty
		out[quote] -= notional + commission
	case models.Sell:
		out[base] -= qty
		out[quote] += notional - commission
	}
	return out
}

func fee(price, qty, feeRate float64) float64 {
	return price * qty * feeRate
}
