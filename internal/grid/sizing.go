package grid

import "spot-grid-bot-go/internal/models"

// NotionalPerInterval 计算每个网格区间分配的资金
func NotionalPerInterval(capital float64, n int) (float64, error) {
	if capital <= 0 {
		return 0, models.Errorf(models.KindSizing, "notional per interval", "capital must be > 0, got %v", capital)
	}
	if n < 1 {
		return 0, models.Errorf(models.KindSizing, "notional per interval", "intervals must be >= 1, got %d", n)
	}
	return capital / float64(n), nil
}

// QuantityFor 计算某个档位的下单数量（基础货币）。
//
// LONG: 资金为计价货币，数量 = 每格资金 / 下单价格，名义价值恒定、数量随档位变化。
// SHORT_INVERTED: 资金已是基础货币，每格卖出固定数量，与价格无关。
func QuantityFor(mode models.Mode, capital float64, n int, price float64) (float64, error) {
	switch mode {
	case models.ModeLong:
		notional, err := NotionalPerInterval(capital, n)
		if err != nil {
			return 0, err
		}
		if price <= 0 {
			return 0, models.Errorf(models.KindSizing, "quantity", "order price must be > 0, got %v", price)
		}
		return notional / price, nil
	case models.ModeShortInverted:
		return NotionalPerInterval(capital, n)
	default:
		return 0, models.NewError(models.KindConfiguration, "quantity", models.ErrInvalidMode)
	}
}
