// Package strategy 是网格策略的决策核心：给定状态、当前价格和网格档位，
// 计算下一笔订单意图；订单成交后计算新的状态。这里没有任何I/O。
package strategy

import (
	"spot-grid-bot-go/internal/grid"
	"spot-grid-bot-go/internal/models"
)

// NextOrderIntent 计算下一笔应当挂出的订单。
//
// 存在未完结订单时无论其他参数如何都返回 nil。首笔订单：BUY 选择不高于当前价格的最高档位，
// SELL 选择不低于当前价格的最低档位，价格超出网格时夹到两端。之后的订单
// 总是与上一次成交档位相邻，目标档位超出 [0, n] 时返回 nil。
// 返回的价格和数量都未经取整。
func NextOrderIntent(state models.GridState, price float64, levels []float64, mode models.Mode, capital float64) (*models.OrderIntent, error) {
	if state.State == models.WaitingOrderFill || state.ActiveOrder != nil {
		return nil, nil
	}
	if mode != models.ModeLong && mode != models.ModeShortInverted {
		return nil, models.NewError(models.KindConfiguration, "next order intent", models.ErrInvalidMode)
	}

	n := grid.Intervals(levels)
	if n < 1 {
		return nil, models.Errorf(models.KindSizing, "next order intent", "grid needs at least 2 levels, got %d", len(levels))
	}

	var idx int
	if state.LastFilledIndex == nil {
		idx = initialIndex(state.Phase, price, levels)
	} else if state.Phase == models.Buy {
		idx = *state.LastFilledIndex - 1
	} else {
		idx = *state.LastFilledIndex + 1
	}
	if idx < 0 || idx > n {
		return nil, nil
	}

	target := levels[idx]
	qty, err := grid.QuantityFor(mode, capital, n, target)
	if err != nil {
		return nil, err
	}

	return &models.OrderIntent{
		Side:      state.Phase,
		Price:     target,
		Qty:       qty,
		GridIndex: idx,
	}, nil
}

func initialIndex(phase models.Phase, price float64, levels []float64) int {
	n := len(levels) - 1
	if price <= levels[0] {
		return 0
	}
	if price >= levels[n] {
		return n
	}

	if phase == models.Buy {
		idx := 0
		for i, level := range levels {
			if level <= price {
				idx = i
			}
		}
		return idx
	}

	for i, level := range levels {
		if level >= price {
			return i
		}
	}
	return n
}
