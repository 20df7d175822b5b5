package strategy

import "spot-grid-bot-go/internal/models"

// TransitionOnFill 返回活动订单在 filledIndex 档位成交后的新状态。
// 方向翻转，订单清空，回到 IDLE，并累加本次实现的盈亏。传入的 state 不会被修改。
func TransitionOnFill(state models.GridState, filledIndex int, realizedPnL float64) models.GridState {
	next := state.Clone()
	next.Phase = state.Phase.Opposite()
	next.ActiveOrder = nil
	next.State = models.Idle
	idx := filledIndex
	next.LastFilledIndex = &idx
	next.RealizedPnL = state.RealizedPnL + realizedPnL
	return next
}
