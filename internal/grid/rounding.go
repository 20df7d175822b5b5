package grid

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision 返回粒度对应的小数位数: max(0, -floor(log10(g)))。
func Precision(granularity float64) int32 {
	if granularity <= 0 {
		return 0
	}
	// log10 of exact powers of ten is not always exact in float64
	p := -int32(math.Floor(math.Log10(granularity) + 1e-9))
	if p < 0 {
		return 0
	}
	return p
}

// RoundStepSize 将数量向下取整到 step 的整数倍，绝不向上取整以免超出可用资金。
// step <= 0 时原样返回。
func RoundStepSize(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	s := decimal.NewFromFloat(step)
	rounded := decimal.NewFromFloat(qty).Div(s).Floor().Mul(s)
	f, _ := rounded.Round(Precision(step)).Float64()
	return f
}

// RoundTickSize 将价格取整到最接近的 tick 整数倍（.5 远离零）。
// tick <= 0 时原样返回。
func RoundTickSize(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	rounded := decimal.NewFromFloat(price).Div(t).Round(0).Mul(t)
	f, _ := rounded.Round(Precision(tick)).Float64()
	return f
}
