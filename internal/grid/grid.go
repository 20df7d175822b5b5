// Package grid 提供几何网格的构建、下单数量计算和按交易所精度取整。
// 这里的函数都是纯函数，不依赖交易所或持久化。
package grid

import (
	"math"

	"spot-grid-bot-go/internal/models"
)

// BuildGrid 根据参考价格 p0 和上下沿比例构建 n 个区间（n+1 个档位）的几何网格。
// 首尾两个档位严格等于计算出的上下沿，中间档位允许普通的浮点误差。
func BuildGrid(p0, pctBottom, pctTop float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, models.Errorf(models.KindSizing, "build grid", "number of intervals must be >= 1, got %d", n)
	}
	if p0 <= 0 {
		return nil, models.Errorf(models.KindSizing, "build grid", "reference price must be > 0, got %v", p0)
	}
	if pctBottom >= pctTop {
		return nil, models.Errorf(models.KindSizing, "build grid", "bottom range (%v) must be less than top range (%v)", pctBottom, pctTop)
	}

	bottom := p0 * (1 + pctBottom)
	top := p0 * (1 + pctTop)
	if bottom <= 0 {
		return nil, models.Errorf(models.KindSizing, "build grid", "bottom price must be > 0, got %v", bottom)
	}

	ratio := math.Pow(top/bottom, 1/float64(n))
	levels := make([]float64, n+1)
	for i := range levels {
		levels[i] = bottom * math.Pow(ratio, float64(i))
	}
	levels[0] = bottom
	levels[n] = top

	return levels, nil
}

// Intervals returns the number of intervals of a level sequence.
func Intervals(levels []float64) int {
	return len(levels) - 1
}
