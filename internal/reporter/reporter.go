// Package reporter 以表格形式输出运行摘要和回测报告。
package reporter

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"spot-grid-bot-go/internal/models"
)

// BacktestInput 是生成回测报告所需的原始数据
type BacktestInput struct {
	Symbol        string
	DataPath      string
	StartTime     time.Time
	EndTime       time.Time
	InitialEquity float64
	FinalEquity   float64
	RealizedPnL   float64
	TotalFees     float64
	Fills         []models.FillRecord
	EquityCurve   []float64
	Balances      map[string]float64
}

// Metrics 存储计算出的所有回测性能指标
type Metrics struct {
	TotalProfit      float64
	ProfitPercentage float64
	TotalFills       int
	RoundTrips       int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	AvgProfitLoss    float64
	MaxDrawdown      float64
}

// CalculateMetrics 根据成交记录和权益曲线计算回测指标。
// 实现了盈亏的成交（平仓腿）计为一次完整交易。
func CalculateMetrics(in BacktestInput) Metrics {
	m := Metrics{TotalFills: len(in.Fills)}

	var totalProfit, totalLoss float64
	for _, fill := range in.Fills {
		switch {
		case fill.RealizedPnL > 0:
			m.WinningTrades++
			totalProfit += fill.RealizedPnL
		case fill.RealizedPnL < 0:
			m.LosingTrades++
			totalLoss += fill.RealizedPnL
		}
	}
	m.RoundTrips = m.WinningTrades + m.LosingTrades

	if m.RoundTrips > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.RoundTrips) * 100
	}
	if m.LosingTrades > 0 && m.WinningTrades > 0 {
		avgWin := totalProfit / float64(m.WinningTrades)
		avgLoss := math.Abs(totalLoss / float64(m.LosingTrades))
		m.AvgProfitLoss = avgWin / avgLoss
	}

	m.TotalProfit = in.FinalEquity - in.InitialEquity
	if in.InitialEquity != 0 {
		m.ProfitPercentage = m.TotalProfit / in.InitialEquity * 100
	}
	m.MaxDrawdown = calculateMaxDrawdown(in.EquityCurve) * 100
	return m
}

// GenerateReport 计算并打印回测报告
func GenerateReport(w io.Writer, in BacktestInput) Metrics {
	m := CalculateMetrics(in)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("回测结果报告")
	t.AppendHeader(table.Row{"指标", "数值"})
	t.AppendRows([]table.Row{
		{"数据文件", in.DataPath},
		{"交易对", in.Symbol},
		{"回测周期", fmt.Sprintf("%s 到 %s", in.StartTime.Format("2006-01-02 15:04"), in.EndTime.Format("2006-01-02 15:04"))},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"初始权益", fmt.Sprintf("%.4f", in.InitialEquity)},
		{"最终权益", fmt.Sprintf("%.4f", in.FinalEquity)},
		{"总利润", fmt.Sprintf("%.4f", m.TotalProfit)},
		{"收益率", fmt.Sprintf("%.2f%%", m.ProfitPercentage)},
		{"已实现盈亏", fmt.Sprintf("%.4f", in.RealizedPnL)},
		{"总手续费", fmt.Sprintf("%.4f", in.TotalFees)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"成交次数", m.TotalFills},
		{"完整交易次数", m.RoundTrips},
		{"盈利次数", m.WinningTrades},
		{"亏损次数", m.LosingTrades},
		{"胜率", fmt.Sprintf("%.2f%%", m.WinRate)},
		{"平均盈亏比", fmt.Sprintf("%.2f", m.AvgProfitLoss)},
		{"最大回撤", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
	})
	t.Render()

	if len(in.Balances) > 0 {
		renderBalances(w, "期末余额", in.Balances)
	}
	return m
}

// Summary 是机器人退出时打印的状态摘要
type Summary struct {
	Symbol   string
	Mode     models.Mode
	DryRun   bool
	State    models.GridState
	Levels   []float64
	Balances map[string]float64
}

// PrintSummary 打印当前阶段、累计盈亏、网格和活动订单
func PrintSummary(w io.Writer, s Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("网格机器人状态")
	t.AppendHeader(table.Row{"项目", "值"})

	lastFilled := "-"
	if s.State.LastFilledIndex != nil {
		lastFilled = fmt.Sprintf("%d", *s.State.LastFilledIndex)
	}
	t.AppendRows([]table.Row{
		{"交易对", s.Symbol},
		{"模式", s.Mode},
		{"模拟盘", s.DryRun},
		{"方向", s.State.Phase},
		{"状态", s.State.State},
		{"参考价格 P0", fmt.Sprintf("%.8g", s.State.ReferencePrice)},
		{"最近成交档位", lastFilled},
		{"已实现盈亏", fmt.Sprintf("%.8f", s.State.RealizedPnL)},
	})
	if o := s.State.ActiveOrder; o != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"活动订单", o.OrderID},
			{"订单方向", o.Side},
			{"订单价格", fmt.Sprintf("%.8g", o.Price)},
			{"订单数量", fmt.Sprintf("%.8g", o.Qty)},
			{"订单档位", o.GridIndex},
			{"订单状态", o.Status},
		})
	}
	t.Render()

	if len(s.Levels) > 0 {
		lt := table.NewWriter()
		lt.SetOutputMirror(w)
		lt.AppendHeader(table.Row{"#", "网格价格", ""})
		for i, level := range s.Levels {
			marker := ""
			if s.State.LastFilledIndex != nil && *s.State.LastFilledIndex == i {
				marker = "last fill"
			}
			if o := s.State.ActiveOrder; o != nil && o.GridIndex == i {
				marker = "active " + string(o.Side)
			}
			lt.AppendRow(table.Row{i, fmt.Sprintf("%.8g", level), marker})
		}
		lt.Render()
	}

	balances := s.Balances
	if balances == nil {
		balances = s.State.EstimatedBalances
	}
	if len(balances) > 0 {
		renderBalances(w, "估算余额", balances)
	}
}

func renderBalances(w io.Writer, title string, balances map[string]float64) {
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"币种", "数量"})
	for _, asset := range assets {
		t.AppendRow(table.Row{asset, fmt.Sprintf("%.8f", balances[asset])})
	}
	t.Render()
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0.0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}
