package trading

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

const (
	tradingDaysPerYear = 252
	riskFreeRate       = 0.05 // annual
)

// calculateMetrics calculates backtest performance metrics.
func calculateMetrics(result *Result) {
	result.TotalTrades = len(result.Trades)

	if !result.InitialCash.IsZero() {
		ret, _ := result.FinalValue.Sub(result.InitialCash).Div(result.InitialCash).Float64()
		result.TotalReturn = ret * 100
	}
	result.MaxDrawdown = maxDrawdown(result.EquityCurve) * 100
	result.SharpeRatio = sharpeRatio(dailyEquity(result.EquityCurve))

	if result.TotalTrades == 0 {
		return
	}

	totalWins, totalLosses := decimal.Zero, decimal.Zero
	for _, trade := range result.Trades {
		net := trade.ProfitLoss.Sub(trade.Fees)
		if net.IsPositive() {
			result.WinningTrades++
			totalWins = totalWins.Add(net)
		} else {
			result.LosingTrades++
			totalLosses = totalLosses.Add(net)
		}
	}

	result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	if result.WinningTrades > 0 {
		result.AvgWin = utils.Decimal2(totalWins.Div(decimal.NewFromInt(int64(result.WinningTrades))))
	}
	if result.LosingTrades > 0 {
		result.AvgLoss = utils.Decimal2(totalLosses.Div(decimal.NewFromInt(int64(result.LosingTrades))))
	}
	if totalLosses.IsNegative() {
		result.ProfitFactor = totalWins.Div(totalLosses.Abs()).InexactFloat64()
	}
}

// maxDrawdown returns the largest peak-to-trough fall of the curve as a fraction of the peak.
func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for i, p := range curve {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// dailyEquity keeps the last equity value of each calendar day.
func dailyEquity(curve []EquityPoint) []float64 {
	var out []float64
	for i, p := range curve {
		if i+1 < len(curve) && utils.DateOf(curve[i+1].Timestamp).Equal(utils.DateOf(p.Timestamp)) {
			continue
		}
		out = append(out, p.Equity)
	}
	return out
}

// sharpeRatio returns the annualized Sharpe ratio of daily equity values.
func sharpeRatio(daily []float64) float64 {
	if len(daily) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		if daily[i-1] == 0 {
			return 0
		}
		returns = append(returns, (daily[i]-daily[i-1])/daily[i-1])
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}
	return (mean - riskFreeRate/tradingDaysPerYear) / stdDev * math.Sqrt(tradingDaysPerYear)
}

// EquityCurveASCII renders the equity curve as a terminal chart.
func EquityCurveASCII(result *Result, width, height int) string {
	if len(result.EquityCurve) == 0 || width < 1 || height < 2 {
		return "No data to display"
	}

	minEquity := result.EquityCurve[0].Equity
	maxEquity := result.EquityCurve[0].Equity
	for _, point := range result.EquityCurve {
		minEquity = math.Min(minEquity, point.Equity)
		maxEquity = math.Max(maxEquity, point.Equity)
	}

	equityRange := maxEquity - minEquity
	if equityRange == 0 {
		equityRange = 1
	}
	minEquity -= equityRange * 0.05
	maxEquity += equityRange * 0.05
	equityRange = maxEquity - minEquity

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	step := len(result.EquityCurve) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(result.EquityCurve); x++ {
		point := result.EquityCurve[x*step]
		y := int((point.Equity - minEquity) / equityRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Equity Curve (%.0f - %.0f)\n", minEquity, maxEquity))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")

	return sb.String()
}
